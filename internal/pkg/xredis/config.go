package xredis

import (
	"time"
)

// Config locates the redis server backing the document store.
type Config struct {
	Addr                  string        `conf:"addr" yaml:"addr" json:"addr"`
	URL                   string        `conf:"url" yaml:"url" json:"url"`
	Username              string        `conf:"username" yaml:"username" json:"username"`
	Password              string        `conf:"password" yaml:"password" json:"password"`
	DB                    *int          `conf:"db" yaml:"db" json:"db"`
	TLS                   bool          `conf:"tls" yaml:"tls" json:"tls"`
	TLSInsecureSkipVerify bool          `conf:"tls_insecure_skip_verify" yaml:"tls_insecure_skip_verify" json:"tls_insecure_skip_verify"`
	DialTimeout           time.Duration `conf:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	// KeyPrefix namespaces every key written by the process.
	KeyPrefix string `conf:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
}

func (c Config) Prefix() string {
	if c.KeyPrefix == "" {
		return "matchd"
	}

	return c.KeyPrefix
}
