package authn

import "time"

type Config struct {
	// Secret signs access tokens with HS256.
	Secret string        `conf:"secret" yaml:"secret" json:"secret"`
	TTL    time.Duration `conf:"ttl" yaml:"ttl" json:"ttl"`
	Issuer string        `conf:"issuer" yaml:"issuer" json:"issuer"`
}
