package db

import "github.com/charm-corp/ai-value-matching-sub001/internal/pkg/xredis"

type Config struct {
	// Dialect is memory, sqlite3, postgres, mysql or redis.
	Dialect string `conf:"dialect" yaml:"dialect" json:"dialect"`
	DSN     string `conf:"dsn" yaml:"dsn" json:"dsn"`
	Debug   bool   `conf:"debug" yaml:"debug" json:"debug"`

	Redis xredis.Config `conf:"redis" yaml:"redis" json:"redis"`
}
