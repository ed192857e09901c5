package metrics

import "time"

type Config struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`
	// Exporter selects where readings go. Only "stdout" is built in.
	Exporter string        `conf:"exporter" yaml:"exporter" json:"exporter"`
	Interval time.Duration `conf:"interval" yaml:"interval" json:"interval"`
}
