package log

import "time"

type Config struct {
	// Name is the logger name, used as the zap logger name.
	Name string `conf:"name" yaml:"name" json:"name"`

	// Debug enables the development mode of zap, e.g. stack traces on warn.
	Debug bool `conf:"debug" yaml:"debug" json:"debug"`

	// Level is the minimum enabled level: debug, info, warn, error, panic, fatal.
	Level string `conf:"level" yaml:"level" json:"level"`

	// Encoding is json or console.
	Encoding string `conf:"encoding" yaml:"encoding" json:"encoding"`

	// Output is stdio or file.
	Output string `conf:"output" yaml:"output" json:"output"`

	File FileConfig `conf:"file" yaml:"file" json:"file"`
}

type FileConfig struct {
	Path       string        `conf:"path" yaml:"path" json:"path"`
	MaxSize    int           `conf:"max_size" yaml:"max_size" json:"max_size"`
	MaxAge     time.Duration `conf:"max_age" yaml:"max_age" json:"max_age"`
	MaxBackups int           `conf:"max_backups" yaml:"max_backups" json:"max_backups"`
	LocalTime  bool          `conf:"local_time" yaml:"local_time" json:"local_time"`
	Compress   bool          `conf:"compress" yaml:"compress" json:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Name:     "matchd",
		Level:    "info",
		Encoding: "json",
		Output:   "stdio",
	}
}
