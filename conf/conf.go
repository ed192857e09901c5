// Package conf loads the process configuration from config.yml and MATCHD_
// environment variables.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/metrics"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/authn"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/biz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/db"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/gc"
)

const envPrefix = "MATCHD"

type Config struct {
	fx.Out `yaml:"-" json:"-"`

	Name     string             `conf:"name" yaml:"name" json:"name" name:"service_name"`
	Log      log.Config         `conf:"log" yaml:"log" json:"log"`
	DB       db.Config          `conf:"db" yaml:"db" json:"db"`
	Matching biz.MatchingConfig `conf:"matching" yaml:"matching" json:"matching"`
	Auth     authn.Config       `conf:"auth" yaml:"auth" json:"auth"`
	Metrics  metrics.Config     `conf:"metrics" yaml:"metrics" json:"metrics"`
	GC       gc.Config          `conf:"gc" yaml:"gc" json:"gc"`
}

// Load reads config.yml from the working directory, ./conf or /etc/matchd and
// overlays the environment. A missing file is not an error.
func Load() (Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./conf")
	v.AddConfigPath("/etc/matchd")

	return load(v)
}

// LoadFile reads the configuration from path instead of the search paths.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config

	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the file
// never mentions.
func setDefaults(v *viper.Viper) {
	logCfg := log.DefaultConfig()

	v.SetDefault("name", "matchd")

	v.SetDefault("log.name", logCfg.Name)
	v.SetDefault("log.debug", false)
	v.SetDefault("log.level", logCfg.Level)
	v.SetDefault("log.encoding", logCfg.Encoding)
	v.SetDefault("log.output", logCfg.Output)
	v.SetDefault("log.file.path", "logs/matchd.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30*24*time.Hour)
	v.SetDefault("log.file.max_backups", 10)
	v.SetDefault("log.file.local_time", true)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("db.dialect", "sqlite3")
	v.SetDefault("db.dsn", "file:matchd.db")
	v.SetDefault("db.debug", false)
	v.SetDefault("db.redis.addr", "")
	v.SetDefault("db.redis.url", "")
	v.SetDefault("db.redis.username", "")
	v.SetDefault("db.redis.password", "")
	v.SetDefault("db.redis.key_prefix", "matchd")
	v.SetDefault("db.redis.dial_timeout", 5*time.Second)

	v.SetDefault("matching.enabled", true)
	v.SetDefault("matching.cron", "0 */6 * * *")
	v.SetDefault("matching.threshold", 60.0)
	v.SetDefault("matching.concurrency", 8)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.ttl", 24*time.Hour)
	v.SetDefault("auth.issuer", "matchd")

	v.SetDefault("gc.cron", "0 3 * * *")
	v.SetDefault("gc.retention", 30*24*time.Hour)
	v.SetDefault("gc.pending_ttl", 14*24*time.Hour)
	v.SetDefault("gc.batch_size", 500)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.exporter", "stdout")
	v.SetDefault("metrics.interval", time.Minute)
}
