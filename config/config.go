// Package config loads service configuration from file and
// environment. Environment variables use the EXCHANGE_ prefix with
// underscores, e.g. EXCHANGE_LOG_LEVEL=debug.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Metrics struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Journal struct {
		Dir             string        `mapstructure:"dir"`
		SegmentSize     int64         `mapstructure:"segment_size"`
		SegmentDuration time.Duration `mapstructure:"segment_duration"`
	} `mapstructure:"journal"`

	Store struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"store"`

	Outbox struct {
		Dir string `mapstructure:"dir"`
	} `mapstructure:"outbox"`

	Kafka struct {
		Enabled    bool          `mapstructure:"enabled"`
		Brokers    []string      `mapstructure:"brokers"`
		Topic      string        `mapstructure:"topic"`
		AuditTopic string        `mapstructure:"audit_topic"`
		Interval   time.Duration `mapstructure:"interval"`
	} `mapstructure:"kafka"`

	Snapshot struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"snapshot"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("journal.dir", "./data/journal")
	v.SetDefault("journal.segment_size", 8*1024*1024)
	v.SetDefault("journal.segment_duration", time.Hour)
	v.SetDefault("store.dir", "./data/store")
	v.SetDefault("outbox.dir", "./data/outbox")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "exchange.events")
	v.SetDefault("kafka.audit_topic", "")
	v.SetDefault("kafka.interval", 250*time.Millisecond)
	v.SetDefault("snapshot.interval", 30*time.Second)
}

// Load reads path (optional; "" means defaults plus environment).
// onChange, when non-nil, fires with the re-parsed config every time
// the file changes on disk.
func Load(path string, onChange func(Config)) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EXCHANGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if path != "" && onChange != nil {
		v.OnConfigChange(func(fsnotify.Event) {
			var next Config
			if err := v.Unmarshal(&next); err == nil {
				onChange(next)
			}
		})
		v.WatchConfig()
	}

	return cfg, nil
}
