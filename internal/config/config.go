package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "NODECHAT"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Env            string        `mapstructure:"env"`
	LogLevel       string        `mapstructure:"log_level"`
	ServerAddr     string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Store          StoreConfig   `mapstructure:"store"`
	Chat           ChatConfig    `mapstructure:"chat"`
	Ranking        RankingConfig `mapstructure:"ranking"`
	Cache          CacheConfig   `mapstructure:"cache"`
}

// StoreConfig selects the persistence backend. DSN is ignored by the
// memory store.
type StoreConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

type ChatConfig struct {
	HistoryLimit     int  `mapstructure:"history_limit"`
	MaxDwellSeconds  int  `mapstructure:"max_dwell_seconds"`
	MaxMessageLength int  `mapstructure:"max_message_length"`
	RoomCacheSize    int  `mapstructure:"room_cache_size"`
	ReportErrors     bool `mapstructure:"report_errors"`
}

type RankingConfig struct {
	RefreshSpec string `mapstructure:"refresh_spec"`
}

// CacheConfig enables the hot rooms response cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("addr", "localhost:8000")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("store.type", StoreMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.max_dwell_seconds", 6*60*60)
	v.SetDefault("chat.max_message_length", 1000)
	v.SetDefault("chat.room_cache_size", 1024)
	v.SetDefault("chat.report_errors", false)
	v.SetDefault("ranking.refresh_spec", "@every 1m")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", 15*time.Second)
}

// FlagSet returns the command-line flags understood by Load.
func FlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	fs.String("addr", "", "server address")
	fs.String("env", "", "environment (development or production)")
	fs.String("log-level", "", "log level")
	fs.String("store-type", "", "persistence backend: memory, postgres or sqlite")
	fs.String("dsn", "", "database connection string")
	fs.StringSlice("allowed-origins", nil, "comma-separated list of allowed origins for CORS")
	fs.String("redis-url", "", "redis url for the hot rooms cache")
	return fs
}

var flagKeys = map[string]string{
	"addr":            "addr",
	"env":             "env",
	"log-level":       "log_level",
	"store-type":      "store.type",
	"dsn":             "store.dsn",
	"allowed-origins": "allowed_origins",
	"redis-url":       "cache.redis_url",
}

// Load merges defaults, the optional config file at path, NODECHAT_*
// environment variables and explicitly set flags, in increasing priority.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %q: %w", name, err)
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}

	storeTypes := []string{StoreMemory, StorePostgres, StoreSQLite}
	if !slices.Contains(storeTypes, c.Store.Type) {
		return fmt.Errorf("invalid store type %q", c.Store.Type)
	}

	if c.Store.Type != StoreMemory && c.Store.DSN == "" {
		return fmt.Errorf("database DSN cannot be empty for store type %q", c.Store.Type)
	}

	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive")
	}

	if c.Chat.MaxDwellSeconds <= 0 {
		return fmt.Errorf("max dwell seconds must be positive")
	}

	if c.Chat.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}

	if c.Chat.RoomCacheSize <= 0 {
		return fmt.Errorf("room cache size must be positive")
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}

	return nil
}
