package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Storage   StorageConfig  `mapstructure:"storage"`
	Exports   ExportsConfig  `mapstructure:"exports"`
	Authz     AuthzConfig    `mapstructure:"authz"`
	Counts    CountsConfig   `mapstructure:"counts"`
	JWTSecret string         `mapstructure:"jwt_secret"`

	// SensitiveAttributes is appended to the built-in sensitive
	// attribute pattern list. Extra patterns can only narrow what is
	// writable, never widen it.
	SensitiveAttributes []string `mapstructure:"sensitive_attributes"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	PoolSize int    `mapstructure:"pool_size"`
	Path     string `mapstructure:"path"` // directory for SQLite database files
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	LocalPath string `mapstructure:"local_path"`
}

type ExportsConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	BatchSize     int `mapstructure:"batch_size"`
	Workers       int `mapstructure:"workers"`
	QueueSize     int `mapstructure:"queue_size"`
}

type AuthzConfig struct {
	// Adapter selects the authorization strategy: auto, default,
	// callback, policy, ability or expr.
	Adapter string `mapstructure:"adapter"`
	// Expression is the rule evaluated by the expr adapter, e.g.
	// `actor != nil && "admin" in actor.Roles`.
	Expression string `mapstructure:"expression"`
}

type CountsConfig struct {
	Parallel      bool `mapstructure:"parallel"`
	MaxConcurrent int  `mapstructure:"max_concurrent"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path + "/" + d.Name + ".db"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// IsSQLite returns true if the driver is sqlite.
func (d DatabaseConfig) IsSQLite() bool {
	return d.Driver == "sqlite"
}

func Load() (*Config, error) {
	viper.SetConfigName("steward")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../..")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.pool_size", 10)
	viper.SetDefault("database.path", "./data")
	viper.SetDefault("storage.driver", "local")
	viper.SetDefault("storage.local_path", "./exports")
	viper.SetDefault("exports.retention_days", 7)
	viper.SetDefault("exports.batch_size", 1000)
	viper.SetDefault("exports.workers", 2)
	viper.SetDefault("exports.queue_size", 64)
	viper.SetDefault("authz.adapter", "auto")
	viper.SetDefault("counts.parallel", true)
	viper.SetDefault("counts.max_concurrent", 4)
	viper.SetDefault("jwt_secret", "changeme-secret")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
