// Package config loads widgetcore settings from a TOML file and WIDGETCORE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WIDGETCORE_PAGING_MAX_SIZE.
const EnvPrefix = "WIDGETCORE"

// Config holds application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" toml:"server"`
	Paging  PagingConfig  `mapstructure:"paging" toml:"paging"`
	Storage StorageConfig `mapstructure:"storage" toml:"storage"`
	Blob    BlobConfig    `mapstructure:"blob" toml:"blob"`
	Metrics MetricsConfig `mapstructure:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" toml:"addr"`
}

// PagingConfig bounds list requests.
type PagingConfig struct {
	DefaultSize int `mapstructure:"default_size" toml:"default_size"`
	MaxSize     int `mapstructure:"max_size" toml:"max_size"`
}

// StorageConfig selects and configures the widget store backend.
type StorageConfig struct {
	Driver        string `mapstructure:"driver" toml:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path" toml:"sqlite_path"`
	PostgresDSN   string `mapstructure:"postgres_dsn" toml:"postgres_dsn"`
	RedisAddr     string `mapstructure:"redis_addr" toml:"redis_addr"`
	RedisKey      string `mapstructure:"redis_key" toml:"redis_key"`
	MongoURI      string `mapstructure:"mongo_uri" toml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" toml:"mongo_database"`
}

// BlobConfig selects the blob store used for snapshot backups.
type BlobConfig struct {
	Driver      string `mapstructure:"driver" toml:"driver"`
	FSRoot      string `mapstructure:"fs_root" toml:"fs_root"`
	S3Bucket    string `mapstructure:"s3_bucket" toml:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region" toml:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint" toml:"s3_endpoint"`
	S3PathStyle bool   `mapstructure:"s3_path_style" toml:"s3_path_style"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
}

// Storage drivers accepted by storage.driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Blob drivers accepted by blob.driver.
const (
	BlobFS     = "fs"
	BlobS3     = "s3"
	BlobMemory = "memory"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Paging: PagingConfig{DefaultSize: 100, MaxSize: 500},
		Storage: StorageConfig{
			Driver:        DriverMemory,
			SQLitePath:    "widgetcore.db",
			RedisKey:      "widgetcore:state",
			MongoDatabase: "widgetcore",
		},
		Blob: BlobConfig{Driver: BlobFS, FSRoot: "./snapshots"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("paging.default_size", d.Paging.DefaultSize)
	v.SetDefault("paging.max_size", d.Paging.MaxSize)
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)
	v.SetDefault("storage.redis_addr", d.Storage.RedisAddr)
	v.SetDefault("storage.redis_key", d.Storage.RedisKey)
	v.SetDefault("storage.mongo_uri", d.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", d.Storage.MongoDatabase)
	v.SetDefault("blob.driver", d.Blob.Driver)
	v.SetDefault("blob.fs_root", d.Blob.FSRoot)
	v.SetDefault("blob.s3_bucket", d.Blob.S3Bucket)
	v.SetDefault("blob.s3_region", d.Blob.S3Region)
	v.SetDefault("blob.s3_endpoint", d.Blob.S3Endpoint)
	v.SetDefault("blob.s3_path_style", d.Blob.S3PathStyle)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// Load reads configuration from file and env. An explicit path (or
// WIDGETCORE_CONFIG) must exist; otherwise widgetcore.toml is looked up in the
// working directory and ~/.config/widgetcore and may be absent.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "widgetcore"))
		}
		v.SetConfigName("widgetcore")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Paging.DefaultSize <= 0 {
		problems = append(problems, "paging.default_size must be positive")
	}
	if c.Paging.MaxSize <= 0 {
		problems = append(problems, "paging.max_size must be positive")
	}
	if c.Paging.DefaultSize > c.Paging.MaxSize {
		problems = append(problems, "paging.default_size must not exceed paging.max_size")
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverRedis, DriverMongo:
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case BlobFS, BlobS3, BlobMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown blob.driver %q", c.Blob.Driver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// WriteDefault writes the built-in configuration as TOML, refusing to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}
