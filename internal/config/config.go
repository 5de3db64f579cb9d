// Package config loads the runtime configuration from .env, REALM_*
// environment variables and an optional YAML file named by REALM_CONFIG.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr string `yaml:"addr"`
	// Origin is the application server pages are requested from.
	Origin    string `yaml:"origin"`
	BuildHash string `yaml:"build_hash"`
	LogLevel  string `yaml:"log_level"`

	LoadingDelay   time.Duration `yaml:"loading_delay"`
	ShutdownPolls  int           `yaml:"shutdown_polls"`
	FrameInterval  time.Duration `yaml:"frame_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DisableCaching bool          `yaml:"disable_caching"`
	CancelStale    bool          `yaml:"cancel_stale"`

	// Modules are mounted as static modules by the CLI.
	Modules []string `yaml:"modules"`

	Cache CacheConfig `yaml:"cache"`
	Host  HostConfig  `yaml:"host"`
}

type CacheConfig struct {
	// Backend is one of memory, disk, sqlite, postgres, s3, redis or none.
	Backend string `yaml:"backend"`
	// Layered puts an in-memory LRU in front of a remote backend.
	Layered    bool          `yaml:"layered"`
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`

	Dir         string      `yaml:"dir"`
	SQLitePath  string      `yaml:"sqlite_path"`
	PostgresDSN string      `yaml:"postgres_dsn"`
	S3          S3Config    `yaml:"s3"`
	Redis       RedisConfig `yaml:"redis"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type HostConfig struct {
	// Kind is headless or rod.
	Kind     string `yaml:"kind"`
	Hostname string `yaml:"hostname"`
	// RemoteURL is the DevTools websocket of a running Chrome.
	RemoteURL string `yaml:"remote_url"`
	Stealth   bool   `yaml:"stealth"`
}

const (
	BackendMemory   = "memory"
	BackendDisk     = "disk"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendRedis    = "redis"
	BackendNone     = "none"

	HostHeadless = "headless"
	HostRod      = "rod"
)

func Default() Config {
	return Config{
		Addr:           ":8080",
		LogLevel:       "info",
		LoadingDelay:   300 * time.Millisecond,
		ShutdownPolls:  10,
		FrameInterval:  16 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		Cache: CacheConfig{
			Backend:    BackendMemory,
			MaxEntries: 2048,
			Dir:        "tmp/realm-cache",
			SQLitePath: "tmp/realm-cache.db",
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "realm-cache",
			},
		},
		Host: HostConfig{Kind: HostHeadless, Hostname: "localhost"},
	}
}

// Load returns the defaults overlaid with the REALM_CONFIG file, then with
// the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("REALM_CONFIG")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile overlays the YAML file at path.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if strings.HasPrefix(port, ":") {
			c.Addr = port
		} else {
			c.Addr = ":" + port
		}
	}
	setString(&c.Addr, "REALM_ADDR")
	setString(&c.Origin, "REALM_ORIGIN")
	setString(&c.BuildHash, "REALM_BUILD_HASH")
	setString(&c.LogLevel, "REALM_LOG_LEVEL")
	if v := strings.TrimSpace(os.Getenv("REALM_MODULES")); v != "" {
		c.Modules = splitList(v)
	}

	setString(&c.Cache.Backend, "REALM_CACHE_BACKEND")
	setString(&c.Cache.Dir, "REALM_CACHE_DIR")
	setString(&c.Cache.SQLitePath, "REALM_SQLITE_PATH")
	setString(&c.Cache.PostgresDSN, "REALM_PG_DSN")
	setString(&c.Cache.S3.Endpoint, "REALM_S3_ENDPOINT")
	setString(&c.Cache.S3.Region, "REALM_S3_REGION")
	setString(&c.Cache.S3.AccessKey, "REALM_S3_ACCESS_KEY")
	setString(&c.Cache.S3.SecretKey, "REALM_S3_SECRET_KEY")
	setString(&c.Cache.S3.Bucket, "REALM_S3_BUCKET")
	setString(&c.Cache.Redis.Addr, "REALM_REDIS_ADDR")
	setString(&c.Cache.Redis.Password, "REALM_REDIS_PASSWORD")
	setString(&c.Host.Kind, "REALM_HOST")
	setString(&c.Host.Hostname, "REALM_HOSTNAME")
	setString(&c.Host.RemoteURL, "REALM_ROD_URL")

	for key, dst := range map[string]*bool{
		"REALM_DISABLE_CACHING": &c.DisableCaching,
		"REALM_CANCEL_STALE":    &c.CancelStale,
		"REALM_CACHE_LAYERED":   &c.Cache.Layered,
		"REALM_S3_USE_SSL":      &c.Cache.S3.UseSSL,
		"REALM_ROD_STEALTH":     &c.Host.Stealth,
	} {
		if err := setBool(dst, key); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		"REALM_LOADING_DELAY":   &c.LoadingDelay,
		"REALM_FRAME_INTERVAL":  &c.FrameInterval,
		"REALM_REQUEST_TIMEOUT": &c.RequestTimeout,
		"REALM_CACHE_TTL":       &c.Cache.TTL,
	} {
		if err := setDuration(dst, key); err != nil {
			return err
		}
	}
	if err := setInt(&c.ShutdownPolls, "REALM_SHUTDOWN_POLLS"); err != nil {
		return err
	}
	return setInt(&c.Cache.Redis.DB, "REALM_REDIS_DB")
}

// Validate rejects unknown backends and hosts.
func (c *Config) Validate() error {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	switch c.Cache.Backend {
	case BackendMemory, BackendDisk, BackendSQLite, BackendPostgres, BackendS3, BackendRedis, BackendNone:
	case "":
		c.Cache.Backend = BackendMemory
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	c.Host.Kind = strings.ToLower(strings.TrimSpace(c.Host.Kind))
	switch c.Host.Kind {
	case HostHeadless, HostRod:
	case "":
		c.Host.Kind = HostHeadless
	default:
		return fmt.Errorf("config: unknown host %q", c.Host.Kind)
	}
	if c.ShutdownPolls < 0 {
		return fmt.Errorf("config: shutdown_polls must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = v
	return nil
}

func setInt(dst *int, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = v
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = v
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
