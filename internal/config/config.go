// Package config loads CLI settings from defaults, an optional config file,
// TOKENKEEPER_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "TOKENKEEPER"

// Store backends.
const (
	StoreMemory   = "memory"
	StoreBolt     = "bbolt"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	BaseURL          string        `mapstructure:"base_url"`
	Store            string        `mapstructure:"store"`
	DataDir          string        `mapstructure:"data_dir"`
	PostgresDSN      string        `mapstructure:"postgres_dsn"`
	RedisAddr        string        `mapstructure:"redis_addr"`
	Passphrase       string        `mapstructure:"passphrase"`
	RefreshTimeout   time.Duration `mapstructure:"refresh_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	ProactiveRefresh time.Duration `mapstructure:"proactive_refresh"`
	LogLevel         string        `mapstructure:"log_level"`

	// Dev server.
	Listen     string        `mapstructure:"listen"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		BaseURL:        "http://localhost:3001",
		Store:          StoreBolt,
		DataDir:        defaultDataDir(),
		RefreshTimeout: 10 * time.Second,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
		Listen:         ":3001",
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     30 * 24 * time.Hour,
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tokenkeeper")
	}
	return ".tokenkeeper"
}

// Loader collects sources for a Config. The zero value is not usable; use
// NewLoader.
type Loader struct {
	v *viper.Viper
}

func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("store", d.Store)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("postgres_dsn", d.PostgresDSN)
	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("passphrase", d.Passphrase)
	v.SetDefault("refresh_timeout", d.RefreshTimeout)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("proactive_refresh", d.ProactiveRefresh)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("jwt_secret", d.JWTSecret)
	v.SetDefault("access_ttl", d.AccessTTL)
	v.SetDefault("refresh_ttl", d.RefreshTTL)
	return &Loader{v: v}
}

// BindFlags binds every flag in fs whose name, with dashes turned into
// underscores, is a config key. Flags only override when set.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if !l.isKey(key) {
			return
		}
		if bindErr := l.v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("binding flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

func (l *Loader) isKey(key string) bool {
	for _, k := range l.v.AllKeys() {
		if k == key {
			return true
		}
	}
	return false
}

// ReadFile merges the config file at path. The format follows the file
// extension (yaml, toml, json).
func (l *Loader) ReadFile(path string) error {
	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

// Load decodes the merged settings and validates them for client commands.
func (l *Loader) Load() (*Config, error) {
	return l.load((*Config).Validate)
}

// LoadServer is Load for the dev server, which never opens a store.
func (l *Loader) LoadServer() (*Config, error) {
	return l.load((*Config).ValidateServer)
}

func (l *Loader) load(validate func(*Config) error) (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no client command can run with.
func (c *Config) Validate() error {
	return joinInvalid(append(c.common(), c.storeErrors()...))
}

// ValidateServer checks only what the dev server reads.
func (c *Config) ValidateServer() error {
	errs := c.common()
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("access_ttl and refresh_ttl must be positive"))
	}
	return joinInvalid(errs)
}

func (c *Config) common() []error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}
	if c.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("refresh_timeout must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.ProactiveRefresh < 0 {
		errs = append(errs, errors.New("proactive_refresh must not be negative"))
	}
	return errs
}

func (c *Config) storeErrors() []error {
	var errs []error
	switch c.Store {
	case StoreMemory:
	case StoreBolt:
		if c.DataDir == "" {
			errs = append(errs, errors.New("data_dir is required for the bbolt store"))
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for the postgres store"))
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis_addr is required for the redis store"))
		}
	default:
		return append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	if c.Durable() && c.Passphrase == "" {
		errs = append(errs, fmt.Errorf("passphrase is required for the %s store", c.Store))
	}
	return errs
}

func joinInvalid(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// Durable reports whether the store outlives the process.
func (c *Config) Durable() bool {
	return c.Store != StoreMemory
}
