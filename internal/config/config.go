package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// DefaultHTTPPort is the default HTTP port for Gate (T9 keypad for GATE -> 4283)
	DefaultHTTPPort = 4283
)

type Server struct {
	HTTPAddr string `yaml:"http_address" mapstructure:"http_address"`
}

// Snapshot configures the control-plane snapshot source and the cache
// freshness windows.
type Snapshot struct {
	// Source is http or file.
	Source string `yaml:"source" mapstructure:"source"`

	// URL of the control-plane snapshot endpoint when Source is http.
	URL string `yaml:"url" mapstructure:"url"`

	// Path of the snapshot file when Source is file.
	Path string `yaml:"path" mapstructure:"path"`

	FetchTimeout    time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`
	TTL             time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxStaleness    time.Duration `yaml:"max_staleness" mapstructure:"max_staleness"`
}

type Redis struct {
	Address  string `yaml:"address" mapstructure:"address"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// RateLimit configures the counter store backing the limiter.
type RateLimit struct {
	// Store is memory, badger, or redis.
	Store string `yaml:"store" mapstructure:"store"`

	// SweepSchedule is a cron expression for expired-bucket sweeps.
	SweepSchedule string `yaml:"sweep_schedule" mapstructure:"sweep_schedule"`

	Redis Redis `yaml:"redis" mapstructure:"redis"`
}

type Log struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type Config struct {
	Server    Server    `yaml:"server" mapstructure:"server"`
	DataDir   string    `yaml:"data_dir" mapstructure:"data_dir"`
	Snapshot  Snapshot  `yaml:"snapshot" mapstructure:"snapshot"`
	RateLimit RateLimit `yaml:"ratelimit" mapstructure:"ratelimit"`
	Log       Log       `yaml:"log" mapstructure:"log"`
}

func Default() *Config {
	return &Config{
		Server:  Server{HTTPAddr: fmt.Sprintf(":%d", DefaultHTTPPort)},
		DataDir: defaultDataDir(),
		Snapshot: Snapshot{
			Source:          "http",
			FetchTimeout:    5 * time.Second,
			RefreshInterval: 30 * time.Second,
			TTL:             60 * time.Second,
			MaxStaleness:    5 * time.Minute,
		},
		RateLimit: RateLimit{
			Store:         "memory",
			SweepSchedule: "@every 5m",
			Redis:         Redis{Address: "localhost:6379"},
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./data"
	}
	if st, err := os.Stat("/var/lib"); err == nil && st.IsDir() {
		return "/var/lib/gate"
	}
	return filepath.Join(home, ".gate")
}

// Validate checks the combinations Load cannot express structurally.
func (c *Config) Validate() error {
	switch c.Snapshot.Source {
	case "http":
		if c.Snapshot.URL == "" {
			return fmt.Errorf("snapshot.url is required when snapshot.source is http")
		}
	case "file":
		if c.Snapshot.Path == "" {
			return fmt.Errorf("snapshot.path is required when snapshot.source is file")
		}
	default:
		return fmt.Errorf("unknown snapshot source %q (expected http or file)", c.Snapshot.Source)
	}

	switch c.RateLimit.Store {
	case "memory", "badger":
	case "redis":
		if c.RateLimit.Redis.Address == "" {
			return fmt.Errorf("ratelimit.redis.address is required when ratelimit.store is redis")
		}
	default:
		return fmt.Errorf("unknown rate limit store %q (expected memory, badger, or redis)", c.RateLimit.Store)
	}

	if c.Snapshot.MaxStaleness < c.Snapshot.TTL {
		return fmt.Errorf("snapshot.max_staleness (%s) must be at least snapshot.ttl (%s)", c.Snapshot.MaxStaleness, c.Snapshot.TTL)
	}
	return nil
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if path == "" {
		v.SetConfigName("gatefile")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")          // Local development override
		v.AddConfigPath("/etc/gate/") // System-wide production config
	}
	cfg := Default()
	if err := v.ReadInConfig(); err == nil {
		if err := v.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
