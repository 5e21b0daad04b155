// Package config assembles the server configuration from defaults, an
// optional ini file and WQ_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gopkg.in/ini.v1"

	"github.com/mcoot/wordquizzle/internal/api"
	"github.com/mcoot/wordquizzle/internal/match"
	"github.com/mcoot/wordquizzle/internal/matchmaking"
	"github.com/mcoot/wordquizzle/internal/registry"
	redisstorage "github.com/mcoot/wordquizzle/internal/storage/redis"
	"github.com/mcoot/wordquizzle/internal/tcp"
)

// PathEnv names the environment variable holding the config file path
const PathEnv = "WQ_CONFIG"

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// StorageType selects the snapshot store
type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageFile   StorageType = "file"
	StorageRedis  StorageType = "redis"
)

// StorageConfig configures registry snapshots
type StorageConfig struct {
	Type             StorageType
	SnapshotPath     string
	SnapshotInterval time.Duration
	Redis            redisstorage.Config
}

// MatchConfig configures the reference match engine
type MatchConfig struct {
	Engine match.Config

	// DictionaryPath is a tab separated word list; empty uses the built in pairs
	DictionaryPath string
}

// LogConfig configures the root logger
type LogConfig struct {
	Level  slog.Level
	Format string
}

// Config is the complete server configuration
type Config struct {
	TCP      tcp.Config
	UDP      matchmaking.Config
	Registry registry.Config
	Match    MatchConfig
	Storage  StorageConfig

	// HTTP configures the admin API; an empty Addr disables it
	HTTP api.ServerConfig

	Log     LogConfig
	Workers int
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		TCP:      tcp.DefaultConfig(),
		UDP:      matchmaking.DefaultConfig(),
		Registry: registry.DefaultConfig(),
		Match: MatchConfig{
			Engine: match.DefaultConfig(),
		},
		Storage: StorageConfig{
			Type:             StorageFile,
			SnapshotPath:     "wordquizzle.json",
			SnapshotInterval: 30 * time.Second,
			Redis:            redisstorage.DefaultConfig(),
		},
		HTTP: api.DefaultServerConfig(),
		Log: LogConfig{
			Level:  slog.LevelInfo,
			Format: "json",
		},
		Workers: 8,
	}
}

// Load builds the configuration. path may be empty, in which case the
// WQ_CONFIG variable is consulted; with neither set only defaults and
// environment overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		file, err := ini.Load(path)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if err := cfg.applyFile(file); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(file *ini.File) error {
	sec := file.Section("server")
	c.Workers = sec.Key("workers").MustInt(c.Workers)

	sec = file.Section("tcp")
	c.TCP.Addr = sec.Key("addr").MustString(c.TCP.Addr)
	c.TCP.MaxMessageLength = sec.Key("max_message_length").MustInt(c.TCP.MaxMessageLength)
	c.TCP.WriteTimeout = sec.Key("write_timeout").MustDuration(c.TCP.WriteTimeout)

	sec = file.Section("udp")
	c.UDP.Addr = sec.Key("addr").MustString(c.UDP.Addr)
	c.UDP.ReceiveTimeout = sec.Key("receive_timeout").MustDuration(c.UDP.ReceiveTimeout)
	c.UDP.MaxDatagram = sec.Key("max_datagram").MustInt(c.UDP.MaxDatagram)
	c.UDP.RateLimit = rate.Limit(sec.Key("rate_limit").MustFloat64(float64(c.UDP.RateLimit)))
	c.UDP.RateBurst = sec.Key("rate_burst").MustInt(c.UDP.RateBurst)

	sec = file.Section("registry")
	port := sec.Key("default_udp_port").MustUint(uint(c.Registry.DefaultUDPPort))
	if port == 0 || port > 65535 {
		return fmt.Errorf("%w: default_udp_port %d out of range", ErrInvalidConfig, port)
	}
	c.Registry.DefaultUDPPort = uint16(port)
	c.Registry.ChallengeTimeout = sec.Key("challenge_timeout").MustDuration(c.Registry.ChallengeTimeout)
	c.Registry.ChallengeRetention = sec.Key("challenge_retention").MustDuration(c.Registry.ChallengeRetention)
	c.Registry.BcryptCost = sec.Key("bcrypt_cost").MustInt(c.Registry.BcryptCost)

	sec = file.Section("match")
	c.Match.Engine.WordsPerMatch = sec.Key("words_per_match").MustInt(c.Match.Engine.WordsPerMatch)
	c.Match.Engine.Duration = sec.Key("duration").MustDuration(c.Match.Engine.Duration)
	c.Match.DictionaryPath = sec.Key("dictionary").MustString(c.Match.DictionaryPath)

	sec = file.Section("storage")
	c.Storage.Type = StorageType(sec.Key("type").MustString(string(c.Storage.Type)))
	c.Storage.SnapshotPath = sec.Key("snapshot_path").MustString(c.Storage.SnapshotPath)
	c.Storage.SnapshotInterval = sec.Key("snapshot_interval").MustDuration(c.Storage.SnapshotInterval)

	sec = file.Section("redis")
	c.Storage.Redis.URL = sec.Key("url").MustString(c.Storage.Redis.URL)
	c.Storage.Redis.PoolSize = sec.Key("pool_size").MustInt(c.Storage.Redis.PoolSize)
	c.Storage.Redis.MinIdleConns = sec.Key("min_idle_conns").MustInt(c.Storage.Redis.MinIdleConns)
	c.Storage.Redis.KeyPrefix = sec.Key("key_prefix").MustString(c.Storage.Redis.KeyPrefix)

	sec = file.Section("http")
	if sec.HasKey("addr") {
		// an explicit empty value disables the admin API
		c.HTTP.Addr = sec.Key("addr").String()
	}
	c.HTTP.ReadTimeout = sec.Key("read_timeout").MustDuration(c.HTTP.ReadTimeout)
	c.HTTP.WriteTimeout = sec.Key("write_timeout").MustDuration(c.HTTP.WriteTimeout)
	c.HTTP.ShutdownTimeout = sec.Key("shutdown_timeout").MustDuration(c.HTTP.ShutdownTimeout)

	sec = file.Section("log")
	if sec.HasKey("level") {
		if err := c.Log.Level.UnmarshalText([]byte(sec.Key("level").String())); err != nil {
			return fmt.Errorf("%w: log level: %v", ErrInvalidConfig, err)
		}
	}
	c.Log.Format = sec.Key("format").MustString(c.Log.Format)

	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("WQ_TCP_ADDR"); ok {
		c.TCP.Addr = v
	}
	if v, ok := lookup("WQ_UDP_ADDR"); ok {
		c.UDP.Addr = v
	}
	if v, ok := lookup("WQ_STORAGE_TYPE"); ok {
		c.Storage.Type = StorageType(v)
	}
	if v, ok := lookup("WQ_REDIS_URL"); ok {
		c.Storage.Redis.URL = v
	}
	if v, ok := lookup("WQ_SNAPSHOT_PATH"); ok {
		c.Storage.SnapshotPath = v
	}
	if v, ok := lookup("WQ_HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := lookup("WQ_LOG_LEVEL"); ok {
		if err := c.Log.Level.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%w: WQ_LOG_LEVEL: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Validate reports the first setting the server cannot run with
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.TCP.MaxMessageLength <= 0:
		return fmt.Errorf("%w: tcp max_message_length must be positive", ErrInvalidConfig)
	case c.UDP.MaxDatagram <= 0:
		return fmt.Errorf("%w: udp max_datagram must be positive", ErrInvalidConfig)
	case c.UDP.ReceiveTimeout <= 0:
		return fmt.Errorf("%w: udp receive_timeout must be positive", ErrInvalidConfig)
	case c.Registry.ChallengeTimeout <= 0:
		return fmt.Errorf("%w: challenge_timeout must be positive", ErrInvalidConfig)
	case c.Registry.ChallengeRetention <= c.Registry.ChallengeTimeout:
		return fmt.Errorf("%w: challenge_retention must exceed challenge_timeout", ErrInvalidConfig)
	case c.Registry.BcryptCost < bcrypt.MinCost || c.Registry.BcryptCost > bcrypt.MaxCost:
		return fmt.Errorf("%w: bcrypt_cost must be between %d and %d", ErrInvalidConfig, bcrypt.MinCost, bcrypt.MaxCost)
	case c.Match.Engine.WordsPerMatch <= 0:
		return fmt.Errorf("%w: words_per_match must be positive", ErrInvalidConfig)
	case c.Match.Engine.Duration <= 0:
		return fmt.Errorf("%w: match duration must be positive", ErrInvalidConfig)
	case c.Storage.SnapshotInterval <= 0:
		return fmt.Errorf("%w: snapshot_interval must be positive", ErrInvalidConfig)
	case c.Log.Format != "json" && c.Log.Format != "text":
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Log.Format)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageFile:
		if c.Storage.SnapshotPath == "" {
			return fmt.Errorf("%w: file storage needs snapshot_path", ErrInvalidConfig)
		}
	case StorageRedis:
		if c.Storage.Redis.URL == "" {
			return fmt.Errorf("%w: redis storage needs url", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}
	return nil
}
