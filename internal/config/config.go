package config

import (
	"fmt"
	"log"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "FEED_CURATOR_CONFIG"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	redisAddrEnv      = "REDIS_ADDR"
	twitterTokenEnv   = "TWITTER_BEARER_TOKEN"
	twitterAPIURLEnv  = "TWITTER_API_URL"
	httpAddrEnv       = "HTTP_ADDR"
	logLevelEnv       = "LOG_LEVEL"
	logFormatEnv      = "LOG_FORMAT"

	// DefaultSQLiteDSN keeps one-shot CLI commands sharing state between runs.
	DefaultSQLiteDSN = "feedcurator.db"
)

// Storage backends.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	LedgerBackendSQL   = "sql"
	LedgerBackendRedis = "redis"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Twitter   TwitterConfig   `yaml:"twitter"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Curation  CurationConfig  `yaml:"curation"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// LoggingConfig selects the slog level and handler format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes where sources, content and usage live.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig is used when the ledger backend is redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LedgerConfig selects the usage store and per-platform daily limits.
type LedgerConfig struct {
	Backend     string         `yaml:"backend"`
	DailyLimits map[string]int `yaml:"dailyLimits"`
}

// TwitterConfig wires the social API client.
type TwitterConfig struct {
	BaseURL     string `yaml:"baseUrl"`
	BearerToken string `yaml:"bearerToken"`
}

// FeedsConfig tunes the feed fetch client.
type FeedsConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"userAgent"`
}

// CurationConfig holds the pacing of a curation run.
type CurationConfig struct {
	FeedItemLimit  int           `yaml:"feedItemLimit"`
	FeedPause      time.Duration `yaml:"feedPause"`
	SocialPause    time.Duration `yaml:"socialPause"`
	RateLimitWait  time.Duration `yaml:"rateLimitWait"`
	MaxRetries     int           `yaml:"maxRetries"`
	PostsPerSource int           `yaml:"postsPerSource"`
	RunTimeout     time.Duration `yaml:"runTimeout"`
}

// SlotConfig is one daily trigger, "HH:MM" local time, for a priority tier.
type SlotConfig struct {
	At       string `yaml:"at"`
	Priority int    `yaml:"priority"`
}

// Clock parses At.
func (s SlotConfig) Clock() (hour, minute int, err error) {
	parts := strings.Split(s.At, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("slot %q: want HH:MM", s.At)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("slot %q: bad hour", s.At)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("slot %q: bad minute", s.At)
	}
	return hour, minute, nil
}

// SchedulerConfig defines when automatic curations run.
type SchedulerConfig struct {
	TickInterval time.Duration  `yaml:"tickInterval"`
	Timezone     string         `yaml:"timezone"`
	Retention    time.Duration  `yaml:"retention"`
	Slots        []SlotConfig   `yaml:"slots"`
	location     *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// HTTPConfig is the API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if merged, err := mergeConfig(cfg, raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = merged
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}

	if v := os.Getenv(twitterTokenEnv); v != "" {
		c.Twitter.BearerToken = v
	}

	if v := os.Getenv(twitterAPIURLEnv); v != "" {
		c.Twitter.BaseURL = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

// mergeConfig decodes raw over base. Keys absent from the document keep their
// base value; keys present override it, zero values included. Lists replace,
// dailyLimits merges per platform.
func mergeConfig(base Config, raw []byte) (Config, error) {
	base.Ledger.DailyLimits = maps.Clone(base.Ledger.DailyLimits)
	if base.Ledger.DailyLimits == nil {
		base.Ledger.DailyLimits = map[string]int{}
	}
	if err := yaml.Unmarshal(raw, &base); err != nil {
		return Config{}, err
	}
	return base, nil
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "debug", Format: "text"},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: DefaultSQLiteDSN},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		Ledger: LedgerConfig{
			Backend:     LedgerBackendSQL,
			DailyLimits: map[string]int{"twitter": 3},
		},
		Twitter: TwitterConfig{BaseURL: "https://api.twitter.com"},
		Feeds:   FeedsConfig{Timeout: 10 * time.Second, UserAgent: "FeedCurator/1.0 (+https://github.com/feedcurator)"},
		Curation: CurationConfig{
			FeedItemLimit:  10,
			FeedPause:      time.Second,
			SocialPause:    60 * time.Second,
			RateLimitWait:  15 * time.Minute,
			MaxRetries:     2,
			PostsPerSource: 1,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 5 * time.Minute,
			Timezone:     defaultTimezone,
			Retention:    24 * time.Hour,
			Slots: []SlotConfig{
				{At: "09:00", Priority: 1},
				{At: "14:00", Priority: 2},
				{At: "19:00", Priority: 3},
			},
			location: tz,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}
