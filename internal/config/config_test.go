package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configPathEnv, databaseDriverEnv, databaseDSNEnv, redisAddrEnv,
		twitterTokenEnv, twitterAPIURLEnv, httpAddrEnv, logLevelEnv, logFormatEnv,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Database.Driver != DriverSQLite || cfg.Database.DSN != DefaultSQLiteDSN {
		t.Fatalf("CLI runs need a persistent default store, got %+v", cfg.Database)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}
	if cfg.Ledger.DailyLimits["twitter"] != 3 {
		t.Fatalf("unexpected twitter limit: %v", cfg.Ledger.DailyLimits)
	}
	if cfg.Curation.SocialPause != 60*time.Second || cfg.Curation.RateLimitWait != 15*time.Minute {
		t.Fatalf("unexpected curation pacing: %+v", cfg.Curation)
	}
	if cfg.Curation.RunTimeout != 0 {
		t.Fatalf("run timeout should be off by default, got %s", cfg.Curation.RunTimeout)
	}
	if len(cfg.Scheduler.Slots) != 3 {
		t.Fatalf("expected 3 default slots, got %d", len(cfg.Scheduler.Slots))
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("unexpected location: %s", cfg.Scheduler.Location())
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
logging:
  level: info
database:
  driver: sqlite
  dsn: file:curator.db
ledger:
  backend: redis
  dailyLimits:
    twitter: 5
curation:
  feedPause: 2s
  runTimeout: 10m
scheduler:
  timezone: Europe/London
  slots:
    - at: "07:30"
      priority: 1
http:
  addr: ":9000"
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(httpAddrEnv, ":9100")
	t.Setenv(twitterTokenEnv, "token")

	cfg := Load()

	if cfg.Logging.Level != "info" {
		t.Fatalf("unexpected level: %q", cfg.Logging.Level)
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.DSN != "file:curator.db" {
		t.Fatalf("unexpected database: %+v", cfg.Database)
	}
	if cfg.Ledger.Backend != LedgerBackendRedis || cfg.Ledger.DailyLimits["twitter"] != 5 {
		t.Fatalf("unexpected ledger: %+v", cfg.Ledger)
	}
	if cfg.Curation.FeedPause != 2*time.Second || cfg.Curation.RunTimeout != 10*time.Minute {
		t.Fatalf("unexpected curation: %+v", cfg.Curation)
	}
	if cfg.Curation.SocialPause != 60*time.Second {
		t.Fatalf("unset fields must keep defaults, got %s", cfg.Curation.SocialPause)
	}
	if len(cfg.Scheduler.Slots) != 1 || cfg.Scheduler.Slots[0].At != "07:30" {
		t.Fatalf("unexpected slots: %+v", cfg.Scheduler.Slots)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("env should win over file, got %q", cfg.HTTP.Addr)
	}
	if cfg.Twitter.BearerToken != "token" {
		t.Fatalf("unexpected token: %q", cfg.Twitter.BearerToken)
	}
}

func TestLoadFallsBackOnBadFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := Load()
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected defaults, got %q", cfg.HTTP.Addr)
	}
}

func TestBindTimezoneRevertsUnknown(t *testing.T) {
	cfg := defaultConfig()
	cfg.Scheduler.Timezone = "Mars/Olympus"
	cfg.bindTimezone()

	if cfg.Scheduler.Location().String() != "UTC" {
		t.Fatalf("expected UTC fallback, got %s", cfg.Scheduler.Location())
	}
}

func TestSlotClock(t *testing.T) {
	cases := []struct {
		at      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"09:00", 9, 0, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"9", 0, 0, true},
		{"ab:cd", 0, 0, true},
	}
	for _, tc := range cases {
		hour, minute, err := SlotConfig{At: tc.at}.Clock()
		if (err != nil) != tc.wantErr {
			t.Fatalf("Clock(%q) error = %v, wantErr %v", tc.at, err, tc.wantErr)
		}
		if !tc.wantErr && (hour != tc.hour || minute != tc.minute) {
			t.Fatalf("Clock(%q) = %d:%d", tc.at, hour, minute)
		}
	}
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
logging:
  format: json
curation:
  maxRetries: 0
  feedPause: 0s
  socialPause: 0s
ledger:
  dailyLimits:
    twitter: 0
    bluesky: 10
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(logFormatEnv, "text")

	cfg := Load()

	if cfg.Curation.MaxRetries != 0 || cfg.Curation.FeedPause != 0 || cfg.Curation.SocialPause != 0 {
		t.Fatalf("explicit zeros must override defaults: %+v", cfg.Curation)
	}
	if cfg.Curation.RateLimitWait != 15*time.Minute {
		t.Fatalf("absent keys keep defaults, got %s", cfg.Curation.RateLimitWait)
	}
	if cfg.Ledger.DailyLimits["twitter"] != 0 || cfg.Ledger.DailyLimits["bluesky"] != 10 {
		t.Fatalf("unexpected limits: %v", cfg.Ledger.DailyLimits)
	}
	if cfg.Logging.Format != "text" {
		t.Fatalf("LOG_FORMAT should win over the file, got %q", cfg.Logging.Format)
	}
}

func TestMergeConfigRejectsBadYAML(t *testing.T) {
	base := defaultConfig()
	if _, err := mergeConfig(base, []byte("curation: [unclosed")); err == nil {
		t.Fatal("expected a decode error")
	}
	if base.Ledger.DailyLimits["twitter"] != 3 {
		t.Fatalf("a failed merge must not touch the base config: %v", base.Ledger.DailyLimits)
	}
}
