package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  group_log: "-1001234:5"
  poll_timeout: 10s
logging:
  level: debug
  console: true
catalog:
  timeout: 5s
  rate_per_min: 5
broadcast:
  interval: 24h
  concurrency: 2
  run_on_start: true
storage:
  driver: sqlite
  path: ./data/sage.db
subscribers:
  refresh_every: 30s
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broadcast.Interval != "24h" || !cfg.Broadcast.RunOnStart || cfg.Broadcast.Concurrency != 2 {
		t.Fatalf("broadcast = %+v", cfg.Broadcast)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Catalog.RatePerMin != 5 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if m.Get() != cfg {
		t.Fatal("Load must commit the config")
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "unknown json field", path: "c.json", body: `{"broadcast":{"interval":"1h","cron":"* * * * *"}}`},
		{name: "unknown yaml field", path: "c.yml", body: "plugins: {}\n"},
		{name: "trailing json", path: "c.json", body: `{} {}`},
		{name: "bad yaml", path: "c.yaml", body: "broadcast: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.path, []byte(tt.body)); err == nil {
				t.Fatalf("Decode(%s) succeeded, want error", tt.body)
			}
		})
	}
	if _, err := Decode("empty.yaml", nil); err != nil {
		t.Fatalf("empty yaml: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	bad := &Config{
		Logging:   LoggingConfig{Level: "loud"},
		Catalog:   CatalogConfig{BaseURL: "ftp://x", RatePerMin: -1},
		Broadcast: BroadcastConfig{Interval: "10ms", SendTimeout: "soon", ParseMode: "BBCode"},
		Storage:   StorageConfig{Driver: "sqlite"},
		Telegram:  TelegramConfig{GroupLog: "abc"},
	}
	err := Validate(bad)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"logging.level", "catalog.base_url", "catalog.rate_per_min", "broadcast.interval",
		"broadcast.send_timeout", "broadcast.parse_mode", "storage.path", "telegram.group_log",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("missing %q in %v", want, err)
		}
	}
	if err := Validate(&Config{}); err != nil {
		t.Fatalf("zero config should be valid: %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", time.Minute)
	if err != nil || d != time.Minute {
		t.Fatalf("empty: %v %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "90s", time.Minute)
	if err != nil || d != 90*time.Second {
		t.Fatalf("90s: %v %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", time.Minute); err == nil {
		t.Fatal("negative duration must fail")
	}
}

func TestSecrets(t *testing.T) {
	envFile := writeFile(t, ".env", "NYT_TOKEN=from-file\nAPI_TOKEN=bot-from-file\n")
	t.Setenv(EnvCatalogToken, "")
	t.Setenv(EnvBotToken, "bot-from-env")
	t.Setenv(EnvDSN, "")
	os.Unsetenv(EnvCatalogToken)

	if err := LoadEnvFiles(envFile, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	s := SecretsFromEnv()
	if s.CatalogToken != "from-file" {
		t.Fatalf("CatalogToken = %q", s.CatalogToken)
	}
	if s.BotToken != "bot-from-env" {
		t.Fatalf("env must win over the file, got %q", s.BotToken)
	}
	cfg := &Config{Storage: StorageConfig{DSN: "postgres://file"}}
	if s.DSNFor(cfg) != "postgres://file" {
		t.Fatalf("DSNFor = %q", s.DSNFor(cfg))
	}
	if strings.Contains(s.String(), "from-file") {
		t.Fatalf("String leaks secrets: %s", s)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := &Config{Broadcast: BroadcastConfig{Interval: "24h"}, Telegram: TelegramConfig{Token: "x"}}
	b := &Config{Broadcast: BroadcastConfig{Interval: "12h"}, Telegram: TelegramConfig{Token: "y"}, Logging: LoggingConfig{Level: "debug"}}
	sections, fields := SummarizeConfigChange(a, b)
	if strings.Join(sections, ",") != "telegram,logging,broadcast" {
		t.Fatalf("sections = %v", sections)
	}
	if len(fields) == 0 {
		t.Fatal("expected fields")
	}
	if got := RestartRequired(sections); len(got) != 1 || got[0] != "telegram" {
		t.Fatalf("RestartRequired = %v", got)
	}
}

func TestReloadPublishesOnlyValidChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"broadcast":{"interval":"24h"}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	ctx := context.Background()

	if ok, err := m.Reload(ctx); ok || err != nil {
		t.Fatalf("unchanged Reload = %v, %v", ok, err)
	}
	_ = os.WriteFile(path, []byte(`{"broadcast":{"interval":"1ms"}}`), 0o600)
	if ok, err := m.Reload(ctx); ok || err == nil {
		t.Fatalf("invalid Reload = %v, %v", ok, err)
	}
	_ = os.WriteFile(path, []byte(`{"broadcast":{"interval":"12h"}}`), 0o600)
	if ok, err := m.Reload(ctx); !ok || err != nil {
		t.Fatalf("valid Reload = %v, %v", ok, err)
	}
	select {
	case cfg := <-sub:
		if cfg.Broadcast.Interval != "12h" {
			t.Fatalf("published %+v", cfg.Broadcast)
		}
	default:
		t.Fatal("nothing published")
	}
	if m.Get().Broadcast.Interval != "12h" {
		t.Fatal("reload not committed")
	}
	m.Unsubscribe(sub)
}
