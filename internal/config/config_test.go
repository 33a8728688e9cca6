package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != 60*time.Second {
		t.Fatalf("unexpected interval %s", cfg.Scheduler.Interval)
	}
	if cfg.History.Limit != 100 {
		t.Fatalf("unexpected history limit %d", cfg.History.Limit)
	}
	if cfg.Scheduler.WatchInterval != 5*time.Second {
		t.Fatalf("unexpected watch interval %s", cfg.Scheduler.WatchInterval)
	}
	if cfg.Source.URL != "https://api.exchangerate.host/latest" {
		t.Fatalf("unexpected default source %q", cfg.Source.URL)
	}
	if cfg.Storage.Backend != BackendFile || cfg.Scrape.LocalCurrency != "MAD" {
		t.Fatalf("unexpected storage/scrape defaults %#v %#v", cfg.Storage, cfg.Scrape)
	}
	if !cfg.HasChannel(ChannelLog) || cfg.HasChannel(ChannelKafka) {
		t.Fatalf("unexpected channels %v", cfg.Alerting.Channels)
	}
}

func TestLoadNormalizesFeedsAndChannels(t *testing.T) {
	body := `
onchain:
  rpc_url: http://localhost:8545
  feeds:
    eur/usd: "0xb49f677943BC038e9857d61E7d053CaA2C1734C1"
alerting:
  channels: " Log , TELEGRAM"
  kafka:
    brokers: "k1:9092, k2:9092"
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := cfg.OnChain.Feeds["EUR/USD"]; !ok {
		t.Fatalf("feed pairs should be upper-cased, got %v", cfg.OnChain.Feeds)
	}
	if !cfg.HasChannel(ChannelTelegram) || !cfg.HasChannel(ChannelLog) {
		t.Fatalf("unexpected channels %v", cfg.Alerting.Channels)
	}
	if len(cfg.Alerting.Kafka.Brokers) != 2 || cfg.Alerting.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Alerting.Kafka.Brokers)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":  "storage:\n  backend: sqlite\n",
		"postgres": "storage:\n  backend: postgres\n",
		"channel":  "alerting:\n  channels: [pager]\n",
		"interval": "scheduler:\n  interval: 0s\n",
		"history":  "history:\n  limit: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RATEWATCH_SOURCE_URL", "https://api.frankfurter.app/latest")
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.URL != "https://api.frankfurter.app/latest" {
		t.Fatalf("env should override source url, got %q", cfg.Source.URL)
	}
}
