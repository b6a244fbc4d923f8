package config_test

import (
	"os"
	"strings"
	"testing"

	"github.com/pubsub-bridge/bridged/internal/config"
)

// zeroEnv returns a Config parsed with no BRIDGED_* variables set, i.e. pure
// envDefault values -- the struct-tag equivalent of the teacher's DefaultConfig.
func zeroEnv(t *testing.T) *config.Config {
	t.Helper()
	clearBridgedEnv(t)

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load() with no env set: %v", err)
	}
	return cfg
}

func clearBridgedEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if name, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(name, "BRIDGED_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := zeroEnv(t)

	if cfg.AdminAddr != ":8421" {
		t.Errorf("AdminAddr = %q, want %q", cfg.AdminAddr, ":8421")
	}
	if cfg.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, ":9100")
	}
	if cfg.MetricsPath != "/metrics" {
		t.Errorf("MetricsPath = %q, want %q", cfg.MetricsPath, "/metrics")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "json")
	}
	if cfg.FabricListenAddr != ":7890" {
		t.Errorf("FabricListenAddr = %q, want %q", cfg.FabricListenAddr, ":7890")
	}
	if cfg.FabricMaxPayload != 1200 {
		t.Errorf("FabricMaxPayload = %d, want %d", cfg.FabricMaxPayload, 1200)
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("defaults failed validation: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearBridgedEnv(t)

	t.Setenv("BRIDGED_ADMIN_ADDR", ":9421")
	t.Setenv("BRIDGED_METRICS_ADDR", ":9200")
	t.Setenv("BRIDGED_METRICS_PATH", "/custom-metrics")
	t.Setenv("BRIDGED_LOG_LEVEL", "debug")
	t.Setenv("BRIDGED_LOG_FORMAT", "text")
	t.Setenv("BRIDGED_FABRIC_LISTEN_ADDR", ":7999")
	t.Setenv("BRIDGED_FABRIC_IFADDR", "10.0.0.5")
	t.Setenv("BRIDGED_FABRIC_SERVICE_ID", "7")
	t.Setenv("BRIDGED_FABRIC_MAX_PAYLOAD_LEN", "900")
	t.Setenv("BRIDGED_FABRIC_PEERS", "10.0.0.6:7890,10.0.0.7:7890")

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.AdminAddr != ":9421" {
		t.Errorf("AdminAddr = %q, want %q", cfg.AdminAddr, ":9421")
	}
	if cfg.MetricsAddr != ":9200" {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, ":9200")
	}
	if cfg.MetricsPath != "/custom-metrics" {
		t.Errorf("MetricsPath = %q, want %q", cfg.MetricsPath, "/custom-metrics")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, "text")
	}
	if cfg.FabricListenAddr != ":7999" {
		t.Errorf("FabricListenAddr = %q, want %q", cfg.FabricListenAddr, ":7999")
	}
	if cfg.FabricIfAddr != "10.0.0.5" {
		t.Errorf("FabricIfAddr = %q, want %q", cfg.FabricIfAddr, "10.0.0.5")
	}
	if cfg.FabricServiceID != 7 {
		t.Errorf("FabricServiceID = %d, want %d", cfg.FabricServiceID, 7)
	}
	if cfg.FabricMaxPayload != 900 {
		t.Errorf("FabricMaxPayload = %d, want %d", cfg.FabricMaxPayload, 900)
	}
	if len(cfg.FabricPeers) != 2 || cfg.FabricPeers[0] != "10.0.0.6:7890" {
		t.Errorf("FabricPeers = %v, want [10.0.0.6:7890 10.0.0.7:7890]", cfg.FabricPeers)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantSub string
	}{
		{
			name:    "empty admin addr",
			modify:  func(cfg *config.Config) { cfg.AdminAddr = "" },
			wantSub: "BRIDGED_ADMIN_ADDR",
		},
		{
			name:    "empty fabric listen addr",
			modify:  func(cfg *config.Config) { cfg.FabricListenAddr = "" },
			wantSub: "BRIDGED_FABRIC_LISTEN_ADDR",
		},
		{
			name:    "zero max payload len",
			modify:  func(cfg *config.Config) { cfg.FabricMaxPayload = 0 },
			wantSub: "BRIDGED_FABRIC_MAX_PAYLOAD_LEN",
		},
		{
			name:    "negative max payload len",
			modify:  func(cfg *config.Config) { cfg.FabricMaxPayload = -1 },
			wantSub: "BRIDGED_FABRIC_MAX_PAYLOAD_LEN",
		},
		{
			name:    "invalid ifaddr",
			modify:  func(cfg *config.Config) { cfg.FabricIfAddr = "not-an-ip" },
			wantSub: "BRIDGED_FABRIC_IFADDR",
		},
		{
			name:    "ipv6 ifaddr rejected",
			modify:  func(cfg *config.Config) { cfg.FabricIfAddr = "::1" },
			wantSub: "BRIDGED_FABRIC_IFADDR",
		},
		{
			name:    "invalid peer addr",
			modify:  func(cfg *config.Config) { cfg.FabricPeers = []string{"not-an-addr"} },
			wantSub: "invalid fabric peer",
		},
		{
			name:    "bad log level",
			modify:  func(cfg *config.Config) { cfg.LogLevel = "trace" },
			wantSub: "BRIDGED_LOG_LEVEL",
		},
		{
			name:    "bad log format",
			modify:  func(cfg *config.Config) { cfg.LogFormat = "xml" },
			wantSub: "BRIDGED_LOG_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := zeroEnv(t)
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestPeerAddrs(t *testing.T) {
	fc := config.FabricConfig{Peers: []string{"10.0.0.1:7890", "10.0.0.2:7891"}}
	addrs, err := fc.PeerAddrs()
	if err != nil {
		t.Fatalf("PeerAddrs() error: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("PeerAddrs() len = %d, want 2", len(addrs))
	}
	if addrs[0].Port() != 7890 || addrs[1].Port() != 7891 {
		t.Errorf("PeerAddrs() ports = %d, %d, want 7890, 7891", addrs[0].Port(), addrs[1].Port())
	}
}
