// Package config loads bridged's configuration the way the teacher's
// ws_poc server loads its own: struct tags parsed by caarlos0/env, an
// optional .env file via joho/godotenv for local development, and a
// Validate pass for the checks env tags alone can't express.
package config

import (
	"fmt"
	"net/netip"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds the complete bridged configuration. Every field except
// FabricPeers (empty when unset) has an envDefault, so a bare `bridged` with
// no environment configured at all still starts with sane settings.
type Config struct {
	AdminAddr   string `env:"BRIDGED_ADMIN_ADDR" envDefault:":8421"`
	MetricsAddr string `env:"BRIDGED_METRICS_ADDR" envDefault:":9100"`
	MetricsPath string `env:"BRIDGED_METRICS_PATH" envDefault:"/metrics"`

	LogLevel  string `env:"BRIDGED_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"BRIDGED_LOG_FORMAT" envDefault:"json"`

	FabricListenAddr string   `env:"BRIDGED_FABRIC_LISTEN_ADDR" envDefault:":7890"`
	FabricIfAddr     string   `env:"BRIDGED_FABRIC_IFADDR" envDefault:""`
	FabricServiceID  uint16   `env:"BRIDGED_FABRIC_SERVICE_ID" envDefault:"1"`
	FabricPeers      []string `env:"BRIDGED_FABRIC_PEERS" envSeparator:","`
	FabricMaxPayload int      `env:"BRIDGED_FABRIC_MAX_PAYLOAD_LEN" envDefault:"1200"`
}

// FabricConfig is the subset of Config the fabric transport and stamp
// identity care about, kept as its own type so bridge-facing code doesn't
// need the whole Config in scope.
type FabricConfig struct {
	ListenAddr    string
	IfAddr        string
	ServiceID     uint16
	Peers         []string
	MaxPayloadLen int
}

// Fabric projects the fabric-related fields out of Config.
func (c *Config) Fabric() FabricConfig {
	return FabricConfig{
		ListenAddr:    c.FabricListenAddr,
		IfAddr:        c.FabricIfAddr,
		ServiceID:     c.FabricServiceID,
		Peers:         c.FabricPeers,
		MaxPayloadLen: c.FabricMaxPayload,
	}
}

// PeerAddrs parses every configured static peer as a netip.AddrPort.
func (fc FabricConfig) PeerAddrs() ([]netip.AddrPort, error) {
	addrs := make([]netip.AddrPort, 0, len(fc.Peers))
	for _, p := range fc.Peers {
		ap, err := netip.ParseAddrPort(p)
		if err != nil {
			return nil, fmt.Errorf("parse fabric peer %q: %w", p, err)
		}
		addrs = append(addrs, ap)
	}
	return addrs, nil
}

// Load reads configuration from environment variables, optionally overlaid
// by a .env file in the working directory (missing .env is not an error --
// production deployments are expected to set real environment variables).
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration overrides from .env")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validate checks the configuration for logical errors env tags can't catch.
func Validate(cfg *Config) error {
	if cfg.AdminAddr == "" {
		return fmt.Errorf("BRIDGED_ADMIN_ADDR must not be empty")
	}

	if cfg.FabricListenAddr == "" {
		return fmt.Errorf("BRIDGED_FABRIC_LISTEN_ADDR must not be empty")
	}

	if cfg.FabricMaxPayload <= 0 {
		return fmt.Errorf("BRIDGED_FABRIC_MAX_PAYLOAD_LEN must be > 0, got %d", cfg.FabricMaxPayload)
	}

	if cfg.FabricIfAddr != "" {
		addr, err := netip.ParseAddr(cfg.FabricIfAddr)
		if err != nil || !addr.Is4() {
			return fmt.Errorf("BRIDGED_FABRIC_IFADDR must be a valid IPv4 address, got %q", cfg.FabricIfAddr)
		}
	}

	if _, err := cfg.Fabric().PeerAddrs(); err != nil {
		return fmt.Errorf("invalid fabric peer address: %w", err)
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("BRIDGED_LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "json", "text", "pretty":
	default:
		return fmt.Errorf("BRIDGED_LOG_FORMAT must be one of json, text, pretty, got %q", cfg.LogFormat)
	}

	return nil
}

// Print writes the effective configuration to stdout in human-readable
// form, for startup diagnostics -- the same role the teacher's Config.Print
// plays before structured logging takes over.
func (c *Config) Print() {
	fmt.Println("=== bridged configuration ===")
	fmt.Printf("Admin addr:        %s\n", c.AdminAddr)
	fmt.Printf("Metrics addr:      %s (%s)\n", c.MetricsAddr, c.MetricsPath)
	fmt.Printf("Fabric listen:     %s\n", c.FabricListenAddr)
	fmt.Printf("Fabric ifaddr:     %s\n", c.FabricIfAddr)
	fmt.Printf("Fabric service id: %d\n", c.FabricServiceID)
	fmt.Printf("Fabric peers:      %v\n", c.FabricPeers)
	fmt.Printf("Fabric max payload: %d\n", c.FabricMaxPayload)
	fmt.Printf("Log level/format:  %s/%s\n", c.LogLevel, c.LogFormat)
	fmt.Println("==============================")
}
