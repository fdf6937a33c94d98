// Package config loads gateway settings from defaults, environment
// variables and command-line flags, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// Config holds every knob the gateway understands.
type Config struct {
	ListenAddr string `long:"listen" env:"BUSH_LISTEN" default:"127.0.0.1:8080" description:"Address to serve HTTP on"`
	LogLevel   string `long:"loglevel" env:"BUSH_LOG_LEVEL" default:"info" description:"Log level: trace, debug, info, warn, error"`

	Password     string `long:"password" env:"BUSH_PASSWORD" description:"Optional gateway password; empty disables login"`
	CookieSecret string `long:"cookie-secret" env:"BUSH_COOKIE_SECRET" description:"Secret for signing session cookies; random per boot when empty"`

	NWCConnection string        `long:"nwc" env:"BUSH_NWC_URL" description:"Default nostr+walletconnect:// URI for fresh sessions"`
	SessionTTL    time.Duration `long:"session-ttl" env:"BUSH_SESSION_TTL" default:"30m" description:"Idle time before a session's wallet client is torn down"`
	NWCTimeout    time.Duration `long:"nwc-timeout" env:"BUSH_NWC_TIMEOUT" default:"30s" description:"Per-request deadline for wallet service round trips"`

	MintURL string `long:"mint" env:"BUSH_MINT_URL" default:"https://mint.minibits.cash/Bitcoin" description:"Cashu mint URL; empty disables ecash"`
	DataDir string `long:"datadir" env:"BUSH_DATA_DIR" description:"Directory for the ecash wallet database"`

	RatePerSecond int `long:"rate" env:"BUSH_RATE_LIMIT" default:"25" description:"Per-client requests per second"`
	RateBurst     int `long:"rate-burst" env:"BUSH_RATE_BURST" default:"50" description:"Per-client burst allowance"`
}

// Load parses args (without the program name) over environment variables
// and defaults, then normalizes paths.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.SessionTTL < 0 {
		return fmt.Errorf("session-ttl must not be negative")
	}
	if c.NWCTimeout <= 0 {
		return fmt.Errorf("nwc-timeout must be positive")
	}
	if c.RatePerSecond <= 0 || c.RateBurst <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".bush-starter")
	}
	return nil
}
