package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"workledger/ledger"
)

// APIKeyConfig describes a single API key + secret pair accepted by escrowd.
type APIKeyConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
}

// Config captures runtime configuration for the escrowd service. Values come
// from a TOML file and may be overridden by environment variables.
type Config struct {
	ListenAddress        string         `toml:"listen"`
	Environment          string         `toml:"environment"`
	LedgerURL            string         `toml:"ledger_url"`
	LedgerAuthToken      string         `toml:"ledger_auth_token"`
	ProgramAddress       string         `toml:"program_address"`
	DatabasePath         string         `toml:"database_path"`
	AllowedTimestampSkew time.Duration  `toml:"-"`
	TimestampSkewRaw     string         `toml:"timestamp_skew"`
	RateLimitPerMinute   int            `toml:"rate_limit_per_minute"`
	APIKeys              []APIKeyConfig `toml:"api_keys"`
}

// LoadConfig reads the TOML file at path, then applies environment overrides.
// An empty path skips the file and configures from the environment alone.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ListenAddress:        ":8084",
		Environment:          "dev",
		DatabasePath:         "escrowd.db",
		AllowedTimestampSkew: 2 * time.Minute,
		RateLimitPerMinute:   120,
	}
	if strings.TrimSpace(path) != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
		}
	}
	if raw := strings.TrimSpace(cfg.TimestampSkewRaw); raw != "" {
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse timestamp_skew: %w", err)
		}
		cfg.AllowedTimestampSkew = dur
	}

	if v := strings.TrimSpace(os.Getenv("ESCROWD_LISTEN")); v != "" {
		cfg.ListenAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("ESCROWD_ENV")); v != "" {
		cfg.Environment = v
	}
	if v := strings.TrimSpace(os.Getenv("ESCROWD_LEDGER_URL")); v != "" {
		cfg.LedgerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ESCROWD_LEDGER_TOKEN")); v != "" {
		cfg.LedgerAuthToken = v
	}
	if v := strings.TrimSpace(os.Getenv("ESCROWD_PROGRAM")); v != "" {
		cfg.ProgramAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("ESCROWD_DB_PATH")); v != "" {
		cfg.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv("ESCROWD_RATE_LIMIT")); v != "" {
		val, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse ESCROWD_RATE_LIMIT: %w", err)
		}
		if val <= 0 {
			return Config{}, errors.New("ESCROWD_RATE_LIMIT must be positive")
		}
		cfg.RateLimitPerMinute = val
	}

	if cfg.LedgerURL == "" {
		return Config{}, errors.New("ledger_url is required")
	}
	if cfg.ProgramAddress == "" {
		return Config{}, errors.New("program_address is required")
	}
	if _, err := ledger.ParseAddress(cfg.ProgramAddress); err != nil {
		return Config{}, fmt.Errorf("parse program_address: %w", err)
	}
	if cfg.AllowedTimestampSkew <= 0 {
		return Config{}, errors.New("timestamp_skew must be positive")
	}
	if len(cfg.APIKeys) == 0 {
		return Config{}, errors.New("at least one api key is required")
	}
	for i, key := range cfg.APIKeys {
		if strings.TrimSpace(key.Key) == "" || strings.TrimSpace(key.Secret) == "" {
			return Config{}, fmt.Errorf("api key %d: key and secret are required", i)
		}
	}
	return cfg, nil
}

// Program returns the parsed program address. LoadConfig has already
// validated it.
func (c Config) Program() ledger.Address {
	addr, _ := ledger.ParseAddress(c.ProgramAddress)
	return addr
}
