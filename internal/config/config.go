// Package config loads the market configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/gts-market/internal/entry"
	"github.com/atmx/gts-market/internal/pricing"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendFlatFile = "flatfile"
)

// Config holds every setting of the market server.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		Backend      string        `yaml:"backend"`
		DatabaseURL  string        `yaml:"database_url"`
		RedisURL     string        `yaml:"redis_url"`
		RedisPrefix  string        `yaml:"redis_prefix"`
		SQLitePath   string        `yaml:"sqlite_path"`
		FlatFilePath string        `yaml:"flatfile_path"`
		Workers      int           `yaml:"workers"`
		QueueSize    int           `yaml:"queue_size"`
		SaveInterval time.Duration `yaml:"save_interval"`
	} `yaml:"storage"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Market struct {
		MaxListings     int           `yaml:"max_listings"` // per player; 0 = unlimited
		TaxEnabled      bool          `yaml:"tax_enabled"`
		TaxRate         string        `yaml:"tax_rate"` // fraction of the listing price
		DefaultDuration time.Duration `yaml:"default_duration"`
		SweepInterval   time.Duration `yaml:"sweep_interval"`
		MaxPrice        string        `yaml:"max_price"`
		CurrencySymbol  string        `yaml:"currency_symbol"`
	} `yaml:"market"`

	Pricing struct {
		ItemBase      string   `yaml:"item_base"`
		CreatureBase  string   `yaml:"creature_base"`
		Legendary     string   `yaml:"legendary"`
		Shiny         string   `yaml:"shiny"`
		IVThreshold   int      `yaml:"iv_threshold"`
		IVBonus       string   `yaml:"iv_bonus"`
		HiddenAbility string   `yaml:"hidden_ability"`
		Blacklist     []string `yaml:"blacklist"`
	} `yaml:"pricing"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	// Messages overrides entries of MessageKeys.
	Messages map[string][]string `yaml:"messages"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var c Config
	c.Server.Port = "8080"

	c.Storage.Backend = BackendMemory
	c.Storage.RedisPrefix = "gts"
	c.Storage.SQLitePath = "data/gts.sqlite"
	c.Storage.FlatFilePath = "data/gts.json.zst"
	c.Storage.Workers = 4
	c.Storage.QueueSize = 256
	c.Storage.SaveInterval = 5 * time.Minute

	c.NATS.SubjectPrefix = "gts.events"

	c.Market.MaxListings = 5
	c.Market.TaxRate = "0.08"
	c.Market.DefaultDuration = 24 * time.Hour
	c.Market.SweepInterval = 10 * time.Second
	c.Market.MaxPrice = "100000000"
	c.Market.CurrencySymbol = "$"

	c.Pricing.ItemBase = "1"
	c.Pricing.CreatureBase = "100"
	c.Pricing.Legendary = "10000"
	c.Pricing.Shiny = "2000"
	c.Pricing.IVThreshold = 31
	c.Pricing.IVBonus = "1000"
	c.Pricing.HiddenAbility = "1500"

	c.Logging.Level = "info"
	return &c
}

// Load reads path (if non-empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// overrideWithEnv applies the deployment environment on top of the file.
func overrideWithEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("GTS_STORAGE"); v != "" {
		c.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Storage.RedisURL = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendFlatFile, BackendSQLite:
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("postgres backend requires DATABASE_URL")
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			return errors.New("redis backend requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Workers < 1 {
		return errors.New("storage workers must be positive")
	}
	if c.Market.MaxListings < 0 {
		return errors.New("max listings cannot be negative")
	}
	if c.Market.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.Market.DefaultDuration < 0 {
		return errors.New("default duration cannot be negative")
	}
	if _, err := c.Limits(); err != nil {
		return err
	}
	if _, err := c.TaxRate(); err != nil {
		return err
	}
	if _, err := c.Rules(); err != nil {
		return err
	}
	for key := range c.Messages {
		if _, ok := MessageKeys[key]; !ok {
			return fmt.Errorf("unknown message key %q", key)
		}
	}
	return nil
}

// Limits returns the price ceiling and currency symbol.
func (c *Config) Limits() (pricing.Limits, error) {
	ceiling, err := parseAmount("market.max_price", c.Market.MaxPrice)
	if err != nil {
		return pricing.Limits{}, err
	}
	if !ceiling.IsPositive() {
		return pricing.Limits{}, errors.New("market.max_price must be positive")
	}
	return pricing.Limits{Max: ceiling, Symbol: c.Market.CurrencySymbol}, nil
}

// TaxRate returns the listing tax as a fraction, or zero when taxes are off.
func (c *Config) TaxRate() (decimal.Decimal, error) {
	if !c.Market.TaxEnabled {
		return decimal.Zero, nil
	}
	rate, err := parseAmount("market.tax_rate", c.Market.TaxRate)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.New("market.tax_rate cannot exceed 1")
	}
	return rate, nil
}

// Rules returns the minimum-price rules for entries.
func (c *Config) Rules() (entry.Rules, error) {
	p := c.Pricing
	var r entry.Rules
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"pricing.item_base", p.ItemBase, &r.ItemBase},
		{"pricing.creature_base", p.CreatureBase, &r.CreatureBase},
		{"pricing.legendary", p.Legendary, &r.Legendary},
		{"pricing.shiny", p.Shiny, &r.Shiny},
		{"pricing.iv_bonus", p.IVBonus, &r.IVBonus},
		{"pricing.hidden_ability", p.HiddenAbility, &r.HiddenAbility},
	}
	for _, f := range fields {
		v, err := parseAmount(f.name, f.raw)
		if err != nil {
			return entry.Rules{}, err
		}
		*f.dst = v
	}
	r.IVThreshold = p.IVThreshold
	r.Blacklist = append([]string(nil), p.Blacklist...)
	return r, nil
}

// Message returns the lines for key: the configured override if present,
// else the built-in default.
func (c *Config) Message(key string) []string {
	if lines, ok := c.Messages[key]; ok {
		return lines
	}
	return MessageKeys[key]
}

func parseAmount(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s cannot be negative", name)
	}
	return v, nil
}
