// Package config loads and saves the user's deal-finder settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
)

const (
	// EnvDataDir overrides the data directory.
	EnvDataDir = "TBR_DEALS_PATH"

	FileName   = "config.yaml"
	DBFileName = "tbr_deals.db"

	defaultDirName = ".tbr_deal_finder"
)

// ErrNotConfigured is returned by Load when no config file exists yet.
var ErrNotConfigured = errors.New("not configured")

// Config holds the user's settings.
type Config struct {
	ExportPaths    []string `yaml:"export_paths" validate:"required,min=1,dive,required"`
	MaxPrice       float64  `yaml:"max_price" validate:"gt=0"`
	MinDiscount    int      `yaml:"min_discount" validate:"gte=0,lte=100"`
	Locale         string   `yaml:"locale" validate:"required,locale"`
	TrackedSellers []string `yaml:"tracked_sellers" validate:"required,min=1,dive,seller"`
	Concurrency    int      `yaml:"concurrency" validate:"gte=1,lte=100"`
}

// Default returns the settings used for anything the file leaves out.
func Default() *Config {
	return &Config{
		MaxPrice:       8.00,
		MinDiscount:    35,
		Locale:         string(seller.LocaleUS),
		TrackedSellers: []string{string(seller.Audible), string(seller.Chirp)},
		Concurrency:    10,
	}
}

// DataDir returns the directory holding the config file and the database.
func DataDir() (string, error) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultDirName), nil
}

// Path returns the config file path inside dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// DBPath returns the database path inside dataDir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFileName)
}

// Load reads the config file at path over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no config file at %s", ErrNotConfigured, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save validates the config and writes it to path.
func (c *Config) Save(path string) error {
	c.normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func (c *Config) normalize() {
	c.Locale = strings.ToLower(strings.TrimSpace(c.Locale))
	for i, s := range c.TrackedSellers {
		c.TrackedSellers[i] = strings.ToLower(strings.TrimSpace(s))
	}
	paths := c.ExportPaths[:0]
	for _, p := range c.ExportPaths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	c.ExportPaths = paths
}

// Criteria returns the deal criteria. The price ceiling is rounded to cents.
func (c *Config) Criteria() deal.Criteria {
	return deal.CriteriaFromPercent(decimal.NewFromFloat(c.MaxPrice).Round(2), c.MinDiscount)
}

// MarketLocale returns the parsed locale. It falls back to the US store for
// an unvalidated config.
func (c *Config) MarketLocale() seller.Locale {
	l, err := seller.ParseLocale(c.Locale)
	if err != nil {
		return seller.LocaleUS
	}
	return l
}

// Sellers returns the tracked sellers, skipping unknown names.
func (c *Config) Sellers() []seller.Seller {
	var out []seller.Seller
	for _, s := range c.TrackedSellers {
		if sel, err := seller.Parse(s); err == nil {
			out = append(out, sel)
		}
	}
	return out
}
