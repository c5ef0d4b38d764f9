package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/WillNye/tbr-deal-finder/internal/config"
	"github.com/WillNye/tbr-deal-finder/internal/deal"
	"github.com/WillNye/tbr-deal-finder/internal/finder"
	"github.com/WillNye/tbr-deal-finder/internal/seller"
	"github.com/WillNye/tbr-deal-finder/internal/seller/audible"
	"github.com/WillNye/tbr-deal-finder/internal/seller/chirp"
	"github.com/WillNye/tbr-deal-finder/internal/store"
	"github.com/WillNye/tbr-deal-finder/internal/store/memory"
	"github.com/WillNye/tbr-deal-finder/internal/store/sqlite"
)

// app carries the settings shared by every subcommand.
type app struct {
	dataDir string
}

func (a *app) resolveDataDir() (string, error) {
	if a.dataDir != "" {
		return a.dataDir, nil
	}
	return config.DataDir()
}

func (a *app) configPath() (string, error) {
	dir, err := a.resolveDataDir()
	if err != nil {
		return "", err
	}
	return config.Path(dir), nil
}

func (a *app) loadConfig() (*config.Config, error) {
	path, err := a.configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrNotConfigured) {
		return nil, fmt.Errorf("%w\n\nCreate one with:\n  tbr-deals config init --export <path-to-export.csv>", err)
	}
	return cfg, err
}

// openStore opens the deal database, creating the data directory on first use.
func (a *app) openStore() (*sqlite.Store, error) {
	dir, err := a.resolveDataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := sqlite.Open(config.DBPath(dir), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open deal store: %w", err)
	}
	return st, nil
}

// scratchCopy loads the full history and the last run of src into an
// in-memory store, so a dry run sees the same previous state without
// persisting anything.
func scratchCopy(ctx context.Context, src store.Store) (*memory.Store, error) {
	dst := memory.New()
	views, err := src.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	records := make([]deal.Record, len(views))
	for i, v := range views {
		records[i] = v.Record
	}
	if err := dst.Append(ctx, records); err != nil {
		return nil, err
	}

	last, err := src.LastRun(ctx)
	if errors.Is(err, store.ErrNoRuns) {
		return dst, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last run: %w", err)
	}
	if err := dst.RecordRun(ctx, *last); err != nil {
		return nil, err
	}
	return dst, nil
}

// buildClients creates a client for every tracked seller that has one.
func buildClients(sellers []seller.Seller, locale seller.Locale, logger *slog.Logger) []finder.Client {
	var clients []finder.Client
	for _, sel := range sellers {
		switch sel {
		case seller.Audible:
			clients = append(clients, audible.New(locale, logger))
		case seller.Chirp:
			if locale != seller.LocaleUS {
				logger.Warn("Chirp only sells to the US store, prices will be in USD", "locale", locale)
			}
			clients = append(clients, chirp.New(logger))
		default:
			logger.Warn("No client for seller, skipping", "seller", sel)
		}
	}
	return clients
}

// parseTime accepts RFC 3339 timestamps and plain dates. A plain date means
// the end of that day in UTC.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return d.Add(24*time.Hour - time.Nanosecond), nil
}
