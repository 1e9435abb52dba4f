package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nftlend/core"
	"nftlend/core/events"
	"nftlend/crypto"
	nativecommon "nftlend/native/common"
	"nftlend/native/loans"
	"nftlend/native/moneymarket"
	"nftlend/storage"
)

// OpenDatabase opens the configured storage backend.
func (c *Config) OpenDatabase() (storage.Database, error) {
	path := c.StoragePath()
	switch c.Storage.Backend {
	case BackendMemory:
		return storage.NewMemDB(), nil
	case BackendLevelDB:
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		db, err := storage.NewLevelDB(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendBolt:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		db, err := storage.NewBoltDB(path, nil)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
}

// NewClock builds the configured ledger clock.
func (c *Config) NewClock() core.Clock {
	if c.Clock.Mode != ClockManual {
		return core.WallClock{}
	}
	start := c.Clock.Start
	if start == 0 {
		start = time.Now().Unix()
	}
	return core.NewManualClock(start)
}

// MarketParams converts the market section into money market parameters.
func (c *Config) MarketParams() (moneymarket.Params, error) {
	assets := make([][20]byte, 0, len(c.Market.Assets))
	for _, value := range c.Market.Assets {
		asset, err := parsePrefixed(value, crypto.AssetPrefix)
		if err != nil {
			return moneymarket.Params{}, fmt.Errorf("market: asset %q: %w", value, err)
		}
		assets = append(assets, asset)
	}
	in := c.Market.Interest
	return moneymarket.Params{
		MaxLTVBps:        c.Market.MaxLTVBps,
		ReserveFactorBps: c.Market.ReserveFactorBps,
		StablePremiumBps: c.Market.StablePremiumBps,
		Interest:         moneymarket.NewInterestModel(in.BaseRate, in.Slope1, in.Slope2, in.Kink),
		Assets:           assets,
	}, nil
}

// LedgerOptions assembles core.Options. The clock, emitter and logger are
// supplied by the caller so that the daemon can share them.
func (c *Config) LedgerOptions(clock core.Clock, emitter events.Emitter, logger *slog.Logger) (core.Options, error) {
	params, err := c.MarketParams()
	if err != nil {
		return core.Options{}, err
	}
	opts := core.Options{
		Market:  params,
		Modules: make(map[loans.Variant][20]byte),
		Quota: nativecommon.Quota{
			MaxRequestsPerEpoch: c.Quota.MaxRequestsPerEpoch,
			EpochSeconds:        c.Quota.EpochSeconds,
		},
		Clock:   clock,
		Emitter: emitter,
		Logger:  logger,
	}
	if c.Modules.Pool != "" {
		if opts.Pool, err = parsePrefixed(c.Modules.Pool, crypto.AccountPrefix); err != nil {
			return core.Options{}, fmt.Errorf("modules: Pool: %w", err)
		}
	}
	for v, value := range map[loans.Variant]string{
		loans.VariantFixed:    c.Modules.Fixed,
		loans.VariantVariable: c.Modules.Variable,
		loans.VariantStable:   c.Modules.Stable,
	} {
		if value == "" {
			continue
		}
		addr, err := parsePrefixed(value, crypto.AccountPrefix)
		if err != nil {
			return core.Options{}, fmt.Errorf("modules: %s: %w", v, err)
		}
		opts.Modules[v] = addr
	}
	return opts, nil
}

// OpenLedger opens storage, builds the ledger and applies the configured
// pause flags.
func (c *Config) OpenLedger(clock core.Clock, emitter events.Emitter, logger *slog.Logger) (*core.Ledger, error) {
	opts, err := c.LedgerOptions(clock, emitter, logger)
	if err != nil {
		return nil, err
	}
	db, err := c.OpenDatabase()
	if err != nil {
		return nil, err
	}
	ledger := core.NewLedger(db, opts)
	for module, paused := range map[string]bool{
		"loans":       c.Pauses.Loans,
		"moneymarket": c.Pauses.MoneyMarket,
	} {
		if err := ledger.SetPaused(module, paused); err != nil {
			ledger.Close()
			return nil, err
		}
	}
	return ledger, nil
}
