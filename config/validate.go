package config

import (
	"fmt"
	"strings"

	"nftlend/crypto"
)

const maxBps = 10_000

func ValidateConfig(c *Config) error {
	switch c.Storage.Backend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend != BackendMemory && c.DataDir == "" && c.Storage.Path == "" {
		return fmt.Errorf("storage: DataDir or Path required for %s", c.Storage.Backend)
	}
	switch c.Clock.Mode {
	case ClockWall, ClockManual:
	default:
		return fmt.Errorf("clock: unknown mode %q", c.Clock.Mode)
	}
	if c.Clock.Start < 0 {
		return fmt.Errorf("clock: start must not be negative")
	}
	if c.Market.MaxLTVBps == 0 || c.Market.MaxLTVBps > maxBps {
		return fmt.Errorf("market: MaxLTVBps must be within (0, %d]", maxBps)
	}
	if c.Market.ReserveFactorBps > maxBps {
		return fmt.Errorf("market: ReserveFactorBps exceeds %d", maxBps)
	}
	if c.Market.StablePremiumBps > maxBps {
		return fmt.Errorf("market: StablePremiumBps exceeds %d", maxBps)
	}
	in := c.Market.Interest
	if in.BaseRate < 0 || in.Slope1 < 0 || in.Slope2 < 0 {
		return fmt.Errorf("market.interest: rates must not be negative")
	}
	if in.Kink < 0 || in.Kink > 1 {
		return fmt.Errorf("market.interest: kink must be within [0, 1]")
	}
	for _, asset := range c.Market.Assets {
		if _, err := parsePrefixed(asset, crypto.AssetPrefix); err != nil {
			return fmt.Errorf("market: asset %q: %w", asset, err)
		}
	}
	for name, value := range map[string]string{
		"Pool":     c.Modules.Pool,
		"Fixed":    c.Modules.Fixed,
		"Variable": c.Modules.Variable,
		"Stable":   c.Modules.Stable,
	} {
		if value == "" {
			continue
		}
		if _, err := parsePrefixed(value, crypto.AccountPrefix); err != nil {
			return fmt.Errorf("modules: %s: %w", name, err)
		}
	}
	return nil
}

// parsePrefixed accepts 0x hex or bech32 with the expected prefix.
func parsePrefixed(value string, prefix crypto.AddressPrefix) ([20]byte, error) {
	if strings.HasPrefix(value, "0x") {
		return crypto.ParseAddress(value)
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != prefix {
		return [20]byte{}, fmt.Errorf("expected %s prefix, got %s", prefix, addr.Prefix())
	}
	return addr.Array(), nil
}
