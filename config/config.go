package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"

	ClockWall   = "wall"
	ClockManual = "manual"
)

// Config is the ledger configuration shared by the daemon and tooling.
type Config struct {
	DataDir string  `toml:"DataDir"`
	Storage Storage `toml:"storage"`
	Clock   Clock   `toml:"clock"`
	Pauses  Pauses  `toml:"pauses"`
	Quota   Quota   `toml:"quota"`
	Market  Market  `toml:"market"`
	Modules Modules `toml:"modules"`
}

// Load loads the configuration from the given path. A missing file is created
// with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	cfg.normalise()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for new deployments.
func Default() *Config {
	return &Config{
		DataDir: "./nftlend-data",
		Storage: Storage{Backend: BackendLevelDB},
		Clock:   Clock{Mode: ClockWall},
		Quota:   Quota{EpochSeconds: 3600},
		Market: Market{
			MaxLTVBps:        7_500,
			ReserveFactorBps: 1_000,
			StablePremiumBps: 200,
			Interest: Interest{
				BaseRate: 0.02,
				Slope1:   0.15,
				Slope2:   0.6,
				Kink:     0.8,
			},
			Assets: []string{},
		},
	}
}

func (c *Config) normalise() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendLevelDB
	}
	c.Clock.Mode = strings.ToLower(strings.TrimSpace(c.Clock.Mode))
	if c.Clock.Mode == "" {
		c.Clock.Mode = ClockWall
	}
	if c.Market.Assets == nil {
		c.Market.Assets = []string{}
	}
}

// StoragePath resolves where the backend keeps its files.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	switch c.Storage.Backend {
	case BackendBolt:
		return filepath.Join(c.DataDir, "ledger.db")
	default:
		return filepath.Join(c.DataDir, "ledger")
	}
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
