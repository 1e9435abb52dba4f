package config

// Storage selects the ledger backend.
type Storage struct {
	// Backend is one of "memory", "leveldb" or "bolt".
	Backend string `toml:"Backend"`
	// Path defaults to a backend specific location under DataDir.
	Path string `toml:"Path"`
}

// Clock selects the ledger time source.
type Clock struct {
	// Mode is "wall" or "manual". Manual clocks only move through the dev
	// API and start at Start (unix seconds, now when zero).
	Mode  string `toml:"Mode"`
	Start int64  `toml:"Start"`
}

type Pauses struct {
	Loans       bool `toml:"Loans"`
	MoneyMarket bool `toml:"MoneyMarket"`
}

// Quota limits how many borrow requests one account may create per epoch.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Interest is the utilisation curve of the money market, as decimals.
type Interest struct {
	BaseRate float64 `toml:"BaseRate"`
	Slope1   float64 `toml:"Slope1"`
	Slope2   float64 `toml:"Slope2"`
	Kink     float64 `toml:"Kink"`
}

// Market configures the reference money market used by the delegated
// deployments.
type Market struct {
	MaxLTVBps        uint64   `toml:"MaxLTVBps"`
	ReserveFactorBps uint64   `toml:"ReserveFactorBps"`
	StablePremiumBps uint64   `toml:"StablePremiumBps"`
	Interest         Interest `toml:"Interest"`
	// Assets lists the bech32 (asset prefix) addresses with an active reserve.
	Assets []string `toml:"Assets"`
}

// Modules overrides custody accounts by deployment name. Empty entries fall
// back to derived module addresses.
type Modules struct {
	Pool     string `toml:"Pool"`
	Fixed    string `toml:"Fixed"`
	Variable string `toml:"Variable"`
	Stable   string `toml:"Stable"`
}
