package moneymarket

import (
	"fmt"
	"math/big"
	"strings"
)

// RateMode selects the debt flavour a borrow is recorded under. The numbering
// follows the pool convention where 1 is stable and 2 is variable.
type RateMode uint8

const (
	RateModeNone     RateMode = 0
	RateModeStable   RateMode = 1
	RateModeVariable RateMode = 2
)

// Valid reports whether the mode selects an actual debt flavour.
func (m RateMode) Valid() bool {
	return m == RateModeStable || m == RateModeVariable
}

func (m RateMode) String() string {
	switch m {
	case RateModeStable:
		return "stable"
	case RateModeVariable:
		return "variable"
	default:
		return "none"
	}
}

// ParseRateMode accepts either the numeric or the textual form.
func ParseRateMode(value string) (RateMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "0", "none":
		return RateModeNone, nil
	case "1", "stable":
		return RateModeStable, nil
	case "2", "variable":
		return RateModeVariable, nil
	default:
		return RateModeNone, fmt.Errorf("unsupported rate mode %q", value)
	}
}

// Reserve captures the pool-wide accounting for a single asset. Deposits and
// variable debt are stored scaled by their respective indexes.
type Reserve struct {
	LiquidityIndex      *big.Int
	VariableBorrowIndex *big.Int
	ScaledDeposits      *big.Int
	ScaledVariableDebt  *big.Int
	// TotalStableDebt is the sum of stable principals as of each position's
	// last update.
	TotalStableDebt *big.Int
	LastUpdate      int64
}

// Clone returns a deep copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	clone.LiquidityIndex = cloneBigInt(r.LiquidityIndex)
	clone.VariableBorrowIndex = cloneBigInt(r.VariableBorrowIndex)
	clone.ScaledDeposits = cloneBigInt(r.ScaledDeposits)
	clone.ScaledVariableDebt = cloneBigInt(r.ScaledVariableDebt)
	clone.TotalStableDebt = cloneBigInt(r.TotalStableDebt)
	return &clone
}

// Position maintains an account's deposit and debt in a single reserve.
type Position struct {
	ScaledDeposit      *big.Int
	ScaledVariableDebt *big.Int
	StablePrincipal    *big.Int
	// StableRate is the account's snapshot APR in ray precision.
	StableRate    *big.Int
	StableUpdated int64
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ScaledDeposit = cloneBigInt(p.ScaledDeposit)
	clone.ScaledVariableDebt = cloneBigInt(p.ScaledVariableDebt)
	clone.StablePrincipal = cloneBigInt(p.StablePrincipal)
	clone.StableRate = cloneBigInt(p.StableRate)
	return &clone
}

// Params groups the risk and rate configuration of the market.
type Params struct {
	// MaxLTVBps caps an account's total debt in an asset relative to its
	// deposit in that same asset.
	MaxLTVBps uint64
	// ReserveFactorBps is the share of borrow interest withheld from
	// suppliers.
	ReserveFactorBps uint64
	// StablePremiumBps is added on top of the variable APR for stable
	// borrows.
	StablePremiumBps uint64
	Interest         *InterestModel
	// Assets lists the reserves that accept deposits and borrows.
	Assets [][20]byte
}

// Rates reports the instantaneous rates of a reserve.
type Rates struct {
	Utilisation       *big.Rat
	VariableBorrowAPR *big.Rat
	StableBorrowAPR   *big.Rat
	SupplyAPY         *big.Rat
}
