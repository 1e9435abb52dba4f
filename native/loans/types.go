package loans

import (
	"math/big"

	"nftlend/native/moneymarket"
)

// Status tracks where a borrow request sits in its lifecycle. Only Open and
// Fulfilled are ever persisted; terminal outcomes clear the record and surface
// through events.
type Status uint8

const (
	StatusNone Status = iota
	StatusOpen
	StatusFulfilled
	StatusRemoved
	StatusRepaid
	StatusLiquidated
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusFulfilled:
		return "fulfilled"
	case StatusRemoved:
		return "removed"
	case StatusRepaid:
		return "repaid"
	case StatusLiquidated:
		return "liquidated"
	default:
		return "none"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRemoved || s == StatusRepaid || s == StatusLiquidated
}

// BorrowRequest is a borrower's collateralised offer and, once fulfilled, the
// resulting loan. Durations are expressed in seconds and timestamps in unix
// seconds.
type BorrowRequest struct {
	ID                 uint64
	Borrower           [20]byte
	Lender             [20]byte
	LoanAsset          [20]byte
	CollateralContract [20]byte
	CollateralID       *big.Int
	Principal          *big.Int
	RepaymentTerm      *big.Int
	LiqThreshold       *big.Int
	// Duration bounds how long the loan may stay outstanding after
	// fulfilment.
	Duration uint64
	// Expiry bounds how long the request may stay open before fulfilment.
	Expiry    uint64
	Fulfilled bool
	// RateMode is the debt flavour chosen at fulfilment by accruing models.
	RateMode moneymarket.RateMode
	// Repaid accumulates repayments under the fixed model.
	Repaid      *big.Int
	CreatedAt   int64
	FulfilledAt int64
}

// Clone returns a deep copy of the request so callers can safely mutate the
// copy without affecting the stored instance.
func (r *BorrowRequest) Clone() *BorrowRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.CollateralID = cloneBigInt(r.CollateralID)
	clone.Principal = cloneBigInt(r.Principal)
	clone.RepaymentTerm = cloneBigInt(r.RepaymentTerm)
	clone.LiqThreshold = cloneBigInt(r.LiqThreshold)
	clone.Repaid = cloneBigInt(r.Repaid)
	return &clone
}

// Status derives the lifecycle state of a stored record.
func (r *BorrowRequest) Status() Status {
	if r == nil || r.ID == 0 {
		return StatusNone
	}
	if r.Fulfilled {
		return StatusFulfilled
	}
	return StatusOpen
}

// IsZero reports whether the record is the cleared value returned for removed,
// resolved or unknown ids.
func (r *BorrowRequest) IsZero() bool {
	return r == nil || r.ID == 0
}

// ExpiresAt is the last second at which the request may be fulfilled.
func (r *BorrowRequest) ExpiresAt() int64 {
	return addSeconds(r.CreatedAt, r.Expiry)
}

// DueAt is the last second before the loan becomes overdue.
func (r *BorrowRequest) DueAt() int64 {
	return addSeconds(r.FulfilledAt, r.Duration)
}

// CreateParams carries the borrower supplied terms of a new request.
type CreateParams struct {
	LoanAsset          [20]byte
	CollateralContract [20]byte
	CollateralID       *big.Int
	Principal          *big.Int
	RepaymentTerm      *big.Int
	LiqThreshold       *big.Int
	Duration           uint64
	Expiry             uint64
}

// zeroRequest is the cleared record handed out for absent ids.
func zeroRequest() *BorrowRequest {
	return &BorrowRequest{
		CollateralID:  big.NewInt(0),
		Principal:     big.NewInt(0),
		RepaymentTerm: big.NewInt(0),
		LiqThreshold:  big.NewInt(0),
		Repaid:        big.NewInt(0),
	}
}

// addSeconds saturates instead of wrapping so that "effectively infinite"
// durations stay in the future.
func addSeconds(base int64, seconds uint64) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	if seconds > uint64(maxInt64) || base > maxInt64-int64(seconds) {
		return maxInt64
	}
	return base + int64(seconds)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
