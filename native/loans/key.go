package loans

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// RequestKey returns the duplicate-detection key for a request: keccak256 over
// the borrower, collateral reference, loan asset and economic terms. Expiry is
// not part of the key.
func RequestKey(borrower [20]byte, p CreateParams) [32]byte {
	return ethcrypto.Keccak256Hash(
		borrower[:],
		p.CollateralContract[:],
		word(p.CollateralID),
		p.LoanAsset[:],
		word(p.Principal),
		word(p.RepaymentTerm),
		word(p.LiqThreshold),
		uint64Word(p.Duration),
	)
}

func keyOf(req *BorrowRequest) [32]byte {
	return RequestKey(req.Borrower, CreateParams{
		LoanAsset:          req.LoanAsset,
		CollateralContract: req.CollateralContract,
		CollateralID:       req.CollateralID,
		Principal:          req.Principal,
		RepaymentTerm:      req.RepaymentTerm,
		LiqThreshold:       req.LiqThreshold,
		Duration:           req.Duration,
	})
}

// word left-pads a non-negative integer to 32 bytes.
func word(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil || v.Sign() <= 0 {
		return out
	}
	return v.FillBytes(out)
}

func uint64Word(v uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}
