package state

import (
	"fmt"
	"math/big"

	nativecommon "nftlend/native/common"
	"nftlend/native/loans"
	"nftlend/native/moneymarket"
)

type storedBorrowRequest struct {
	ID                 uint64
	Borrower           [20]byte
	Lender             [20]byte
	LoanAsset          [20]byte
	CollateralContract [20]byte
	CollateralID       *big.Int
	Principal          *big.Int
	RepaymentTerm      *big.Int
	LiqThreshold       *big.Int
	Duration           uint64
	Expiry             uint64
	Fulfilled          bool
	RateMode           uint8
	Repaid             *big.Int
	CreatedAt          uint64
	FulfilledAt        uint64
}

func newStoredBorrowRequest(req *loans.BorrowRequest) *storedBorrowRequest {
	return &storedBorrowRequest{
		ID:                 req.ID,
		Borrower:           req.Borrower,
		Lender:             req.Lender,
		LoanAsset:          req.LoanAsset,
		CollateralContract: req.CollateralContract,
		CollateralID:       bigOrZero(req.CollateralID),
		Principal:          bigOrZero(req.Principal),
		RepaymentTerm:      bigOrZero(req.RepaymentTerm),
		LiqThreshold:       bigOrZero(req.LiqThreshold),
		Duration:           req.Duration,
		Expiry:             req.Expiry,
		Fulfilled:          req.Fulfilled,
		RateMode:           uint8(req.RateMode),
		Repaid:             bigOrZero(req.Repaid),
		CreatedAt:          unixToStored(req.CreatedAt),
		FulfilledAt:        unixToStored(req.FulfilledAt),
	}
}

func (s *storedBorrowRequest) toBorrowRequest() *loans.BorrowRequest {
	return &loans.BorrowRequest{
		ID:                 s.ID,
		Borrower:           s.Borrower,
		Lender:             s.Lender,
		LoanAsset:          s.LoanAsset,
		CollateralContract: s.CollateralContract,
		CollateralID:       bigOrZero(s.CollateralID),
		Principal:          bigOrZero(s.Principal),
		RepaymentTerm:      bigOrZero(s.RepaymentTerm),
		LiqThreshold:       bigOrZero(s.LiqThreshold),
		Duration:           s.Duration,
		Expiry:             s.Expiry,
		Fulfilled:          s.Fulfilled,
		RateMode:           moneymarket.RateMode(s.RateMode),
		Repaid:             bigOrZero(s.Repaid),
		CreatedAt:          storedToUnix(s.CreatedAt),
		FulfilledAt:        storedToUnix(s.FulfilledAt),
	}
}

// LoanRequestCount returns the number of requests ever created in the
// namespace.
func (m *Manager) LoanRequestCount(ns string) (uint64, error) {
	return m.loadUint64(loanCountKey(ns))
}

func (m *Manager) SetLoanRequestCount(ns string, count uint64) error {
	return m.KVPut(loanCountKey(ns), count)
}

// LoanRequest loads a live request. Removed and resolved requests are deleted
// and report ok=false.
func (m *Manager) LoanRequest(ns string, id uint64) (*loans.BorrowRequest, bool, error) {
	var stored storedBorrowRequest
	ok, err := m.KVGet(loanRequestKey(ns, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toBorrowRequest(), true, nil
}

func (m *Manager) PutLoanRequest(ns string, req *loans.BorrowRequest) error {
	if req == nil || req.ID == 0 {
		return fmt.Errorf("loans: refusing to store request without id")
	}
	return m.KVPut(loanRequestKey(ns, req.ID), newStoredBorrowRequest(req))
}

func (m *Manager) DeleteLoanRequest(ns string, id uint64) error {
	return m.KVDelete(loanRequestKey(ns, id))
}

// LoanKeyExists reports whether an identical request is live.
func (m *Manager) LoanKeyExists(ns string, key [32]byte) (bool, error) {
	return m.KVHas(loanDedupKey(ns, key))
}

func (m *Manager) PutLoanKey(ns string, key [32]byte, id uint64) error {
	return m.KVPut(loanDedupKey(ns, key), id)
}

func (m *Manager) DeleteLoanKey(ns string, key [32]byte) error {
	return m.KVDelete(loanDedupKey(ns, key))
}

func (m *Manager) LoanQuota(ns string, account [20]byte) (nativecommon.QuotaNow, error) {
	var usage nativecommon.QuotaNow
	if _, err := m.KVGet(loanQuotaKey(ns, account), &usage); err != nil {
		return nativecommon.QuotaNow{}, err
	}
	return usage, nil
}

func (m *Manager) PutLoanQuota(ns string, account [20]byte, usage nativecommon.QuotaNow) error {
	return m.KVPut(loanQuotaKey(ns, account), usage)
}

// LenderLoan returns the request currently drawing on the lender's delegated
// credit for asset and mode. The index is shared by every deployment.
func (m *Manager) LenderLoan(lender, asset [20]byte, mode moneymarket.RateMode) (uint64, bool, error) {
	var id uint64
	ok, err := m.KVGet(lenderLoanKey(lender, asset, uint8(mode)), &id)
	if err != nil {
		return 0, false, err
	}
	return id, ok, nil
}

func (m *Manager) PutLenderLoan(lender, asset [20]byte, mode moneymarket.RateMode, id uint64) error {
	return m.KVPut(lenderLoanKey(lender, asset, uint8(mode)), id)
}

// DebtLocked reports whether the account's debt in asset and mode backs an
// active delegated loan.
func (m *Manager) DebtLocked(account, asset [20]byte, mode moneymarket.RateMode) (bool, error) {
	_, ok, err := m.LenderLoan(account, asset, mode)
	return ok, err
}

func (m *Manager) DeleteLenderLoan(lender, asset [20]byte, mode moneymarket.RateMode) error {
	return m.KVDelete(lenderLoanKey(lender, asset, uint8(mode)))
}
