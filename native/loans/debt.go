package loans

import (
	"math/big"

	"nftlend/native/moneymarket"
)

// TokenLedger is the fungible side of the asset custody adapter.
type TokenLedger interface {
	BalanceOf(asset, holder [20]byte) (*big.Int, error)
	Allowance(asset, owner, spender [20]byte) (*big.Int, error)
	Approve(asset, owner, spender [20]byte, amount *big.Int) error
	Transfer(asset, from, to [20]byte, amount *big.Int) error
	TransferFrom(asset, spender, from, to [20]byte, amount *big.Int) error
}

// CollateralRegistry is the non-fungible side of the asset custody adapter.
type CollateralRegistry interface {
	OwnerOf(contract [20]byte, id *big.Int) ([20]byte, error)
	TransferFrom(contract, caller, from, to [20]byte, id *big.Int) error
}

// DebtLedger is the external money market used by the accruing models.
type DebtLedger interface {
	Pool() [20]byte
	BorrowAllowance(asset [20]byte, mode moneymarket.RateMode, delegator, delegatee [20]byte) (*big.Int, error)
	Borrow(asset [20]byte, amount *big.Int, mode moneymarket.RateMode, caller, onBehalfOf, recipient [20]byte) error
	Repay(asset [20]byte, amount *big.Int, mode moneymarket.RateMode, payer, onBehalfOf [20]byte) (*big.Int, error)
	DebtBalance(asset [20]byte, mode moneymarket.RateMode, account [20]byte) (*big.Int, error)
}

type lenderIndex interface {
	LenderLoan(lender, asset [20]byte, mode moneymarket.RateMode) (uint64, bool, error)
	PutLenderLoan(lender, asset [20]byte, mode moneymarket.RateMode, id uint64) error
	DeleteLenderLoan(lender, asset [20]byte, mode moneymarket.RateMode) error
}

// Env is what a debt model may touch during a single engine call.
type Env struct {
	Tokens  TokenLedger
	Debt    DebtLedger
	Lenders lenderIndex
	Module  [20]byte
	Now     int64
}

// DebtModel captures everything that differs between the engine variants.
// Models must perform their own state writes before their external calls.
type DebtModel interface {
	// Name doubles as the storage namespace of the deployment.
	Name() string
	ValidateTerms(p CreateParams) error
	// ResolveRateMode maps the optional fulfil argument to the mode recorded
	// on the request.
	ResolveRateMode(requested moneymarket.RateMode) (moneymarket.RateMode, error)
	QuoteDebt(env *Env, req *BorrowRequest) (*big.Int, error)
	OnFulfill(env *Env, req *BorrowRequest) error
	OnRepay(env *Env, req *BorrowRequest, payer [20]byte, amount *big.Int) error
	LiquidationCondition(env *Env, req *BorrowRequest) (bool, error)
	// OnClose releases model bookkeeping once the loan is resolved.
	OnClose(env *Env, req *BorrowRequest) error
}

// FixedDebt is the fixed-repayment model: the lender funds the borrower
// directly, the debt is RepaymentTerm minus repayments and liquidation is
// purely deadline driven.
type FixedDebt struct{}

func (FixedDebt) Name() string { return string(VariantFixed) }

func (FixedDebt) ValidateTerms(p CreateParams) error {
	if p.RepaymentTerm.Cmp(p.Principal) < 0 {
		return ErrRepaymentBelowPrincipal
	}
	return nil
}

func (FixedDebt) ResolveRateMode(requested moneymarket.RateMode) (moneymarket.RateMode, error) {
	if requested != moneymarket.RateModeNone {
		return moneymarket.RateModeNone, ErrInvalidRateMode
	}
	return moneymarket.RateModeNone, nil
}

func (FixedDebt) QuoteDebt(_ *Env, req *BorrowRequest) (*big.Int, error) {
	debt := new(big.Int).Sub(req.RepaymentTerm, req.Repaid)
	if debt.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return debt, nil
}

func (FixedDebt) OnFulfill(env *Env, req *BorrowRequest) error {
	return env.Tokens.TransferFrom(req.LoanAsset, env.Module, req.Lender, req.Borrower, req.Principal)
}

func (FixedDebt) OnRepay(env *Env, req *BorrowRequest, payer [20]byte, amount *big.Int) error {
	return env.Tokens.TransferFrom(req.LoanAsset, env.Module, payer, req.Lender, amount)
}

func (FixedDebt) LiquidationCondition(env *Env, req *BorrowRequest) (bool, error) {
	return env.Now > req.DueAt(), nil
}

func (FixedDebt) OnClose(*Env, *BorrowRequest) error { return nil }

// PoolDebt is the accruing model: the engine borrows on behalf of the lender
// through credit delegation, so the debt lives on the lender's money market
// account. A lender may carry one such loan per asset and rate mode, and only
// from a debt-free account so the balance is the loan's alone. The market
// refuses further borrows against that account while the loan is active.
type PoolDebt struct {
	// DefaultMode is recorded when fulfilment does not pick a mode.
	DefaultMode moneymarket.RateMode
}

func (m PoolDebt) Name() string {
	if m.DefaultMode == moneymarket.RateModeStable {
		return string(VariantStable)
	}
	return string(VariantVariable)
}

func (PoolDebt) ValidateTerms(CreateParams) error { return nil }

func (m PoolDebt) ResolveRateMode(requested moneymarket.RateMode) (moneymarket.RateMode, error) {
	if requested == moneymarket.RateModeNone {
		requested = m.DefaultMode
	}
	if !requested.Valid() {
		return moneymarket.RateModeNone, ErrInvalidRateMode
	}
	return requested, nil
}

func (PoolDebt) QuoteDebt(env *Env, req *BorrowRequest) (*big.Int, error) {
	return env.Debt.DebtBalance(req.LoanAsset, req.RateMode, req.Lender)
}

func (PoolDebt) OnFulfill(env *Env, req *BorrowRequest) error {
	allowance, err := env.Debt.BorrowAllowance(req.LoanAsset, req.RateMode, req.Lender, env.Module)
	if err != nil {
		return err
	}
	if allowance.Cmp(req.Principal) < 0 {
		return ErrInsufficientDelegation
	}
	if _, active, err := env.Lenders.LenderLoan(req.Lender, req.LoanAsset, req.RateMode); err != nil {
		return err
	} else if active {
		return ErrLenderHasActiveLoan
	}
	debt, err := env.Debt.DebtBalance(req.LoanAsset, req.RateMode, req.Lender)
	if err != nil {
		return err
	}
	if debt.Sign() != 0 {
		return ErrLenderHasDebt
	}
	if err := env.Lenders.PutLenderLoan(req.Lender, req.LoanAsset, req.RateMode, req.ID); err != nil {
		return err
	}
	return env.Debt.Borrow(req.LoanAsset, req.Principal, req.RateMode, env.Module, req.Lender, req.Borrower)
}

func (PoolDebt) OnRepay(env *Env, req *BorrowRequest, payer [20]byte, amount *big.Int) error {
	if err := env.Tokens.TransferFrom(req.LoanAsset, env.Module, payer, env.Module, amount); err != nil {
		return err
	}
	if err := env.Tokens.Approve(req.LoanAsset, env.Module, env.Debt.Pool(), amount); err != nil {
		return err
	}
	_, err := env.Debt.Repay(req.LoanAsset, amount, req.RateMode, env.Module, req.Lender)
	return err
}

func (PoolDebt) LiquidationCondition(env *Env, req *BorrowRequest) (bool, error) {
	if env.Now > req.DueAt() {
		return true, nil
	}
	debt, err := env.Debt.DebtBalance(req.LoanAsset, req.RateMode, req.Lender)
	if err != nil {
		return false, err
	}
	return debt.Cmp(req.LiqThreshold) > 0, nil
}

func (PoolDebt) OnClose(env *Env, req *BorrowRequest) error {
	id, active, err := env.Lenders.LenderLoan(req.Lender, req.LoanAsset, req.RateMode)
	if err != nil || !active || id != req.ID {
		return err
	}
	return env.Lenders.DeleteLenderLoan(req.Lender, req.LoanAsset, req.RateMode)
}
