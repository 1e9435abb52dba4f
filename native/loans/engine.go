package loans

import (
	"errors"
	"log/slog"
	"math/big"
	"time"

	"nftlend/core/events"
	nativecommon "nftlend/native/common"
	"nftlend/native/moneymarket"
)

const moduleName = "loans"

type engineState interface {
	LoanRequestCount(ns string) (uint64, error)
	SetLoanRequestCount(ns string, count uint64) error
	LoanRequest(ns string, id uint64) (*BorrowRequest, bool, error)
	PutLoanRequest(ns string, req *BorrowRequest) error
	DeleteLoanRequest(ns string, id uint64) error
	LoanKeyExists(ns string, key [32]byte) (bool, error)
	PutLoanKey(ns string, key [32]byte, id uint64) error
	DeleteLoanKey(ns string, key [32]byte) error
	LoanQuota(ns string, account [20]byte) (nativecommon.QuotaNow, error)
	PutLoanQuota(ns string, account [20]byte, usage nativecommon.QuotaNow) error
	lenderIndex
}

// Engine runs the borrow request lifecycle for one deployment. Custody,
// state transitions and duplicate-key enforcement live here; everything that
// differs between deployments is delegated to the DebtModel.
type Engine struct {
	state      engineState
	tokens     TokenLedger
	collateral CollateralRegistry
	debt       DebtLedger
	model      DebtModel
	module     [20]byte
	prefix     string
	namespace  string
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	quota      nativecommon.Quota
	nowFn      func() int64
	logger     *slog.Logger
}

// NewEngine creates an engine for the supplied debt model. The module address
// takes custody of collateral and acts as delegatee on the money market;
// prefix is prepended to every failure reason.
func NewEngine(model DebtModel, module [20]byte, prefix string) *Engine {
	return &Engine{
		model:     model,
		module:    module,
		prefix:    prefix,
		namespace: model.Name(),
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
		logger:    slog.Default(),
	}
}

// SetState configures the request store backend.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets wires the asset custody adapters.
func (e *Engine) SetAssets(tokens TokenLedger, collateral CollateralRegistry) {
	e.tokens = tokens
	e.collateral = collateral
}

// SetDebtLedger wires the external money market used by accruing models.
func (e *Engine) SetDebtLedger(debt DebtLedger) { e.debt = debt }

// SetPauses configures the module pause view consulted before every write.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetQuota limits how many requests a borrower may create per epoch.
func (e *Engine) SetQuota(q nativecommon.Quota) { e.quota = q }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the structured logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// Module returns the custody address of the deployment.
func (e *Engine) Module() [20]byte { return e.module }

// Prefix returns the reason prefix of the deployment.
func (e *Engine) Prefix() string { return e.prefix }

// Namespace returns the storage namespace of the deployment.
func (e *Engine) Namespace() string { return e.namespace }

// CreateBorrowRequest takes custody of the caller's collateral and records an
// open request. The new request id is returned.
func (e *Engine) CreateBorrowRequest(caller [20]byte, p CreateParams) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := e.validateCreate(caller, p); err != nil {
		return 0, err
	}

	key := RequestKey(caller, p)
	exists, err := e.state.LoanKeyExists(e.namespace, key)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, e.fail(KindValidation, ErrDuplicateRequest)
	}

	owner, err := e.collateral.OwnerOf(p.CollateralContract, p.CollateralID)
	if err != nil {
		return 0, external(err)
	}
	if owner != caller {
		return 0, e.fail(KindValidation, ErrNotCollateralOwner)
	}

	now := e.now()
	if err := e.consumeQuota(caller, now); err != nil {
		return 0, err
	}

	count, err := e.state.LoanRequestCount(e.namespace)
	if err != nil {
		return 0, err
	}
	id := count + 1
	req := &BorrowRequest{
		ID:                 id,
		Borrower:           caller,
		LoanAsset:          p.LoanAsset,
		CollateralContract: p.CollateralContract,
		CollateralID:       cloneBigInt(p.CollateralID),
		Principal:          cloneBigInt(p.Principal),
		RepaymentTerm:      cloneBigInt(p.RepaymentTerm),
		LiqThreshold:       cloneBigInt(p.LiqThreshold),
		Duration:           p.Duration,
		Expiry:             p.Expiry,
		Repaid:             big.NewInt(0),
		CreatedAt:          now,
	}
	if err := e.state.SetLoanRequestCount(e.namespace, id); err != nil {
		return 0, err
	}
	if err := e.state.PutLoanRequest(e.namespace, req); err != nil {
		return 0, err
	}
	if err := e.state.PutLoanKey(e.namespace, key, id); err != nil {
		return 0, err
	}

	if err := e.collateral.TransferFrom(p.CollateralContract, e.module, caller, e.module, p.CollateralID); err != nil {
		return 0, external(err)
	}

	e.emit(EventTypeRequestCreated, req, nil)
	e.logger.Debug("borrow request created", "engine", e.namespace, "id", id)
	return id, nil
}

// RemoveRequest cancels an open request and returns the collateral to the
// borrower. Only the borrower may remove, and only before fulfilment.
func (e *Engine) RemoveRequest(caller [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	req, err := e.load(id)
	if err != nil {
		return err
	}
	if req.IsZero() {
		return e.fail(KindValidation, ErrNotOpen)
	}
	if req.Borrower != caller {
		return e.fail(KindValidation, ErrNotBorrower)
	}
	if req.Fulfilled {
		return e.fail(KindValidation, ErrNotOpen)
	}

	if err := e.clear(req); err != nil {
		return err
	}
	if err := e.collateral.TransferFrom(req.CollateralContract, e.module, e.module, req.Borrower, req.CollateralID); err != nil {
		return external(err)
	}

	e.emit(EventTypeRequestRemoved, req, nil)
	e.logger.Debug("borrow request removed", "engine", e.namespace, "id", id)
	return nil
}

// FulfillRequest funds an open request. The rate mode is only meaningful for
// accruing models; RateModeNone selects the model default.
func (e *Engine) FulfillRequest(caller [20]byte, id uint64, mode moneymarket.RateMode) error {
	if err := e.ready(); err != nil {
		return err
	}
	req, err := e.load(id)
	if err != nil {
		return err
	}
	if req.IsZero() {
		return e.fail(KindValidation, ErrNotOpen)
	}
	if req.Fulfilled {
		return e.fail(KindValidation, ErrAlreadyFulfilled)
	}
	now := e.now()
	if now > req.ExpiresAt() {
		return e.fail(KindValidation, ErrExpired)
	}
	resolved, err := e.model.ResolveRateMode(mode)
	if err != nil {
		return e.modelErr(err)
	}

	req.Lender = caller
	req.Fulfilled = true
	req.FulfilledAt = now
	req.RateMode = resolved
	if err := e.state.PutLoanRequest(e.namespace, req); err != nil {
		return err
	}
	if err := e.model.OnFulfill(e.env(now), req); err != nil {
		return e.modelErr(err)
	}

	e.emit(EventTypeRequestFulfilled, req, nil)
	e.logger.Debug("borrow request fulfilled", "engine", e.namespace, "id", id, "rateMode", resolved.String())
	return nil
}

// Repay pulls up to the outstanding debt from the caller. Amounts at or above
// the debt, including the max-uint sentinel, settle exactly the debt and
// return the collateral to the borrower. The amount actually pulled is
// returned.
func (e *Engine) Repay(caller [20]byte, id uint64, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 || amount.BitLen() > 256 {
		return nil, e.fail(KindValidation, ErrInvalidAmount)
	}
	req, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if req.IsZero() || !req.Fulfilled {
		return nil, e.fail(KindValidation, ErrNotFulfilled)
	}

	now := e.now()
	env := e.env(now)
	debt, err := e.model.QuoteDebt(env, req)
	if err != nil {
		return nil, external(err)
	}
	paid := new(big.Int).Set(amount)
	if paid.Cmp(debt) > 0 {
		paid.Set(debt)
	}
	remaining := new(big.Int).Sub(debt, paid)
	settled := remaining.Sign() == 0

	req.Repaid = new(big.Int).Add(req.Repaid, paid)
	if settled {
		if err := e.clear(req); err != nil {
			return nil, err
		}
		if err := e.model.OnClose(env, req); err != nil {
			return nil, e.modelErr(err)
		}
	} else if err := e.state.PutLoanRequest(e.namespace, req); err != nil {
		return nil, err
	}

	if paid.Sign() > 0 {
		if err := e.model.OnRepay(env, req, caller, paid); err != nil {
			return nil, e.modelErr(err)
		}
	}
	if settled {
		if err := e.collateral.TransferFrom(req.CollateralContract, e.module, e.module, req.Borrower, req.CollateralID); err != nil {
			return nil, external(err)
		}
		e.emit(EventTypeRequestSettled, req, map[string]string{"amount": paid.String()})
		e.logger.Debug("loan settled", "engine", e.namespace, "id", id)
	} else {
		e.emit(EventTypeRequestRepaid, req, map[string]string{"amount": paid.String(), "remaining": remaining.String()})
		e.logger.Debug("loan partially repaid", "engine", e.namespace, "id", id)
	}
	return paid, nil
}

// Liquidate hands the collateral to the lender once the model's liquidation
// condition holds. Only the stored lender may liquidate.
func (e *Engine) Liquidate(caller [20]byte, id uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	req, err := e.load(id)
	if err != nil {
		return err
	}
	if req.IsZero() || !req.Fulfilled {
		return e.fail(KindValidation, ErrNotFulfilled)
	}
	if req.Lender != caller {
		return e.fail(KindValidation, ErrNotLender)
	}
	now := e.now()
	env := e.env(now)
	liquidatable, err := e.model.LiquidationCondition(env, req)
	if err != nil {
		return external(err)
	}
	if !liquidatable {
		return e.fail(KindValidation, ErrRequestStillValid)
	}

	if err := e.clear(req); err != nil {
		return err
	}
	if err := e.model.OnClose(env, req); err != nil {
		return e.modelErr(err)
	}
	if err := e.collateral.TransferFrom(req.CollateralContract, e.module, e.module, req.Lender, req.CollateralID); err != nil {
		return external(err)
	}

	e.emit(EventTypeRequestLiquidated, req, nil)
	e.logger.Debug("loan liquidated", "engine", e.namespace, "id", id)
	return nil
}

// TotalRequestCount returns how many requests were ever created. Removal and
// resolution do not decrease it.
func (e *Engine) TotalRequestCount() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.LoanRequestCount(e.namespace)
}

// BorrowRequestByID returns the stored request. Removed, resolved and unknown
// ids all yield the zeroed record; the two cases cannot be told apart.
func (e *Engine) BorrowRequestByID(id uint64) (*BorrowRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.load(id)
}

// RequestDebtBalance returns the outstanding debt of a fulfilled request. Open
// and absent requests owe nothing.
func (e *Engine) RequestDebtBalance(id uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if req.IsZero() || !req.Fulfilled {
		return big.NewInt(0), nil
	}
	if _, ok := e.model.(PoolDebt); ok && e.debt == nil {
		return nil, errNilDebt
	}
	return e.model.QuoteDebt(e.env(e.now()), req)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil || e.collateral == nil {
		return errNilAssets
	}
	if _, ok := e.model.(PoolDebt); ok && e.debt == nil {
		return errNilDebt
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return e.fail(KindValidation, err)
	}
	return nil
}

func (e *Engine) validateCreate(caller [20]byte, p CreateParams) error {
	if caller == ([20]byte{}) || p.LoanAsset == ([20]byte{}) || p.CollateralContract == ([20]byte{}) {
		return e.fail(KindValidation, ErrInvalidAsset)
	}
	if p.CollateralID == nil || p.CollateralID.Sign() < 0 || p.CollateralID.BitLen() > 256 {
		return e.fail(KindValidation, ErrInvalidAsset)
	}
	if p.Principal == nil || p.Principal.Sign() <= 0 || p.Principal.BitLen() > 256 {
		return e.fail(KindValidation, ErrInvalidAmount)
	}
	for _, v := range []*big.Int{p.RepaymentTerm, p.LiqThreshold} {
		if v == nil || v.Sign() < 0 || v.BitLen() > 256 {
			return e.fail(KindValidation, ErrInvalidAmount)
		}
	}
	if err := e.model.ValidateTerms(p); err != nil {
		return e.modelErr(err)
	}
	return nil
}

func (e *Engine) consumeQuota(caller [20]byte, now int64) error {
	if !e.quota.Enabled() {
		return nil
	}
	prev, err := e.state.LoanQuota(e.namespace, caller)
	if err != nil {
		return err
	}
	next, err := nativecommon.CheckQuota(e.quota, e.quota.EpochOf(now), prev, 1)
	if err != nil {
		if errors.Is(err, nativecommon.ErrQuotaRequestsExceeded) {
			return e.fail(KindValidation, ErrQuotaExceeded)
		}
		return e.fail(KindInvariant, err)
	}
	return e.state.PutLoanQuota(e.namespace, caller, next)
}

// load returns the stored request or the zeroed record.
func (e *Engine) load(id uint64) (*BorrowRequest, error) {
	if id == 0 {
		return zeroRequest(), nil
	}
	req, ok, err := e.state.LoanRequest(e.namespace, id)
	if err != nil {
		return nil, err
	}
	if !ok || req == nil {
		return zeroRequest(), nil
	}
	if req.ID != id {
		return nil, e.fail(KindInvariant, ErrCorruptRecord)
	}
	return req.Clone(), nil
}

// clear drops the record and its duplicate key so an identical request can be
// posted again.
func (e *Engine) clear(req *BorrowRequest) error {
	if err := e.state.DeleteLoanRequest(e.namespace, req.ID); err != nil {
		return err
	}
	return e.state.DeleteLoanKey(e.namespace, keyOf(req))
}

func (e *Engine) env(now int64) *Env {
	return &Env{
		Tokens:  e.tokens,
		Debt:    e.debt,
		Lenders: e.state,
		Module:  e.module,
		Now:     now,
	}
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}
