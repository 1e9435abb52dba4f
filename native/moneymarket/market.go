package moneymarket

import (
	"errors"
	"math/big"
	"time"

	"nftlend/core/events"
	nativecommon "nftlend/native/common"
)

var (
	ErrBorrowAllowance        = errors.New("moneymarket: borrow allowance not sufficient")
	ErrInsufficientCollateral = errors.New("moneymarket: insufficient collateral")
	ErrInsufficientLiquidity  = errors.New("moneymarket: insufficient liquidity")
	ErrNoDebt                 = errors.New("moneymarket: no debt of selected type")
	ErrReserveInactive        = errors.New("moneymarket: reserve not active")
	ErrInvalidAmount          = errors.New("moneymarket: amount must be positive")
	ErrInvalidRateMode        = errors.New("moneymarket: invalid interest rate mode")
	ErrWithdrawExceedsBalance = errors.New("moneymarket: withdraw amount exceeds balance")
	ErrDebtLocked             = errors.New("moneymarket: debt reserved by an active delegated loan")

	errNilState  = errors.New("moneymarket: state not configured")
	errNilTokens = errors.New("moneymarket: token ledger not configured")
)

const moduleName = "moneymarket"

const defaultMaxLTVBps = 7_500

type engineState interface {
	GetReserve(asset [20]byte) (*Reserve, error)
	PutReserve(asset [20]byte, reserve *Reserve) error
	GetPosition(asset, account [20]byte) (*Position, error)
	PutPosition(asset, account [20]byte, position *Position) error
	GetDelegation(asset [20]byte, mode RateMode, delegator, delegatee [20]byte) (*big.Int, error)
	PutDelegation(asset [20]byte, mode RateMode, delegator, delegatee [20]byte, amount *big.Int) error
}

// TokenLedger moves the underlying assets in and out of the pool account.
type TokenLedger interface {
	BalanceOf(asset, holder [20]byte) (*big.Int, error)
	Transfer(asset, from, to [20]byte, amount *big.Int) error
	TransferFrom(asset, spender, from, to [20]byte, amount *big.Int) error
}

// DebtLocks reports whether an account's debt in an asset and rate mode is
// reserved by a delegated loan.
type DebtLocks interface {
	DebtLocked(account, asset [20]byte, mode RateMode) (bool, error)
}

// Market is a pooled money market with per-asset reserves, index based
// interest accrual and credit delegation. Debt is always attributed to the
// account borrowed on behalf of, never to the delegatee that initiated it.
type Market struct {
	state   engineState
	tokens  TokenLedger
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64

	locks       DebtLocks
	lockHolders map[[20]byte]struct{}

	pool   [20]byte
	params Params
	model  *InterestModel
	listed map[[20]byte]struct{}
}

// NewMarket constructs a market custodying liquidity in the pool account.
func NewMarket(pool [20]byte, params Params) *Market {
	m := &Market{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		pool:    pool,
		params:  params,
		listed:  make(map[[20]byte]struct{}, len(params.Assets)),
	}
	if m.params.MaxLTVBps == 0 {
		m.params.MaxLTVBps = defaultMaxLTVBps
	}
	if params.Interest != nil {
		m.model = params.Interest.Clone()
	} else {
		m.model = DefaultInterestModel.Clone()
	}
	for _, asset := range params.Assets {
		m.listed[asset] = struct{}{}
	}
	return m
}

// SetState wires the market to the external persistence layer.
func (m *Market) SetState(state engineState) { m.state = state }

// SetTokens configures the ledger used to move underlying assets.
func (m *Market) SetTokens(tokens TokenLedger) { m.tokens = tokens }

// SetPauses configures the module pause view consulted before every write.
func (m *Market) SetPauses(p nativecommon.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
}

// SetDebtLocks refuses new borrows against locked debt unless the caller is
// one of holders, the accounts that own the locks.
func (m *Market) SetDebtLocks(locks DebtLocks, holders ...[20]byte) {
	m.locks = locks
	m.lockHolders = make(map[[20]byte]struct{}, len(holders))
	for _, holder := range holders {
		m.lockHolders[holder] = struct{}{}
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (m *Market) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

// SetNowFunc overrides the time source used for accrual.
func (m *Market) SetNowFunc(now func() int64) {
	if now == nil {
		m.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	m.nowFn = now
}

func (m *Market) checkDebtLock(asset [20]byte, mode RateMode, caller, onBehalfOf [20]byte) error {
	if m.locks == nil {
		return nil
	}
	if _, ok := m.lockHolders[caller]; ok {
		return nil
	}
	locked, err := m.locks.DebtLocked(onBehalfOf, asset, mode)
	if err != nil {
		return err
	}
	if locked {
		return ErrDebtLocked
	}
	return nil
}

// Pool returns the account holding the market's liquidity.
func (m *Market) Pool() [20]byte { return m.pool }

// Listed reports whether the asset has an active reserve.
func (m *Market) Listed(asset [20]byte) bool {
	_, ok := m.listed[asset]
	return ok
}

// Deposit pulls amount from `from` (which must have approved the pool) and
// credits the deposit to onBehalfOf.
func (m *Market) Deposit(asset [20]byte, amount *big.Int, from, onBehalfOf [20]byte) error {
	if err := m.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	reserve, err := m.loadReserve(asset)
	if err != nil {
		return err
	}
	position, err := m.loadPosition(asset, onBehalfOf)
	if err != nil {
		return err
	}

	scaled := sharesFromLiquidity(amount, reserve.LiquidityIndex)
	position.ScaledDeposit = new(big.Int).Add(position.ScaledDeposit, scaled)
	reserve.ScaledDeposits = new(big.Int).Add(reserve.ScaledDeposits, scaled)
	if err := m.persist(asset, onBehalfOf, reserve, position); err != nil {
		return err
	}
	if err := m.tokens.TransferFrom(asset, m.pool, from, m.pool, amount); err != nil {
		return err
	}
	m.emit(newMarketEvent(EventTypeDeposit, asset, from, onBehalfOf, RateModeNone, amount))
	return nil
}

// Withdraw redeems up to the account's deposit balance to `to`. Passing
// MaxUint256 withdraws everything. The remaining deposit must still cover the
// account's debt at the configured LTV.
func (m *Market) Withdraw(asset [20]byte, amount *big.Int, account, to [20]byte) (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	reserve, err := m.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	position, err := m.loadPosition(asset, account)
	if err != nil {
		return nil, err
	}

	balance := liquidityFromShares(position.ScaledDeposit, reserve.LiquidityIndex)
	withdrawAll := amount.Cmp(MaxUint256) == 0 || amount.Cmp(balance) == 0
	if withdrawAll {
		amount = balance
	}
	if amount.Sign() == 0 || amount.Cmp(balance) > 0 {
		return nil, ErrWithdrawExceedsBalance
	}
	burn := sharesFromLiquidity(amount, reserve.LiquidityIndex)
	if withdrawAll || burn.Cmp(position.ScaledDeposit) > 0 {
		burn = new(big.Int).Set(position.ScaledDeposit)
	}

	remaining := new(big.Int).Sub(balance, amount)
	if !m.covers(remaining, m.totalDebt(reserve, position), nil) {
		return nil, ErrInsufficientCollateral
	}
	if err := m.ensureLiquidity(asset, amount); err != nil {
		return nil, err
	}

	position.ScaledDeposit = new(big.Int).Sub(position.ScaledDeposit, burn)
	reserve.ScaledDeposits = subFloor(reserve.ScaledDeposits, burn)
	if err := m.persist(asset, account, reserve, position); err != nil {
		return nil, err
	}
	if err := m.tokens.Transfer(asset, m.pool, to, amount); err != nil {
		return nil, err
	}
	m.emit(newMarketEvent(EventTypeWithdraw, asset, account, to, RateModeNone, amount))
	return new(big.Int).Set(amount), nil
}

// ApproveDelegation lets delegatee borrow up to amount in the given mode with
// the debt recorded against delegator. MaxUint256 grants an unlimited line.
func (m *Market) ApproveDelegation(asset [20]byte, mode RateMode, delegator, delegatee [20]byte, amount *big.Int) error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(m.pauses, moduleName); err != nil {
		return err
	}
	if !mode.Valid() {
		return ErrInvalidRateMode
	}
	if !m.Listed(asset) {
		return ErrReserveInactive
	}
	if amount == nil || amount.Sign() < 0 || amount.BitLen() > 256 {
		return ErrInvalidAmount
	}
	if err := m.state.PutDelegation(asset, mode, delegator, delegatee, amount); err != nil {
		return err
	}
	m.emit(newMarketEvent(EventTypeDelegation, asset, delegator, delegatee, mode, amount))
	return nil
}

// BorrowAllowance returns the remaining delegated credit line.
func (m *Market) BorrowAllowance(asset [20]byte, mode RateMode, delegator, delegatee [20]byte) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	if !mode.Valid() {
		return nil, ErrInvalidRateMode
	}
	allowance, err := m.state.GetDelegation(asset, mode, delegator, delegatee)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(allowance), nil
}

// Borrow draws amount from the reserve and sends it to recipient. When caller
// differs from onBehalfOf the delegated allowance is consumed and the debt is
// recorded against onBehalfOf.
func (m *Market) Borrow(asset [20]byte, amount *big.Int, mode RateMode, caller, onBehalfOf, recipient [20]byte) error {
	if err := m.ready(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if !mode.Valid() {
		return ErrInvalidRateMode
	}
	if err := m.checkDebtLock(asset, mode, caller, onBehalfOf); err != nil {
		return err
	}
	reserve, err := m.loadReserve(asset)
	if err != nil {
		return err
	}
	position, err := m.loadPosition(asset, onBehalfOf)
	if err != nil {
		return err
	}

	if caller != onBehalfOf {
		allowance, err := m.BorrowAllowance(asset, mode, onBehalfOf, caller)
		if err != nil {
			return err
		}
		if allowance.Cmp(amount) < 0 {
			return ErrBorrowAllowance
		}
		if allowance.Cmp(MaxUint256) != 0 {
			if err := m.state.PutDelegation(asset, mode, onBehalfOf, caller, new(big.Int).Sub(allowance, amount)); err != nil {
				return err
			}
		}
	}

	deposit := liquidityFromShares(position.ScaledDeposit, reserve.LiquidityIndex)
	if !m.covers(deposit, m.totalDebt(reserve, position), amount) {
		return ErrInsufficientCollateral
	}
	if err := m.ensureLiquidity(asset, amount); err != nil {
		return err
	}

	now := m.now()
	switch mode {
	case RateModeVariable:
		scaled := scaledDebtFromAmount(amount, reserve.VariableBorrowIndex)
		position.ScaledVariableDebt = new(big.Int).Add(position.ScaledVariableDebt, scaled)
		reserve.ScaledVariableDebt = new(big.Int).Add(reserve.ScaledVariableDebt, scaled)
	case RateModeStable:
		current := stableBalance(position, now)
		rate := ratToRay(m.model.StableAPR(m.reserveDebt(reserve), m.reserveDeposits(reserve), m.params.StablePremiumBps))
		next := new(big.Int).Add(current, amount)
		weighted := new(big.Int).Mul(current, position.StableRate)
		weighted.Add(weighted, new(big.Int).Mul(amount, rate))
		reserve.TotalStableDebt = new(big.Int).Add(subFloor(reserve.TotalStableDebt, position.StablePrincipal), next)
		position.StableRate = weighted.Quo(weighted, next)
		position.StablePrincipal = next
		position.StableUpdated = now
	}
	if err := m.persist(asset, onBehalfOf, reserve, position); err != nil {
		return err
	}
	if err := m.tokens.Transfer(asset, m.pool, recipient, amount); err != nil {
		return err
	}
	m.emit(newMarketEvent(EventTypeBorrow, asset, caller, onBehalfOf, mode, amount))
	return nil
}

// Repay pulls up to the outstanding debt of the selected mode from payer and
// reduces onBehalfOf's debt. Amounts above the debt, including MaxUint256,
// repay exactly the debt. The repaid amount is returned.
func (m *Market) Repay(asset [20]byte, amount *big.Int, mode RateMode, payer, onBehalfOf [20]byte) (*big.Int, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	if !mode.Valid() {
		return nil, ErrInvalidRateMode
	}
	reserve, err := m.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	position, err := m.loadPosition(asset, onBehalfOf)
	if err != nil {
		return nil, err
	}

	now := m.now()
	debt := m.modeDebt(reserve, position, mode, now)
	if debt.Sign() == 0 {
		return nil, ErrNoDebt
	}
	paid := minBig(amount, debt)

	switch mode {
	case RateModeVariable:
		burn := new(big.Int).Set(position.ScaledVariableDebt)
		if paid.Cmp(debt) < 0 {
			burn = minBig(scaledDebtFromAmount(paid, reserve.VariableBorrowIndex), position.ScaledVariableDebt)
		}
		position.ScaledVariableDebt = new(big.Int).Sub(position.ScaledVariableDebt, burn)
		reserve.ScaledVariableDebt = subFloor(reserve.ScaledVariableDebt, burn)
	case RateModeStable:
		left := new(big.Int).Sub(debt, paid)
		reserve.TotalStableDebt = new(big.Int).Add(subFloor(reserve.TotalStableDebt, position.StablePrincipal), left)
		position.StablePrincipal = left
		position.StableUpdated = now
		if left.Sign() == 0 {
			position.StableRate = big.NewInt(0)
		}
	}
	if err := m.persist(asset, onBehalfOf, reserve, position); err != nil {
		return nil, err
	}
	if err := m.tokens.TransferFrom(asset, m.pool, payer, m.pool, paid); err != nil {
		return nil, err
	}
	m.emit(newMarketEvent(EventTypeRepay, asset, payer, onBehalfOf, mode, paid))
	return paid, nil
}

// DebtBalance returns the interest-inclusive debt of account in the given
// mode as of now. Reads never persist accrual.
func (m *Market) DebtBalance(asset [20]byte, mode RateMode, account [20]byte) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	if !mode.Valid() {
		return nil, ErrInvalidRateMode
	}
	reserve, err := m.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	position, err := m.loadPosition(asset, account)
	if err != nil {
		return nil, err
	}
	return m.modeDebt(reserve, position, mode, m.now()), nil
}

// DepositBalance returns the interest-inclusive deposit of account.
func (m *Market) DepositBalance(asset, account [20]byte) (*big.Int, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	reserve, err := m.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	position, err := m.loadPosition(asset, account)
	if err != nil {
		return nil, err
	}
	return liquidityFromShares(position.ScaledDeposit, reserve.LiquidityIndex), nil
}

// CurrentRates reports the reserve's instantaneous rates.
func (m *Market) CurrentRates(asset [20]byte) (*Rates, error) {
	if m == nil || m.state == nil {
		return nil, errNilState
	}
	reserve, err := m.loadReserve(asset)
	if err != nil {
		return nil, err
	}
	debt := m.reserveDebt(reserve)
	deposits := m.reserveDeposits(reserve)
	return &Rates{
		Utilisation:       m.model.Utilisation(debt, deposits),
		VariableBorrowAPR: m.model.BorrowAPR(debt, deposits),
		StableBorrowAPR:   m.model.StableAPR(debt, deposits, m.params.StablePremiumBps),
		SupplyAPY:         m.model.SupplyAPY(debt, deposits, m.params.ReserveFactorBps),
	}, nil
}

func (m *Market) ready() error {
	if m == nil || m.state == nil {
		return errNilState
	}
	if m.tokens == nil {
		return errNilTokens
	}
	return nativecommon.Guard(m.pauses, moduleName)
}

// loadReserve returns the reserve accrued up to now. The result is only
// written back by mutating operations.
func (m *Market) loadReserve(asset [20]byte) (*Reserve, error) {
	if !m.Listed(asset) {
		return nil, ErrReserveInactive
	}
	stored, err := m.state.GetReserve(asset)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = &Reserve{}
	}
	reserve := stored.Clone()
	if reserve.LiquidityIndex.Sign() == 0 {
		reserve.LiquidityIndex = new(big.Int).Set(ray)
	}
	if reserve.VariableBorrowIndex.Sign() == 0 {
		reserve.VariableBorrowIndex = new(big.Int).Set(ray)
	}
	now := m.now()
	if reserve.LastUpdate == 0 {
		reserve.LastUpdate = now
	}
	m.accrue(reserve, now)
	return reserve, nil
}

func (m *Market) accrue(reserve *Reserve, now int64) {
	if now <= reserve.LastUpdate {
		return
	}
	delta := uint64(now - reserve.LastUpdate)
	debt := m.reserveDebt(reserve)
	deposits := m.reserveDeposits(reserve)

	if reserve.ScaledVariableDebt.Sign() > 0 {
		borrowAPR := m.model.BorrowAPR(debt, deposits)
		reserve.VariableBorrowIndex = rayMul(reserve.VariableBorrowIndex, rateFactor(borrowAPR, delta))
	}
	if reserve.ScaledDeposits.Sign() > 0 {
		supplyAPY := m.model.SupplyAPY(debt, deposits, m.params.ReserveFactorBps)
		reserve.LiquidityIndex = rayMul(reserve.LiquidityIndex, rateFactor(supplyAPY, delta))
	}
	reserve.LastUpdate = now
}

func (m *Market) loadPosition(asset, account [20]byte) (*Position, error) {
	stored, err := m.state.GetPosition(asset, account)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = &Position{}
	}
	return stored.Clone(), nil
}

func (m *Market) persist(asset, account [20]byte, reserve *Reserve, position *Position) error {
	if err := m.state.PutReserve(asset, reserve); err != nil {
		return err
	}
	return m.state.PutPosition(asset, account, position)
}

func (m *Market) reserveDebt(reserve *Reserve) *big.Int {
	variable := debtFromScaled(reserve.ScaledVariableDebt, reserve.VariableBorrowIndex)
	return variable.Add(variable, cloneBigInt(reserve.TotalStableDebt))
}

func (m *Market) reserveDeposits(reserve *Reserve) *big.Int {
	return liquidityFromShares(reserve.ScaledDeposits, reserve.LiquidityIndex)
}

func (m *Market) modeDebt(reserve *Reserve, position *Position, mode RateMode, now int64) *big.Int {
	if mode == RateModeStable {
		return stableBalance(position, now)
	}
	return debtFromScaled(position.ScaledVariableDebt, reserve.VariableBorrowIndex)
}

func (m *Market) totalDebt(reserve *Reserve, position *Position) *big.Int {
	total := debtFromScaled(position.ScaledVariableDebt, reserve.VariableBorrowIndex)
	return total.Add(total, stableBalance(position, m.now()))
}

// covers reports whether deposit*LTV still backs debt plus the optional extra
// amount.
func (m *Market) covers(deposit, debt, extra *big.Int) bool {
	required := new(big.Int).Set(debt)
	if extra != nil {
		required.Add(required, extra)
	}
	if required.Sign() == 0 {
		return true
	}
	limit := new(big.Int).Mul(deposit, new(big.Int).SetUint64(m.params.MaxLTVBps))
	return limit.Cmp(new(big.Int).Mul(required, basisPoints)) >= 0
}

func (m *Market) ensureLiquidity(asset [20]byte, amount *big.Int) error {
	available, err := m.tokens.BalanceOf(asset, m.pool)
	if err != nil {
		return err
	}
	if available.Cmp(amount) < 0 {
		return ErrInsufficientLiquidity
	}
	return nil
}

func (m *Market) now() int64 {
	if m == nil || m.nowFn == nil {
		return time.Now().Unix()
	}
	return m.nowFn()
}

func (m *Market) emit(evt events.Event) {
	if m == nil || m.emitter == nil {
		return
	}
	m.emitter.Emit(evt)
}

func stableBalance(position *Position, now int64) *big.Int {
	if position == nil || position.StablePrincipal.Sign() == 0 {
		return big.NewInt(0)
	}
	if now <= position.StableUpdated {
		return new(big.Int).Set(position.StablePrincipal)
	}
	factor := rateFactor(rayToRat(position.StableRate), uint64(now-position.StableUpdated))
	return rayMul(position.StablePrincipal, factor)
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 || amount.BitLen() > 256 {
		return ErrInvalidAmount
	}
	return nil
}
