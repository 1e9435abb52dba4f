package moneymarket

import (
	"errors"
	"math/big"
	"testing"
)

type mockState struct {
	reserves    map[[20]byte]*Reserve
	positions   map[[40]byte]*Position
	delegations map[string]*big.Int
}

func newMockState() *mockState {
	return &mockState{
		reserves:    make(map[[20]byte]*Reserve),
		positions:   make(map[[40]byte]*Position),
		delegations: make(map[string]*big.Int),
	}
}

func positionKey(asset, account [20]byte) [40]byte {
	var k [40]byte
	copy(k[:20], asset[:])
	copy(k[20:], account[:])
	return k
}

func (m *mockState) GetReserve(asset [20]byte) (*Reserve, error) { return m.reserves[asset], nil }

func (m *mockState) PutReserve(asset [20]byte, r *Reserve) error {
	m.reserves[asset] = r.Clone()
	return nil
}

func (m *mockState) GetPosition(asset, account [20]byte) (*Position, error) {
	return m.positions[positionKey(asset, account)], nil
}

func (m *mockState) PutPosition(asset, account [20]byte, p *Position) error {
	m.positions[positionKey(asset, account)] = p.Clone()
	return nil
}

func delegationKey(asset [20]byte, mode RateMode, delegator, delegatee [20]byte) string {
	return string(asset[:]) + string([]byte{byte(mode)}) + string(delegator[:]) + string(delegatee[:])
}

func (m *mockState) GetDelegation(asset [20]byte, mode RateMode, delegator, delegatee [20]byte) (*big.Int, error) {
	return m.delegations[delegationKey(asset, mode, delegator, delegatee)], nil
}

func (m *mockState) PutDelegation(asset [20]byte, mode RateMode, delegator, delegatee [20]byte, amount *big.Int) error {
	m.delegations[delegationKey(asset, mode, delegator, delegatee)] = new(big.Int).Set(amount)
	return nil
}

// mockTokens ignores allowances; the pool is trusted to pull.
type mockTokens struct {
	balances map[[40]byte]*big.Int
}

func newMockTokens() *mockTokens {
	return &mockTokens{balances: make(map[[40]byte]*big.Int)}
}

func (t *mockTokens) BalanceOf(asset, holder [20]byte) (*big.Int, error) {
	if bal, ok := t.balances[positionKey(asset, holder)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (t *mockTokens) Transfer(asset, from, to [20]byte, amount *big.Int) error {
	fromBal, _ := t.BalanceOf(asset, from)
	if fromBal.Cmp(amount) < 0 {
		return errors.New("token: transfer amount exceeds balance")
	}
	toBal, _ := t.BalanceOf(asset, to)
	t.balances[positionKey(asset, from)] = fromBal.Sub(fromBal, amount)
	t.balances[positionKey(asset, to)] = toBal.Add(toBal, amount)
	return nil
}

func (t *mockTokens) TransferFrom(asset, _, from, to [20]byte, amount *big.Int) error {
	return t.Transfer(asset, from, to, amount)
}

func (t *mockTokens) mint(asset, to [20]byte, amount *big.Int) {
	bal, _ := t.BalanceOf(asset, to)
	t.balances[positionKey(asset, to)] = bal.Add(bal, amount)
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

type fixture struct {
	market *Market
	tokens *mockTokens
	now    int64
	asset  [20]byte
	pool   [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{tokens: newMockTokens(), now: 1_700_000_000, asset: addr(0xAA), pool: addr(0xFE)}
	f.market = NewMarket(f.pool, Params{
		MaxLTVBps:        8_000,
		ReserveFactorBps: 1_000,
		StablePremiumBps: 200,
		Assets:           [][20]byte{f.asset},
	})
	f.market.SetState(newMockState())
	f.market.SetTokens(f.tokens)
	f.market.SetNowFunc(func() int64 { return f.now })
	return f
}

func TestDelegatedVariableBorrowAccruesAgainstDelegator(t *testing.T) {
	f := newFixture(t)
	lender, module, borrower := addr(1), addr(2), addr(3)
	f.tokens.mint(f.asset, lender, ether(10))

	if err := f.market.Deposit(f.asset, ether(10), lender, lender); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(1), RateModeVariable, module, lender, borrower); !errors.Is(err, ErrBorrowAllowance) {
		t.Fatalf("expected ErrBorrowAllowance without delegation, got %v", err)
	}
	if err := f.market.ApproveDelegation(f.asset, RateModeVariable, lender, module, MaxUint256); err != nil {
		t.Fatalf("approve delegation: %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(1), RateModeVariable, module, lender, borrower); err != nil {
		t.Fatalf("borrow: %v", err)
	}

	got, _ := f.tokens.BalanceOf(f.asset, borrower)
	if got.Cmp(ether(1)) != 0 {
		t.Fatalf("borrower should receive principal, got %s", got)
	}
	allowance, _ := f.market.BorrowAllowance(f.asset, RateModeVariable, lender, module)
	if allowance.Cmp(MaxUint256) != 0 {
		t.Fatalf("unlimited delegation must not be decremented")
	}
	moduleDebt, _ := f.market.DebtBalance(f.asset, RateModeVariable, module)
	if moduleDebt.Sign() != 0 {
		t.Fatalf("delegatee must not carry debt, got %s", moduleDebt)
	}

	before, _ := f.market.DebtBalance(f.asset, RateModeVariable, lender)
	if before.Cmp(ether(1)) != 0 {
		t.Fatalf("expected initial debt of 1 ether, got %s", before)
	}
	f.now++
	after, _ := f.market.DebtBalance(f.asset, RateModeVariable, lender)
	if after.Cmp(before) <= 0 {
		t.Fatalf("expected debt to grow after one second: before %s after %s", before, after)
	}

	deposit, _ := f.market.DepositBalance(f.asset, lender)
	if deposit.Cmp(ether(10)) <= 0 {
		t.Fatalf("expected lender deposit to earn interest, got %s", deposit)
	}
}

func TestLimitedDelegationIsConsumed(t *testing.T) {
	f := newFixture(t)
	lender, module, borrower := addr(1), addr(2), addr(3)
	f.tokens.mint(f.asset, lender, ether(10))
	if err := f.market.Deposit(f.asset, ether(10), lender, lender); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.market.ApproveDelegation(f.asset, RateModeStable, lender, module, ether(3)); err != nil {
		t.Fatalf("approve delegation: %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(1), RateModeVariable, module, lender, borrower); !errors.Is(err, ErrBorrowAllowance) {
		t.Fatalf("delegations are per rate mode, got %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(2), RateModeStable, module, lender, borrower); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	left, _ := f.market.BorrowAllowance(f.asset, RateModeStable, lender, module)
	if left.Cmp(ether(1)) != 0 {
		t.Fatalf("expected remaining allowance of 1 ether, got %s", left)
	}
	if err := f.market.Borrow(f.asset, ether(2), RateModeStable, module, lender, borrower); !errors.Is(err, ErrBorrowAllowance) {
		t.Fatalf("expected ErrBorrowAllowance, got %v", err)
	}
}

func TestBorrowRespectsCollateralAndLiquidity(t *testing.T) {
	f := newFixture(t)
	lender, other := addr(1), addr(4)
	f.tokens.mint(f.asset, lender, ether(10))
	if err := f.market.Deposit(f.asset, ether(10), lender, lender); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(9), RateModeVariable, lender, lender, lender); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(1), RateModeVariable, other, other, other); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral for empty account, got %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(8), RateModeVariable, lender, lender, lender); err != nil {
		t.Fatalf("borrow at LTV: %v", err)
	}
	if _, err := f.market.Withdraw(f.asset, ether(1), lender, lender); !errors.Is(err, ErrInsufficientCollateral) {
		t.Fatalf("expected withdraw to be blocked by debt, got %v", err)
	}
}

func TestRepayAllAndNoDebt(t *testing.T) {
	f := newFixture(t)
	lender, payer := addr(1), addr(5)
	f.tokens.mint(f.asset, lender, ether(10))
	f.tokens.mint(f.asset, payer, ether(5))
	if err := f.market.Deposit(f.asset, ether(10), lender, lender); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(2), RateModeVariable, lender, lender, lender); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	f.now += 3600

	if _, err := f.market.Repay(f.asset, ether(1), RateModeStable, payer, lender); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("expected ErrNoDebt for stable mode, got %v", err)
	}
	debt, _ := f.market.DebtBalance(f.asset, RateModeVariable, lender)
	paid, err := f.market.Repay(f.asset, MaxUint256, RateModeVariable, payer, lender)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if paid.Cmp(debt) != 0 {
		t.Fatalf("repay-all must pay exactly the debt: paid %s debt %s", paid, debt)
	}
	remaining, _ := f.market.DebtBalance(f.asset, RateModeVariable, lender)
	if remaining.Sign() != 0 {
		t.Fatalf("expected zero debt, got %s", remaining)
	}
	if _, err := f.market.Repay(f.asset, ether(1), RateModeVariable, payer, lender); !errors.Is(err, ErrNoDebt) {
		t.Fatalf("expected ErrNoDebt, got %v", err)
	}
}

func TestStableDebtAccruesAtSnapshotRate(t *testing.T) {
	f := newFixture(t)
	lender := addr(1)
	f.tokens.mint(f.asset, lender, ether(10))
	if err := f.market.Deposit(f.asset, ether(10), lender, lender); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.market.Borrow(f.asset, ether(1), RateModeStable, lender, lender, lender); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	before, _ := f.market.DebtBalance(f.asset, RateModeStable, lender)
	f.now += 10
	after, _ := f.market.DebtBalance(f.asset, RateModeStable, lender)
	if after.Cmp(before) <= 0 {
		t.Fatalf("stable debt must accrue: before %s after %s", before, after)
	}

	paid, err := f.market.Repay(f.asset, ether(1), RateModeStable, lender, lender)
	if err != nil {
		t.Fatalf("partial repay: %v", err)
	}
	if paid.Cmp(ether(1)) != 0 {
		t.Fatalf("unexpected paid amount %s", paid)
	}
	left, _ := f.market.DebtBalance(f.asset, RateModeStable, lender)
	if left.Sign() <= 0 || left.Cmp(new(big.Int).Sub(after, ether(1))) != 0 {
		t.Fatalf("expected accrued interest to remain, got %s", left)
	}

	rates, err := f.market.CurrentRates(f.asset)
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if rates.StableBorrowAPR.Cmp(rates.VariableBorrowAPR) <= 0 {
		t.Fatalf("stable APR must include the premium")
	}
}

func TestUnlistedReserve(t *testing.T) {
	f := newFixture(t)
	if err := f.market.Deposit(addr(0x99), ether(1), addr(1), addr(1)); !errors.Is(err, ErrReserveInactive) {
		t.Fatalf("expected ErrReserveInactive, got %v", err)
	}
	if _, err := f.market.DebtBalance(addr(0x99), RateModeVariable, addr(1)); !errors.Is(err, ErrReserveInactive) {
		t.Fatalf("expected ErrReserveInactive, got %v", err)
	}
	if err := f.market.ApproveDelegation(f.asset, RateModeNone, addr(1), addr(2), ether(1)); !errors.Is(err, ErrInvalidRateMode) {
		t.Fatalf("expected ErrInvalidRateMode, got %v", err)
	}
}

func TestParseRateMode(t *testing.T) {
	cases := map[string]RateMode{"1": RateModeStable, "stable": RateModeStable, "2": RateModeVariable, " Variable ": RateModeVariable, "": RateModeNone}
	for input, want := range cases {
		got, err := ParseRateMode(input)
		if err != nil || got != want {
			t.Fatalf("ParseRateMode(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseRateMode("3"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
