package loans

import (
	"fmt"
	"math/big"
	"testing"

	"nftlend/core/events"
	"nftlend/native/assets"
	nativecommon "nftlend/native/common"
	"nftlend/native/moneymarket"
)

// memState backs the engine, the asset adapters and the money market with
// plain maps.
type memState struct {
	counts     map[string]uint64
	requests   map[string]*BorrowRequest
	keys       map[string]uint64
	lenders    map[string]uint64
	quotas     map[string]nativecommon.QuotaNow
	balances   map[string]*big.Int
	allowances map[string]*big.Int
	supply     map[[20]byte]*big.Int
	owners     map[string][20]byte
	approvals  map[string][20]byte
	operators  map[string]bool
	reserves   map[[20]byte]*moneymarket.Reserve
	positions  map[string]*moneymarket.Position
	delegation map[string]*big.Int
}

func newMemState() *memState {
	return &memState{
		counts:     make(map[string]uint64),
		requests:   make(map[string]*BorrowRequest),
		keys:       make(map[string]uint64),
		lenders:    make(map[string]uint64),
		quotas:     make(map[string]nativecommon.QuotaNow),
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
		supply:     make(map[[20]byte]*big.Int),
		owners:     make(map[string][20]byte),
		approvals:  make(map[string][20]byte),
		operators:  make(map[string]bool),
		reserves:   make(map[[20]byte]*moneymarket.Reserve),
		positions:  make(map[string]*moneymarket.Position),
		delegation: make(map[string]*big.Int),
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	out := make(map[K]V, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// snapshot copies every map. Stored values are replaced on write, never
// mutated, so a shallow copy is enough.
func (m *memState) snapshot() *memState {
	return &memState{
		counts:     copyMap(m.counts),
		requests:   copyMap(m.requests),
		keys:       copyMap(m.keys),
		lenders:    copyMap(m.lenders),
		quotas:     copyMap(m.quotas),
		balances:   copyMap(m.balances),
		allowances: copyMap(m.allowances),
		supply:     copyMap(m.supply),
		owners:     copyMap(m.owners),
		approvals:  copyMap(m.approvals),
		operators:  copyMap(m.operators),
		reserves:   copyMap(m.reserves),
		positions:  copyMap(m.positions),
		delegation: copyMap(m.delegation),
	}
}

func mkey(parts ...interface{}) string { return fmt.Sprint(parts...) }

func (m *memState) LoanRequestCount(ns string) (uint64, error) { return m.counts[ns], nil }

func (m *memState) SetLoanRequestCount(ns string, count uint64) error {
	m.counts[ns] = count
	return nil
}

func (m *memState) LoanRequest(ns string, id uint64) (*BorrowRequest, bool, error) {
	req, ok := m.requests[mkey(ns, id)]
	if !ok {
		return nil, false, nil
	}
	return req.Clone(), true, nil
}

func (m *memState) PutLoanRequest(ns string, req *BorrowRequest) error {
	m.requests[mkey(ns, req.ID)] = req.Clone()
	return nil
}

func (m *memState) DeleteLoanRequest(ns string, id uint64) error {
	delete(m.requests, mkey(ns, id))
	return nil
}

func (m *memState) LoanKeyExists(ns string, key [32]byte) (bool, error) {
	_, ok := m.keys[mkey(ns, key)]
	return ok, nil
}

func (m *memState) PutLoanKey(ns string, key [32]byte, id uint64) error {
	m.keys[mkey(ns, key)] = id
	return nil
}

func (m *memState) DeleteLoanKey(ns string, key [32]byte) error {
	delete(m.keys, mkey(ns, key))
	return nil
}

func (m *memState) LoanQuota(ns string, account [20]byte) (nativecommon.QuotaNow, error) {
	return m.quotas[mkey(ns, account)], nil
}

func (m *memState) PutLoanQuota(ns string, account [20]byte, usage nativecommon.QuotaNow) error {
	m.quotas[mkey(ns, account)] = usage
	return nil
}

func (m *memState) LenderLoan(lender, asset [20]byte, mode moneymarket.RateMode) (uint64, bool, error) {
	id, ok := m.lenders[mkey(lender, asset, mode)]
	return id, ok, nil
}

func (m *memState) PutLenderLoan(lender, asset [20]byte, mode moneymarket.RateMode, id uint64) error {
	m.lenders[mkey(lender, asset, mode)] = id
	return nil
}

func (m *memState) DeleteLenderLoan(lender, asset [20]byte, mode moneymarket.RateMode) error {
	delete(m.lenders, mkey(lender, asset, mode))
	return nil
}

func (m *memState) DebtLocked(account, asset [20]byte, mode moneymarket.RateMode) (bool, error) {
	_, ok := m.lenders[mkey(account, asset, mode)]
	return ok, nil
}

func (m *memState) TokenBalance(asset, holder [20]byte) (*big.Int, error) {
	return m.balances[mkey(asset, holder)], nil
}

func (m *memState) SetTokenBalance(asset, holder [20]byte, amount *big.Int) error {
	m.balances[mkey(asset, holder)] = new(big.Int).Set(amount)
	return nil
}

func (m *memState) TokenAllowance(asset, owner, spender [20]byte) (*big.Int, error) {
	return m.allowances[mkey(asset, owner, spender)], nil
}

func (m *memState) SetTokenAllowance(asset, owner, spender [20]byte, amount *big.Int) error {
	m.allowances[mkey(asset, owner, spender)] = new(big.Int).Set(amount)
	return nil
}

func (m *memState) TokenSupply(asset [20]byte) (*big.Int, error) { return m.supply[asset], nil }

func (m *memState) SetTokenSupply(asset [20]byte, amount *big.Int) error {
	m.supply[asset] = new(big.Int).Set(amount)
	return nil
}

func (m *memState) NFTOwner(contract [20]byte, id *big.Int) ([20]byte, bool, error) {
	owner, ok := m.owners[mkey(contract, id)]
	return owner, ok, nil
}

func (m *memState) SetNFTOwner(contract [20]byte, id *big.Int, owner [20]byte) error {
	m.owners[mkey(contract, id)] = owner
	return nil
}

func (m *memState) NFTApproval(contract [20]byte, id *big.Int) ([20]byte, error) {
	return m.approvals[mkey(contract, id)], nil
}

func (m *memState) SetNFTApproval(contract [20]byte, id *big.Int, approved [20]byte) error {
	m.approvals[mkey(contract, id)] = approved
	return nil
}

func (m *memState) NFTOperator(contract, owner, operator [20]byte) (bool, error) {
	return m.operators[mkey(contract, owner, operator)], nil
}

func (m *memState) SetNFTOperator(contract, owner, operator [20]byte, approved bool) error {
	m.operators[mkey(contract, owner, operator)] = approved
	return nil
}

func (m *memState) GetReserve(asset [20]byte) (*moneymarket.Reserve, error) {
	return m.reserves[asset].Clone(), nil
}

func (m *memState) PutReserve(asset [20]byte, r *moneymarket.Reserve) error {
	m.reserves[asset] = r.Clone()
	return nil
}

func (m *memState) GetPosition(asset, account [20]byte) (*moneymarket.Position, error) {
	return m.positions[mkey(asset, account)].Clone(), nil
}

func (m *memState) PutPosition(asset, account [20]byte, p *moneymarket.Position) error {
	m.positions[mkey(asset, account)] = p.Clone()
	return nil
}

func (m *memState) GetDelegation(asset [20]byte, mode moneymarket.RateMode, delegator, delegatee [20]byte) (*big.Int, error) {
	return m.delegation[mkey(asset, mode, delegator, delegatee)], nil
}

func (m *memState) PutDelegation(asset [20]byte, mode moneymarket.RateMode, delegator, delegatee [20]byte, amount *big.Int) error {
	m.delegation[mkey(asset, mode, delegator, delegatee)] = new(big.Int).Set(amount)
	return nil
}

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt events.Event) { r.types = append(r.types, evt.EventType()) }

func (r *recordingEmitter) last() string {
	if len(r.types) == 0 {
		return ""
	}
	return r.types[len(r.types)-1]
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = 0x10
	out[19] = b
	return out
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func etherFrac(num, den int64) *big.Int {
	v := ether(num)
	return v.Quo(v, big.NewInt(den))
}

var (
	borrower   = addr(0x01)
	lender     = addr(0x02)
	stranger   = addr(0x03)
	moduleAddr = addr(0xF0)
	poolAddr   = addr(0xF1)
	weth       = addr(0xA1)
	nftAddr    = addr(0xC1)
)

type harness struct {
	t       *testing.T
	state   *memState
	tokens  *assets.Tokens
	nfts    *assets.Collectibles
	market  *moneymarket.Market
	engine  *Engine
	events  *recordingEmitter
	now     int64
	variant Variant
}

func newHarness(t *testing.T, variant Variant) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		state:   newMemState(),
		tokens:  assets.NewTokens(),
		nfts:    assets.NewCollectibles(),
		events:  &recordingEmitter{},
		now:     1_700_000_000,
		variant: variant,
	}
	nowFn := func() int64 { return h.now }
	h.tokens.SetState(h.state)
	h.nfts.SetState(h.state)
	h.market = moneymarket.NewMarket(poolAddr, moneymarket.Params{
		MaxLTVBps:        8_000,
		ReserveFactorBps: 1_000,
		StablePremiumBps: 200,
		Assets:           [][20]byte{weth},
	})
	h.market.SetState(h.state)
	h.market.SetTokens(h.tokens)
	h.market.SetNowFunc(nowFn)

	h.engine = NewVariantEngine(variant, moduleAddr)
	h.engine.SetState(h.state)
	h.engine.SetAssets(h.tokens, h.nfts)
	h.engine.SetDebtLedger(h.market)
	h.engine.SetEmitter(h.events)
	h.engine.SetNowFunc(nowFn)
	return h
}

// atomic runs fn and drops its writes when it fails, as the ledger does.
func (h *harness) atomic(fn func() error) error {
	saved := h.state.snapshot()
	err := fn()
	if err != nil {
		*h.state = *saved
	}
	return err
}

func (h *harness) mintNFT(owner [20]byte, id int64) {
	h.t.Helper()
	if err := h.nfts.Mint(nftAddr, owner, big.NewInt(id)); err != nil {
		h.t.Fatalf("mint nft: %v", err)
	}
}

func (h *harness) approveNFT(owner [20]byte, id int64) {
	h.t.Helper()
	if err := h.nfts.Approve(nftAddr, owner, moduleAddr, big.NewInt(id)); err != nil {
		h.t.Fatalf("approve nft: %v", err)
	}
}

func (h *harness) mintToken(to [20]byte, amount *big.Int) {
	h.t.Helper()
	if err := h.tokens.Mint(weth, to, amount); err != nil {
		h.t.Fatalf("mint token: %v", err)
	}
}

func (h *harness) approveToken(owner, spender [20]byte, amount *big.Int) {
	h.t.Helper()
	if err := h.tokens.Approve(weth, owner, spender, amount); err != nil {
		h.t.Fatalf("approve token: %v", err)
	}
}

// fundPool deposits lender liquidity and grants the engine an unlimited
// delegation in both rate modes.
func (h *harness) fundPool(amount *big.Int) {
	h.t.Helper()
	h.mintToken(lender, amount)
	h.approveToken(lender, poolAddr, amount)
	if err := h.market.Deposit(weth, amount, lender, lender); err != nil {
		h.t.Fatalf("deposit: %v", err)
	}
	for _, mode := range []moneymarket.RateMode{moneymarket.RateModeStable, moneymarket.RateModeVariable} {
		if err := h.market.ApproveDelegation(weth, mode, lender, moduleAddr, moneymarket.MaxUint256); err != nil {
			h.t.Fatalf("delegate: %v", err)
		}
	}
}

func (h *harness) params(principal, term, threshold *big.Int, duration, expiry uint64) CreateParams {
	return CreateParams{
		LoanAsset:          weth,
		CollateralContract: nftAddr,
		CollateralID:       big.NewInt(0),
		Principal:          principal,
		RepaymentTerm:      term,
		LiqThreshold:       threshold,
		Duration:           duration,
		Expiry:             expiry,
	}
}

func (h *harness) create(p CreateParams) uint64 {
	h.t.Helper()
	id, err := h.engine.CreateBorrowRequest(borrower, p)
	if err != nil {
		h.t.Fatalf("create: %v", err)
	}
	return id
}

func (h *harness) owner(id int64) [20]byte {
	h.t.Helper()
	owner, err := h.nfts.OwnerOf(nftAddr, big.NewInt(id))
	if err != nil {
		h.t.Fatalf("ownerOf: %v", err)
	}
	return owner
}

func (h *harness) balance(holder [20]byte) *big.Int {
	h.t.Helper()
	bal, err := h.tokens.BalanceOf(weth, holder)
	if err != nil {
		h.t.Fatalf("balanceOf: %v", err)
	}
	return bal
}

func expectReason(t *testing.T, err error, want string, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected kind %s, got %s", kind, got)
	}
}
