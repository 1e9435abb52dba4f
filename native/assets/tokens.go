package assets

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"nftlend/core/events"
)

var (
	ErrInsufficientBalance   = errors.New("token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("token: transfer amount exceeds allowance")
	ErrAmountTooLarge        = errors.New("token: amount exceeds 256 bits")
	ErrNegativeAmount        = errors.New("token: negative amount")
	ErrZeroAddress           = errors.New("token: zero address")
	ErrSupplyOverflow        = errors.New("token: total supply overflow")

	errNilTokenState = errors.New("token ledger: state not configured")
)

// MaxUint256 is the unlimited allowance sentinel. Allowances equal to it are
// never decremented by TransferFrom.
var MaxUint256 = maxWord.ToBig()

var maxWord = new(uint256.Int).SetAllOne()

type tokenState interface {
	TokenBalance(asset, holder [20]byte) (*big.Int, error)
	SetTokenBalance(asset, holder [20]byte, amount *big.Int) error
	TokenAllowance(asset, owner, spender [20]byte) (*big.Int, error)
	SetTokenAllowance(asset, owner, spender [20]byte, amount *big.Int) error
	TokenSupply(asset [20]byte) (*big.Int, error)
	SetTokenSupply(asset [20]byte, amount *big.Int) error
}

// Tokens implements fungible token bookkeeping with ERC-20 semantics for every
// registered asset identifier.
type Tokens struct {
	state   tokenState
	emitter events.Emitter
}

// NewTokens creates a token ledger with a no-op emitter.
func NewTokens() *Tokens {
	return &Tokens{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (t *Tokens) SetState(state tokenState) { t.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (t *Tokens) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		t.emitter = events.NoopEmitter{}
		return
	}
	t.emitter = emitter
}

// BalanceOf returns the holder's balance of asset.
func (t *Tokens) BalanceOf(asset, holder [20]byte) (*big.Int, error) {
	if t == nil || t.state == nil {
		return nil, errNilTokenState
	}
	bal, err := t.state.TokenBalance(asset, holder)
	if err != nil {
		return nil, err
	}
	return orZero(bal), nil
}

// Allowance returns how much spender may still pull from owner.
func (t *Tokens) Allowance(asset, owner, spender [20]byte) (*big.Int, error) {
	if t == nil || t.state == nil {
		return nil, errNilTokenState
	}
	allowance, err := t.state.TokenAllowance(asset, owner, spender)
	if err != nil {
		return nil, err
	}
	return orZero(allowance), nil
}

// TotalSupply returns the minted supply of asset.
func (t *Tokens) TotalSupply(asset [20]byte) (*big.Int, error) {
	if t == nil || t.state == nil {
		return nil, errNilTokenState
	}
	supply, err := t.state.TokenSupply(asset)
	if err != nil {
		return nil, err
	}
	return orZero(supply), nil
}

// Approve sets the allowance granted by owner to spender, replacing any
// previous value.
func (t *Tokens) Approve(asset, owner, spender [20]byte, amount *big.Int) error {
	if t == nil || t.state == nil {
		return errNilTokenState
	}
	if owner == ([20]byte{}) || spender == ([20]byte{}) {
		return ErrZeroAddress
	}
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	if err := t.state.SetTokenAllowance(asset, owner, spender, value.ToBig()); err != nil {
		return err
	}
	t.emit(newApprovalEvent(asset, owner, spender, value.ToBig()))
	return nil
}

// Transfer moves amount from one holder to another.
func (t *Tokens) Transfer(asset, from, to [20]byte, amount *big.Int) error {
	if t == nil || t.state == nil {
		return errNilTokenState
	}
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	return t.move(asset, from, to, value)
}

// TransferFrom moves amount out of from on behalf of spender, consuming the
// allowance from has granted to spender.
func (t *Tokens) TransferFrom(asset, spender, from, to [20]byte, amount *big.Int) error {
	if t == nil || t.state == nil {
		return errNilTokenState
	}
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	current, err := t.Allowance(asset, from, spender)
	if err != nil {
		return err
	}
	allowance, _ := uint256.FromBig(current)
	if !allowance.Eq(maxWord) {
		remaining, underflow := new(uint256.Int).SubOverflow(allowance, value)
		if underflow {
			return ErrInsufficientAllowance
		}
		if err := t.state.SetTokenAllowance(asset, from, spender, remaining.ToBig()); err != nil {
			return err
		}
	}
	return t.move(asset, from, to, value)
}

// Mint credits freshly created units to the recipient.
func (t *Tokens) Mint(asset, to [20]byte, amount *big.Int) error {
	if t == nil || t.state == nil {
		return errNilTokenState
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	value, err := toWord(amount)
	if err != nil {
		return err
	}
	supply, err := t.TotalSupply(asset)
	if err != nil {
		return err
	}
	current, _ := uint256.FromBig(supply)
	next, overflow := new(uint256.Int).AddOverflow(current, value)
	if overflow {
		return ErrSupplyOverflow
	}
	balance, err := t.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := t.state.SetTokenSupply(asset, next.ToBig()); err != nil {
		return err
	}
	if err := t.state.SetTokenBalance(asset, to, new(big.Int).Add(balance, value.ToBig())); err != nil {
		return err
	}
	t.emit(newTransferEvent(asset, [20]byte{}, to, value.ToBig()))
	return nil
}

func (t *Tokens) move(asset, from, to [20]byte, value *uint256.Int) error {
	if from == ([20]byte{}) || to == ([20]byte{}) {
		return ErrZeroAddress
	}
	fromBal, err := t.BalanceOf(asset, from)
	if err != nil {
		return err
	}
	balance, _ := uint256.FromBig(fromBal)
	remaining, underflow := new(uint256.Int).SubOverflow(balance, value)
	if underflow {
		return ErrInsufficientBalance
	}
	if err := t.state.SetTokenBalance(asset, from, remaining.ToBig()); err != nil {
		return err
	}
	toBal, err := t.BalanceOf(asset, to)
	if err != nil {
		return err
	}
	if err := t.state.SetTokenBalance(asset, to, new(big.Int).Add(toBal, value.ToBig())); err != nil {
		return err
	}
	t.emit(newTransferEvent(asset, from, to, value.ToBig()))
	return nil
}

func (t *Tokens) emit(evt events.Event) {
	if t == nil || t.emitter == nil {
		return
	}
	t.emitter.Emit(evt)
}

func toWord(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	word, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountTooLarge
	}
	return word, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
