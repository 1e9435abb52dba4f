package assets

import (
	"math/big"
	"strings"
)

type mockState struct {
	balances   map[string]*big.Int
	allowances map[string]*big.Int
	supply     map[[20]byte]*big.Int
	owners     map[string][20]byte
	approvals  map[string][20]byte
	operators  map[string]bool
}

func newMockState() *mockState {
	return &mockState{
		balances:   make(map[string]*big.Int),
		allowances: make(map[string]*big.Int),
		supply:     make(map[[20]byte]*big.Int),
		owners:     make(map[string][20]byte),
		approvals:  make(map[string][20]byte),
		operators:  make(map[string]bool),
	}
}

func key(parts ...[]byte) string {
	var b strings.Builder
	for _, p := range parts {
		b.Write(p)
		b.WriteByte('/')
	}
	return b.String()
}

func (m *mockState) TokenBalance(asset, holder [20]byte) (*big.Int, error) {
	return m.balances[key(asset[:], holder[:])], nil
}

func (m *mockState) SetTokenBalance(asset, holder [20]byte, amount *big.Int) error {
	m.balances[key(asset[:], holder[:])] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenAllowance(asset, owner, spender [20]byte) (*big.Int, error) {
	return m.allowances[key(asset[:], owner[:], spender[:])], nil
}

func (m *mockState) SetTokenAllowance(asset, owner, spender [20]byte, amount *big.Int) error {
	m.allowances[key(asset[:], owner[:], spender[:])] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) TokenSupply(asset [20]byte) (*big.Int, error) {
	return m.supply[asset], nil
}

func (m *mockState) SetTokenSupply(asset [20]byte, amount *big.Int) error {
	m.supply[asset] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) NFTOwner(contract [20]byte, id *big.Int) ([20]byte, bool, error) {
	owner, ok := m.owners[key(contract[:], id.Bytes())]
	return owner, ok, nil
}

func (m *mockState) SetNFTOwner(contract [20]byte, id *big.Int, owner [20]byte) error {
	m.owners[key(contract[:], id.Bytes())] = owner
	return nil
}

func (m *mockState) NFTApproval(contract [20]byte, id *big.Int) ([20]byte, error) {
	return m.approvals[key(contract[:], id.Bytes())], nil
}

func (m *mockState) SetNFTApproval(contract [20]byte, id *big.Int, approved [20]byte) error {
	m.approvals[key(contract[:], id.Bytes())] = approved
	return nil
}

func (m *mockState) NFTOperator(contract, owner, operator [20]byte) (bool, error) {
	return m.operators[key(contract[:], owner[:], operator[:])], nil
}

func (m *mockState) SetNFTOperator(contract, owner, operator [20]byte, approved bool) error {
	m.operators[key(contract[:], owner[:], operator[:])] = approved
	return nil
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}
