package state

import "math/big"

// TokenBalance returns the holder's balance of asset, zero when unset.
func (m *Manager) TokenBalance(asset, holder [20]byte) (*big.Int, error) {
	return m.loadBigInt(tokenBalanceKey(asset, holder))
}

func (m *Manager) SetTokenBalance(asset, holder [20]byte, amount *big.Int) error {
	return m.writeBigInt(tokenBalanceKey(asset, holder), amount)
}

func (m *Manager) TokenAllowance(asset, owner, spender [20]byte) (*big.Int, error) {
	return m.loadBigInt(tokenAllowanceKey(asset, owner, spender))
}

func (m *Manager) SetTokenAllowance(asset, owner, spender [20]byte, amount *big.Int) error {
	return m.writeBigInt(tokenAllowanceKey(asset, owner, spender), amount)
}

func (m *Manager) TokenSupply(asset [20]byte) (*big.Int, error) {
	return m.loadBigInt(tokenSupplyKey(asset))
}

func (m *Manager) SetTokenSupply(asset [20]byte, amount *big.Int) error {
	return m.writeBigInt(tokenSupplyKey(asset), amount)
}

// NFTOwner returns the owner of a collectible and whether it has been minted.
func (m *Manager) NFTOwner(contract [20]byte, id *big.Int) ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := m.KVGet(nftOwnerKey(contract, id.String()), &owner)
	if err != nil {
		return [20]byte{}, false, err
	}
	return owner, ok, nil
}

func (m *Manager) SetNFTOwner(contract [20]byte, id *big.Int, owner [20]byte) error {
	return m.KVPut(nftOwnerKey(contract, id.String()), owner)
}

// NFTApproval returns the single-token approval, the zero address when unset.
func (m *Manager) NFTApproval(contract [20]byte, id *big.Int) ([20]byte, error) {
	var approved [20]byte
	if _, err := m.KVGet(nftApprovalKey(contract, id.String()), &approved); err != nil {
		return [20]byte{}, err
	}
	return approved, nil
}

func (m *Manager) SetNFTApproval(contract [20]byte, id *big.Int, approved [20]byte) error {
	key := nftApprovalKey(contract, id.String())
	if approved == ([20]byte{}) {
		return m.KVDelete(key)
	}
	return m.KVPut(key, approved)
}

func (m *Manager) NFTOperator(contract, owner, operator [20]byte) (bool, error) {
	return m.KVHas(nftOperatorKey(contract, owner, operator))
}

func (m *Manager) SetNFTOperator(contract, owner, operator [20]byte, approved bool) error {
	key := nftOperatorKey(contract, owner, operator)
	if !approved {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}
