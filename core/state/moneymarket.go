package state

import (
	"math/big"

	"nftlend/native/moneymarket"
)

type storedReserve struct {
	LiquidityIndex      *big.Int
	VariableBorrowIndex *big.Int
	ScaledDeposits      *big.Int
	ScaledVariableDebt  *big.Int
	TotalStableDebt     *big.Int
	LastUpdate          uint64
}

func newStoredReserve(r *moneymarket.Reserve) *storedReserve {
	return &storedReserve{
		LiquidityIndex:      bigOrZero(r.LiquidityIndex),
		VariableBorrowIndex: bigOrZero(r.VariableBorrowIndex),
		ScaledDeposits:      bigOrZero(r.ScaledDeposits),
		ScaledVariableDebt:  bigOrZero(r.ScaledVariableDebt),
		TotalStableDebt:     bigOrZero(r.TotalStableDebt),
		LastUpdate:          unixToStored(r.LastUpdate),
	}
}

func (s *storedReserve) toReserve() *moneymarket.Reserve {
	return &moneymarket.Reserve{
		LiquidityIndex:      bigOrZero(s.LiquidityIndex),
		VariableBorrowIndex: bigOrZero(s.VariableBorrowIndex),
		ScaledDeposits:      bigOrZero(s.ScaledDeposits),
		ScaledVariableDebt:  bigOrZero(s.ScaledVariableDebt),
		TotalStableDebt:     bigOrZero(s.TotalStableDebt),
		LastUpdate:          storedToUnix(s.LastUpdate),
	}
}

type storedPosition struct {
	ScaledDeposit      *big.Int
	ScaledVariableDebt *big.Int
	StablePrincipal    *big.Int
	StableRate         *big.Int
	StableUpdated      uint64
}

func newStoredPosition(p *moneymarket.Position) *storedPosition {
	return &storedPosition{
		ScaledDeposit:      bigOrZero(p.ScaledDeposit),
		ScaledVariableDebt: bigOrZero(p.ScaledVariableDebt),
		StablePrincipal:    bigOrZero(p.StablePrincipal),
		StableRate:         bigOrZero(p.StableRate),
		StableUpdated:      unixToStored(p.StableUpdated),
	}
}

func (s *storedPosition) toPosition() *moneymarket.Position {
	return &moneymarket.Position{
		ScaledDeposit:      bigOrZero(s.ScaledDeposit),
		ScaledVariableDebt: bigOrZero(s.ScaledVariableDebt),
		StablePrincipal:    bigOrZero(s.StablePrincipal),
		StableRate:         bigOrZero(s.StableRate),
		StableUpdated:      storedToUnix(s.StableUpdated),
	}
}

// GetReserve returns the stored reserve of asset or nil when the reserve has
// never been touched.
func (m *Manager) GetReserve(asset [20]byte) (*moneymarket.Reserve, error) {
	var stored storedReserve
	ok, err := m.KVGet(reserveKey(asset), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toReserve(), nil
}

func (m *Manager) PutReserve(asset [20]byte, reserve *moneymarket.Reserve) error {
	if reserve == nil {
		return m.KVDelete(reserveKey(asset))
	}
	return m.KVPut(reserveKey(asset), newStoredReserve(reserve))
}

// GetPosition returns the account's position in asset or nil when absent.
func (m *Manager) GetPosition(asset, account [20]byte) (*moneymarket.Position, error) {
	var stored storedPosition
	ok, err := m.KVGet(positionKey(asset, account), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return stored.toPosition(), nil
}

func (m *Manager) PutPosition(asset, account [20]byte, position *moneymarket.Position) error {
	if position == nil {
		return m.KVDelete(positionKey(asset, account))
	}
	return m.KVPut(positionKey(asset, account), newStoredPosition(position))
}

func (m *Manager) GetDelegation(asset [20]byte, mode moneymarket.RateMode, delegator, delegatee [20]byte) (*big.Int, error) {
	return m.loadBigInt(delegationKey(asset, uint8(mode), delegator, delegatee))
}

func (m *Manager) PutDelegation(asset [20]byte, mode moneymarket.RateMode, delegator, delegatee [20]byte, amount *big.Int) error {
	return m.writeBigInt(delegationKey(asset, uint8(mode), delegator, delegatee), amount)
}
