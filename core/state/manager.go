package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"nftlend/storage"
)

// Manager maps the domain stores onto a flat key-value database. Values are
// RLP encoded; keys are human readable so backends can be inspected and
// iterated by prefix.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
// Transactions pass a storage.Overlay so that writes only land on commit.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return m.db.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return true, nil
}

// KVHas reports whether key exists without decoding it.
func (m *Manager) KVHas(key []byte) (bool, error) {
	return m.db.Has(key)
}

// KVDelete removes key. Deleting an absent key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.db.Delete(key)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

// writeBigInt stores v, deleting the key for zero so that absent and zero
// read the same.
func (m *Manager) writeBigInt(key []byte, v *big.Int) error {
	if v == nil || v.Sign() == 0 {
		return m.KVDelete(key)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("kv: negative value for %s", key)
	}
	return m.KVPut(key, v)
}

func (m *Manager) loadUint64(key []byte) (uint64, error) {
	var value uint64
	if _, err := m.KVGet(key, &value); err != nil {
		return 0, err
	}
	return value, nil
}

func unixToStored(ts int64) uint64 {
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func storedToUnix(ts uint64) int64 {
	const maxInt64 = uint64(1<<63 - 1)
	if ts > maxInt64 {
		return int64(maxInt64)
	}
	return int64(ts)
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
