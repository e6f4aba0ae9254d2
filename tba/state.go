package tba

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/stable-net/tokenbound/storage"
)

// contractRecord is the stored description of a deployed contract. Fields
// that don't apply to the kind are left zero.
type contractRecord struct {
	Kind uint8

	// Ledger.
	Name   string
	Symbol string
	Admin  common.Address

	// Registry and account.
	Implementation common.Address

	// Account binding.
	Registry common.Address
	Ledger   common.Address
	TokenID  *big.Int
}

// txn is the view a single transaction executes against. Writes land in a
// cache and reach the chain store only when the transaction succeeds.
type txn struct {
	chainID *big.Int
	store   *storage.MemCachedStore
	logs    []*types.Log
}

func newTxn(chainID *big.Int, lower storage.Store) *txn {
	return &txn{
		chainID: chainID,
		store:   storage.NewMemCachedStore(lower),
	}
}

func (t *txn) get(key []byte) ([]byte, bool, error) {
	val, err := t.store.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (t *txn) getAddress(key []byte) (common.Address, bool, error) {
	val, ok, err := t.get(key)
	if err != nil || !ok {
		return common.Address{}, ok, err
	}
	return common.BytesToAddress(val), true, nil
}

func (t *txn) getUint64(key []byte) (uint64, error) {
	val, ok, err := t.get(key)
	if err != nil || !ok {
		return 0, err
	}
	return binary.BigEndian.Uint64(val), nil
}

func (t *txn) putUint64(key []byte, v uint64) {
	t.store.Put(key, binary.BigEndian.AppendUint64(nil, v))
}

func (t *txn) getUint256(key []byte) (*uint256.Int, error) {
	val, _, err := t.get(key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(val), nil
}

func (t *txn) putUint256(key []byte, v *uint256.Int) {
	if v.IsZero() {
		t.store.Delete(key)
		return
	}
	t.store.Put(key, v.Bytes())
}

func (t *txn) contract(addr common.Address) (*contractRecord, error) {
	val, ok, err := t.get(storage.STContract.Key(addr.Bytes()))
	if err != nil || !ok {
		return nil, err
	}
	rec := new(contractRecord)
	if err := rlp.DecodeBytes(val, rec); err != nil {
		return nil, fmt.Errorf("corrupted contract record of %s: %w", addr, err)
	}
	return rec, nil
}

// contractOf returns the record at addr, failing unless it's of the given kind.
func (t *txn) contractOf(addr common.Address, kind ContractKind) (*contractRecord, error) {
	rec, err := t.contract(addr)
	if err != nil {
		return nil, err
	}
	if rec == nil || ContractKind(rec.Kind) != kind {
		return nil, fmt.Errorf("%w: no %s at %s", ErrNoContract, kind, addr)
	}
	return rec, nil
}

func (t *txn) kindOf(addr common.Address) (ContractKind, error) {
	rec, err := t.contract(addr)
	if err != nil || rec == nil {
		return KindNone, err
	}
	return ContractKind(rec.Kind), nil
}

func (t *txn) putContract(addr common.Address, rec *contractRecord) error {
	val, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return err
	}
	t.store.Put(storage.STContract.Key(addr.Bytes()), val)
	return nil
}

// emit appends a log, block and transaction fields are filled in on commit.
func (t *txn) emit(addr common.Address, data []byte, topics ...common.Hash) {
	t.logs = append(t.logs, &types.Log{
		Address: addr,
		Topics:  topics,
		Data:    data,
	})
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func uintTopic(v *uint256.Int) common.Hash {
	return common.Hash(v.Bytes32())
}

func tokenKey(id *uint256.Int) []byte {
	b := id.Bytes32()
	return b[:]
}
