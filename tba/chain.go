package tba

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"go.uber.org/zap"

	"github.com/stable-net/tokenbound/storage"
)

// DefaultChainID is the chain id of a local development node.
var DefaultChainID = big.NewInt(31337)

// Options configure a Chain.
type Options struct {
	// ChainID defaults to DefaultChainID.
	ChainID *big.Int
	// Store defaults to a fresh in-memory store. The chain owns it and
	// closes it in Close.
	Store storage.Store
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Receipt describes a committed transaction.
type Receipt struct {
	Sequence uint64
	TxHash   common.Hash
	Caller   common.Address
	Method   string
	Logs     []*types.Log
}

// Chain is a serial state machine hosting ledgers, registries and accounts.
// Transactions are applied one at a time in sequence order, each either
// fully commits or leaves no trace. It is safe for concurrent use.
type Chain struct {
	mu      sync.Mutex
	chainID *big.Int
	store   storage.Store
	seq     uint64
	closed  bool
	log     *zap.Logger
}

// NewChain opens a chain on the given store. A store that already holds a
// chain must have been created with the same chain id.
func NewChain(opts Options) (*Chain, error) {
	c := &Chain{
		chainID: opts.ChainID,
		store:   opts.Store,
		log:     opts.Logger,
	}
	if c.chainID == nil {
		c.chainID = DefaultChainID
	}
	if c.store == nil {
		c.store = storage.NewMemoryStore()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}

	version, err := c.store.Get(storage.SYSVersion.Bytes())
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		err = c.store.PutChangeSet(map[string][]byte{
			string(storage.SYSVersion.Bytes()): c.chainID.Bytes(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read store version: %w", err)
	default:
		if stored := new(big.Int).SetBytes(version); stored.Cmp(c.chainID) != 0 {
			return nil, fmt.Errorf("%w: store has %s, requested %s", ErrChainIDMismatch, stored, c.chainID)
		}
	}

	seq, err := c.store.Get(storage.SYSSequence.Bytes())
	if err == nil {
		c.seq = binary.BigEndian.Uint64(seq)
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}

	c.log.Info("chain opened",
		zap.Stringer("chainID", c.chainID),
		zap.Uint64("sequence", c.seq))
	return c, nil
}

// ChainID returns the chain id.
func (c *Chain) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Sequence returns the sequence number of the last committed transaction.
func (c *Chain) Sequence() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Close closes the underlying store. Any later call on the chain or its
// handles fails with ErrChainClosed, closing twice is a no-op.
func (c *Chain) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.store.Close()
}

// transact applies f as one transaction sent by caller.
func (c *Chain) transact(caller common.Address, method string, f func(*txn) error) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChainClosed
	}

	tx := newTxn(c.chainID, c.store)
	if err := f(tx); err != nil {
		tx.store.Discard()
		updateRevertMetrics(method)
		c.log.Debug("transaction reverted",
			zap.String("method", method),
			zap.Stringer("caller", caller),
			zap.Error(err))
		return nil, err
	}

	seq := c.seq + 1
	tx.putUint64(storage.SYSSequence.Bytes(), seq)
	if _, err := tx.store.Persist(); err != nil {
		c.log.Error("failed to persist transaction",
			zap.String("method", method),
			zap.Uint64("sequence", seq),
			zap.Error(err))
		return nil, fmt.Errorf("failed to persist transaction: %w", err)
	}
	c.seq = seq

	r := &Receipt{
		Sequence: seq,
		TxHash:   txHash(seq, caller, method),
		Caller:   caller,
		Method:   method,
		Logs:     tx.logs,
	}
	for i, l := range r.Logs {
		l.BlockNumber = seq
		l.TxHash = r.TxHash
		l.Index = uint(i)
	}
	updateCommitMetrics(method, seq)
	c.log.Debug("transaction committed",
		zap.String("method", method),
		zap.Stringer("caller", caller),
		zap.Uint64("sequence", seq),
		zap.Int("logs", len(r.Logs)))
	return r, nil
}

// view runs f against the latest committed state, its writes are dropped.
func (c *Chain) view(f func(*txn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChainClosed
	}

	tx := newTxn(c.chainID, c.store)
	defer tx.store.Discard()
	return f(tx)
}

func txHash(seq uint64, caller common.Address, method string) common.Hash {
	enc, _ := rlp.EncodeToBytes([]interface{}{seq, caller, method})
	return crypto.Keccak256Hash(enc)
}

// deploy assigns the next CREATE address of deployer to rec.
func (t *txn) deploy(deployer common.Address, rec *contractRecord) (common.Address, error) {
	nonceKey := storage.STDeployerNonce.Key(deployer.Bytes())
	nonce, err := t.getUint64(nonceKey)
	if err != nil {
		return common.Address{}, err
	}
	addr := crypto.CreateAddress(deployer, nonce)
	t.putUint64(nonceKey, nonce+1)
	return addr, t.putContract(addr, rec)
}

// KindOf returns the kind of contract deployed at addr, KindNone for plain
// addresses.
func (c *Chain) KindOf(addr common.Address) (ContractKind, error) {
	var kind ContractKind
	err := c.view(func(t *txn) error {
		var err error
		kind, err = t.kindOf(addr)
		return err
	})
	return kind, err
}

// DeployLedger deploys an ERC-721 ledger administered by deployer.
func (c *Chain) DeployLedger(deployer common.Address, name, symbol string) (*Ledger, *Receipt, error) {
	var addr common.Address
	r, err := c.transact(deployer, "deployLedger", func(t *txn) error {
		var err error
		addr, err = t.deploy(deployer, &contractRecord{
			Kind:   uint8(KindLedger),
			Name:   name,
			Symbol: symbol,
			Admin:  deployer,
		})
		if err != nil {
			return err
		}
		t.emit(addr, nil, OwnershipTransferredEventTopic, addressTopic(common.Address{}), addressTopic(deployer))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &Ledger{chain: c, address: addr}, r, nil
}

// DeployImplementation deploys the account implementation registries clone.
func (c *Chain) DeployImplementation(deployer common.Address) (common.Address, *Receipt, error) {
	var addr common.Address
	r, err := c.transact(deployer, "deployImplementation", func(t *txn) error {
		var err error
		addr, err = t.deploy(deployer, &contractRecord{Kind: uint8(KindImplementation)})
		return err
	})
	return addr, r, err
}

// DeployRegistry deploys an account registry bound to the implementation.
func (c *Chain) DeployRegistry(deployer, implementation common.Address) (*Registry, *Receipt, error) {
	var addr common.Address
	r, err := c.transact(deployer, "deployRegistry", func(t *txn) error {
		kind, err := t.kindOf(implementation)
		if err != nil {
			return err
		}
		if kind != KindImplementation {
			return fmt.Errorf("%w: %s is %s", ErrNotImplementation, implementation, kind)
		}
		addr, err = t.deploy(deployer, &contractRecord{
			Kind:           uint8(KindRegistry),
			Implementation: implementation,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return &Registry{chain: c, address: addr, implementation: implementation}, r, nil
}

// Ledger returns a handle to the ledger at addr.
func (c *Chain) Ledger(addr common.Address) (*Ledger, error) {
	err := c.view(func(t *txn) error {
		_, err := t.ledger(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Ledger{chain: c, address: addr}, nil
}

// Registry returns a handle to the registry at addr.
func (c *Chain) Registry(addr common.Address) (*Registry, error) {
	var rec *contractRecord
	err := c.view(func(t *txn) error {
		var err error
		rec, err = t.contractOf(addr, KindRegistry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Registry{chain: c, address: addr, implementation: rec.Implementation}, nil
}

// Account returns a handle to the bound account deployed at addr.
func (c *Chain) Account(addr common.Address) (*Account, error) {
	err := c.view(func(t *txn) error {
		_, err := t.contractOf(addr, KindAccount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Account{chain: c, address: addr}, nil
}
