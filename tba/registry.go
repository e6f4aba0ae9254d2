package tba

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/stable-net/tokenbound/storage"
)

// Registry is a handle to an account registry. It derives the address of
// the account bound to any (ledger, token id) pair and instantiates each
// account at most once.
type Registry struct {
	chain          *Chain
	address        common.Address
	implementation common.Address
}

// AccountEntry is a row of the registry creation table.
type AccountEntry struct {
	Ledger  common.Address
	TokenID *uint256.Int
	Account common.Address
}

// Address returns the registry address.
func (r *Registry) Address() common.Address {
	return r.address
}

// Implementation returns the account implementation the registry clones.
func (r *Registry) Implementation() common.Address {
	return r.implementation
}

func (r *Registry) derivation(chainID *big.Int, ledger common.Address, tokenID *uint256.Int) DerivationParams {
	return DerivationParams{
		ChainID:        chainID,
		Registry:       r.address,
		Implementation: r.implementation,
		Ledger:         ledger,
		TokenID:        tokenID,
	}
}

// Account returns the address of the account bound to the token whether or
// not it has been created. It doesn't read chain state.
func (r *Registry) Account(ledger common.Address, tokenID *uint256.Int) common.Address {
	return DeriveAccountAddress(r.derivation(r.chain.chainID, ledger, tokenID))
}

// IsDeployed tells whether the account bound to the token was created.
func (r *Registry) IsDeployed(ledger common.Address, tokenID *uint256.Int) (bool, error) {
	var ok bool
	err := r.chain.view(func(t *txn) error {
		var err error
		_, ok, err = t.get(registryKey(r.address, ledger, tokenID))
		return err
	})
	return ok, err
}

// CreateAccount instantiates the account bound to the token unless it
// already exists, in which case it does nothing. The token must be minted.
// The account address is returned either way.
func (r *Registry) CreateAccount(caller, ledger common.Address, tokenID *uint256.Int) (common.Address, *Receipt, error) {
	var (
		account common.Address
		created bool
	)
	receipt, err := r.chain.transact(caller, "createAccount", func(t *txn) error {
		if _, err := t.contractOf(r.address, KindRegistry); err != nil {
			return err
		}
		if _, err := t.ledger(ledger); err != nil {
			return err
		}
		if _, err := t.ownerOf(ledger, tokenID); err != nil {
			return fmt.Errorf("token %s of %s: %w", tokenID.Dec(), ledger, err)
		}

		p := r.derivation(t.chainID, ledger, tokenID)
		account = DeriveAccountAddress(p)
		key := registryKey(r.address, ledger, tokenID)
		if _, exists, err := t.get(key); err != nil || exists {
			return err
		}

		err := t.putContract(account, &contractRecord{
			Kind:           uint8(KindAccount),
			Implementation: r.implementation,
			Registry:       r.address,
			Ledger:         ledger,
			TokenID:        tokenID.ToBig(),
		})
		if err != nil {
			return err
		}
		t.store.Put(key, account.Bytes())
		created = true

		salt := AccountSalt(p.ChainID, ledger, tokenID)
		data := make([]byte, 0, 96)
		data = append(data, common.BytesToHash(account.Bytes()).Bytes()...)
		data = append(data, common.BytesToHash(r.implementation.Bytes()).Bytes()...)
		data = append(data, salt.Bytes()...)
		t.emit(r.address, data, AccountCreatedEventTopic, addressTopic(ledger), uintTopic(tokenID))
		return nil
	})
	if err != nil {
		return common.Address{}, nil, err
	}
	if created {
		accountsCreated.Inc()
		r.chain.log.Debug("bound account created",
			zap.Stringer("account", account),
			zap.Stringer("ledger", ledger),
			zap.String("tokenID", tokenID.Dec()))
	}
	return account, receipt, nil
}

// Accounts lists the accounts this registry has created.
func (r *Registry) Accounts() ([]AccountEntry, error) {
	var entries []AccountEntry
	err := r.chain.view(func(t *txn) error {
		prefix := storage.STRegistryAccount.Key(r.address.Bytes())
		t.store.Seek(prefix, func(k, v []byte) bool {
			rest := k[len(prefix):]
			entries = append(entries, AccountEntry{
				Ledger:  common.BytesToAddress(rest[:common.AddressLength]),
				TokenID: new(uint256.Int).SetBytes(rest[common.AddressLength:]),
				Account: common.BytesToAddress(v),
			})
			return true
		})
		return nil
	})
	return entries, err
}

func registryKey(registry, ledger common.Address, tokenID *uint256.Int) []byte {
	return storage.STRegistryAccount.Key(registry.Bytes(), ledger.Bytes(), tokenKey(tokenID))
}
