package tba

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/stable-net/tokenbound/storage"
)

// Account is a handle to a bound account. The account has no owner of its
// own: whoever owns the bound token right now controls it.
type Account struct {
	chain   *Chain
	address common.Address
}

// Address returns the account address.
func (a *Account) Address() common.Address {
	return a.address
}

// Token returns the token the account is bound to.
func (a *Account) Token() (chainID *big.Int, ledger common.Address, tokenID *uint256.Int, err error) {
	err = a.chain.view(func(t *txn) error {
		rec, err := t.contractOf(a.address, KindAccount)
		if err != nil {
			return err
		}
		chainID = new(big.Int).Set(t.chainID)
		ledger = rec.Ledger
		tokenID, _ = uint256.FromBig(rec.TokenID)
		return nil
	})
	return
}

// Binding returns everything the account address was derived from.
func (a *Account) Binding() (DerivationParams, error) {
	var p DerivationParams
	err := a.chain.view(func(t *txn) error {
		rec, err := t.contractOf(a.address, KindAccount)
		if err != nil {
			return err
		}
		tokenID, _ := uint256.FromBig(rec.TokenID)
		p = DerivationParams{
			ChainID:        new(big.Int).Set(t.chainID),
			Registry:       rec.Registry,
			Implementation: rec.Implementation,
			Ledger:         rec.Ledger,
			TokenID:        tokenID,
		}
		return nil
	})
	return p, err
}

// Owner returns the current owner of the bound token.
func (a *Account) Owner() (common.Address, error) {
	var owner common.Address
	err := a.chain.view(func(t *txn) error {
		var err error
		owner, err = t.accountOwner(a.address)
		return err
	})
	return owner, err
}

// IsValidSigner tells whether signer may act for the account right now.
func (a *Account) IsValidSigner(signer common.Address) (bool, error) {
	owner, err := a.Owner()
	if err != nil {
		return false, err
	}
	return owner == signer, nil
}

// Nonce returns the number of transfers the account has executed.
func (a *Account) Nonce() (uint64, error) {
	var nonce uint64
	err := a.chain.view(func(t *txn) error {
		if _, err := t.contractOf(a.address, KindAccount); err != nil {
			return err
		}
		var err error
		nonce, err = t.getUint64(storage.STAccountNonce.Key(a.address.Bytes()))
		return err
	})
	return nonce, err
}

// TransferAssetTokens sends an ERC-721 token held by the account to to.
// Only the current owner of the bound token may call it.
func (a *Account) TransferAssetTokens(caller, assetLedger, to common.Address, assetTokenID *uint256.Int) (*Receipt, error) {
	return a.chain.transact(caller, "transferERC721Tokens", func(t *txn) error {
		if err := t.authorize(a.address, caller); err != nil {
			return err
		}
		if err := t.transfer(assetLedger, a.address, a.address, to, assetTokenID, false); err != nil {
			return err
		}

		nonceKey := storage.STAccountNonce.Key(a.address.Bytes())
		nonce, err := t.getUint64(nonceKey)
		if err != nil {
			return err
		}
		t.putUint64(nonceKey, nonce+1)
		t.emit(a.address, uintTopic(assetTokenID).Bytes(), ExecutedEventTopic, addressTopic(assetLedger), addressTopic(to))
		return nil
	})
}

// accountOwner resolves the controller of the account from the ledger as of
// this transaction.
func (t *txn) accountOwner(account common.Address) (common.Address, error) {
	rec, err := t.contractOf(account, KindAccount)
	if err != nil {
		return common.Address{}, err
	}
	tokenID, overflow := uint256.FromBig(rec.TokenID)
	if overflow {
		return common.Address{}, fmt.Errorf("corrupted token id of %s", account)
	}
	return t.ownerOf(rec.Ledger, tokenID)
}

// authorize fails unless caller owns the bound token at this point of the
// transaction.
func (t *txn) authorize(account, caller common.Address) error {
	owner, err := t.accountOwner(account)
	if err != nil {
		return err
	}
	if owner != caller {
		return fmt.Errorf("%w: %s is not the owner of account %s", ErrUnauthorized, caller, account)
	}
	return nil
}

// onERC721Received is the receiver hook of accounts, they take any token.
func (t *txn) onERC721Received(account, operator, from common.Address, tokenID *uint256.Int) [4]byte {
	return ERC721ReceivedSelector
}
