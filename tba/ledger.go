package tba

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/stable-net/tokenbound/storage"
)

// Ledger is a handle to an ERC-721 ledger with an Ownable administrator who
// alone can mint.
type Ledger struct {
	chain   *Chain
	address common.Address
}

// Address returns the ledger address.
func (l *Ledger) Address() common.Address {
	return l.address
}

func (l *Ledger) read(f func(t *txn, rec *contractRecord) error) error {
	return l.chain.view(func(t *txn) error {
		rec, err := t.ledger(l.address)
		if err != nil {
			return err
		}
		return f(t, rec)
	})
}

// Name returns the collection name.
func (l *Ledger) Name() (string, error) {
	var name string
	err := l.read(func(_ *txn, rec *contractRecord) error {
		name = rec.Name
		return nil
	})
	return name, err
}

// Symbol returns the collection symbol.
func (l *Ledger) Symbol() (string, error) {
	var symbol string
	err := l.read(func(_ *txn, rec *contractRecord) error {
		symbol = rec.Symbol
		return nil
	})
	return symbol, err
}

// Owner returns the ledger administrator.
func (l *Ledger) Owner() (common.Address, error) {
	var admin common.Address
	err := l.read(func(_ *txn, rec *contractRecord) error {
		admin = rec.Admin
		return nil
	})
	return admin, err
}

// OwnerOf returns the current owner of the token.
func (l *Ledger) OwnerOf(tokenID *uint256.Int) (common.Address, error) {
	var owner common.Address
	err := l.read(func(t *txn, _ *contractRecord) error {
		var err error
		owner, err = t.ownerOf(l.address, tokenID)
		return err
	})
	return owner, err
}

// BalanceOf returns the number of tokens held by owner.
func (l *Ledger) BalanceOf(owner common.Address) (*uint256.Int, error) {
	var balance *uint256.Int
	err := l.read(func(t *txn, _ *contractRecord) error {
		if owner == (common.Address{}) {
			return revert(ReasonZeroOwnerQuery)
		}
		var err error
		balance, err = t.getUint256(balanceKey(l.address, owner))
		return err
	})
	return balance, err
}

// GetApproved returns the address approved for the token, zero if none.
func (l *Ledger) GetApproved(tokenID *uint256.Int) (common.Address, error) {
	var approved common.Address
	err := l.read(func(t *txn, _ *contractRecord) error {
		if _, err := t.ownerOf(l.address, tokenID); err != nil {
			return err
		}
		var err error
		approved, _, err = t.getAddress(approvalKey(l.address, tokenID))
		return err
	})
	return approved, err
}

// IsApprovedForAll tells whether operator may manage all tokens of owner.
func (l *Ledger) IsApprovedForAll(owner, operator common.Address) (bool, error) {
	var ok bool
	err := l.read(func(t *txn, _ *contractRecord) error {
		var err error
		ok, err = t.isApprovedForAll(l.address, owner, operator)
		return err
	})
	return ok, err
}

// Mint mints the token to to without the receiver check.
func (l *Ledger) Mint(caller, to common.Address, tokenID *uint256.Int) (*Receipt, error) {
	return l.chain.transact(caller, "mint", func(t *txn) error {
		return t.mint(l.address, caller, to, tokenID, false)
	})
}

// SafeMint mints the token to to. Contract recipients must accept it.
func (l *Ledger) SafeMint(caller, to common.Address, tokenID *uint256.Int) (*Receipt, error) {
	return l.chain.transact(caller, "safeMint", func(t *txn) error {
		return t.mint(l.address, caller, to, tokenID, true)
	})
}

// TransferFrom moves the token from from to to on behalf of caller.
func (l *Ledger) TransferFrom(caller, from, to common.Address, tokenID *uint256.Int) (*Receipt, error) {
	return l.chain.transact(caller, "transferFrom", func(t *txn) error {
		return t.transfer(l.address, caller, from, to, tokenID, false)
	})
}

// SafeTransferFrom is TransferFrom with the receiver check.
func (l *Ledger) SafeTransferFrom(caller, from, to common.Address, tokenID *uint256.Int) (*Receipt, error) {
	return l.chain.transact(caller, "safeTransferFrom", func(t *txn) error {
		return t.transfer(l.address, caller, from, to, tokenID, true)
	})
}

// Approve lets spender transfer the token, the zero address clears it.
func (l *Ledger) Approve(caller, spender common.Address, tokenID *uint256.Int) (*Receipt, error) {
	return l.chain.transact(caller, "approve", func(t *txn) error {
		return t.approve(l.address, caller, spender, tokenID)
	})
}

// SetApprovalForAll sets or clears operator as a manager of all tokens of
// caller.
func (l *Ledger) SetApprovalForAll(caller, operator common.Address, approved bool) (*Receipt, error) {
	return l.chain.transact(caller, "setApprovalForAll", func(t *txn) error {
		if _, err := t.ledger(l.address); err != nil {
			return err
		}
		if operator == caller {
			return revert(ReasonApproveToCaller)
		}
		key := operatorKey(l.address, caller, operator)
		data := make([]byte, 32)
		if approved {
			t.store.Put(key, []byte{1})
			data[31] = 1
		} else {
			t.store.Delete(key)
		}
		t.emit(l.address, data, ApprovalForAllEventTopic, addressTopic(caller), addressTopic(operator))
		return nil
	})
}

// TransferOwnership hands the administrator role to newAdmin.
func (l *Ledger) TransferOwnership(caller, newAdmin common.Address) (*Receipt, error) {
	return l.chain.transact(caller, "transferOwnership", func(t *txn) error {
		rec, err := t.ledger(l.address)
		if err != nil {
			return err
		}
		if rec.Admin != caller {
			return revert(ReasonNotOwner)
		}
		if newAdmin == (common.Address{}) {
			return revert(ReasonNewOwnerZero)
		}
		prev := rec.Admin
		rec.Admin = newAdmin
		if err := t.putContract(l.address, rec); err != nil {
			return err
		}
		t.emit(l.address, nil, OwnershipTransferredEventTopic, addressTopic(prev), addressTopic(newAdmin))
		return nil
	})
}

func ownerKey(ledger common.Address, tokenID *uint256.Int) []byte {
	return storage.STTokenOwner.Key(ledger.Bytes(), tokenKey(tokenID))
}

func approvalKey(ledger common.Address, tokenID *uint256.Int) []byte {
	return storage.STTokenApproval.Key(ledger.Bytes(), tokenKey(tokenID))
}

func operatorKey(ledger, owner, operator common.Address) []byte {
	return storage.STOperator.Key(ledger.Bytes(), owner.Bytes(), operator.Bytes())
}

func balanceKey(ledger, owner common.Address) []byte {
	return storage.STBalance.Key(ledger.Bytes(), owner.Bytes())
}

func (t *txn) ledger(addr common.Address) (*contractRecord, error) {
	rec, err := t.contract(addr)
	if err != nil {
		return nil, err
	}
	if rec == nil || ContractKind(rec.Kind) != KindLedger {
		return nil, fmt.Errorf("%w: %s", ErrNotALedger, addr)
	}
	return rec, nil
}

// ownerOf reads the owner mapping as of this transaction.
func (t *txn) ownerOf(ledger common.Address, tokenID *uint256.Int) (common.Address, error) {
	owner, ok, err := t.getAddress(ownerKey(ledger, tokenID))
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, revert(ReasonInvalidTokenID)
	}
	return owner, nil
}

func (t *txn) isApprovedForAll(ledger, owner, operator common.Address) (bool, error) {
	_, ok, err := t.get(operatorKey(ledger, owner, operator))
	return ok, err
}

func (t *txn) addBalance(ledger, owner common.Address, delta int) error {
	key := balanceKey(ledger, owner)
	balance, err := t.getUint256(key)
	if err != nil {
		return err
	}
	if delta > 0 {
		balance.AddUint64(balance, uint64(delta))
	} else {
		balance.SubUint64(balance, uint64(-delta))
	}
	t.putUint256(key, balance)
	return nil
}

func (t *txn) mint(ledger, caller, to common.Address, tokenID *uint256.Int, safe bool) error {
	rec, err := t.ledger(ledger)
	if err != nil {
		return err
	}
	if rec.Admin != caller {
		return revert(ReasonNotOwner)
	}
	if to == (common.Address{}) {
		return revert(ReasonMintToZero)
	}
	if _, exists, err := t.get(ownerKey(ledger, tokenID)); err != nil {
		return err
	} else if exists {
		return revert(ReasonAlreadyMinted)
	}

	t.store.Put(ownerKey(ledger, tokenID), to.Bytes())
	if err := t.addBalance(ledger, to, 1); err != nil {
		return err
	}
	t.emit(ledger, nil, TransferEventTopic, addressTopic(common.Address{}), addressTopic(to), uintTopic(tokenID))
	if safe {
		return t.checkReceiver(ledger, caller, common.Address{}, to, tokenID)
	}
	return nil
}

func (t *txn) transfer(ledger, caller, from, to common.Address, tokenID *uint256.Int, safe bool) error {
	if _, err := t.ledger(ledger); err != nil {
		return err
	}
	owner, err := t.ownerOf(ledger, tokenID)
	if err != nil {
		return err
	}
	allowed := caller == owner
	if !allowed {
		approved, _, err := t.getAddress(approvalKey(ledger, tokenID))
		if err != nil {
			return err
		}
		allowed = approved == caller
	}
	if !allowed {
		allowed, err = t.isApprovedForAll(ledger, owner, caller)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return revert(ReasonNotOwnerOrApproved)
	}
	if owner != from {
		return revert(ReasonIncorrectOwner)
	}
	if to == (common.Address{}) {
		return revert(ReasonTransferToZero)
	}

	t.store.Delete(approvalKey(ledger, tokenID))
	if err := t.addBalance(ledger, from, -1); err != nil {
		return err
	}
	if err := t.addBalance(ledger, to, 1); err != nil {
		return err
	}
	t.store.Put(ownerKey(ledger, tokenID), to.Bytes())
	t.emit(ledger, nil, TransferEventTopic, addressTopic(from), addressTopic(to), uintTopic(tokenID))
	if safe {
		return t.checkReceiver(ledger, caller, from, to, tokenID)
	}
	return nil
}

func (t *txn) approve(ledger, caller, spender common.Address, tokenID *uint256.Int) error {
	if _, err := t.ledger(ledger); err != nil {
		return err
	}
	owner, err := t.ownerOf(ledger, tokenID)
	if err != nil {
		return err
	}
	if spender == owner {
		return revert(ReasonApprovalToOwner)
	}
	if caller != owner {
		ok, err := t.isApprovedForAll(ledger, owner, caller)
		if err != nil {
			return err
		}
		if !ok {
			return revert(ReasonApproveNotAllowed)
		}
	}
	if spender == (common.Address{}) {
		t.store.Delete(approvalKey(ledger, tokenID))
	} else {
		t.store.Put(approvalKey(ledger, tokenID), spender.Bytes())
	}
	t.emit(ledger, nil, ApprovalEventTopic, addressTopic(owner), addressTopic(spender), uintTopic(tokenID))
	return nil
}

// checkReceiver makes sure a contract recipient of a safe transfer accepts
// the token. Plain addresses always do.
func (t *txn) checkReceiver(ledger, operator, from, to common.Address, tokenID *uint256.Int) error {
	kind, err := t.kindOf(to)
	if err != nil {
		return err
	}
	switch kind {
	case KindNone:
		return nil
	case KindAccount:
		if t.onERC721Received(to, operator, from, tokenID) == ERC721ReceivedSelector {
			return nil
		}
	}
	return revert(ReasonNonReceiver)
}
