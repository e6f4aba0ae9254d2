package tba

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestAccountOwnerFollowsToken(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	acc := f.createAccount(t, tokenID)

	got, err := acc.Owner()
	require.NoError(t, err)
	require.Equal(t, signer1, got)

	_, err = f.ledger.TransferFrom(signer1, signer1, signer2, tokenID)
	require.NoError(t, err)

	got, err = acc.Owner()
	require.NoError(t, err)
	require.Equal(t, signer2, got)

	ok, err := acc.IsValidSigner(signer1)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = acc.IsValidSigner(signer2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAccountToken(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	acc := f.createAccount(t, tokenID)

	chainID, ledger, id, err := acc.Token()
	require.NoError(t, err)
	require.Equal(t, f.chain.ChainID(), chainID)
	require.Equal(t, f.ledger.Address(), ledger)
	require.Equal(t, tokenID, id)
}

func TestAccountReceivesAndForwards(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	f.mint(t, signer2, token2)
	acc := f.createAccount(t, tokenID)

	_, err := f.ledger.TransferFrom(signer2, signer2, acc.Address(), token2)
	require.NoError(t, err)
	requireOwner(t, f.ledger, token2, acc.Address())

	owner, err := acc.Owner()
	require.NoError(t, err)
	require.Equal(t, signer1, owner)

	r, err := acc.TransferAssetTokens(signer1, f.ledger.Address(), otherAccount, token2)
	require.NoError(t, err)
	requireOwner(t, f.ledger, token2, otherAccount)
	require.Len(t, r.Logs, 2)
	require.Equal(t, TransferEventTopic, r.Logs[0].Topics[0])
	require.Equal(t, f.ledger.Address(), r.Logs[0].Address)
	require.Equal(t, ExecutedEventTopic, r.Logs[1].Topics[0])
	require.Equal(t, acc.Address(), r.Logs[1].Address)

	nonce, err := acc.Nonce()
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)
}

func TestAccountRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	f.mint(t, signer2, token2)
	acc := f.createAccount(t, tokenID)
	_, err := f.ledger.TransferFrom(signer2, signer2, acc.Address(), token2)
	require.NoError(t, err)

	for _, caller := range []common.Address{signer2, otherAccount, owner, acc.Address()} {
		_, err = acc.TransferAssetTokens(caller, f.ledger.Address(), caller, token2)
		require.ErrorIs(t, err, ErrUnauthorized)
	}
	requireOwner(t, f.ledger, token2, acc.Address())

	nonce, err := acc.Nonce()
	require.NoError(t, err)
	require.Zero(t, nonce)
}

func TestAccountControlMovesWithToken(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	f.mint(t, signer2, token2)
	acc := f.createAccount(t, tokenID)
	_, err := f.ledger.TransferFrom(signer2, signer2, acc.Address(), token2)
	require.NoError(t, err)

	_, err = f.ledger.TransferFrom(signer1, signer1, signer2, tokenID)
	require.NoError(t, err)

	_, err = acc.TransferAssetTokens(signer1, f.ledger.Address(), signer1, token2)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = acc.TransferAssetTokens(signer2, f.ledger.Address(), signer2, token2)
	require.NoError(t, err)
	requireOwner(t, f.ledger, token2, signer2)
}

func TestAccountLedgerErrorsPropagate(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	f.mint(t, signer2, token2)
	acc := f.createAccount(t, tokenID)

	// The account doesn't hold token 2.
	_, err := acc.TransferAssetTokens(signer1, f.ledger.Address(), otherAccount, token2)
	requireRevert(t, err, ReasonNotOwnerOrApproved)

	_, err = acc.TransferAssetTokens(signer1, f.ledger.Address(), otherAccount, uint256.NewInt(77))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = acc.TransferAssetTokens(signer1, f.registry.Address(), otherAccount, token2)
	require.ErrorIs(t, err, ErrNotALedger)
}

func TestAccountSafeTransferAndCounterfactualAddress(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	f.mint(t, signer2, token2)

	// Tokens may be sent to the account before it exists.
	addr := f.registry.Account(f.ledger.Address(), tokenID)
	_, err := f.ledger.SafeTransferFrom(signer2, signer2, addr, token2)
	require.NoError(t, err)
	requireOwner(t, f.ledger, token2, addr)

	_, err = f.chain.Account(addr)
	require.ErrorIs(t, err, ErrNoContract)

	acc := f.createAccount(t, tokenID)
	require.Equal(t, addr, acc.Address())
	_, err = acc.TransferAssetTokens(signer1, f.ledger.Address(), f.registry.Account(f.ledger.Address(), token2), token2)
	require.NoError(t, err)

	// Deployed accounts accept safe transfers.
	f.mint(t, otherAccount, uint256.NewInt(3))
	_, err = f.ledger.SafeTransferFrom(otherAccount, otherAccount, acc.Address(), uint256.NewInt(3))
	require.NoError(t, err)
	_, err = f.ledger.SafeMint(owner, acc.Address(), uint256.NewInt(4))
	require.NoError(t, err)
	balance, err := f.ledger.BalanceOf(acc.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(2), balance.Uint64())
}

func TestAccountOwningItsOwnToken(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	acc := f.createAccount(t, tokenID)

	_, err := f.ledger.TransferFrom(signer1, signer1, acc.Address(), tokenID)
	require.NoError(t, err)

	owner, err := acc.Owner()
	require.NoError(t, err)
	require.Equal(t, acc.Address(), owner)

	_, err = acc.TransferAssetTokens(signer1, f.ledger.Address(), signer1, tokenID)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAccountBinding(t *testing.T) {
	f := newFixture(t)
	f.mint(t, signer1, tokenID)
	acc := f.createAccount(t, tokenID)

	p, err := acc.Binding()
	require.NoError(t, err)
	require.Equal(t, f.registry.Address(), p.Registry)
	require.Equal(t, f.implementation, p.Implementation)
	require.Equal(t, acc.Address(), DeriveAccountAddress(p))
	require.Equal(t, AccountInitCode(p)[10:], AccountRuntimeCode(p))
}
