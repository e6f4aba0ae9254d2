package tba

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Default accounts of a local development node.
var (
	owner        = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	signer1      = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	signer2      = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	otherAccount = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

var (
	tokenID = uint256.NewInt(1)
	token2  = uint256.NewInt(2)
)

type fixture struct {
	chain          *Chain
	ledger         *Ledger
	registry       *Registry
	implementation common.Address
}

func newTestChain(t testing.TB) *Chain {
	c, err := NewChain(Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newFixture(t testing.TB) *fixture {
	c := newTestChain(t)

	impl, _, err := c.DeployImplementation(owner)
	require.NoError(t, err)
	registry, _, err := c.DeployRegistry(owner, impl)
	require.NoError(t, err)
	ledger, _, err := c.DeployLedger(owner, DefaultLedgerName, DefaultLedgerSymbol)
	require.NoError(t, err)

	return &fixture{
		chain:          c,
		ledger:         ledger,
		registry:       registry,
		implementation: impl,
	}
}

func (f *fixture) mint(t testing.TB, to common.Address, id *uint256.Int) {
	_, err := f.ledger.SafeMint(owner, to, id)
	require.NoError(t, err)
}

func (f *fixture) createAccount(t testing.TB, id *uint256.Int) *Account {
	addr, _, err := f.registry.CreateAccount(owner, f.ledger.Address(), id)
	require.NoError(t, err)
	acc, err := f.chain.Account(addr)
	require.NoError(t, err)
	return acc
}

func requireOwner(t testing.TB, l *Ledger, id *uint256.Int, want common.Address) {
	got, err := l.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func requireRevert(t testing.TB, err error, reason string) {
	got, ok := RevertReason(err)
	require.True(t, ok, "expected revert %q, got %v", reason, err)
	require.Equal(t, reason, got)
}
