package scenario

import (
	"errors"
	"math/big"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stable-net/tokenbound/storage"
	"github.com/stable-net/tokenbound/tba"
)

func newTestRunner(t *testing.T) *Runner {
	r, err := NewRunner(Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return r
}

func TestRunnerSigners(t *testing.T) {
	r := newTestRunner(t)
	e, err := r.NewEnv()
	require.NoError(t, err)
	defer e.Chain.Close()

	require.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), e.Owner)
	require.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), e.Signer1)
	require.Equal(t, common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"), e.Signer2)
	require.Equal(t, common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"), e.OtherAccount)

	admin, err := e.Ledger.Owner()
	require.NoError(t, err)
	require.Equal(t, e.Owner, admin)
	require.Equal(t, e.Implementation, e.Registry.Implementation())
}

func TestCases(t *testing.T) {
	r := newTestRunner(t)
	for _, c := range Cases() {
		t.Run(c.Group+"/"+c.Name, func(t *testing.T) {
			e, err := r.NewEnv()
			require.NoError(t, err)
			defer e.Chain.Close()
			require.NoError(t, c.Run(e))
		})
	}
}

func TestRun(t *testing.T) {
	report, err := newTestRunner(t).Run()
	require.NoError(t, err)

	require.True(t, report.Passed())
	require.Equal(t, len(Cases()), report.Summary.TotalTests)
	require.Equal(t, report.Summary.TotalTests, report.Summary.PassedTests)
	require.InDelta(t, 100.0, report.Summary.PassRate, 0.001)
	require.Equal(t, []string{"Deployment", "Mint", "Transfer", "Account", "Property"}, report.Summary.Groups)
	require.Equal(t, 0, tba.DefaultChainID.Cmp(report.ChainID))
}

func TestRunCasesRecordsFailure(t *testing.T) {
	cases := []Case{
		{Group: "Fake", Name: "Ok", Run: func(*Env) error { return nil }},
		{Group: "Fake", Name: "Broken", Description: "always fails", Run: func(*Env) error { return errors.New("boom") }},
	}
	r, err := NewRunner(Options{ChainID: big.NewInt(1337), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	report, err := r.RunCases(cases)
	require.NoError(t, err)
	require.False(t, report.Passed())
	require.Equal(t, 1, report.Summary.PassedTests)
	require.Equal(t, 1, report.Summary.FailedTests)
	require.False(t, report.Summary.GroupPass["Fake"])
	require.EqualError(t, report.Results[1].Error, "boom")

	out := FormatReport(report)
	require.Contains(t, out, "Chain ID: 1337")
	require.Contains(t, out, "[PASS] Ok")
	require.Contains(t, out, "[FAIL] Broken")
	require.Contains(t, out, "Description: always fails")
	require.Contains(t, out, "Error: boom")
	require.Contains(t, out, "1 TESTS FAILED")
}

func TestFormatReportAllPassed(t *testing.T) {
	report, err := newTestRunner(t).Run()
	require.NoError(t, err)

	out := FormatReport(report)
	require.Contains(t, out, "ALL TESTS PASSED")
	for _, g := range []string{"DEPLOYMENT", "MINT", "TRANSFER", "ACCOUNT", "PROPERTY"} {
		require.True(t, strings.Contains(out, "\n"+g+"\n"), g)
	}
	require.NotContains(t, out, "FAIL]")
}

func TestExpectRevert(t *testing.T) {
	require.NoError(t, expectRevert(&tba.RevertError{Reason: tba.ReasonNotOwner}, tba.ReasonNotOwner))
	require.Error(t, expectRevert(nil, tba.ReasonNotOwner))
	require.Error(t, expectRevert(errors.New("other"), tba.ReasonNotOwner))
	require.Error(t, expectRevert(&tba.RevertError{Reason: "x"}, tba.ReasonNotOwner))
}

func TestAttachReopened(t *testing.T) {
	r := newTestRunner(t)
	path := filepath.Join(t.TempDir(), "chain.db")

	open := func() *tba.Chain {
		st, err := storage.NewBoltDBStore(storage.BoltDBOptions{FilePath: path})
		require.NoError(t, err)
		c, err := tba.NewChain(tba.Options{Store: st, Logger: zaptest.NewLogger(t)})
		require.NoError(t, err)
		return c
	}

	c := open()
	e, err := r.Attach(c)
	require.NoError(t, err)
	acc, err := e.Seed()
	require.NoError(t, err)
	ledger, registry := e.Ledger.Address(), e.Registry.Address()
	require.NoError(t, c.Close())

	c = open()
	defer c.Close()
	e, err = r.Attach(c)
	require.NoError(t, err)
	require.Equal(t, ledger, e.Ledger.Address())
	require.Equal(t, registry, e.Registry.Address())

	deployed, err := e.Registry.IsDeployed(ledger, token1)
	require.NoError(t, err)
	require.True(t, deployed)
	require.Equal(t, acc.Address(), e.Registry.Account(ledger, token1))

	owner, err := e.Ledger.OwnerOf(token2)
	require.NoError(t, err)
	require.Equal(t, e.Signer2, owner)
}
