// Package scenario replays the token-bound account acceptance suite against
// a local chain and reports per-case results.
package scenario

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/stable-net/tokenbound/signer"
	"github.com/stable-net/tokenbound/tba"
)

// Case is a single acceptance check. Every case runs on a freshly deployed
// environment.
type Case struct {
	Group       string
	Name        string
	Description string
	Run         func(e *Env) error
}

// Result is the outcome of a Case.
type Result struct {
	Case     Case
	Passed   bool
	Error    error
	Duration time.Duration
}

// Env is the deployment a case runs against: a ledger, an account
// implementation and a registry, all deployed by Owner.
type Env struct {
	Chain          *tba.Chain
	Ledger         *tba.Ledger
	Registry       *tba.Registry
	Implementation common.Address

	Owner        common.Address
	Signer1      common.Address
	Signer2      common.Address
	OtherAccount common.Address
}

// Options configure a Runner.
type Options struct {
	// ChainID defaults to tba.DefaultChainID.
	ChainID *big.Int
	// Mnemonic defaults to signer.DevMnemonic.
	Mnemonic string
	Logger   *zap.Logger
}

// Runner executes cases.
type Runner struct {
	chainID *big.Int
	signers []*signer.Signer
	log     *zap.Logger
}

// NewRunner derives the four signers used by the cases and returns a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.ChainID == nil {
		opts.ChainID = tba.DefaultChainID
	}
	if opts.Mnemonic == "" {
		opts.Mnemonic = signer.DevMnemonic
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	signers, err := signer.Signers(opts.Mnemonic, 4)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signers: %w", err)
	}
	return &Runner{
		chainID: opts.ChainID,
		signers: signers,
		log:     opts.Logger,
	}, nil
}

// NewEnv deploys a fresh environment on an in-memory chain.
func (r *Runner) NewEnv() (*Env, error) {
	c, err := tba.NewChain(tba.Options{ChainID: r.chainID, Logger: r.log})
	if err != nil {
		return nil, err
	}
	e, err := r.Attach(c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return e, nil
}

// Attach binds an environment to c. An empty chain gets the ledger, the
// implementation and the registry deployed by the owner, in this order. A
// chain that already has history is expected to hold that deployment at the
// owner's first three CREATE addresses.
func (r *Runner) Attach(c *tba.Chain) (*Env, error) {
	e := &Env{
		Chain:        c,
		Owner:        r.signers[0].Address,
		Signer1:      r.signers[1].Address,
		Signer2:      r.signers[2].Address,
		OtherAccount: r.signers[3].Address,
	}

	var err error
	if c.Sequence() > 0 {
		if e.Ledger, err = c.Ledger(crypto.CreateAddress(e.Owner, 0)); err != nil {
			return nil, fmt.Errorf("load ledger: %w", err)
		}
		if e.Registry, err = c.Registry(crypto.CreateAddress(e.Owner, 2)); err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		e.Implementation = e.Registry.Implementation()
		r.log.Info("attached to existing deployment",
			zap.Uint64("sequence", c.Sequence()),
			zap.Stringer("ledger", e.Ledger.Address()),
			zap.Stringer("registry", e.Registry.Address()))
		return e, nil
	}

	if e.Ledger, _, err = c.DeployLedger(e.Owner, tba.DefaultLedgerName, tba.DefaultLedgerSymbol); err != nil {
		return nil, fmt.Errorf("deploy ledger: %w", err)
	}
	if e.Implementation, _, err = c.DeployImplementation(e.Owner); err != nil {
		return nil, fmt.Errorf("deploy implementation: %w", err)
	}
	if e.Registry, _, err = c.DeployRegistry(e.Owner, e.Implementation); err != nil {
		return nil, fmt.Errorf("deploy registry: %w", err)
	}
	return e, nil
}

// Run executes every case of the suite and builds a report.
func (r *Runner) Run() (*Report, error) {
	return r.RunCases(Cases())
}

// RunCases executes the given cases in order. A case failure is recorded in
// the report, only a broken environment aborts the run.
func (r *Runner) RunCases(cases []Case) (*Report, error) {
	report := &Report{
		Title:   "Token-Bound Account Scenario Report",
		ChainID: r.chainID,
	}
	for _, c := range cases {
		env, err := r.NewEnv()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Name, err)
		}

		start := time.Now()
		err = c.Run(env)
		res := Result{
			Case:     c,
			Passed:   err == nil,
			Error:    err,
			Duration: time.Since(start),
		}
		_ = env.Chain.Close()

		if res.Passed {
			r.log.Debug("case passed", zap.String("group", c.Group), zap.String("case", c.Name))
		} else {
			r.log.Warn("case failed", zap.String("group", c.Group), zap.String("case", c.Name), zap.Error(err))
		}
		report.Results = append(report.Results, res)
	}
	report.Summary = summarize(report.Results)
	return report, nil
}

var (
	token1 = uint256.NewInt(1)
	token2 = uint256.NewInt(2)
)

// Cases returns the acceptance suite.
func Cases() []Case {
	return []Case{
		{
			Group:       "Deployment",
			Name:        "NameAndSymbol",
			Description: "Ledger is deployed with the expected name and symbol",
			Run:         checkNameAndSymbol,
		},
		{
			Group:       "Mint",
			Name:        "MintSetsOwner",
			Description: "Minting a token records the recipient as its owner",
			Run:         checkMintSetsOwner,
		},
		{
			Group:       "Mint",
			Name:        "OnlyAdminMints",
			Description: "Minting by anyone but the ledger admin reverts",
			Run:         checkOnlyAdminMints,
		},
		{
			Group:       "Transfer",
			Name:        "OwnerTransfers",
			Description: "The token owner can transfer the token",
			Run:         checkOwnerTransfers,
		},
		{
			Group:       "Transfer",
			Name:        "OnlyOwnerOrApprovedTransfers",
			Description: "A transfer by a stranger reverts",
			Run:         checkStrangerCannotTransfer,
		},
		{
			Group:       "Transfer",
			Name:        "ApprovedTransfers",
			Description: "An approved address can transfer the token",
			Run:         checkApprovedTransfers,
		},
		{
			Group:       "Account",
			Name:        "CreateAccount",
			Description: "The registry instantiates the account at the derived address",
			Run:         checkCreateAccount,
		},
		{
			Group:       "Account",
			Name:        "AccountOwner",
			Description: "The account owner is the owner of the bound token",
			Run:         checkAccountOwner,
		},
		{
			Group:       "Account",
			Name:        "ReceiveToken",
			Description: "The account can receive an ERC-721 token",
			Run:         checkReceiveToken,
		},
		{
			Group:       "Account",
			Name:        "TransferOut",
			Description: "The account owner can move a held token to an EOA",
			Run:         checkTransferOut,
		},
		{
			Group:       "Property",
			Name:        "StableAddress",
			Description: "Off-chain derivation and registry agree before and after creation",
			Run:         checkStableAddress,
		},
		{
			Group:       "Property",
			Name:        "IdempotentCreate",
			Description: "Creating the same account twice yields the same address",
			Run:         checkIdempotentCreate,
		},
		{
			Group:       "Property",
			Name:        "OwnerFollowsToken",
			Description: "Account control moves with the bound token",
			Run:         checkOwnerFollowsToken,
		},
		{
			Group:       "Property",
			Name:        "UnauthorizedRejected",
			Description: "A non-owner cannot move assets out of the account",
			Run:         checkUnauthorizedRejected,
		},
		{
			Group:       "Property",
			Name:        "AtomicRevert",
			Description: "A reverted transaction leaves state and sequence unchanged",
			Run:         checkAtomicRevert,
		},
	}
}

func expectOwner(l *tba.Ledger, id *uint256.Int, want common.Address) error {
	got, err := l.OwnerOf(id)
	if err != nil {
		return fmt.Errorf("ownerOf(%s): %w", id.Dec(), err)
	}
	if got != want {
		return fmt.Errorf("ownerOf(%s) = %s, want %s", id.Dec(), got, want)
	}
	return nil
}

func expectRevert(err error, reason string) error {
	if err == nil {
		return fmt.Errorf("expected revert %q, call succeeded", reason)
	}
	got, ok := tba.RevertReason(err)
	if !ok {
		return fmt.Errorf("expected revert %q, got %w", reason, err)
	}
	if got != reason {
		return fmt.Errorf("revert reason %q, want %q", got, reason)
	}
	return nil
}

// Seed mints token 1 to Signer1 and token 2 to Signer2, then creates the
// account bound to token 1.
func (e *Env) Seed() (*tba.Account, error) {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return nil, err
	}
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer2, token2); err != nil {
		return nil, err
	}
	addr, _, err := e.Registry.CreateAccount(e.Owner, e.Ledger.Address(), token1)
	if err != nil {
		return nil, err
	}
	return e.Chain.Account(addr)
}

func checkNameAndSymbol(e *Env) error {
	name, err := e.Ledger.Name()
	if err != nil {
		return err
	}
	symbol, err := e.Ledger.Symbol()
	if err != nil {
		return err
	}
	if name != tba.DefaultLedgerName || symbol != tba.DefaultLedgerSymbol {
		return fmt.Errorf("got %s/%s, want %s/%s", name, symbol, tba.DefaultLedgerName, tba.DefaultLedgerSymbol)
	}
	return nil
}

func checkMintSetsOwner(e *Env) error {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return err
	}
	return expectOwner(e.Ledger, token1, e.Signer1)
}

func checkOnlyAdminMints(e *Env) error {
	_, err := e.Ledger.SafeMint(e.Signer1, e.Signer1, token1)
	return expectRevert(err, tba.ReasonNotOwner)
}

func checkOwnerTransfers(e *Env) error {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return err
	}
	if _, err := e.Ledger.TransferFrom(e.Signer1, e.Signer1, e.Signer2, token1); err != nil {
		return err
	}
	return expectOwner(e.Ledger, token1, e.Signer2)
}

func checkStrangerCannotTransfer(e *Env) error {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return err
	}
	_, err := e.Ledger.TransferFrom(e.Signer2, e.Signer1, e.Signer2, token1)
	return expectRevert(err, tba.ReasonNotOwnerOrApproved)
}

func checkApprovedTransfers(e *Env) error {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return err
	}
	if _, err := e.Ledger.Approve(e.Signer1, e.Signer2, token1); err != nil {
		return err
	}
	approved, err := e.Ledger.GetApproved(token1)
	if err != nil {
		return err
	}
	if approved != e.Signer2 {
		return fmt.Errorf("getApproved = %s, want %s", approved, e.Signer2)
	}
	if _, err := e.Ledger.TransferFrom(e.Signer2, e.Signer1, e.OtherAccount, token1); err != nil {
		return err
	}
	return expectOwner(e.Ledger, token1, e.OtherAccount)
}

func checkCreateAccount(e *Env) error {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return err
	}
	want := e.Registry.Account(e.Ledger.Address(), token1)
	got, _, err := e.Registry.CreateAccount(e.Owner, e.Ledger.Address(), token1)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("createAccount = %s, want %s", got, want)
	}
	kind, err := e.Chain.KindOf(got)
	if err != nil {
		return err
	}
	if kind != tba.KindAccount {
		return fmt.Errorf("kind at %s = %s, want %s", got, kind, tba.KindAccount)
	}
	return nil
}

func checkAccountOwner(e *Env) error {
	acc, err := e.Seed()
	if err != nil {
		return err
	}
	got, err := acc.Owner()
	if err != nil {
		return err
	}
	if got != e.Signer1 {
		return fmt.Errorf("account owner = %s, want %s", got, e.Signer1)
	}
	return nil
}

func checkReceiveToken(e *Env) error {
	acc, err := e.Seed()
	if err != nil {
		return err
	}
	if _, err := e.Ledger.SafeTransferFrom(e.Signer2, e.Signer2, acc.Address(), token2); err != nil {
		return err
	}
	return expectOwner(e.Ledger, token2, acc.Address())
}

func checkTransferOut(e *Env) error {
	acc, err := e.Seed()
	if err != nil {
		return err
	}
	if _, err := e.Ledger.SafeTransferFrom(e.Signer2, e.Signer2, acc.Address(), token2); err != nil {
		return err
	}
	if _, err := acc.TransferAssetTokens(e.Signer1, e.Ledger.Address(), e.OtherAccount, token2); err != nil {
		return err
	}
	if err := expectOwner(e.Ledger, token2, e.OtherAccount); err != nil {
		return err
	}
	nonce, err := acc.Nonce()
	if err != nil {
		return err
	}
	if nonce != 1 {
		return fmt.Errorf("account nonce = %d, want 1", nonce)
	}
	return nil
}

func checkStableAddress(e *Env) error {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return err
	}
	offChain := tba.DeriveAccountAddress(tba.DerivationParams{
		ChainID:        e.Chain.ChainID(),
		Registry:       e.Registry.Address(),
		Implementation: e.Implementation,
		Ledger:         e.Ledger.Address(),
		TokenID:        token1,
	})
	before := e.Registry.Account(e.Ledger.Address(), token1)
	created, _, err := e.Registry.CreateAccount(e.Owner, e.Ledger.Address(), token1)
	if err != nil {
		return err
	}
	after := e.Registry.Account(e.Ledger.Address(), token1)
	if offChain != before || before != created || created != after {
		return fmt.Errorf("addresses differ: derived %s, before %s, created %s, after %s", offChain, before, created, after)
	}
	return nil
}

func checkIdempotentCreate(e *Env) error {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return err
	}
	first, _, err := e.Registry.CreateAccount(e.Owner, e.Ledger.Address(), token1)
	if err != nil {
		return err
	}
	second, receipt, err := e.Registry.CreateAccount(e.Signer2, e.Ledger.Address(), token1)
	if err != nil {
		return err
	}
	if first != second {
		return fmt.Errorf("second createAccount = %s, want %s", second, first)
	}
	if len(receipt.Logs) != 0 {
		return fmt.Errorf("second createAccount emitted %d logs", len(receipt.Logs))
	}
	return nil
}

func checkOwnerFollowsToken(e *Env) error {
	acc, err := e.Seed()
	if err != nil {
		return err
	}
	if _, err := e.Ledger.TransferFrom(e.Signer1, e.Signer1, e.OtherAccount, token1); err != nil {
		return err
	}
	got, err := acc.Owner()
	if err != nil {
		return err
	}
	if got != e.OtherAccount {
		return fmt.Errorf("account owner = %s, want %s", got, e.OtherAccount)
	}
	ok, err := acc.IsValidSigner(e.Signer1)
	if err != nil {
		return err
	}
	if ok {
		return errors.New("previous token owner is still a valid signer")
	}
	return nil
}

func checkUnauthorizedRejected(e *Env) error {
	acc, err := e.Seed()
	if err != nil {
		return err
	}
	if _, err := e.Ledger.SafeTransferFrom(e.Signer2, e.Signer2, acc.Address(), token2); err != nil {
		return err
	}
	_, err = acc.TransferAssetTokens(e.Signer2, e.Ledger.Address(), e.Signer2, token2)
	if !errors.Is(err, tba.ErrUnauthorized) {
		return fmt.Errorf("expected %v, got %v", tba.ErrUnauthorized, err)
	}
	return expectOwner(e.Ledger, token2, acc.Address())
}

func checkAtomicRevert(e *Env) error {
	if _, err := e.Ledger.SafeMint(e.Owner, e.Signer1, token1); err != nil {
		return err
	}
	seq := e.Chain.Sequence()
	_, err := e.Ledger.TransferFrom(e.Signer1, e.Signer2, e.OtherAccount, token1)
	if err := expectRevert(err, tba.ReasonIncorrectOwner); err != nil {
		return err
	}
	if got := e.Chain.Sequence(); got != seq {
		return fmt.Errorf("sequence moved from %d to %d", seq, got)
	}
	balance, err := e.Ledger.BalanceOf(e.Signer1)
	if err != nil {
		return err
	}
	if !balance.Eq(uint256.NewInt(1)) {
		return fmt.Errorf("balance = %s, want 1", balance.Dec())
	}
	return expectOwner(e.Ledger, token1, e.Signer1)
}
