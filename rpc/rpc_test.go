package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stable-net/tokenbound/tba"
)

var (
	admin   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	signer1 = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	signer2 = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

type testNode struct {
	chain    *tba.Chain
	ledger   *tba.Ledger
	registry *tba.Registry
	client   *Client
}

func newTestNode(t *testing.T) *testNode {
	log := zaptest.NewLogger(t)
	chain, err := tba.NewChain(tba.Options{Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() { _ = chain.Close() })

	impl, _, err := chain.DeployImplementation(admin)
	require.NoError(t, err)
	registry, _, err := chain.DeployRegistry(admin, impl)
	require.NoError(t, err)
	ledger, _, err := chain.DeployLedger(admin, tba.DefaultLedgerName, tba.DefaultLedgerSymbol)
	require.NoError(t, err)
	_, err = ledger.SafeMint(admin, signer1, uint256.NewInt(1))
	require.NoError(t, err)

	srv, err := NewServer(chain, log)
	require.NoError(t, err)
	httpSrv := httptest.NewServer(srv)
	t.Cleanup(func() {
		httpSrv.Close()
		srv.Stop()
	})

	client, err := Dial(context.Background(), httpSrv.URL, log)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return &testNode{chain: chain, ledger: ledger, registry: registry, client: client}
}

func TestClientChainState(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	require.Equal(t, tba.DefaultChainID, n.client.ChainID())

	height, err := n.client.BlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, n.chain.Sequence(), height)

	code, err := n.client.Code(ctx, signer1)
	require.NoError(t, err)
	require.Empty(t, code)

	code, err = n.client.Code(ctx, n.ledger.Address())
	require.NoError(t, err)
	require.NotEmpty(t, code)

	// Calls to plain addresses succeed with no output.
	out, err := n.client.Call(ctx, signer2, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestClientOwnerOf(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()

	owner, err := n.client.OwnerOf(ctx, n.ledger.Address(), uint256.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, signer1, owner)

	_, err = n.client.OwnerOf(ctx, n.ledger.Address(), uint256.NewInt(2))
	require.ErrorIs(t, err, tba.ErrInvalidToken)
	reason, ok := tba.RevertReason(err)
	require.True(t, ok)
	require.Equal(t, tba.ReasonInvalidTokenID, reason)
}

func TestClientResolveBoundAccount(t *testing.T) {
	n := newTestNode(t)
	ctx := context.Background()
	id := uint256.NewInt(1)

	info, err := n.client.ResolveBoundAccount(ctx, n.registry.Address(), n.registry.Implementation(), n.ledger.Address(), id)
	require.NoError(t, err)
	require.False(t, info.Deployed)
	require.Equal(t, n.registry.Account(n.ledger.Address(), id), info.Account)
	require.Equal(t, signer1, info.Owner)

	onChain, err := n.client.RegistryAccount(ctx, n.registry.Address(), n.ledger.Address(), id)
	require.NoError(t, err)
	require.Equal(t, info.Account, onChain)

	// Undeployed accounts have no code to answer.
	_, err = n.client.AccountOwner(ctx, info.Account)
	require.Error(t, err)

	_, _, err = n.registry.CreateAccount(signer2, n.ledger.Address(), id)
	require.NoError(t, err)
	_, err = n.ledger.TransferFrom(signer1, signer1, signer2, id)
	require.NoError(t, err)

	info, err = n.client.ResolveBoundAccount(ctx, n.registry.Address(), n.registry.Implementation(), n.ledger.Address(), id)
	require.NoError(t, err)
	require.True(t, info.Deployed)
	require.Equal(t, signer2, info.Owner)

	owner, err := n.client.AccountOwner(ctx, info.Account)
	require.NoError(t, err)
	require.Equal(t, signer2, owner)

	code, err := n.client.Code(ctx, info.Account)
	require.NoError(t, err)
	require.Contains(t, string(code), string(n.registry.Implementation().Bytes()))
}

type nodeError struct {
	code int
	msg  string
	data interface{}
}

func (e *nodeError) Error() string          { return e.msg }
func (e *nodeError) ErrorCode() int         { return e.code }
func (e *nodeError) ErrorData() interface{} { return e.data }

func TestDecodeError(t *testing.T) {
	rev := newRevertError(tba.ReasonNotOwner)

	testCases := []struct {
		name   string
		err    error
		reason string
	}{
		{"plain", errors.New("boom"), ""},
		{"other_code", &nodeError{code: -32000, msg: "boom", data: "0x"}, ""},
		{"empty_data", &nodeError{code: revertErrorCode, msg: "execution reverted", data: "0x"}, ""},
		{"no_data", &nodeError{code: revertErrorCode, msg: "execution reverted"}, ""},
		{"hex_string", &nodeError{code: revertErrorCode, msg: rev.Error(), data: hexutil.Encode(rev.data)}, tba.ReasonNotOwner},
		{"bytes", rev, tba.ReasonNotOwner},
		{"wrapped", fmt.Errorf("ownerOf: %w", rev), tba.ReasonNotOwner},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeError(tc.err)
			if tc.reason == "" {
				require.Equal(t, tc.err, got)
				return
			}
			reason, ok := tba.RevertReason(got)
			require.True(t, ok)
			require.Equal(t, tc.reason, reason)
		})
	}
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), srv.URL, nil)
	require.ErrorContains(t, err, "method not found")
}
