package rpc

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/stable-net/tokenbound/tba"
)

// revertSelector is the selector of Error(string).
var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

var revertArgs = abi.Arguments{{Type: mustType("string")}}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Server exposes the read side of a chain over Ethereum JSON-RPC: chain id,
// block number, code and calls to ledgers, registries and accounts.
type Server struct {
	srv *gethrpc.Server
	log *zap.Logger
}

// NewServer creates a JSON-RPC server for the chain.
func NewServer(chain *tba.Chain, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	srv := gethrpc.NewServer()
	if err := srv.RegisterName("eth", &ethAPI{chain: chain, log: log}); err != nil {
		return nil, fmt.Errorf("failed to register eth API: %w", err)
	}
	return &Server{srv: srv, log: log}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.srv.ServeHTTP(w, r)
}

// Stop stops the server, pending requests are cancelled.
func (s *Server) Stop() {
	s.srv.Stop()
}

// callRevertError is a reverted eth_call, encoded the way nodes do.
type callRevertError struct {
	reason string
	data   []byte
}

func newRevertError(reason string) *callRevertError {
	data, err := revertArgs.Pack(reason)
	if err != nil {
		panic(err)
	}
	return &callRevertError{
		reason: reason,
		data:   append(append([]byte{}, revertSelector...), data...),
	}
}

// Error implements the error interface.
func (e *callRevertError) Error() string {
	if e.reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.reason
}

// ErrorCode implements rpc.Error.
func (e *callRevertError) ErrorCode() int {
	return revertErrorCode
}

// ErrorData implements rpc.DataError.
func (e *callRevertError) ErrorData() interface{} {
	return hexutil.Bytes(e.data)
}

// CallArgs are the fields of an eth_call message the server uses.
type CallArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  *hexutil.Bytes  `json:"data"`
	Input *hexutil.Bytes  `json:"input"`
}

func (args *CallArgs) data() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

type ethAPI struct {
	chain *tba.Chain
	log   *zap.Logger
}

// ChainId returns the chain id.
func (api *ethAPI) ChainId() *hexutil.Big {
	return (*hexutil.Big)(api.chain.ChainID())
}

// BlockNumber returns the sequence number of the last transaction, every
// transaction is its own block.
func (api *ethAPI) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(api.chain.Sequence())
}

// GetCode returns the proxy code of bound accounts and a marker code for
// the other contracts.
func (api *ethAPI) GetCode(addr common.Address, _ gethrpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	kind, err := api.chain.KindOf(addr)
	if err != nil {
		return nil, err
	}
	switch kind {
	case tba.KindNone:
		return hexutil.Bytes{}, nil
	case tba.KindAccount:
		acc, err := api.chain.Account(addr)
		if err != nil {
			return nil, err
		}
		p, err := acc.Binding()
		if err != nil {
			return nil, err
		}
		return tba.AccountRuntimeCode(p), nil
	default:
		return hexutil.Bytes{0xfe, byte(kind)}, nil
	}
}

// Call executes a read-only call.
func (api *ethAPI) Call(args CallArgs, _ gethrpc.BlockNumberOrHash) (hexutil.Bytes, error) {
	if args.To == nil {
		return nil, errors.New("contract creation is not supported")
	}
	data := args.data()
	kind, err := api.chain.KindOf(*args.To)
	if err != nil {
		return nil, err
	}

	var contract abi.ABI
	switch kind {
	case tba.KindNone:
		return hexutil.Bytes{}, nil
	case tba.KindLedger:
		contract = ERC721ABI
	case tba.KindAccount:
		contract = AccountABI
	case tba.KindRegistry:
		contract = RegistryABI
	default:
		return nil, &callRevertError{}
	}
	if len(data) < 4 {
		return nil, &callRevertError{}
	}
	method, err := contract.MethodById(data[:4])
	if err != nil {
		return nil, &callRevertError{}
	}
	inputs, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, &callRevertError{}
	}

	outputs, err := api.dispatch(kind, *args.To, method.Name, inputs)
	if err != nil {
		api.log.Debug("call reverted",
			zap.Stringer("to", args.To),
			zap.String("method", method.Name),
			zap.Error(err))
		if reason, ok := tba.RevertReason(err); ok {
			return nil, newRevertError(reason)
		}
		return nil, newRevertError(err.Error())
	}
	return method.Outputs.Pack(outputs...)
}

func (api *ethAPI) dispatch(kind tba.ContractKind, to common.Address, method string, in []interface{}) ([]interface{}, error) {
	switch kind {
	case tba.KindLedger:
		return api.ledgerCall(to, method, in)
	case tba.KindAccount:
		return api.accountCall(to, method, in)
	default:
		return api.registryCall(to, method, in)
	}
}

func one(v interface{}, err error) ([]interface{}, error) {
	if err != nil {
		return nil, err
	}
	return []interface{}{v}, nil
}

func tokenArg(v interface{}) *uint256.Int {
	id, _ := uint256.FromBig(v.(*big.Int))
	return id
}

func (api *ethAPI) ledgerCall(addr common.Address, method string, in []interface{}) ([]interface{}, error) {
	l, err := api.chain.Ledger(addr)
	if err != nil {
		return nil, err
	}
	switch method {
	case "name":
		return one(l.Name())
	case "symbol":
		return one(l.Symbol())
	case "owner":
		return one(l.Owner())
	case "ownerOf":
		return one(l.OwnerOf(tokenArg(in[0])))
	case "getApproved":
		return one(l.GetApproved(tokenArg(in[0])))
	case "isApprovedForAll":
		return one(l.IsApprovedForAll(in[0].(common.Address), in[1].(common.Address)))
	case "balanceOf":
		b, err := l.BalanceOf(in[0].(common.Address))
		if err != nil {
			return nil, err
		}
		return []interface{}{b.ToBig()}, nil
	}
	return nil, fmt.Errorf("unsupported method %s", method)
}

func (api *ethAPI) accountCall(addr common.Address, method string, in []interface{}) ([]interface{}, error) {
	acc, err := api.chain.Account(addr)
	if err != nil {
		return nil, err
	}
	switch method {
	case "owner":
		return one(acc.Owner())
	case "isValidSigner":
		return one(acc.IsValidSigner(in[0].(common.Address)))
	case "nonce":
		n, err := acc.Nonce()
		if err != nil {
			return nil, err
		}
		return []interface{}{new(big.Int).SetUint64(n)}, nil
	case "token":
		chainID, ledger, tokenID, err := acc.Token()
		if err != nil {
			return nil, err
		}
		return []interface{}{chainID, ledger, tokenID.ToBig()}, nil
	}
	return nil, fmt.Errorf("unsupported method %s", method)
}

func (api *ethAPI) registryCall(addr common.Address, method string, in []interface{}) ([]interface{}, error) {
	r, err := api.chain.Registry(addr)
	if err != nil {
		return nil, err
	}
	switch method {
	case "account":
		return []interface{}{r.Account(in[0].(common.Address), tokenArg(in[1]))}, nil
	case "implementation":
		return []interface{}{r.Implementation()}, nil
	}
	return nil, fmt.Errorf("unsupported method %s", method)
}
