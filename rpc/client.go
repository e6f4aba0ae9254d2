// Package rpc connects token-bound accounts to JSON-RPC: a client resolving
// the live controller of an account on any Ethereum node and a read-only
// server exposing a local chain.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/stable-net/tokenbound/tba"
)

// revertErrorCode is the JSON-RPC error code nodes use for reverted calls.
const revertErrorCode = 3

// Client is a minimal JSON-RPC client for reading ledgers, registries and
// bound accounts.
type Client struct {
	rpc     *gethrpc.Client
	chainID *big.Int
	log     *zap.Logger
}

// BoundAccountInfo describes the account bound to a token as seen by a node.
type BoundAccountInfo struct {
	Account  common.Address
	Deployed bool
	// Owner is the current owner of the bound token, the account controller.
	Owner common.Address
}

// Dial connects to the node and fetches its chain id.
func Dial(ctx context.Context, rpcURL string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rc, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", rpcURL, err)
	}
	c := &Client{rpc: rc, log: log}

	chainID, err := c.getChainID(ctx)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	c.chainID = chainID
	return c, nil
}

// call makes a JSON-RPC call
func (c *Client) call(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	err := c.rpc.CallContext(ctx, result, method, params...)
	if err != nil {
		c.log.Debug("rpc call failed",
			zap.String("method", method),
			zap.Error(err))
		return decodeError(err)
	}
	return nil
}

// decodeError turns a reverted call into a tba.RevertError carrying the
// reason, other errors are returned as is.
func decodeError(err error) error {
	var rpcErr gethrpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.ErrorCode() != revertErrorCode {
		return err
	}
	var dataErr gethrpc.DataError
	if !errors.As(err, &dataErr) {
		return err
	}

	var data []byte
	switch v := dataErr.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(v)
		if decErr != nil {
			return err
		}
		data = b
	case hexutil.Bytes:
		data = v
	default:
		return err
	}
	reason, unpackErr := abi.UnpackRevert(data)
	if unpackErr != nil {
		return err
	}
	return &tba.RevertError{Reason: reason}
}

// getChainID gets the network chain ID
func (c *Client) getChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(ctx, &result, "eth_chainId"); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// ChainID returns the network chain ID
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.call(ctx, &result, "eth_blockNumber"); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// Code gets the code at an address
func (c *Client) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.call(ctx, &result, "eth_getCode", addr, "latest"); err != nil {
		return nil, err
	}
	return result, nil
}

// Call executes a read-only call against the latest state
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := map[string]interface{}{
		"to":    to,
		"input": hexutil.Bytes(data),
	}
	var result hexutil.Bytes
	if err := c.call(ctx, &result, "eth_call", msg, "latest"); err != nil {
		return nil, err
	}
	return result, nil
}

// callMethod packs the call of a contract method and unpacks its outputs.
func (c *Client) callMethod(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := c.Call(ctx, to, data)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, to, err)
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}

func (c *Client) callAddress(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) (common.Address, error) {
	values, err := c.callMethod(ctx, contract, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s result %T", method, values[0])
	}
	return addr, nil
}

// OwnerOf returns the owner of a token on a ledger
func (c *Client) OwnerOf(ctx context.Context, ledger common.Address, tokenID *uint256.Int) (common.Address, error) {
	return c.callAddress(ctx, ERC721ABI, ledger, "ownerOf", tokenID.ToBig())
}

// AccountOwner asks a deployed bound account for its owner
func (c *Client) AccountOwner(ctx context.Context, account common.Address) (common.Address, error) {
	return c.callAddress(ctx, AccountABI, account, "owner")
}

// RegistryAccount asks a registry for the account bound to a token
func (c *Client) RegistryAccount(ctx context.Context, registry, ledger common.Address, tokenID *uint256.Int) (common.Address, error) {
	return c.callAddress(ctx, RegistryABI, registry, "account", ledger, tokenID.ToBig())
}

// ResolveBoundAccount derives the account bound to a token locally, checks
// whether it is deployed and reads the current owner of the token.
func (c *Client) ResolveBoundAccount(ctx context.Context, registry, implementation, ledger common.Address, tokenID *uint256.Int) (*BoundAccountInfo, error) {
	info := &BoundAccountInfo{
		Account: tba.DeriveAccountAddress(tba.DerivationParams{
			ChainID:        c.chainID,
			Registry:       registry,
			Implementation: implementation,
			Ledger:         ledger,
			TokenID:        tokenID,
		}),
	}

	code, err := c.Code(ctx, info.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to get code of %s: %w", info.Account, err)
	}
	info.Deployed = len(code) > 0

	info.Owner, err = c.OwnerOf(ctx, ledger, tokenID)
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}
