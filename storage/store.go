// Package storage provides the key/value layer the token-bound account chain
// keeps its state in.
package storage

import (
	"errors"
)

// KeyPrefix is the first byte of every stored key, it selects the table.
type KeyPrefix uint8

// KeyPrefix constants.
const (
	// STContract maps an address to its contract record.
	STContract KeyPrefix = 0x01
	// STDeployerNonce maps a deployer address to its CREATE nonce.
	STDeployerNonce KeyPrefix = 0x02
	// ERC-721 state, keyed by ledger address first.
	STTokenOwner    KeyPrefix = 0x11
	STTokenApproval KeyPrefix = 0x12
	STOperator      KeyPrefix = 0x13
	STBalance       KeyPrefix = 0x14
	// STRegistryAccount is the registry creation table: registry, ledger and
	// token id map to the instantiated account address.
	STRegistryAccount KeyPrefix = 0x21
	STAccountNonce    KeyPrefix = 0x31
	SYSSequence       KeyPrefix = 0xc0
	SYSVersion        KeyPrefix = 0xf0
)

// ErrKeyNotFound is an error returned by Store implementations
// when a certain key is not found.
var ErrKeyNotFound = errors.New("key not found")

// Store is the underlying KV storage. A nil value in a change set means
// deletion.
type Store interface {
	Get(key []byte) ([]byte, error)
	// PutChangeSet applies all puts and deletions atomically.
	PutChangeSet(changes map[string][]byte) error
	// Seek calls f for every key with the given prefix in ascending order
	// until f returns false.
	Seek(prefix []byte, f func(k, v []byte) bool)
	Close() error
}

// Bytes returns the prefix as a one-byte slice.
func (p KeyPrefix) Bytes() []byte {
	return []byte{byte(p)}
}

// Key builds a key from the prefix and the given parts.
func (p KeyPrefix) Key(parts ...[]byte) []byte {
	n := 1
	for _, part := range parts {
		n += len(part)
	}
	key := make([]byte, 0, n)
	key = append(key, byte(p))
	for _, part := range parts {
		key = append(key, part...)
	}
	return key
}
