// Package signer derives the externally owned accounts used to drive the
// chain from a BIP-39 mnemonic or a raw private key.
package signer

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// DevMnemonic is the mnemonic of the default accounts of a local
// development node (DO NOT USE IN PRODUCTION).
const DevMnemonic = "test test test test test test test test test test test junk"

// Signer is an externally owned account.
type Signer struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// FromKey builds a signer from a hex private key, with or without 0x.
func FromKey(keyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{Key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// KeyHex returns the private key as hex without 0x.
func (s *Signer) KeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(s.Key))
}

// FromMnemonic derives the signer at m/44'/60'/0'/0/index.
func FromMnemonic(mnemonic string, index uint32) (*Signer, error) {
	keyHex, err := DeriveKeyFromMnemonic(mnemonic, index)
	if err != nil {
		return nil, err
	}
	return FromKey(keyHex)
}

// Signers derives the first n signers of the mnemonic.
func Signers(mnemonic string, n int) ([]*Signer, error) {
	signers := make([]*Signer, 0, n)
	for i := 0; i < n; i++ {
		s, err := FromMnemonic(mnemonic, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("signer %d: %w", i, err)
		}
		signers = append(signers, s)
	}
	return signers, nil
}

// DeriveKeyFromMnemonic derives a private key from a BIP39 mnemonic using BIP44 path
// Path: m/44'/60'/0'/0/accountIndex (Ethereum standard)
func DeriveKeyFromMnemonic(mnemonic string, accountIndex uint32) (string, error) {
	words := strings.Fields(strings.ToLower(mnemonic))
	if len(words) == 0 {
		return "", fmt.Errorf("empty mnemonic")
	}
	seed, err := bip39.NewSeedWithErrorChecking(strings.Join(words, " "), "")
	if err != nil {
		return "", fmt.Errorf("invalid mnemonic: %w", err)
	}

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return "", fmt.Errorf("failed to create master key: %w", err)
	}
	path := []uint32{
		bip32.FirstHardenedChild + 44, // purpose
		bip32.FirstHardenedChild + 60, // Ethereum coin type
		bip32.FirstHardenedChild + 0,  // account
		0,                             // external chain
		accountIndex,
	}
	for _, index := range path {
		key, err = key.NewChildKey(index)
		if err != nil {
			return "", fmt.Errorf("failed to derive child key %d: %w", index, err)
		}
	}

	return hex.EncodeToString(common.LeftPadBytes(key.Key, 32)), nil
}
