package tba

import (
	"errors"
)

var (
	// ErrUnauthorized is returned when the caller of a privileged account
	// method does not own the bound token at call time.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken is returned when a token id is not minted on a ledger.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotALedger is returned when an address is expected to hold an
	// ERC-721 ledger but doesn't.
	ErrNotALedger = errors.New("not an ERC-721 ledger")
	// ErrNoContract is returned when an address has no contract of the
	// expected kind deployed.
	ErrNoContract = errors.New("no contract at address")
	// ErrNotImplementation is returned when a registry is deployed against
	// an address that is not an account implementation.
	ErrNotImplementation = errors.New("not an account implementation")
	// ErrChainIDMismatch is returned when a persisted chain is reopened with
	// another chain id.
	ErrChainIDMismatch = errors.New("chain id mismatch")
	// ErrChainClosed is returned by calls made after Chain.Close.
	ErrChainClosed = errors.New("chain is closed")
)

// RevertError is a contract-level failure carrying the revert reason, it is
// what a node reports for a reverted call.
type RevertError struct {
	Reason string
}

func revert(reason string) error {
	return &RevertError{Reason: reason}
}

// Error implements the error interface.
func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

// Is makes reverts comparable to the package sentinels with errors.Is.
func (e *RevertError) Is(target error) bool {
	switch target {
	case ErrInvalidToken:
		return e.Reason == ReasonInvalidTokenID
	default:
		return false
	}
}

// RevertReason returns the revert reason found in err's chain, if any.
func RevertReason(err error) (string, bool) {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}
