// Package tba implements token-bound accounts: an ERC-721 ledger, a registry
// that deterministically derives one account per (ledger, token id) pair and
// the accounts themselves, whose controller is whoever owns the bound token
// at the moment of the call.
//
// Everything runs on Chain, a serial state machine where each call is a
// single all-or-nothing transaction.
package tba

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Defaults of the sample MYERC721 deployment.
const (
	DefaultLedgerName   = "MyToken"
	DefaultLedgerSymbol = "MTK"
)

// ContractKind tells what kind of contract lives at an address. Plain
// externally owned addresses have no kind.
type ContractKind uint8

// Contract kinds.
const (
	KindNone ContractKind = iota
	KindLedger
	KindRegistry
	KindImplementation
	KindAccount
)

// String implements fmt.Stringer.
func (k ContractKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindLedger:
		return "ERC721"
	case KindRegistry:
		return "AccountRegistry"
	case KindImplementation:
		return "AccountImplementation"
	case KindAccount:
		return "BoundAccount"
	default:
		return "unknown"
	}
}

// Revert reasons, identical to the OpenZeppelin ERC721/Ownable messages.
const (
	ReasonNotOwner           = "Ownable: caller is not the owner"
	ReasonNewOwnerZero       = "Ownable: new owner is the zero address"
	ReasonNotOwnerOrApproved = "ERC721: caller is not token owner or approved"
	ReasonInvalidTokenID     = "ERC721: invalid token ID"
	ReasonAlreadyMinted      = "ERC721: token already minted"
	ReasonMintToZero         = "ERC721: mint to the zero address"
	ReasonIncorrectOwner     = "ERC721: transfer from incorrect owner"
	ReasonTransferToZero     = "ERC721: transfer to the zero address"
	ReasonNonReceiver        = "ERC721: transfer to non ERC721Receiver implementer"
	ReasonApprovalToOwner    = "ERC721: approval to current owner"
	ReasonApproveNotAllowed  = "ERC721: approve caller is not token owner or approved for all"
	ReasonApproveToCaller    = "ERC721: approve to caller"
	ReasonZeroOwnerQuery     = "ERC721: address zero is not a valid owner"
)

// Event signatures.
var (
	TransferEventTopic             = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ApprovalEventTopic             = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	ApprovalForAllEventTopic       = crypto.Keccak256Hash([]byte("ApprovalForAll(address,address,bool)"))
	OwnershipTransferredEventTopic = crypto.Keccak256Hash([]byte("OwnershipTransferred(address,address)"))
	AccountCreatedEventTopic       = crypto.Keccak256Hash([]byte("AccountCreated(address,address,uint256,address,uint256)"))
	ExecutedEventTopic             = crypto.Keccak256Hash([]byte("TransactionExecuted(address,uint256,bytes)"))
)

// ERC721ReceivedSelector is the value onERC721Received must return to accept
// a safe transfer, bytes4(keccak256("onERC721Received(address,address,uint256,bytes)")).
var ERC721ReceivedSelector = [4]byte{0x15, 0x0b, 0x7a, 0x02}

// ERC-1167 minimal proxy fragments, the implementation address goes between
// them.
var (
	proxyRuntimePrefix = common.FromHex("0x363d3d373d3d3d363d73")
	proxyRuntimeSuffix = common.FromHex("0x5af43d82803e903d91602b57fd5bf3")
)
