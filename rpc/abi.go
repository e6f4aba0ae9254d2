package rpc

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc721JSON = `[
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"getApproved","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

const accountJSON = `[
{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"chainId","type":"uint256"},{"name":"tokenContract","type":"address"},{"name":"tokenId","type":"uint256"}]},
{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"isValidSigner","stateMutability":"view","inputs":[{"name":"signer","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]`

const registryJSON = `[
{"type":"function","name":"account","stateMutability":"view","inputs":[{"name":"tokenCollection","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"implementation","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

// Contract ABIs of the ledger, the bound account and the registry.
var (
	ERC721ABI   = mustParseABI(erc721JSON)
	AccountABI  = mustParseABI(accountJSON)
	RegistryABI = mustParseABI(registryJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
