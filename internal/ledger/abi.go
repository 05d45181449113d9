// Package ledger wraps a go-ethereum JSON-RPC client with the capabilities
// the mint workflow needs: receipt and transaction lookup, nonce-serialized
// contract submission from the operator's custodial key, read-only calls,
// log filtering/subscription, and log decoding against known event
// signatures.
package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract ABIs, limited to the fragments this service actually calls or
// decodes.
const (
	mintABIJSON = `[
		{
			"inputs": [
				{"internalType": "uint256", "name": "clubId", "type": "uint256"},
				{"internalType": "string", "name": "playerId", "type": "string"},
				{"internalType": "bytes32[]", "name": "mintProof", "type": "bytes32[]"}
			],
			"name": "mintPlayer",
			"outputs": [],
			"stateMutability": "payable",
			"type": "function"
		},
		{
			"anonymous": false,
			"inputs": [
				{"indexed": true, "internalType": "uint256", "name": "clubId", "type": "uint256"},
				{"indexed": true, "internalType": "uint256", "name": "assetId", "type": "uint256"},
				{"indexed": false, "internalType": "string", "name": "playerId", "type": "string"},
				{"indexed": false, "internalType": "uint256", "name": "mintPrice", "type": "uint256"}
			],
			"name": "AcademyPlayerMinted",
			"type": "event"
		}
	]`

	nftABIJSON = `[
		{
			"inputs": [
				{"internalType": "address", "name": "from", "type": "address"},
				{"internalType": "address", "name": "to", "type": "address"},
				{"internalType": "uint256", "name": "tokenId", "type": "uint256"}
			],
			"name": "transferFrom",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"internalType": "uint256", "name": "tokenId", "type": "uint256"}],
			"name": "ownerOf",
			"outputs": [{"internalType": "address", "name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`

	paymentABIJSON = `[
		{
			"inputs": [
				{"internalType": "uint256", "name": "mintPrice", "type": "uint256"},
				{"internalType": "uint256", "name": "clubId", "type": "uint256"},
				{"internalType": "string", "name": "playerId", "type": "string"},
				{"internalType": "address", "name": "recipient", "type": "address"}
			],
			"name": "receiveFunds",
			"outputs": [],
			"stateMutability": "payable",
			"type": "function"
		},
		{
			"anonymous": false,
			"inputs": [
				{"indexed": true, "internalType": "address", "name": "payer", "type": "address"},
				{"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
				{"indexed": false, "internalType": "uint256", "name": "mintPrice", "type": "uint256"},
				{"indexed": false, "internalType": "uint256", "name": "clubId", "type": "uint256"},
				{"indexed": false, "internalType": "string", "name": "playerId", "type": "string"},
				{"indexed": false, "internalType": "address", "name": "recipient", "type": "address"}
			],
			"name": "FundsReceived",
			"type": "event"
		}
	]`
)

// Event names decoded by this service.
const (
	EventAcademyPlayerMinted = "AcademyPlayerMinted"
	EventFundsReceived       = "FundsReceived"
)

// Parsed ABIs, built once at init. A parse failure here is a programming
// error in the constants above.
var (
	MintABI    abi.ABI
	NFTABI     abi.ABI
	PaymentABI abi.ABI
)

func init() {
	MintABI = mustParseABI("mint", mintABIJSON)
	NFTABI = mustParseABI("nft", nftABIJSON)
	PaymentABI = mustParseABI("payment", paymentABIJSON)
}

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("ledger: parsing %s ABI: %v", name, err))
	}
	return parsed
}
