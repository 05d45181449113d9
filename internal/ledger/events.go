package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// DecodeLog interprets a raw log against the named event signature. It
// returns false for logs that do not match; callers filter rather than treat
// a mismatch as fatal. Both indexed (topic) and non-indexed (data) arguments
// are decoded into the event's argument map.
func DecodeLog(lg types.Log, contractABI *abi.ABI, eventName string) (*domain.LedgerEvent, bool) {
	ev, ok := contractABI.Events[eventName]
	if !ok {
		return nil, false
	}
	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return nil, false
	}

	args := make(map[string]any)

	if err := contractABI.UnpackIntoMap(args, eventName, lg.Data); err != nil {
		return nil, false
	}

	var indexed abi.Arguments
	for _, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if len(indexed) > 0 {
		if len(lg.Topics) != len(indexed)+1 {
			return nil, false
		}
		if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			return nil, false
		}
	}

	return &domain.LedgerEvent{
		Name:        eventName,
		Args:        args,
		Contract:    lg.Address,
		TxHash:      lg.TxHash,
		BlockNumber: lg.BlockNumber,
		LogIndex:    lg.Index,
	}, true
}

// MintedEvent is the decoded AcademyPlayerMinted event.
type MintedEvent struct {
	ClubID    *big.Int
	AssetID   *big.Int
	PlayerID  string
	MintPrice *big.Int
}

// ParseMintedEvent extracts the typed fields from a decoded
// AcademyPlayerMinted event. AssetID may be nil when the event shape drifted
// from the known signature; the executor surfaces that as a distinct
// failure.
func ParseMintedEvent(e domain.LedgerEvent) (*MintedEvent, error) {
	if e.Name != EventAcademyPlayerMinted {
		return nil, fmt.Errorf("ledger: expected %s event, got %s", EventAcademyPlayerMinted, e.Name)
	}
	out := &MintedEvent{}
	out.ClubID, _ = e.Args["clubId"].(*big.Int)
	out.AssetID, _ = e.Args["assetId"].(*big.Int)
	out.PlayerID, _ = e.Args["playerId"].(string)
	out.MintPrice, _ = e.Args["mintPrice"].(*big.Int)
	return out, nil
}

// FundsReceivedEvent is the decoded FundsReceived payment event that drives
// the event-triggered mint flow.
type FundsReceivedEvent struct {
	Payer     common.Address
	Amount    *big.Int
	MintPrice *big.Int
	ClubID    *big.Int
	PlayerID  string
	Recipient common.Address
}

// ParseFundsReceived extracts the typed fields from a decoded FundsReceived
// event. Missing or mistyped fields are an error here: a payment log the
// service cannot fully interpret must never silently become a mint.
func ParseFundsReceived(e domain.LedgerEvent) (*FundsReceivedEvent, error) {
	if e.Name != EventFundsReceived {
		return nil, fmt.Errorf("ledger: expected %s event, got %s", EventFundsReceived, e.Name)
	}

	out := &FundsReceivedEvent{}
	var ok bool
	if out.Payer, ok = e.Args["payer"].(common.Address); !ok {
		return nil, fmt.Errorf("ledger: FundsReceived missing payer")
	}
	if out.Amount, ok = e.Args["amount"].(*big.Int); !ok {
		return nil, fmt.Errorf("ledger: FundsReceived missing amount")
	}
	if out.MintPrice, ok = e.Args["mintPrice"].(*big.Int); !ok {
		return nil, fmt.Errorf("ledger: FundsReceived missing mintPrice")
	}
	if out.ClubID, ok = e.Args["clubId"].(*big.Int); !ok {
		return nil, fmt.Errorf("ledger: FundsReceived missing clubId")
	}
	if out.PlayerID, ok = e.Args["playerId"].(string); !ok {
		return nil, fmt.Errorf("ledger: FundsReceived missing playerId")
	}
	if out.Recipient, ok = e.Args["recipient"].(common.Address); !ok {
		return nil, fmt.Errorf("ledger: FundsReceived missing recipient")
	}
	return out, nil
}
