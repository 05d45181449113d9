package mint

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/academymint/internal/domain"
)

func TestExecuteConfirmsAndDecodesAssetID(t *testing.T) {
	l := verifiedLedger(t, big.NewInt(74112))
	execCfg, _ := fastConfig()
	e := NewExecutor(l, testPolicy(t), execCfg, testLogger())

	var submitted common.Hash
	result, err := e.Execute(context.Background(), testRequest(t), nil, func(h common.Hash) { submitted = h })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if submitted != testMintTx {
		t.Fatalf("onSubmitted got %s, want %s", submitted.Hex(), testMintTx.Hex())
	}
	if result.AssetID.Cmp(big.NewInt(74112)) != 0 {
		t.Fatalf("asset id = %s, want 74112", result.AssetID)
	}
	if result.Event == nil || result.Event.PlayerID != "5-1808-4" {
		t.Fatalf("event not decoded: %+v", result.Event)
	}
}

func TestExecuteTimesOutWithoutReceipt(t *testing.T) {
	l := verifiedLedger(t, big.NewInt(1))
	delete(l.receipts, testMintTx)
	execCfg, _ := fastConfig()
	e := NewExecutor(l, testPolicy(t), execCfg, testLogger())

	result, err := e.Execute(context.Background(), testRequest(t), nil, nil)
	if !errors.Is(err, domain.ErrMintTimedOut) {
		t.Fatalf("got %v, want ErrMintTimedOut", err)
	}
	if result == nil || result.TxHash != testMintTx {
		t.Fatalf("partial result must carry the tx hash, got %+v", result)
	}
}

func TestExecuteRevertedReceipt(t *testing.T) {
	l := verifiedLedger(t, big.NewInt(1))
	l.receipts[testMintTx] = &types.Receipt{Status: types.ReceiptStatusFailed}
	execCfg, _ := fastConfig()
	e := NewExecutor(l, testPolicy(t), execCfg, testLogger())

	_, err := e.Execute(context.Background(), testRequest(t), nil, nil)
	if !errors.Is(err, domain.ErrMintEventNotFound) {
		t.Fatalf("got %v, want ErrMintEventNotFound", err)
	}
}

func TestExecuteReceiptWithoutMintEvent(t *testing.T) {
	l := verifiedLedger(t, big.NewInt(1))
	l.receipts[testMintTx] = &types.Receipt{Status: types.ReceiptStatusSuccessful}
	execCfg, _ := fastConfig()
	e := NewExecutor(l, testPolicy(t), execCfg, testLogger())

	_, err := e.Execute(context.Background(), testRequest(t), nil, nil)
	if !errors.Is(err, domain.ErrMintEventNotFound) {
		t.Fatalf("got %v, want ErrMintEventNotFound", err)
	}
}

func TestExecuteUnknownDivisionBeforeSubmission(t *testing.T) {
	l := verifiedLedger(t, big.NewInt(1))
	execCfg, _ := fastConfig()
	e := NewExecutor(l, testPolicy(t), execCfg, testLogger())

	req := testRequest(t)
	req.Division = "div99"

	_, err := e.Execute(context.Background(), req, nil, nil)
	if !errors.Is(err, domain.ErrUnknownDivision) {
		t.Fatalf("got %v, want ErrUnknownDivision", err)
	}
	if mints, _ := l.calls(); mints != 0 {
		t.Fatalf("submitted %d mints, want 0", mints)
	}
}

func TestExecuteCancelledBeforeSubmission(t *testing.T) {
	l := verifiedLedger(t, big.NewInt(1))
	execCfg, _ := fastConfig()
	e := NewExecutor(l, testPolicy(t), execCfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, testRequest(t), nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if mints, _ := l.calls(); mints != 0 {
		t.Fatalf("submitted %d mints, want 0", mints)
	}
}

func TestExecuteTracksAfterCallerCancel(t *testing.T) {
	l := verifiedLedger(t, big.NewInt(55))
	execCfg, _ := fastConfig()
	e := NewExecutor(l, testPolicy(t), execCfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	result, err := e.Execute(ctx, testRequest(t), nil, func(common.Hash) { cancel() })
	if err != nil {
		t.Fatalf("Execute after caller cancel: %v", err)
	}
	if result.AssetID.Cmp(big.NewInt(55)) != 0 {
		t.Fatalf("asset id = %s, want 55", result.AssetID)
	}
}
