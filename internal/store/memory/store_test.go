package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/academymint/internal/domain"
)

func outcome(id, paymentTx string, status domain.MintStatus, updated time.Time) *domain.MintOutcome {
	return &domain.MintOutcome{
		ID:        id,
		PlayerID:  "5-1808-1",
		PaymentTx: paymentTx,
		Status:    status,
		UpdatedAt: updated,
	}
}

func TestOutcomeStoreRejectsDuplicatePayment(t *testing.T) {
	s := NewOutcomeStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.Create(ctx, outcome("a", "0x01", domain.MintStatusSubmitted, now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create(ctx, outcome("b", "0x01", domain.MintStatusSubmitted, now))
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("got %v, want ErrDuplicateRequest", err)
	}
}

func TestOutcomeStoreLookups(t *testing.T) {
	s := NewOutcomeStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.Create(ctx, outcome("a", "0x01", domain.MintStatusSubmitted, now)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	byID, err := s.GetByID(ctx, "a")
	if err != nil || byID.PaymentTx != "0x01" {
		t.Fatalf("GetByID = %+v, %v", byID, err)
	}
	byTx, err := s.GetByPaymentTx(ctx, "0x01")
	if err != nil || byTx.ID != "a" {
		t.Fatalf("GetByPaymentTx = %+v, %v", byTx, err)
	}
	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}

	byID.Status = domain.MintStatusDelivered
	if err := s.Update(ctx, byID); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ := s.GetByID(ctx, "a")
	if again.Status != domain.MintStatusDelivered {
		t.Fatalf("update not persisted: %s", again.Status)
	}

	if err := s.Update(ctx, outcome("missing", "0x09", domain.MintStatusFailed, now)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestOutcomeStoreTerminalListingAndDelete(t *testing.T) {
	s := NewOutcomeStore()
	ctx := context.Background()
	cutoff := time.Now()

	fixtures := []*domain.MintOutcome{
		outcome("old-delivered", "0x01", domain.MintStatusDelivered, cutoff.Add(-2*time.Hour)),
		outcome("old-failed", "0x02", domain.MintStatusFailed, cutoff.Add(-time.Hour)),
		outcome("old-outstanding", "0x03", domain.MintStatusOutstanding, cutoff.Add(-time.Hour)),
		outcome("fresh-delivered", "0x04", domain.MintStatusDelivered, cutoff.Add(time.Hour)),
	}
	for _, o := range fixtures {
		if err := s.Create(ctx, o); err != nil {
			t.Fatalf("Create %s: %v", o.ID, err)
		}
	}

	listed, err := s.ListTerminalBefore(ctx, cutoff, 10)
	if err != nil {
		t.Fatalf("ListTerminalBefore: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed %d, want 2 (non-terminal and fresh excluded)", len(listed))
	}
	if listed[0].ID != "old-delivered" || listed[1].ID != "old-failed" {
		t.Fatalf("wrong order: %s, %s", listed[0].ID, listed[1].ID)
	}

	n, err := s.DeleteByIDs(ctx, []string{"old-delivered", "old-failed", "missing"})
	if err != nil || n != 2 {
		t.Fatalf("DeleteByIDs = %d, %v", n, err)
	}
	if _, err := s.GetByPaymentTx(ctx, "0x01"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("payment index not cleaned: %v", err)
	}
}

func TestCursorStoreRoundTrip(t *testing.T) {
	s := NewCursorStore()
	ctx := context.Background()

	if _, _, ok, err := s.Get(ctx, "funds_received"); ok || err != nil {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, "funds_received", 120, 4); err != nil {
		t.Fatalf("Put: %v", err)
	}
	block, idx, ok, err := s.Get(ctx, "funds_received")
	if err != nil || !ok || block != 120 || idx != 4 {
		t.Fatalf("Get = (%d, %d, %v, %v)", block, idx, ok, err)
	}

	// The sentinel index marking "no log yet in this block" must survive a
	// round trip.
	if err := s.Put(ctx, "funds_received", 130, -1); err != nil {
		t.Fatalf("Put sentinel: %v", err)
	}
	block, idx, ok, err = s.Get(ctx, "funds_received")
	if err != nil || !ok || block != 130 || idx != -1 {
		t.Fatalf("Get sentinel = (%d, %d, %v, %v)", block, idx, ok, err)
	}
}
