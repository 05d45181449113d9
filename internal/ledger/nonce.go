package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// nonceSource is the single ethclient method the nonce manager needs; split
// out so tests can fake it.
type nonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// nonceManager hands out sequential nonces for the operator address. The
// pending nonce is fetched from the node once, then incremented locally so
// concurrent submissions stay strictly ordered. After a failed send the
// manager is reset and resyncs from the node on the next reservation.
type nonceManager struct {
	mu     sync.Mutex
	next   uint64
	synced bool
}

func newNonceManager() *nonceManager {
	return &nonceManager{}
}

// reserveLocked returns the next nonce. The caller must hold mu across the
// subsequent SendTransaction so the reserve-and-send section is atomic.
func (m *nonceManager) reserveLocked(ctx context.Context, src nonceSource, account common.Address) (uint64, error) {
	if !m.synced {
		pending, err := src.PendingNonceAt(ctx, account)
		if err != nil {
			return 0, err
		}
		m.next = pending
		m.synced = true
	}
	n := m.next
	m.next++
	return n, nil
}

// resetLocked discards the local sequence; the next reservation resyncs from
// the node. The caller must hold mu.
func (m *nonceManager) resetLocked() {
	m.synced = false
}
