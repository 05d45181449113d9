// Package memory implements the domain store interfaces with in-process
// maps. Used for local development and as a fallback when no database is
// configured; records do not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// OutcomeStore is a mutex-guarded in-memory domain.OutcomeStore.
type OutcomeStore struct {
	mu      sync.RWMutex
	byID    map[string]*domain.MintOutcome
	byPayTx map[string]string
}

// NewOutcomeStore creates an empty OutcomeStore.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{
		byID:    make(map[string]*domain.MintOutcome),
		byPayTx: make(map[string]string),
	}
}

// Create inserts a new outcome, rejecting a payment transaction that is
// already on record.
func (s *OutcomeStore) Create(_ context.Context, o *domain.MintOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPayTx[o.PaymentTx]; ok {
		return fmt.Errorf("memory: outcome for payment %s: %w", o.PaymentTx, domain.ErrDuplicateRequest)
	}
	cp := *o
	s.byID[o.ID] = &cp
	s.byPayTx[o.PaymentTx] = o.ID
	return nil
}

// Update overwrites an existing outcome.
func (s *OutcomeStore) Update(_ context.Context, o *domain.MintOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[o.ID]; !ok {
		return fmt.Errorf("memory: outcome %s: %w", o.ID, domain.ErrNotFound)
	}
	cp := *o
	s.byID[o.ID] = &cp
	return nil
}

// GetByID returns an outcome by its id.
func (s *OutcomeStore) GetByID(_ context.Context, id string) (*domain.MintOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("memory: outcome %s: %w", id, domain.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

// GetByPaymentTx returns the outcome recorded for a payment transaction.
func (s *OutcomeStore) GetByPaymentTx(_ context.Context, paymentTx string) (*domain.MintOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPayTx[paymentTx]
	if !ok {
		return nil, fmt.Errorf("memory: outcome for payment %s: %w", paymentTx, domain.ErrNotFound)
	}
	cp := *s.byID[id]
	return &cp, nil
}

// ListTerminalBefore returns up to limit delivered/failed outcomes last
// updated before the cutoff, oldest first.
func (s *OutcomeStore) ListTerminalBefore(_ context.Context, before time.Time, limit int) ([]*domain.MintOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.MintOutcome
	for _, o := range s.byID {
		if o.Status.Terminal() && o.UpdatedAt.Before(before) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteByIDs removes outcomes by id, returning the number deleted.
func (s *OutcomeStore) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		o, ok := s.byID[id]
		if !ok {
			continue
		}
		delete(s.byID, id)
		delete(s.byPayTx, o.PaymentTx)
		n++
	}
	return n, nil
}

// CursorStore is a mutex-guarded in-memory domain.CursorStore.
type CursorStore struct {
	mu      sync.RWMutex
	cursors map[string]cursor
}

type cursor struct {
	block    uint64
	logIndex int64
}

// NewCursorStore creates an empty CursorStore.
func NewCursorStore() *CursorStore {
	return &CursorStore{cursors: make(map[string]cursor)}
}

// Get returns the stored position for a named subscription.
func (s *CursorStore) Get(_ context.Context, name string) (uint64, int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[name]
	return c.block, c.logIndex, ok, nil
}

// Put stores the position, overwriting any previous value.
func (s *CursorStore) Put(_ context.Context, name string, block uint64, logIndex int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[name] = cursor{block: block, logIndex: logIndex}
	return nil
}
