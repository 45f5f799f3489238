package bounty

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory wager store for demo/development mode.
type MemoryStore struct {
	wagers      map[string]*Wager
	acceptances map[string]*Acceptance // wagerID -> acceptance
	proofs      map[string][]*Proof    // wagerID -> proofs in submission order
	disputes    map[string]*Dispute    // disputeID -> dispute
	byWager     map[string]string      // wagerID -> disputeID
	mu          sync.RWMutex
}

// NewMemoryStore creates a new in-memory wager store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wagers:      make(map[string]*Wager),
		acceptances: make(map[string]*Acceptance),
		proofs:      make(map[string][]*Proof),
		disputes:    make(map[string]*Dispute),
		byWager:     make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateWager(ctx context.Context, w *Wager) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := copyWager(w)
	m.wagers[w.ID] = cp
	return nil
}

func (m *MemoryStore) GetWager(ctx context.Context, id string) (*Wager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wagers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyWager(w), nil
}

func (m *MemoryStore) UpdateWager(ctx context.Context, w *Wager, from Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.wagers[w.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != from {
		return ErrStateConflict
	}
	m.wagers[w.ID] = copyWager(w)
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string, statuses []Status, limit int) ([]*Wager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var result []*Wager
	for _, w := range m.wagers {
		if w.Creator != userID && w.Acceptor != userID && w.TargetUser != userID {
			continue
		}
		if len(wanted) > 0 && !wanted[w.Status] {
			continue
		}
		result = append(result, copyWager(w))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryStore) ListExpiredOpen(ctx context.Context, asOf time.Time, limit int) ([]*Wager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Wager
	for _, w := range m.wagers {
		if w.Status == StatusOpen && w.ExpiresAt.Before(asOf) {
			result = append(result, copyWager(w))
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) ListOverduePending(ctx context.Context, submittedBefore time.Time, limit int) ([]*Wager, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Wager
	for _, w := range m.wagers {
		if w.Status != StatusPendingResult || w.ResultSubmittedAt == nil {
			continue
		}
		if _, disputed := m.byWager[w.ID]; disputed {
			continue
		}
		if w.ResultSubmittedAt.Before(submittedBefore) {
			result = append(result, copyWager(w))
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) SumActiveStakes(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, w := range m.wagers {
		if !w.IsTerminal() {
			total += w.StakeAmount
		}
	}
	return total, nil
}

func (m *MemoryStore) CreateAcceptance(ctx context.Context, a *Acceptance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.acceptances[a.WagerID]; exists {
		return ErrAlreadyAccepted
	}
	cp := *a
	m.acceptances[a.WagerID] = &cp
	return nil
}

func (m *MemoryStore) GetAcceptance(ctx context.Context, wagerID string) (*Acceptance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.acceptances[wagerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) DeleteAcceptance(ctx context.Context, wagerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.acceptances, wagerID)
	return nil
}

func (m *MemoryStore) CreateProof(ctx context.Context, p *Proof) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.proofs[p.WagerID] {
		if existing.Submitter == p.Submitter {
			return ErrProofAlreadySubmitted
		}
	}
	m.proofs[p.WagerID] = append(m.proofs[p.WagerID], copyProof(p))
	return nil
}

func (m *MemoryStore) ListProofs(ctx context.Context, wagerID string) ([]*Proof, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	proofs := m.proofs[wagerID]
	result := make([]*Proof, 0, len(proofs))
	for _, p := range proofs {
		result = append(result, copyProof(p))
	}
	return result, nil
}

func (m *MemoryStore) CreateDispute(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byWager[d.WagerID]; exists {
		return ErrAlreadyDisputed
	}
	cp := *d
	m.disputes[d.ID] = &cp
	m.byWager[d.WagerID] = d.ID
	return nil
}

func (m *MemoryStore) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	return copyDispute(d), nil
}

func (m *MemoryStore) GetDisputeByWager(ctx context.Context, wagerID string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byWager[wagerID]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	return copyDispute(m.disputes[id]), nil
}

func (m *MemoryStore) UpdateDispute(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[d.ID]; !ok {
		return ErrDisputeNotFound
	}
	m.disputes[d.ID] = copyDispute(d)
	return nil
}

// Deep copies prevent races on shared pointers and slice backing arrays.

func copyWager(w *Wager) *Wager {
	cp := *w
	cp.AcceptedAt = copyTime(w.AcceptedAt)
	cp.StartedAt = copyTime(w.StartedAt)
	cp.ResultSubmittedAt = copyTime(w.ResultSubmittedAt)
	cp.CompletedAt = copyTime(w.CompletedAt)
	return &cp
}

func copyProof(p *Proof) *Proof {
	cp := *p
	if p.EvidenceURLs != nil {
		cp.EvidenceURLs = make([]string, len(p.EvidenceURLs))
		copy(cp.EvidenceURLs, p.EvidenceURLs)
	}
	return &cp
}

func copyDispute(d *Dispute) *Dispute {
	cp := *d
	cp.ResolvedAt = copyTime(d.ResolvedAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
