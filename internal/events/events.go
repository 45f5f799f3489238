// Package events delivers wager lifecycle notifications to external
// services.
//
// Players register webhook URLs to hear about the wagers they are in:
// acceptances, match starts, proofs, disputes, and settlements. Payloads
// are HMAC-signed so receivers can verify origin.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSubscriptionNotFound is returned when a subscription id is unknown.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// EventType represents the type of notification event.
type EventType string

const (
	EventWagerCreated   EventType = "wager.created"
	EventWagerAccepted  EventType = "wager.accepted"
	EventWagerStarted   EventType = "wager.started"
	EventProofSubmitted EventType = "wager.proof_submitted"
	EventDisputeOpened  EventType = "wager.dispute_opened"
	EventWagerSettled   EventType = "wager.settled"
	EventWagerCancelled EventType = "wager.cancelled"
	EventWagerExpired   EventType = "wager.expired"
)

// KnownEventTypes lists every event a subscription may ask for.
var KnownEventTypes = []EventType{
	EventWagerCreated, EventWagerAccepted, EventWagerStarted,
	EventProofSubmitted, EventDisputeOpened, EventWagerSettled,
	EventWagerCancelled, EventWagerExpired,
}

// IsKnownEventType reports whether t is a deliverable event type.
func IsKnownEventType(t EventType) bool {
	for _, k := range KnownEventTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Event is a single notification payload.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription is one player's webhook registration.
type Subscription struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	URL         string      `json:"url"`
	Secret      string      `json:"-"` // Used for HMAC signing
	Events      []EventType `json:"events"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"createdAt"`
	LastSuccess *time.Time  `json:"lastSuccess,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
}

// Wants reports whether the subscription covers the event type.
func (s *Subscription) Wants(t EventType) bool {
	for _, et := range s.Events {
		if et == t {
			return true
		}
	}
	return false
}

// Store persists webhook subscriptions.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByUser(ctx context.Context, userID string) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory subscription store.
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return sub, nil
	}
	return nil, ErrSubscriptionNotFound
}

func (m *MemoryStore) GetByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		if sub.UserID == userID {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}
