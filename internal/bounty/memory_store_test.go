package bounty

import (
	"context"
	"errors"
	"testing"
	"time"
)

func storeWager(t *testing.T, store Store, id string, status Status, expiresAt time.Time) *Wager {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := &Wager{
		ID:          id,
		Creator:     "alice",
		Game:        "sf6",
		StakeAmount: 1000,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   expiresAt,
	}
	if err := store.CreateWager(context.Background(), w); err != nil {
		t.Fatalf("CreateWager failed: %v", err)
	}
	return w
}

func TestMemoryStore_UpdateWagerCAS(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expires := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	w := storeWager(t, store, "wgr_cas", StatusOpen, expires)

	w.Status = StatusAccepted
	if err := store.UpdateWager(ctx, w, StatusOpen); err != nil {
		t.Fatalf("UpdateWager failed: %v", err)
	}

	// A writer still holding the old state loses.
	w.Status = StatusCancelled
	err := store.UpdateWager(ctx, w, StatusOpen)
	if !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict, got %v", err)
	}

	got, err := store.GetWager(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWager failed: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Errorf("Losing write must not land, got %s", got.Status)
	}
}

func TestMemoryStore_GetWagerCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expires := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	storeWager(t, store, "wgr_copy", StatusOpen, expires)

	got, _ := store.GetWager(ctx, "wgr_copy")
	got.Status = StatusCompleted

	again, _ := store.GetWager(ctx, "wgr_copy")
	if again.Status != StatusOpen {
		t.Error("Mutating a returned wager must not affect the store")
	}
}

func TestMemoryStore_ListExpiredOpenBoundary(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	deadline := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	storeWager(t, store, "wgr_boundary", StatusOpen, deadline)

	// At the deadline instant the wager is still alive.
	got, err := store.ListExpiredOpen(ctx, deadline, 10)
	if err != nil {
		t.Fatalf("ListExpiredOpen failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Wager at the boundary must not list, got %d", len(got))
	}

	got, _ = store.ListExpiredOpen(ctx, deadline.Add(time.Second), 10)
	if len(got) != 1 {
		t.Errorf("Expected 1 expired wager past the deadline, got %d", len(got))
	}
}

func TestMemoryStore_SingleAcceptanceAndDispute(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expires := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	w := storeWager(t, store, "wgr_once", StatusOpen, expires)

	acc := &Acceptance{ID: "acc_1", WagerID: w.ID, Acceptor: "bob", CreatedAt: w.CreatedAt}
	if err := store.CreateAcceptance(ctx, acc); err != nil {
		t.Fatalf("CreateAcceptance failed: %v", err)
	}
	dup := &Acceptance{ID: "acc_2", WagerID: w.ID, Acceptor: "carol", CreatedAt: w.CreatedAt}
	if err := store.CreateAcceptance(ctx, dup); !errors.Is(err, ErrAlreadyAccepted) {
		t.Errorf("Expected ErrAlreadyAccepted, got %v", err)
	}

	d := &Dispute{ID: "dsp_1", WagerID: w.ID, Disputer: "bob", Reason: "x", CreatedAt: w.CreatedAt}
	if err := store.CreateDispute(ctx, d); err != nil {
		t.Fatalf("CreateDispute failed: %v", err)
	}
	d2 := &Dispute{ID: "dsp_2", WagerID: w.ID, Disputer: "alice", Reason: "y", CreatedAt: w.CreatedAt}
	if err := store.CreateDispute(ctx, d2); !errors.Is(err, ErrAlreadyDisputed) {
		t.Errorf("Expected ErrAlreadyDisputed, got %v", err)
	}

	if _, err := store.GetDisputeByWager(ctx, "wgr_missing"); !errors.Is(err, ErrDisputeNotFound) {
		t.Errorf("Expected ErrDisputeNotFound, got %v", err)
	}
}

func TestMemoryStore_ProofPerParticipant(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expires := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	w := storeWager(t, store, "wgr_proofs", StatusInProgress, expires)

	p1 := &Proof{ID: "prf_1", WagerID: w.ID, Submitter: "alice", ClaimedWinner: "alice", CreatedAt: w.CreatedAt}
	if err := store.CreateProof(ctx, p1); err != nil {
		t.Fatalf("CreateProof failed: %v", err)
	}
	dup := &Proof{ID: "prf_2", WagerID: w.ID, Submitter: "alice", ClaimedWinner: "bob", CreatedAt: w.CreatedAt}
	if err := store.CreateProof(ctx, dup); !errors.Is(err, ErrProofAlreadySubmitted) {
		t.Errorf("Expected ErrProofAlreadySubmitted, got %v", err)
	}

	p2 := &Proof{ID: "prf_3", WagerID: w.ID, Submitter: "bob", ClaimedWinner: "bob", CreatedAt: w.CreatedAt.Add(time.Minute)}
	if err := store.CreateProof(ctx, p2); err != nil {
		t.Fatalf("CreateProof failed: %v", err)
	}
	proofs, err := store.ListProofs(ctx, w.ID)
	if err != nil {
		t.Fatalf("ListProofs failed: %v", err)
	}
	if len(proofs) != 2 || proofs[0].Submitter != "alice" {
		t.Errorf("Expected 2 proofs in submission order, got %d", len(proofs))
	}
}
