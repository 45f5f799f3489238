//go:build integration

package bounty

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matchpit/bounty/internal/testutil"
)

func pgWager(id string, status Status, base time.Time) *Wager {
	return &Wager{
		ID:          id,
		Creator:     "pg-alice",
		Game:        "sf6",
		Description: "ft5",
		StakeAmount: 1000,
		Status:      status,
		CreatedAt:   base,
		UpdatedAt:   base,
		ExpiresAt:   base.Add(72 * time.Hour),
	}
}

func TestPGStore_WagerRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := pgWager("wgr_000000000000000000000001", StatusOpen, base)
	w.TargetUser = "pg-bob"
	if err := store.CreateWager(ctx, w); err != nil {
		t.Fatalf("CreateWager failed: %v", err)
	}

	got, err := store.GetWager(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWager failed: %v", err)
	}
	if got.Creator != "pg-alice" || got.TargetUser != "pg-bob" || got.StakeAmount != 1000 {
		t.Errorf("Round trip lost fields: %+v", got)
	}
	if got.AcceptedAt != nil || got.Winner != "" {
		t.Errorf("Fresh wager has settlement fields set: %+v", got)
	}
	if !got.ExpiresAt.Equal(w.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, w.ExpiresAt)
	}

	if _, err := store.GetWager(ctx, "wgr_ffffffffffffffffffffffff"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPGStore_UpdateWagerCAS(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := pgWager("wgr_000000000000000000000002", StatusOpen, base)
	if err := store.CreateWager(ctx, w); err != nil {
		t.Fatalf("CreateWager failed: %v", err)
	}

	now := base.Add(time.Minute)
	w.Status = StatusAccepted
	w.Acceptor = "pg-bob"
	w.AcceptedAt = &now
	if err := store.UpdateWager(ctx, w, StatusOpen); err != nil {
		t.Fatalf("UpdateWager failed: %v", err)
	}

	w.Status = StatusCancelled
	if err := store.UpdateWager(ctx, w, StatusOpen); !errors.Is(err, ErrStateConflict) {
		t.Errorf("Expected ErrStateConflict, got %v", err)
	}

	got, _ := store.GetWager(ctx, w.ID)
	if got.Status != StatusAccepted || got.Acceptor != "pg-bob" || got.AcceptedAt == nil {
		t.Errorf("Unexpected stored state: %+v", got)
	}
}

func TestPGStore_DeadlineQueries(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := pgWager("wgr_000000000000000000000003", StatusOpen, base)
	if err := store.CreateWager(ctx, stale); err != nil {
		t.Fatalf("CreateWager failed: %v", err)
	}

	deadline := stale.ExpiresAt
	got, err := store.ListExpiredOpen(ctx, deadline, 10)
	if err != nil {
		t.Fatalf("ListExpiredOpen failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Wager at the boundary must not list, got %d", len(got))
	}
	got, _ = store.ListExpiredOpen(ctx, deadline.Add(time.Second), 10)
	if len(got) != 1 {
		t.Errorf("Expected 1 expired wager, got %d", len(got))
	}

	pending := pgWager("wgr_000000000000000000000004", StatusPendingResult, base)
	pending.Acceptor = "pg-bob"
	submitted := base.Add(time.Hour)
	pending.ResultSubmittedAt = &submitted
	if err := store.CreateWager(ctx, pending); err != nil {
		t.Fatalf("CreateWager failed: %v", err)
	}

	overdue, err := store.ListOverduePending(ctx, submitted.Add(time.Second), 10)
	if err != nil {
		t.Fatalf("ListOverduePending failed: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("Expected 1 overdue wager, got %d", len(overdue))
	}

	// A dispute pulls the wager out of the overdue queue.
	d := &Dispute{ID: "dsp_pg1", WagerID: pending.ID, Disputer: "pg-bob", Reason: "contested", CreatedAt: base}
	if err := store.CreateDispute(ctx, d); err != nil {
		t.Fatalf("CreateDispute failed: %v", err)
	}
	overdue, _ = store.ListOverduePending(ctx, submitted.Add(time.Second), 10)
	if len(overdue) != 0 {
		t.Errorf("Disputed wager must not list as overdue, got %d", len(overdue))
	}
}

func TestPGStore_ChildRowConstraints(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := pgWager("wgr_000000000000000000000005", StatusOpen, base)
	if err := store.CreateWager(ctx, w); err != nil {
		t.Fatalf("CreateWager failed: %v", err)
	}

	acc := &Acceptance{ID: "acc_pg1", WagerID: w.ID, Acceptor: "pg-bob", CreatedAt: base}
	if err := store.CreateAcceptance(ctx, acc); err != nil {
		t.Fatalf("CreateAcceptance failed: %v", err)
	}
	dup := &Acceptance{ID: "acc_pg2", WagerID: w.ID, Acceptor: "pg-carol", CreatedAt: base}
	if err := store.CreateAcceptance(ctx, dup); !errors.Is(err, ErrAlreadyAccepted) {
		t.Errorf("Expected ErrAlreadyAccepted, got %v", err)
	}

	p := &Proof{
		ID: "prf_pg1", WagerID: w.ID, Submitter: "pg-alice", ClaimedWinner: "pg-bob",
		EvidenceURLs: []string{"https://clips.example.com/abc"}, EvidenceType: "vod", CreatedAt: base,
	}
	if err := store.CreateProof(ctx, p); err != nil {
		t.Fatalf("CreateProof failed: %v", err)
	}
	dupProof := &Proof{ID: "prf_pg2", WagerID: w.ID, Submitter: "pg-alice", ClaimedWinner: "pg-alice", CreatedAt: base}
	if err := store.CreateProof(ctx, dupProof); !errors.Is(err, ErrProofAlreadySubmitted) {
		t.Errorf("Expected ErrProofAlreadySubmitted, got %v", err)
	}

	proofs, err := store.ListProofs(ctx, w.ID)
	if err != nil {
		t.Fatalf("ListProofs failed: %v", err)
	}
	if len(proofs) != 1 || len(proofs[0].EvidenceURLs) != 1 {
		t.Errorf("Proof round trip lost evidence: %+v", proofs)
	}
}

func TestPGStore_DisputeLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	w := pgWager("wgr_000000000000000000000006", StatusDisputed, base)
	if err := store.CreateWager(ctx, w); err != nil {
		t.Fatalf("CreateWager failed: %v", err)
	}

	d := &Dispute{ID: "dsp_pg2", WagerID: w.ID, Disputer: "pg-bob", Reason: "doctored", Moderator: "mod_1", CreatedAt: base}
	if err := store.CreateDispute(ctx, d); err != nil {
		t.Fatalf("CreateDispute failed: %v", err)
	}
	dup := &Dispute{ID: "dsp_pg3", WagerID: w.ID, Disputer: "pg-alice", Reason: "again", CreatedAt: base}
	if err := store.CreateDispute(ctx, dup); !errors.Is(err, ErrAlreadyDisputed) {
		t.Errorf("Expected ErrAlreadyDisputed, got %v", err)
	}

	resolved := base.Add(time.Hour)
	d.Resolution = ResolutionReverse
	d.ResolvedAt = &resolved
	if err := store.UpdateDispute(ctx, d); err != nil {
		t.Fatalf("UpdateDispute failed: %v", err)
	}

	got, err := store.GetDisputeByWager(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetDisputeByWager failed: %v", err)
	}
	if got.Resolution != ResolutionReverse || !got.Resolved() {
		t.Errorf("Unexpected dispute state: %+v", got)
	}

	if _, err := store.GetDispute(ctx, "dsp_missing"); !errors.Is(err, ErrDisputeNotFound) {
		t.Errorf("Expected ErrDisputeNotFound, got %v", err)
	}
}
