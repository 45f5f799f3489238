package bounty

import (
	"context"
	"testing"
	"time"
)

func TestSweeper_ExpiresStaleOpenWagers(t *testing.T) {
	svc, store, ledger, now := newTestService(t)
	sweeper := NewSweeper(svc, store, time.Minute, testLogger())
	ctx := context.Background()

	stale := mustCreate(t, svc, "alice", 1000)
	fresh := mustCreate(t, svc, "bob", 1000)

	// Push only the first wager past its window.
	w, err := store.GetWager(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("GetWager failed: %v", err)
	}
	w.ExpiresAt = now.Add(96 * time.Hour)
	if err := store.UpdateWager(ctx, w, StatusOpen); err != nil {
		t.Fatalf("UpdateWager failed: %v", err)
	}
	*now = now.Add(72*time.Hour + time.Second)

	sweeper.Sweep(ctx)

	got, _ := svc.Get(ctx, stale.ID)
	if got.Status != StatusExpired {
		t.Errorf("Expected stale wager expired, got %s", got.Status)
	}
	if ledger.refunds[stale.ID] != 1000 {
		t.Errorf("Expected refund of 1000, got %d", ledger.refunds[stale.ID])
	}

	got, _ = svc.Get(ctx, fresh.ID)
	if got.Status != StatusOpen {
		t.Errorf("Fresh wager must survive the sweep, got %s", got.Status)
	}
}

func TestSweeper_FinalizesOverdueUndisputed(t *testing.T) {
	svc, store, ledger, now := newTestService(t)
	sweeper := NewSweeper(svc, store, time.Minute, testLogger())
	ctx := context.Background()

	snap := startedWager(t, svc, "alice", "bob", 1000)
	if _, err := svc.SubmitProof(ctx, SubmitProofRequest{
		WagerID: snap.ID, Submitter: "alice", ClaimedWinner: "alice",
	}); err != nil {
		t.Fatalf("SubmitProof failed: %v", err)
	}

	// Inside the window nothing settles.
	*now = now.Add(23 * time.Hour)
	sweeper.Sweep(ctx)
	got, _ := svc.Get(ctx, snap.ID)
	if got.Status != StatusPendingResult {
		t.Fatalf("Sweep inside window must not settle, got %s", got.Status)
	}

	*now = now.Add(time.Hour + time.Second)
	sweeper.Sweep(ctx)

	got, _ = svc.Get(ctx, snap.ID)
	if got.Status != StatusCompleted || got.Winner != "alice" {
		t.Errorf("Expected alice to win by inaction, got %s/%s", got.Status, got.Winner)
	}
	if ledger.releases[snap.ID].amount != 950 {
		t.Errorf("Expected payout of 950, got %d", ledger.releases[snap.ID].amount)
	}
}

func TestSweeper_LeavesDisputedAlone(t *testing.T) {
	svc, store, ledger, now := newTestService(t)
	sweeper := NewSweeper(svc, store, time.Minute, testLogger())
	ctx := context.Background()

	snap, _ := disputedWager(t, svc, "alice", "bob", 1000)

	*now = now.Add(48 * time.Hour)
	sweeper.Sweep(ctx)

	got, _ := svc.Get(ctx, snap.ID)
	if got.Status != StatusDisputed {
		t.Errorf("Disputed wager must wait for a moderator, got %s", got.Status)
	}
	if len(ledger.releases) != 0 {
		t.Error("No payout expected while disputed")
	}
}

func TestSweeper_StartStop(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	sweeper := NewSweeper(svc, store, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Start(ctx)
	deadline := time.After(time.Second)
	for !sweeper.Running() {
		select {
		case <-deadline:
			t.Fatal("Sweeper never started")
		case <-time.After(time.Millisecond):
		}
	}

	sweeper.Stop()
	deadline = time.After(time.Second)
	for sweeper.Running() {
		select {
		case <-deadline:
			t.Fatal("Sweeper never stopped")
		case <-time.After(time.Millisecond):
		}
	}
}
