package bounty

import "testing"

func TestEvaluate(t *testing.T) {
	proof := func(submitter, winner string) *Proof {
		return &Proof{Submitter: submitter, ClaimedWinner: winner}
	}

	tests := []struct {
		name       string
		proofs     []*Proof
		decision   Decision
		wantWinner string
	}{
		{
			name:     "no proofs",
			proofs:   nil,
			decision: AwaitingSecondProof,
		},
		{
			name:     "single proof",
			proofs:   []*Proof{proof("alice", "alice")},
			decision: AwaitingSecondProof,
		},
		{
			name:       "agreement on the acceptor",
			proofs:     []*Proof{proof("alice", "bob"), proof("bob", "bob")},
			decision:   Agreed,
			wantWinner: "bob",
		},
		{
			name:       "agreement on the creator",
			proofs:     []*Proof{proof("alice", "alice"), proof("bob", "alice")},
			decision:   Agreed,
			wantWinner: "alice",
		},
		{
			name:     "each claims themselves",
			proofs:   []*Proof{proof("alice", "alice"), proof("bob", "bob")},
			decision: Conflicting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, winner := Evaluate(tt.proofs)
			if decision != tt.decision {
				t.Errorf("Expected %s, got %s", tt.decision, decision)
			}
			if winner != tt.wantWinner {
				t.Errorf("Expected winner %q, got %q", tt.wantWinner, winner)
			}
		})
	}
}
