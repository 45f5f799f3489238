// Package bounty implements peer-to-peer wagers between players.
//
// Flow:
//  1. Creator stakes the pot → funds locked in escrow, wager OPEN
//  2. An opponent accepts, the match starts
//  3. Participants submit result proofs; agreement settles immediately
//  4. Disagreement opens a dispute window; a moderator rules or the
//     first submission wins by inaction
//  5. Settlement pays the winner 95% of the stake; the platform keeps
//     the remainder. Cancelled, expired, and voided wagers refund in full
package bounty

import (
	"errors"
	"time"
)

var (
	ErrNotFound              = errors.New("wager not found")
	ErrDisputeNotFound       = errors.New("dispute not found")
	ErrStateConflict         = errors.New("operation not allowed in current wager state")
	ErrInvalidStake          = errors.New("stake outside allowed band")
	ErrSelfWager             = errors.New("creator cannot play against themselves")
	ErrNotTargeted           = errors.New("wager reserved for another player")
	ErrAlreadyAccepted       = errors.New("wager already accepted by another player")
	ErrNotParticipant        = errors.New("caller is not a participant in this wager")
	ErrNotCreator            = errors.New("only the creator may do this")
	ErrInvalidProof          = errors.New("proof names a non-participant")
	ErrProofAlreadySubmitted = errors.New("participant already submitted a proof")
	ErrAlreadyDisputed       = errors.New("wager already has a dispute")
	ErrDisputeResolved       = errors.New("dispute already resolved")
	ErrDisputeWindowClosed   = errors.New("dispute window has closed")
)

// Status represents the state of a wager.
type Status string

const (
	StatusOpen          Status = "open"           // Created, stake locked, awaiting an opponent
	StatusAccepted      Status = "accepted"       // Opponent committed
	StatusInProgress    Status = "in_progress"    // Match underway
	StatusPendingResult Status = "pending_result" // First proof in, dispute window running
	StatusDisputed      Status = "disputed"       // Awaiting a moderator ruling
	StatusCompleted     Status = "completed"      // Settled (winner paid or stake voided)
	StatusExpired       Status = "expired"        // No one accepted in time, stake refunded
	StatusCancelled     Status = "cancelled"      // Creator pulled it before acceptance
)

// Settlement outcomes recorded on a completed wager.
const (
	OutcomeWon    = "won"
	OutcomeVoided = "voided"
)

// Dispute resolutions a moderator may issue.
const (
	ResolutionConfirm = "confirm_original"
	ResolutionReverse = "reverse"
	ResolutionVoid    = "void"
)

// Wager is the root entity. The creator stakes the pot; whoever wins
// takes the payout from it.
type Wager struct {
	ID          string `json:"id"`
	Creator     string `json:"creator"`
	Acceptor    string `json:"acceptor,omitempty"`
	TargetUser  string `json:"targetUser,omitempty"` // restricts who may accept
	Winner      string `json:"winner,omitempty"`
	Game        string `json:"game"`
	Description string `json:"description,omitempty"`

	StakeAmount  int64  `json:"stakeAmount"`
	PayoutAmount int64  `json:"payoutAmount"` // set at settlement
	PlatformFee  int64  `json:"platformFee"`  // set at settlement
	Outcome      string `json:"outcome,omitempty"`

	Status Status `json:"status"`

	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	AcceptedAt        *time.Time `json:"acceptedAt,omitempty"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	ResultSubmittedAt *time.Time `json:"resultSubmittedAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// IsTerminal returns true if the wager is in a final state.
func (w *Wager) IsTerminal() bool {
	switch w.Status {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsExpired reports whether an OPEN wager has outlived its acceptance
// window. Strictly after the deadline; the boundary instant still counts
// as alive.
func (w *Wager) IsExpired(now time.Time) bool {
	return w.Status == StatusOpen && now.After(w.ExpiresAt)
}

// IsParticipant reports whether user is the creator or the acceptor.
func (w *Wager) IsParticipant(user string) bool {
	return user != "" && (user == w.Creator || user == w.Acceptor)
}

// OtherParticipant returns the participant that is not user, or "" if
// user is not a participant.
func (w *Wager) OtherParticipant(user string) string {
	switch user {
	case w.Creator:
		return w.Acceptor
	case w.Acceptor:
		return w.Creator
	}
	return ""
}

// DisputeDeadline returns when the dispute window closes, or nil if no
// proof has been submitted yet.
func (w *Wager) DisputeDeadline(window time.Duration) *time.Time {
	if w.ResultSubmittedAt == nil {
		return nil
	}
	d := w.ResultSubmittedAt.Add(window)
	return &d
}

// Acceptance records the single opponent who accepted a wager.
// Immutable once written.
type Acceptance struct {
	ID        string    `json:"id"`
	WagerID   string    `json:"wagerId"`
	Acceptor  string    `json:"acceptor"`
	CreatedAt time.Time `json:"createdAt"`
}

// Proof is one participant's claim about the match result. Append-only;
// the set of proofs for a wager, not any single one, decides settlement.
type Proof struct {
	ID            string    `json:"id"`
	WagerID       string    `json:"wagerId"`
	Submitter     string    `json:"submitter"`
	ClaimedWinner string    `json:"claimedWinner"`
	EvidenceURLs  []string  `json:"evidenceUrls,omitempty"`
	EvidenceType  string    `json:"evidenceType,omitempty"` // screenshot, vod, replay
	CreatedAt     time.Time `json:"createdAt"`
}

// Dispute challenges the first submitted proof. One per wager.
type Dispute struct {
	ID         string     `json:"id"`
	WagerID    string     `json:"wagerId"`
	Disputer   string     `json:"disputer"`
	Reason     string     `json:"reason"`
	Moderator  string     `json:"moderator,omitempty"`
	Resolution string     `json:"resolution,omitempty"` // confirm_original, reverse, void
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Resolved reports whether a moderator has ruled on the dispute.
func (d *Dispute) Resolved() bool {
	return d.ResolvedAt != nil
}

// Snapshot is the wager view returned to callers, with fields derived
// from the underlying timestamps at read time.
type Snapshot struct {
	*Wager
	IsExpired       bool       `json:"isExpired"`
	CanDispute      bool       `json:"canDispute"`
	DisputeDeadline *time.Time `json:"disputeDeadline,omitempty"`
}
