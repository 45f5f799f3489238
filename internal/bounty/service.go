package bounty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/matchpit/bounty/internal/idgen"
	"github.com/matchpit/bounty/internal/metrics"
	"github.com/matchpit/bounty/internal/money"
	"github.com/matchpit/bounty/internal/syncutil"
	"github.com/matchpit/bounty/internal/traces"
)

// Domain events emitted after state writes commit.
const (
	EventWagerCreated   = "wager.created"
	EventWagerAccepted  = "wager.accepted"
	EventWagerStarted   = "wager.started"
	EventProofSubmitted = "wager.proof_submitted"
	EventDisputeOpened  = "wager.dispute_opened"
	EventWagerSettled   = "wager.settled"
	EventWagerCancelled = "wager.cancelled"
	EventWagerExpired   = "wager.expired"
)

// ErrInvalidResolution rejects unknown moderator rulings.
var ErrInvalidResolution = errors.New("unknown dispute resolution")

// ErrOwnProof rejects a dispute from the participant whose proof is on file.
var ErrOwnProof = errors.New("cannot dispute your own proof")

// EscrowLedger is the money boundary. All four operations are
// idempotent per wager, so retrying a settlement never pays twice.
type EscrowLedger interface {
	Hold(ctx context.Context, wagerID, userID string, amount int64) error
	Release(ctx context.Context, wagerID, fromID, toID string, amount int64) error
	Collect(ctx context.Context, wagerID, fromID string, fee int64) error
	Refund(ctx context.Context, wagerID, userID string, amount int64) error
}

// Notifier receives domain events after they are committed.
type Notifier interface {
	Notify(ctx context.Context, event string, snap *Snapshot)
}

// ModeratorAssigner hands out a moderator for a newly opened dispute.
type ModeratorAssigner interface {
	NextModerator() string
}

// Config carries the wager policy knobs.
type Config struct {
	MinStake         int64
	MaxStake         int64
	FeeBps           int
	AcceptanceWindow time.Duration
	DisputeWindow    time.Duration
}

// Service is the wager state machine. Every mutating operation for a
// given wager is serialized through a per-wager lock; the store's
// compare-and-swap update catches writers on other instances.
type Service struct {
	store    Store
	ledger   EscrowLedger
	cfg      Config
	locks    *syncutil.ShardedMutex
	logger   *slog.Logger
	notifier Notifier
	assigner ModeratorAssigner
	now      func() time.Time
}

// NewService creates a wager service.
func NewService(store Store, ledger EscrowLedger, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		ledger: ledger,
		cfg:    cfg,
		locks:  syncutil.NewShardedMutex(),
		logger: logger,
		now:    time.Now,
	}
}

// WithNotifier adds a domain event sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithAssigner adds a moderator assigner for new disputes.
func (s *Service) WithAssigner(a ModeratorAssigner) *Service {
	s.assigner = a
	return s
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateRequest contains the parameters for creating a wager.
type CreateRequest struct {
	Creator     string `json:"creator"`
	Game        string `json:"game" binding:"required"`
	TargetUser  string `json:"targetUser"`
	Description string `json:"description"`
	Stake       int64  `json:"stake" binding:"required"`
}

// SubmitProofRequest contains the parameters for a result submission.
type SubmitProofRequest struct {
	WagerID       string
	Submitter     string
	ClaimedWinner string   `json:"claimedWinner" binding:"required"`
	EvidenceURLs  []string `json:"evidenceUrls"`
	EvidenceType  string   `json:"evidenceType"`
}

// Create validates the stake, locks the creator's funds, and persists a
// new OPEN wager. An escrow failure aborts the whole operation; a
// persist failure refunds the hold.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Snapshot, error) {
	if req.Stake < s.cfg.MinStake || req.Stake > s.cfg.MaxStake {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidStake, req.Stake, s.cfg.MinStake, s.cfg.MaxStake)
	}
	if req.TargetUser != "" && req.TargetUser == req.Creator {
		return nil, ErrSelfWager
	}

	ctx, span := traces.StartSpan(ctx, "bounty.Create",
		traces.UserID(req.Creator), traces.Stake(req.Stake))
	defer span.End()

	now := s.now()
	w := &Wager{
		ID:          idgen.WithPrefix("wgr_"),
		Creator:     req.Creator,
		TargetUser:  req.TargetUser,
		Game:        req.Game,
		Description: req.Description,
		StakeAmount: req.Stake,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.AcceptanceWindow),
	}

	if err := s.ledger.Hold(ctx, w.ID, w.Creator, w.StakeAmount); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("escrow hold failed: %w", err)
	}

	if err := s.store.CreateWager(ctx, w); err != nil {
		// The hold went through; give it back before reporting failure.
		_ = s.ledger.Refund(ctx, w.ID, w.Creator, w.StakeAmount)
		return nil, fmt.Errorf("failed to create wager record: %w", err)
	}

	metrics.WagersCreatedTotal.Inc()
	snap := s.snapshot(w)
	s.notify(ctx, EventWagerCreated, snap)
	return snap, nil
}

// Accept commits an opponent to an OPEN wager. Idempotent for the same
// acceptor; a different acceptor after the first fails.
func (s *Service) Accept(ctx context.Context, id, acceptor string) (*Snapshot, error) {
	ctx, span := traces.StartSpan(ctx, "bounty.Accept",
		traces.WagerID(id), traces.UserID(acceptor))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	w, err := s.store.GetWager(ctx, id)
	if err != nil {
		return nil, err
	}
	if w, err = s.lazyExpire(ctx, w); err != nil {
		return nil, err
	}

	if w.Acceptor != "" {
		if w.Acceptor == acceptor {
			// Repeat call from the same opponent returns the existing
			// acceptance unchanged.
			return s.snapshot(w), nil
		}
		return nil, ErrAlreadyAccepted
	}
	if w.Status != StatusOpen {
		return nil, s.stateConflict(w)
	}
	if acceptor == w.Creator {
		return nil, ErrSelfWager
	}
	if w.TargetUser != "" && w.TargetUser != acceptor {
		return nil, ErrNotTargeted
	}

	now := s.now()
	acc := &Acceptance{
		ID:        idgen.WithPrefix("acc_"),
		WagerID:   w.ID,
		Acceptor:  acceptor,
		CreatedAt: now,
	}
	if err := s.store.CreateAcceptance(ctx, acc); err != nil {
		return nil, err
	}

	w.Acceptor = acceptor
	w.Status = StatusAccepted
	w.AcceptedAt = &now
	w.UpdatedAt = now
	if err := s.store.UpdateWager(ctx, w, StatusOpen); err != nil {
		// A concurrent writer (expiry sweep, rival accept in another
		// process) won the transition. Undo the acceptance record so
		// the loser leaves no orphan behind.
		if derr := s.store.DeleteAcceptance(ctx, w.ID); derr != nil {
			s.logger.Warn("failed to undo acceptance after lost update",
				"wager_id", w.ID, "error", derr)
		}
		return nil, err
	}

	metrics.WagersAcceptedTotal.Inc()
	snap := s.snapshot(w)
	s.notify(ctx, EventWagerAccepted, snap)
	return snap, nil
}

// Start marks the match as underway. Timeline marker only; no escrow
// effect.
func (s *Service) Start(ctx context.Context, id, caller string) (*Snapshot, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	w, err := s.store.GetWager(ctx, id)
	if err != nil {
		return nil, err
	}
	if w, err = s.lazyExpire(ctx, w); err != nil {
		return nil, err
	}
	if !w.IsParticipant(caller) {
		return nil, ErrNotParticipant
	}
	if w.Status != StatusAccepted {
		return nil, s.stateConflict(w)
	}

	now := s.now()
	w.Status = StatusInProgress
	w.StartedAt = &now
	w.UpdatedAt = now
	if err := s.store.UpdateWager(ctx, w, StatusAccepted); err != nil {
		return nil, err
	}

	snap := s.snapshot(w)
	s.notify(ctx, EventWagerStarted, snap)
	return snap, nil
}

// SubmitProof records a result claim. The first proof opens the dispute
// window; a matching second proof settles the wager immediately, a
// conflicting one leaves it awaiting a dispute or the window running out.
func (s *Service) SubmitProof(ctx context.Context, req SubmitProofRequest) (*Snapshot, error) {
	ctx, span := traces.StartSpan(ctx, "bounty.SubmitProof",
		traces.WagerID(req.WagerID), traces.UserID(req.Submitter))
	defer span.End()

	unlock := s.locks.Lock(req.WagerID)
	defer unlock()

	w, err := s.store.GetWager(ctx, req.WagerID)
	if err != nil {
		return nil, err
	}
	if w, err = s.lazyExpire(ctx, w); err != nil {
		return nil, err
	}
	if w.Status != StatusInProgress && w.Status != StatusPendingResult {
		return nil, s.stateConflict(w)
	}
	if !w.IsParticipant(req.Submitter) {
		return nil, ErrNotParticipant
	}
	if !w.IsParticipant(req.ClaimedWinner) {
		return nil, ErrInvalidProof
	}

	now := s.now()
	proof := &Proof{
		ID:            idgen.WithPrefix("prf_"),
		WagerID:       w.ID,
		Submitter:     req.Submitter,
		ClaimedWinner: req.ClaimedWinner,
		EvidenceURLs:  req.EvidenceURLs,
		EvidenceType:  req.EvidenceType,
		CreatedAt:     now,
	}
	if err := s.store.CreateProof(ctx, proof); err != nil {
		return nil, err
	}

	if w.ResultSubmittedAt == nil {
		// First proof: open the dispute window.
		w.Status = StatusPendingResult
		w.ResultSubmittedAt = &now
		w.UpdatedAt = now
		if err := s.store.UpdateWager(ctx, w, StatusInProgress); err != nil {
			return nil, err
		}
	} else {
		proofs, err := s.store.ListProofs(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		decision, winner := Evaluate(proofs)
		if decision == Agreed {
			// The proof event goes out before the settlement it
			// triggers, so subscribers see cause before effect.
			s.notify(ctx, EventProofSubmitted, s.snapshot(w))
			if err := s.finalize(ctx, w, winner); err != nil {
				return nil, err
			}
			return s.snapshot(w), nil
		}
		// Conflicting proofs stay in PENDING_RESULT awaiting a dispute
		// or passive window expiry.
	}

	snap := s.snapshot(w)
	s.notify(ctx, EventProofSubmitted, snap)
	return snap, nil
}

// OpenDispute challenges the first submitted proof. Only the
// participant who did not submit it may dispute, and only while the
// window is open.
func (s *Service) OpenDispute(ctx context.Context, wagerID, disputer, reason string) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "bounty.OpenDispute",
		traces.WagerID(wagerID), traces.UserID(disputer))
	defer span.End()

	unlock := s.locks.Lock(wagerID)
	defer unlock()

	w, err := s.store.GetWager(ctx, wagerID)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusPendingResult {
		return nil, s.stateConflict(w)
	}
	if !w.IsParticipant(disputer) {
		return nil, ErrNotParticipant
	}

	proofs, err := s.store.ListProofs(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	if len(proofs) == 0 {
		return nil, s.stateConflict(w)
	}
	if proofs[0].Submitter == disputer {
		return nil, ErrOwnProof
	}

	now := s.now()
	deadline := w.ResultSubmittedAt.Add(s.cfg.DisputeWindow)
	if now.After(deadline) {
		return nil, ErrDisputeWindowClosed
	}

	d := &Dispute{
		ID:        idgen.WithPrefix("dsp_"),
		WagerID:   w.ID,
		Disputer:  disputer,
		Reason:    reason,
		CreatedAt: now,
	}
	if s.assigner != nil {
		d.Moderator = s.assigner.NextModerator()
	}
	if err := s.store.CreateDispute(ctx, d); err != nil {
		return nil, err
	}

	w.Status = StatusDisputed
	w.UpdatedAt = now
	if err := s.store.UpdateWager(ctx, w, StatusPendingResult); err != nil {
		return nil, err
	}

	metrics.WagersDisputedTotal.Inc()
	metrics.OpenDisputes.Inc()
	s.notify(ctx, EventDisputeOpened, s.snapshot(w))
	return d, nil
}

// ResolveDispute applies a moderator ruling and settles the wager.
func (s *Service) ResolveDispute(ctx context.Context, disputeID, moderator, resolution string) (*Snapshot, error) {
	ctx, span := traces.StartSpan(ctx, "bounty.ResolveDispute",
		traces.DisputeID(disputeID), traces.Outcome(resolution))
	defer span.End()

	d, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(d.WagerID)
	defer unlock()

	// Re-read under the wager lock; a concurrent resolver may have won.
	d, err = s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if d.Resolved() {
		return nil, ErrDisputeResolved
	}

	w, err := s.store.GetWager(ctx, d.WagerID)
	if err != nil {
		return nil, err
	}
	if w.Status != StatusDisputed {
		return nil, s.stateConflict(w)
	}

	proofs, err := s.store.ListProofs(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	original := proofs[0].ClaimedWinner

	switch resolution {
	case ResolutionConfirm:
		err = s.finalize(ctx, w, original)
	case ResolutionReverse:
		err = s.finalize(ctx, w, w.OtherParticipant(original))
	case ResolutionVoid:
		err = s.void(ctx, w)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	d.Moderator = moderator
	d.Resolution = resolution
	d.ResolvedAt = &now
	if err := s.store.UpdateDispute(ctx, d); err != nil {
		// The wager settled; the dispute record is metadata. Log and
		// report the settled state.
		s.logger.Error("failed to record dispute resolution", "dispute", d.ID, "error", err)
	}

	metrics.OpenDisputes.Dec()
	return s.snapshot(w), nil
}

// Cancel lets the creator withdraw an OPEN wager for a full refund.
func (s *Service) Cancel(ctx context.Context, id, actor string) (*Snapshot, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	w, err := s.store.GetWager(ctx, id)
	if err != nil {
		return nil, err
	}
	if w, err = s.lazyExpire(ctx, w); err != nil {
		return nil, err
	}
	if w.Status != StatusOpen {
		return nil, s.stateConflict(w)
	}
	if actor != w.Creator {
		return nil, ErrNotCreator
	}

	if err := s.ledger.Refund(ctx, w.ID, w.Creator, w.StakeAmount); err != nil {
		return nil, err
	}
	w.Status = StatusCancelled
	w.UpdatedAt = s.now()
	if err := s.persistFinal(ctx, w, StatusOpen); err != nil {
		return nil, err
	}

	metrics.WagersCancelledTotal.Inc()
	snap := s.snapshot(w)
	s.notify(ctx, EventWagerCancelled, snap)
	return snap, nil
}

// Expire retires a stale OPEN wager with a full refund. The sweeper and
// the lazy check on mutating operations both land here, so both paths
// produce the same terminal state.
func (s *Service) Expire(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	w, err := s.store.GetWager(ctx, id)
	if err != nil {
		return err
	}
	if w.Status == StatusExpired {
		return nil
	}
	if !w.IsExpired(s.now()) {
		return s.stateConflict(w)
	}
	return s.expire(ctx, w, "sweep")
}

// FinalizeOverdue settles a PENDING_RESULT wager whose dispute window
// lapsed with no dispute: the sole proof's claimed winner takes it.
func (s *Service) FinalizeOverdue(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	w, err := s.store.GetWager(ctx, id)
	if err != nil {
		return err
	}
	if w.Status != StatusPendingResult {
		return s.stateConflict(w)
	}
	if _, err := s.store.GetDisputeByWager(ctx, w.ID); err == nil {
		// A dispute exists; arbitration owns this wager now.
		return s.stateConflict(w)
	} else if !errors.Is(err, ErrDisputeNotFound) {
		return err
	}

	deadline := w.ResultSubmittedAt.Add(s.cfg.DisputeWindow)
	if !s.now().After(deadline) {
		return s.stateConflict(w)
	}

	proofs, err := s.store.ListProofs(ctx, w.ID)
	if err != nil {
		return err
	}
	if len(proofs) == 0 {
		return s.stateConflict(w)
	}
	return s.finalize(ctx, w, proofs[0].ClaimedWinner)
}

// Get returns a wager snapshot with derived fields computed at read time.
func (s *Service) Get(ctx context.Context, id string) (*Snapshot, error) {
	w, err := s.store.GetWager(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(w), nil
}

// GetDispute returns a dispute by id.
func (s *Service) GetDispute(ctx context.Context, id string) (*Dispute, error) {
	return s.store.GetDispute(ctx, id)
}

// ListProofs returns the proofs submitted for a wager.
func (s *Service) ListProofs(ctx context.Context, wagerID string) ([]*Proof, error) {
	if _, err := s.store.GetWager(ctx, wagerID); err != nil {
		return nil, err
	}
	return s.store.ListProofs(ctx, wagerID)
}

// ListActive returns a user's wagers that are not in a terminal state.
func (s *Service) ListActive(ctx context.Context, userID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	wagers, err := s.store.ListByUser(ctx, userID, []Status{
		StatusOpen, StatusAccepted, StatusInProgress, StatusPendingResult, StatusDisputed,
	}, limit)
	if err != nil {
		return nil, err
	}
	snaps := make([]*Snapshot, 0, len(wagers))
	for _, w := range wagers {
		snaps = append(snaps, s.snapshot(w))
	}
	return snaps, nil
}

// finalize settles a wager in the winner's favor. A no-op if the wager
// already completed, so a retried call performs exactly one settlement.
func (s *Service) finalize(ctx context.Context, w *Wager, winner string) error {
	if w.Status == StatusCompleted {
		return nil
	}
	from := w.Status

	// The wallet rejects zero-amount transfers, so a leg that rounds to
	// zero (fee at 0 bps, payout at extreme bps) is skipped rather than
	// attempted.
	payout, fee := money.Split(w.StakeAmount, s.cfg.FeeBps)
	if payout > 0 {
		if err := s.ledger.Release(ctx, w.ID, w.Creator, winner, payout); err != nil {
			return err
		}
	}
	if fee > 0 {
		if err := s.ledger.Collect(ctx, w.ID, w.Creator, fee); err != nil {
			return err
		}
	}

	now := s.now()
	w.Winner = winner
	w.PayoutAmount = payout
	w.PlatformFee = fee
	w.Outcome = OutcomeWon
	w.Status = StatusCompleted
	w.CompletedAt = &now
	w.UpdatedAt = now
	if err := s.persistFinal(ctx, w, from); err != nil {
		return err
	}

	metrics.WagersSettledTotal.WithLabelValues(OutcomeWon).Inc()
	if w.StartedAt != nil {
		metrics.SettlementDuration.Observe(now.Sub(*w.StartedAt).Seconds())
	}
	s.notify(ctx, EventWagerSettled, s.snapshot(w))
	return nil
}

// void settles a wager with no winner: full refund, no fee.
func (s *Service) void(ctx context.Context, w *Wager) error {
	if w.Status == StatusCompleted {
		return nil
	}
	from := w.Status

	if err := s.ledger.Refund(ctx, w.ID, w.Creator, w.StakeAmount); err != nil {
		return err
	}

	now := s.now()
	w.Winner = ""
	w.PayoutAmount = 0
	w.PlatformFee = 0
	w.Outcome = OutcomeVoided
	w.Status = StatusCompleted
	w.CompletedAt = &now
	w.UpdatedAt = now
	if err := s.persistFinal(ctx, w, from); err != nil {
		return err
	}

	metrics.WagersSettledTotal.WithLabelValues(OutcomeVoided).Inc()
	s.notify(ctx, EventWagerSettled, s.snapshot(w))
	return nil
}

// expire refunds a stale OPEN wager and marks it EXPIRED. Caller must
// hold the wager lock.
func (s *Service) expire(ctx context.Context, w *Wager, path string) error {
	if err := s.ledger.Refund(ctx, w.ID, w.Creator, w.StakeAmount); err != nil {
		return err
	}
	w.Status = StatusExpired
	w.UpdatedAt = s.now()
	if err := s.persistFinal(ctx, w, StatusOpen); err != nil {
		return err
	}

	metrics.WagersExpiredTotal.WithLabelValues(path).Inc()
	s.notify(ctx, EventWagerExpired, s.snapshot(w))
	return nil
}

// lazyExpire applies Expire to a stale OPEN wager before the caller's
// operation proceeds, then rejects the operation with a state conflict.
// Caller must hold the wager lock.
func (s *Service) lazyExpire(ctx context.Context, w *Wager) (*Wager, error) {
	if !w.IsExpired(s.now()) {
		return w, nil
	}
	if err := s.expire(ctx, w, "lazy"); err != nil {
		return nil, err
	}
	return nil, s.stateConflict(w)
}

// persistFinal writes a terminal transition after funds have already
// moved. Escrow operations are idempotently keyed, so a concurrent
// writer that committed the same terminal state counts as success.
func (s *Service) persistFinal(ctx context.Context, w *Wager, from Status) error {
	err := s.store.UpdateWager(ctx, w, from)
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrStateConflict) {
		fresh, gerr := s.store.GetWager(ctx, w.ID)
		if gerr == nil && fresh.Status == w.Status {
			*w = *fresh
			return nil
		}
		s.logger.Error("CRITICAL: escrow settled but wager state moved elsewhere",
			"wager", w.ID, "want", w.Status, "error", err)
		return fmt.Errorf("failed to persist %s after escrow ops (requires manual resolution): %w", w.Status, err)
	}

	// Transient store failure: retry once. The money already moved, so
	// the state change must land.
	if retryErr := s.store.UpdateWager(ctx, w, from); retryErr != nil {
		s.logger.Error("CRITICAL: escrow settled but wager state write failed",
			"wager", w.ID, "want", w.Status, "error", retryErr)
		return fmt.Errorf("failed to persist %s after escrow ops (requires manual resolution): %w", w.Status, err)
	}
	return nil
}

// stateConflict wraps ErrStateConflict with the wager's current state so
// callers can resync.
func (s *Service) stateConflict(w *Wager) error {
	return fmt.Errorf("%w: wager %s is %s", ErrStateConflict, w.ID, w.Status)
}

func (s *Service) snapshot(w *Wager) *Snapshot {
	now := s.now()
	snap := &Snapshot{Wager: w, IsExpired: w.IsExpired(now)}
	if dl := w.DisputeDeadline(s.cfg.DisputeWindow); dl != nil {
		snap.DisputeDeadline = dl
		snap.CanDispute = w.Status == StatusPendingResult && !now.After(*dl)
	}
	return snap
}

func (s *Service) notify(ctx context.Context, event string, snap *Snapshot) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, event, snap)
	}
}
