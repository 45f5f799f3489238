package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/matchpit/bounty/internal/bounty"
	"github.com/matchpit/bounty/internal/idgen"
)

// Notifier adapts the dispatcher to the wager service's event sink.
// Fire-and-forget: delivery failures are logged, never surfaced to the
// state machine.
type Notifier struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewNotifier creates a webhook notifier for wager events.
func NewNotifier(d *Dispatcher, logger *slog.Logger) *Notifier {
	return &Notifier{d: d, logger: logger}
}

// Notify delivers the event to every participant of the wager.
func (n *Notifier) Notify(ctx context.Context, event string, snap *bounty.Snapshot) {
	if n == nil || n.d == nil {
		return
	}

	evt := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      EventType(event),
		Timestamp: time.Now(),
		Data:      snapshotData(snap),
	}

	// Detach from the request context so in-flight deliveries survive
	// the response.
	dctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	go func() {
		defer cancel()
		for _, user := range participants(snap) {
			if err := n.d.DispatchToUser(dctx, user, evt); err != nil {
				n.logger.Warn("webhook dispatch failed",
					"event", event, "user", user, "error", err)
			}
		}
	}()
}

func participants(snap *bounty.Snapshot) []string {
	users := []string{snap.Creator}
	if snap.Acceptor != "" {
		users = append(users, snap.Acceptor)
	}
	return users
}

func snapshotData(snap *bounty.Snapshot) map[string]interface{} {
	data := map[string]interface{}{
		"wagerId": snap.ID,
		"creator": snap.Creator,
		"game":    snap.Game,
		"stake":   snap.StakeAmount,
		"status":  string(snap.Status),
	}
	if snap.Acceptor != "" {
		data["acceptor"] = snap.Acceptor
	}
	if snap.Winner != "" {
		data["winner"] = snap.Winner
		data["payout"] = snap.PayoutAmount
		data["platformFee"] = snap.PlatformFee
	}
	if snap.Outcome != "" {
		data["outcome"] = snap.Outcome
	}
	if snap.DisputeDeadline != nil {
		data["disputeDeadline"] = snap.DisputeDeadline.Format(time.RFC3339)
	}
	return data
}
