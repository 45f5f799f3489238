package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/matchpit/bounty/internal/circuitbreaker"
	"github.com/matchpit/bounty/internal/metrics"
)

// Dispatcher sends events to webhook subscribers. Endpoints that keep
// failing are cut off by a circuit breaker keyed on the URL.
type Dispatcher struct {
	store   Store
	client  *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(store Store, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		store: store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: circuitbreaker.New(5, 2*time.Minute),
		logger:  logger,
	}
	d.breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		logger.Warn("webhook endpoint circuit transition",
			"endpoint", key, "from", from.String(), "to", to.String())
	})
	return d
}

// DispatchToUser sends an event to a user's active subscriptions that
// cover its type. Sends run concurrently but the call returns only
// after every delivery has finished, so the caller may cancel ctx on
// return; only subscriber lookup can fail.
func (d *Dispatcher) DispatchToUser(ctx context.Context, userID string, event *Event) error {
	subs, err := d.store.GetByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get subscriptions: %w", err)
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		if !sub.Active || !sub.Wants(event.Type) {
			continue
		}
		sub := sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.send(ctx, sub, event)
		}()
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, event *Event) {
	if !d.breaker.Allow(sub.URL) {
		metrics.EventDeliveriesTotal.WithLabelValues("skipped").Inc()
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
	if err != nil {
		d.updateError(ctx, sub, "failed to create request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Matchpit-Event", string(event.Type))
	req.Header.Set("X-Matchpit-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))
	if sub.Secret != "" {
		req.Header.Set("X-Matchpit-Signature", Sign(payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.breaker.RecordFailure(sub.URL)
		metrics.EventDeliveriesTotal.WithLabelValues("error").Inc()
		d.updateError(ctx, sub, fmt.Sprintf("request failed: %v", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.breaker.RecordSuccess(sub.URL)
		metrics.EventDeliveriesTotal.WithLabelValues("ok").Inc()
		d.updateSuccess(ctx, sub)
	} else {
		d.breaker.RecordFailure(sub.URL)
		metrics.EventDeliveriesTotal.WithLabelValues("error").Inc()
		d.updateError(ctx, sub, fmt.Sprintf("status %d", resp.StatusCode))
	}
}

// Sign computes the hex HMAC-SHA256 signature receivers verify against.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	if err := d.store.Update(ctx, sub); err != nil {
		d.logger.Warn("failed to record webhook success", "subscription", sub.ID, "error", err)
	}
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	sub.LastError = errMsg
	if err := d.store.Update(ctx, sub); err != nil {
		d.logger.Warn("failed to record webhook failure", "subscription", sub.ID, "error", err)
	}
}
