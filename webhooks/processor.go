package webhooks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/adapters/gojob"
	"github.com/goliatone/go-deliveries/core"
)

type Verifier interface {
	Verify(ctx context.Context, n Notification) error
}

// ApplicationVerifier accepts notifications addressed to one application id.
// Mercado Livre does not sign notifications, so the id is the only check
// available before the reconcile reads the orders back with a token.
type ApplicationVerifier struct {
	ApplicationID int64
}

func (v ApplicationVerifier) Verify(_ context.Context, n Notification) error {
	if v.ApplicationID == 0 || n.ApplicationID == v.ApplicationID {
		return nil
	}
	return foreignApp.new("webhooks: notification addressed to another application", map[string]any{
		"application_id": n.ApplicationID,
	})
}

// ApplicationVerifierFromClientID builds a verifier from the OAuth client id,
// which for Mercado Livre is the numeric application id.
func ApplicationVerifierFromClientID(clientID string) ApplicationVerifier {
	id, err := strconv.ParseInt(strings.TrimSpace(clientID), 10, 64)
	if err != nil {
		return ApplicationVerifier{}
	}
	return ApplicationVerifier{ApplicationID: id}
}

type Result struct {
	Accepted bool
	Enqueued bool
	JobKey   string
	Metadata map[string]any
}

type Processor struct {
	Verifier   Verifier
	Burst      BurstController
	Jobs       core.JobEnqueuer
	AccountKey string
	Topics     []string
	Window     time.Duration
	Now        func() time.Time
}

func NewProcessor(jobs core.JobEnqueuer, accountKey string, verifier Verifier) *Processor {
	burst := NewBurstController(BurstOptions{Mode: BurstModeCoalesce})
	return &Processor{
		Verifier:   verifier,
		Burst:      burst,
		Jobs:       jobs,
		AccountKey: accountKey,
		Topics:     []string{TopicOrders, TopicShipments},
		Window:     burst.Window(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Process acknowledges every well-formed notification. Only subscribed topics
// that pass the burst controller enqueue a reconcile job.
func (p *Processor) Process(ctx context.Context, n Notification) (Result, error) {
	if p == nil || p.Jobs == nil {
		return Result{}, fmt.Errorf("webhooks: processor requires a job enqueuer")
	}
	metadata := map[string]any{
		"topic":       n.Topic,
		"resource_id": n.ResourceID(),
		"user_id":     n.UserID,
	}

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, n); err != nil {
			return Result{Metadata: metadata}, err
		}
	}
	if !p.subscribed(n.Topic) {
		metadata["ignored"] = true
		return Result{Accepted: true, Metadata: metadata}, nil
	}

	if p.Burst != nil {
		if decision := p.Burst.Allow(n.BurstKey()); !decision.Allow {
			for key, value := range decision.Metadata {
				metadata[key] = value
			}
			return Result{Accepted: true, Metadata: metadata}, nil
		}
	}

	msg := gojob.NewReconcileMessage(p.AccountKey, p.slot(), 1)
	msg.Parameters["source"] = "notification"
	msg.Parameters["topic"] = n.Topic
	if err := p.Jobs.Enqueue(ctx, msg); err != nil {
		return Result{Metadata: metadata}, enqueueFailed.wrap(err, "webhooks: enqueue reconcile job failed", metadata)
	}
	metadata["idempotency_key"] = msg.IdempotencyKey
	return Result{Accepted: true, Enqueued: true, JobKey: msg.IdempotencyKey, Metadata: metadata}, nil
}

func (p *Processor) subscribed(topic string) bool {
	if len(p.Topics) == 0 {
		return true
	}
	for _, candidate := range p.Topics {
		if strings.EqualFold(strings.TrimSpace(candidate), topic) {
			return true
		}
	}
	return false
}

func (p *Processor) slot() time.Time {
	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now().UTC()
	}
	window := p.Window
	if window <= 0 {
		window = defaultBurstWindow
	}
	return now.Truncate(window)
}
