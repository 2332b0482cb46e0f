package command

import (
	"context"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-deliveries/core"
	deliverysync "github.com/goliatone/go-deliveries/sync"
)

// RunRecorder runs a reconciliation and records it in the run ledger.
type RunRecorder interface {
	Run(ctx context.Context, trigger core.SyncRunTrigger, metadata map[string]any) (deliverysync.RunOutcome, error)
}

type AuthorizationService interface {
	CompleteAuthorization(ctx context.Context, code string) (core.Credential, error)
}

type ReconcileCommand struct {
	runs RunRecorder
}

func NewReconcileCommand(runs RunRecorder) *ReconcileCommand {
	return &ReconcileCommand{runs: runs}
}

// Execute stores a deliverysync.RunOutcome in the result collector, also when
// the run failed, so callers can report the run id.
func (c *ReconcileCommand) Execute(ctx context.Context, msg ReconcileMessage) error {
	if c == nil || c.runs == nil {
		return commandDependencyError("command: run recorder is required")
	}
	metadata := map[string]any{}
	if requestedBy := strings.TrimSpace(msg.RequestedBy); requestedBy != "" {
		metadata["requested_by"] = requestedBy
	}
	outcome, err := c.runs.Run(ctx, msg.trigger(), metadata)
	storeResult(ctx, outcome)
	return err
}

// AuthorizationResult describes the stored credential without its tokens.
type AuthorizationResult struct {
	CredentialID string
	AccountID    string
	Version      int
	ExpiresAt    time.Time
}

type CompleteAuthorizationCommand struct {
	service AuthorizationService
}

func NewCompleteAuthorizationCommand(service AuthorizationService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	stored, err := c.service.CompleteAuthorization(ctx, strings.TrimSpace(msg.Code))
	if err != nil {
		return err
	}
	storeResult(ctx, AuthorizationResult{
		CredentialID: stored.ID,
		AccountID:    stored.AccountID,
		Version:      stored.Version,
		ExpiresAt:    stored.ExpiresAt,
	})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
