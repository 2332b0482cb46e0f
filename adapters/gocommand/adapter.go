package gocommand

import (
	"context"
	"fmt"
	"strings"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	deliverycommand "github.com/goliatone/go-deliveries/command"
	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/query"
	deliverysync "github.com/goliatone/go-deliveries/sync"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := gocmd.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(gocmd.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *gocmd.Registry
}

func NewRegistryAdapter(registry *gocmd.Registry) *RegistryAdapter {
	if registry == nil {
		registry = gocmd.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *gocmd.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) AddResolver(key string, resolver gocmd.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered command into the go-job queue
// registry so queued reconcile jobs resolve to the same handler.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd gocmd.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry gocmd.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterCommand(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Handlers groups the delivery commands and queries. Nil entries are skipped.
type Handlers struct {
	Reconcile             *deliverycommand.ReconcileCommand
	CompleteAuthorization *deliverycommand.CompleteAuthorizationCommand
	ListDeliveries        *query.ListDeliveriesQuery
	LatestSyncRun         *query.LatestSyncRunQuery
	GetSyncRun            *query.GetSyncRunQuery
}

type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterDeliveries subscribes every configured handler and registers it with
// the adapter. On failure the subscriptions made so far are released.
func RegisterDeliveries(adapter *RegistryAdapter, handlers Handlers, runnerOpts ...runner.Option) (Subscriptions, error) {
	var subs Subscriptions
	add := func(sub commanddispatcher.Subscription, err error) error {
		if err != nil {
			subs.Unsubscribe()
			return err
		}
		subs = append(subs, sub)
		return nil
	}

	if handlers.Reconcile != nil {
		if err := add(RegisterAndSubscribe[deliverycommand.ReconcileMessage](adapter, handlers.Reconcile, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.CompleteAuthorization != nil {
		if err := add(RegisterAndSubscribe[deliverycommand.CompleteAuthorizationMessage](adapter, handlers.CompleteAuthorization, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.ListDeliveries != nil {
		if err := add(RegisterAndSubscribeQuery[query.ListDeliveriesMessage, []core.Delivery](adapter, handlers.ListDeliveries, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.LatestSyncRun != nil {
		if err := add(RegisterAndSubscribeQuery[query.LatestSyncRunMessage, core.SyncRun](adapter, handlers.LatestSyncRun, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	if handlers.GetSyncRun != nil {
		if err := add(RegisterAndSubscribeQuery[query.GetSyncRunMessage, core.SyncRun](adapter, handlers.GetSyncRun, runnerOpts...)); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	return commanddispatcher.Query[T, R](ctx, msg)
}

// DispatchWithResult dispatches msg and returns the value the handler stored
// in the result collector, together with the handler error.
func DispatchWithResult[T any, R any](ctx context.Context, msg T) (R, error) {
	collector := gocmd.NewResult[R]()
	err := Dispatch(gocmd.ContextWithResult(ctx, collector), msg)
	value, _ := collector.Load()
	return value, err
}

func Reconcile(ctx context.Context, msg deliverycommand.ReconcileMessage) (deliverysync.RunOutcome, error) {
	return DispatchWithResult[deliverycommand.ReconcileMessage, deliverysync.RunOutcome](ctx, msg)
}

func CompleteAuthorization(
	ctx context.Context,
	msg deliverycommand.CompleteAuthorizationMessage,
) (deliverycommand.AuthorizationResult, error) {
	return DispatchWithResult[deliverycommand.CompleteAuthorizationMessage, deliverycommand.AuthorizationResult](ctx, msg)
}

func ListDeliveries(ctx context.Context, msg query.ListDeliveriesMessage) ([]core.Delivery, error) {
	return Query[query.ListDeliveriesMessage, []core.Delivery](ctx, msg)
}

func LatestSyncRun(ctx context.Context, msg query.LatestSyncRunMessage) (core.SyncRun, error) {
	return Query[query.LatestSyncRunMessage, core.SyncRun](ctx, msg)
}

func GetSyncRun(ctx context.Context, msg query.GetSyncRunMessage) (core.SyncRun, error) {
	return Query[query.GetSyncRunMessage, core.SyncRun](ctx, msg)
}
