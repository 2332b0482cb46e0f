package deliveries

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-deliveries/adapters/gocommand"
	deliverycommand "github.com/goliatone/go-deliveries/command"
	"github.com/goliatone/go-deliveries/core"
	deliveryquery "github.com/goliatone/go-deliveries/query"
	deliverysync "github.com/goliatone/go-deliveries/sync"
)

type CommandQueryService interface {
	deliverycommand.AuthorizationService
	deliveryquery.DeliveryLister
}

type Commands struct {
	Reconcile             *deliverycommand.ReconcileCommand
	CompleteAuthorization *deliverycommand.CompleteAuthorizationCommand
}

type Queries struct {
	ListDeliveries *deliveryquery.ListDeliveriesQuery
	LatestSyncRun  *deliveryquery.LatestSyncRunQuery
	GetSyncRun     *deliveryquery.GetSyncRunQuery
}

// Facade exposes the delivery commands and queries as plain method calls and
// as go-command handlers.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	accountKey string
}

// WithAccountKey sets the account used by sync run queries. It defaults to the
// service configuration when the service exposes one.
func WithAccountKey(accountKey string) FacadeOption {
	return func(options *facadeOptions) {
		options.accountKey = accountKey
	}
}

func NewFacade(
	service CommandQueryService,
	runs deliverycommand.RunRecorder,
	syncRuns deliveryquery.SyncRunReader,
	opts ...FacadeOption,
) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("deliveries: command/query service is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("deliveries: run recorder is required")
	}
	if syncRuns == nil {
		return nil, fmt.Errorf("deliveries: sync run reader is required")
	}
	cfg := facadeOptions{}
	if configured, ok := service.(interface{ Config() core.Config }); ok {
		cfg.accountKey = configured.Config().AccountKey
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Reconcile:             deliverycommand.NewReconcileCommand(runs),
		CompleteAuthorization: deliverycommand.NewCompleteAuthorizationCommand(service),
	}
	facade.queries = Queries{
		ListDeliveries: deliveryquery.NewListDeliveriesQuery(service),
		LatestSyncRun:  deliveryquery.NewLatestSyncRunQuery(syncRuns, cfg.accountKey),
		GetSyncRun:     deliveryquery.NewGetSyncRunQuery(syncRuns),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// Handlers returns the commands and queries in the shape the go-command
// adapter registers.
func (f *Facade) Handlers() gocommand.Handlers {
	if f == nil {
		return gocommand.Handlers{}
	}
	return gocommand.Handlers{
		Reconcile:             f.commands.Reconcile,
		CompleteAuthorization: f.commands.CompleteAuthorization,
		ListDeliveries:        f.queries.ListDeliveries,
		LatestSyncRun:         f.queries.LatestSyncRun,
		GetSyncRun:            f.queries.GetSyncRun,
	}
}

// Register subscribes every handler on the go-command dispatcher.
func (f *Facade) Register(adapter *gocommand.RegistryAdapter) (gocommand.Subscriptions, error) {
	if f == nil {
		return nil, fmt.Errorf("deliveries: facade is nil")
	}
	return gocommand.RegisterDeliveries(adapter, f.Handlers())
}

func (f *Facade) Reconcile(ctx context.Context, msg deliverycommand.ReconcileMessage) (deliverysync.RunOutcome, error) {
	if f == nil {
		return deliverysync.RunOutcome{}, fmt.Errorf("deliveries: facade is nil")
	}
	if err := msg.Validate(); err != nil {
		return deliverysync.RunOutcome{}, err
	}
	return executeWithResult[deliverycommand.ReconcileMessage, deliverysync.RunOutcome](ctx, f.commands.Reconcile, msg)
}

func (f *Facade) CompleteAuthorization(
	ctx context.Context,
	msg deliverycommand.CompleteAuthorizationMessage,
) (deliverycommand.AuthorizationResult, error) {
	if f == nil {
		return deliverycommand.AuthorizationResult{}, fmt.Errorf("deliveries: facade is nil")
	}
	return executeWithResult[deliverycommand.CompleteAuthorizationMessage, deliverycommand.AuthorizationResult](
		ctx,
		f.commands.CompleteAuthorization,
		msg,
	)
}

func (f *Facade) ListDeliveries(ctx context.Context, msg deliveryquery.ListDeliveriesMessage) ([]core.Delivery, error) {
	if f == nil {
		return nil, fmt.Errorf("deliveries: facade is nil")
	}
	return f.queries.ListDeliveries.Query(ctx, msg)
}

func (f *Facade) LatestSyncRun(ctx context.Context, msg deliveryquery.LatestSyncRunMessage) (core.SyncRun, error) {
	if f == nil {
		return core.SyncRun{}, fmt.Errorf("deliveries: facade is nil")
	}
	return f.queries.LatestSyncRun.Query(ctx, msg)
}

func (f *Facade) GetSyncRun(ctx context.Context, msg deliveryquery.GetSyncRunMessage) (core.SyncRun, error) {
	if f == nil {
		return core.SyncRun{}, fmt.Errorf("deliveries: facade is nil")
	}
	return f.queries.GetSyncRun.Query(ctx, msg)
}

func executeWithResult[T any, R any](ctx context.Context, cmd gocmd.Commander[T], msg T) (R, error) {
	collector := gocmd.NewResult[R]()
	err := cmd.Execute(gocmd.ContextWithResult(ctx, collector), msg)
	value, _ := collector.Load()
	return value, err
}
