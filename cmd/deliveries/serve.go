package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-deliveries/adapters/gocommand"
	"github.com/goliatone/go-deliveries/adapters/gojob"
	"github.com/goliatone/go-deliveries/adapters/gologger"
	"github.com/goliatone/go-deliveries/httpapi"
	deliverysync "github.com/goliatone/go-deliveries/sync"
	"github.com/goliatone/go-deliveries/webhooks"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides [http].addr)")
	serveCmd.Flags().Bool("no-schedule", false, "Disable the scheduled sync")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scheduled sync and the job worker",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	noSchedule, _ := cmd.Flags().GetBool("no-schedule")

	ctx := cmd.Context()
	rt, err := openServiceRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	subs, err := rt.facade.Register(gocommand.NewRegistryAdapter(gocmd.NewRegistry()))
	if err != nil {
		return err
	}
	defer subs.Unsubscribe()

	serviceCfg := rt.deliveries.Config()
	_, _, _, queueLogger := gologger.ResolveForJob("deliveries.queue", rt.logs, nil)
	backend := gojob.NewMemoryQueue().WithLogger(queueLogger)
	jobs := gojob.NewEnqueuerAdapter(backend)
	retry := gojob.DefaultRetryPolicy()
	if cfg.Queue.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Queue.MaxAttempts
	}

	opts := []httpapi.Option{
		httpapi.WithLogger(rt.logs.GetLogger("deliveries.http")),
		httpapi.WithRequestTimeout(mustDuration(cfg.HTTP.RequestTimeout)),
		httpapi.WithJobEnqueuer(jobs, serviceCfg.AccountKey),
	}
	if cfg.HTTP.Notifications {
		verifier := webhooks.ApplicationVerifierFromClientID(cfg.Marketplace.ClientID)
		processor := webhooks.NewProcessor(jobs, serviceCfg.AccountKey, verifier)
		burst := webhooks.NewBurstController(webhooks.BurstOptions{
			Mode:   webhooks.ParseBurstMode(cfg.HTTP.NotificationBurst),
			Window: mustDuration(cfg.HTTP.NotificationWindow),
		})
		processor.Burst, processor.Window = burst, burst.Window()
		opts = append(opts, httpapi.WithNotifications(processor))
	}
	if cfg.HTTP.Metrics {
		opts = append(opts, httpapi.WithMetricsHandler(rt.metrics.Handler()))
	}
	api, err := httpapi.NewServer(rt.facade, opts...)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	workers := max(cfg.Queue.Workers, 1)
	hook := gojob.NewLoggingHook(rt.logs.GetLogger("deliveries.worker"))
	for range workers {
		worker := deliverysync.NewWorker(gojob.NewDequeuerAdapter(backend, retry), rt.ledger, hook)
		if interval := mustDuration(cfg.Queue.PollInterval); interval > 0 {
			worker.PollInterval = interval
		}
		group.Go(func() error {
			if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if serviceCfg.Schedule.Enabled && !noSchedule {
		scheduler, err := deliverysync.NewScheduler(rt.ledger, deliverysync.SchedulerConfig{
			Spec:        serviceCfg.Schedule.Spec,
			MinInterval: serviceCfg.ScheduleMinInterval(),
		}, rt.logs.GetLogger("deliveries.scheduler"))
		if err != nil {
			return err
		}
		scheduler.Start()
		rt.logger.Info("sync schedule started", "spec", serviceCfg.Schedule.Spec, "next", scheduler.Next())
		group.Go(func() error {
			<-groupCtx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	group.Go(func() error {
		rt.logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	rt.logger.Info("server stopped", "pending_jobs", backend.Len(), "dead_letters", len(backend.DeadLetters()))
	return err
}
