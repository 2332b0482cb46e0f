// Package httpapi serves the delivery read path, on-demand sync and metrics
// over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-deliveries/adapters/gojob"
	deliverycommand "github.com/goliatone/go-deliveries/command"
	"github.com/goliatone/go-deliveries/core"
	deliveryquery "github.com/goliatone/go-deliveries/query"
	deliverysync "github.com/goliatone/go-deliveries/sync"
	"github.com/goliatone/go-deliveries/webhooks"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	defaultRequestTimeout = 2 * time.Minute
	maxNotificationBytes  = 64 << 10
)

// Deliveries is the command/query surface the server needs. The root facade
// implements it.
type Deliveries interface {
	ListDeliveries(ctx context.Context, msg deliveryquery.ListDeliveriesMessage) ([]core.Delivery, error)
	Reconcile(ctx context.Context, msg deliverycommand.ReconcileMessage) (deliverysync.RunOutcome, error)
	LatestSyncRun(ctx context.Context, msg deliveryquery.LatestSyncRunMessage) (core.SyncRun, error)
	GetSyncRun(ctx context.Context, msg deliveryquery.GetSyncRunMessage) (core.SyncRun, error)
}

// Notifications processes marketplace topic notifications.
type Notifications interface {
	Process(ctx context.Context, n webhooks.Notification) (webhooks.Result, error)
}

type Server struct {
	deliveries     Deliveries
	notifications  Notifications
	jobs           core.JobEnqueuer
	accountKey     string
	metrics        http.Handler
	logger         core.Logger
	requestTimeout time.Duration
}

type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithJobEnqueuer enables POST /deliveries/sync?async=true, which queues a
// reconcile job for accountKey instead of running it inline.
func WithJobEnqueuer(jobs core.JobEnqueuer, accountKey string) Option {
	return func(s *Server) {
		s.jobs = jobs
		s.accountKey = accountKey
	}
}

// WithNotifications mounts POST /notifications.
func WithNotifications(n Notifications) Option {
	return func(s *Server) {
		s.notifications = n
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = timeout
	}
}

func NewServer(deliveries Deliveries, opts ...Option) (*Server, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("httpapi: deliveries facade is required")
	}
	server := &Server{deliveries: deliveries, requestTimeout: defaultRequestTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	server.logger = glog.Ensure(server.logger)
	return server, nil
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/deliveries", func(r chi.Router) {
		r.Get("/", s.handleListDeliveries)
		r.Post("/sync", s.handleSync)
	})

	if s.notifications != nil {
		r.Post("/notifications", s.handleNotification)
	}

	r.Route("/sync-runs", func(r chi.Router) {
		r.Get("/latest", s.handleLatestSyncRun)
		r.Get("/{id}", s.handleGetSyncRun)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := s.deliveries.ListDeliveries(r.Context(), deliveryquery.ListDeliveriesMessage{
		View: r.URL.Query().Get("view"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDeliveryList(deliveries))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.enqueueSync(w, r)
		return
	}
	outcome, err := s.deliveries.Reconcile(r.Context(), deliverycommand.ReconcileMessage{
		Trigger:     core.SyncRunTriggerManual,
		RequestedBy: r.Header.Get("X-Requested-By"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSyncResponse(outcome))
}

func (s *Server) enqueueSync(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.writeError(w, r, goerrors.New("httpapi: async sync is not enabled", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput))
		return
	}
	msg := gojob.NewReconcileMessage(s.accountKey, time.Now().UTC().Truncate(time.Minute), 1)
	if err := s.jobs.Enqueue(r.Context(), msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":          msg.JobID,
		"idempotency_key": msg.IdempotencyKey,
	})
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		s.writeError(w, r, goerrors.Wrap(err, goerrors.CategoryBadInput, "httpapi: read notification body").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput))
		return
	}
	n, err := webhooks.ParseNotification(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.notifications.Process(r.Context(), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationResponse{
		Accepted: result.Accepted,
		Enqueued: result.Enqueued,
		JobKey:   result.JobKey,
	})
}

func (s *Server) handleLatestSyncRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deliveries.LatestSyncRun(r.Context(), deliveryquery.LatestSyncRunMessage{
		Status: core.SyncRunStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSyncRunResponse(run))
}

func (s *Server) handleGetSyncRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deliveries.GetSyncRun(r.Context(), deliveryquery.GetSyncRunMessage{
		ID: chi.URLParam(r, "id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSyncRunResponse(run))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.WithContext(r.Context()).Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
