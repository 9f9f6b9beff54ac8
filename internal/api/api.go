// Package api provides HTTP handlers and the main API server logic for CarePipe.
//
// It exposes RESTful endpoints for patients, proactive sequences, scheduled
// check-ins, callback tasks, the activity feed, and the agent configuration,
// plus the provider webhook that reports call outcomes. The API integrates
// the schedule, callback, dispatch, scheduler, and store modules.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AudienHealth/CarePipe/internal/dispatch"
	"github.com/AudienHealth/CarePipe/internal/schedule"
	"github.com/AudienHealth/CarePipe/internal/scheduler"
	"github.com/AudienHealth/CarePipe/internal/store"
)

// DefaultShutdownTimeout bounds graceful HTTP shutdown on exit.
const DefaultShutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	Clock           schedule.Clock
	RecalculateSpec string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithClock overrides the time source, used by tests.
func WithClock(c schedule.Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// WithRecalculateSpec overrides the cron expression for the nightly schedule
// recalculation.
func WithRecalculateSpec(spec string) Option {
	return func(o *Opts) { o.RecalculateSpec = spec }
}

// Server hosts the CarePipe HTTP API.
type Server struct {
	st         store.Store
	dispatcher *dispatch.Dispatcher
	sched      *scheduler.Scheduler
	clock      schedule.Clock
	addr       string
	recalcSpec string
}

// NewServer creates an API server over the given store and dispatcher. The
// scheduler may be nil when the nightly recalculation is not wanted (tests).
func NewServer(st store.Store, dispatcher *dispatch.Dispatcher, sched *scheduler.Scheduler, opts ...Option) *Server {
	cfg := Opts{Addr: ":8080", Clock: schedule.SystemClock{}, RecalculateSpec: scheduler.DefaultRecalculateSpec}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{st: st, dispatcher: dispatcher, sched: sched, clock: cfg.Clock, addr: cfg.Addr, recalcSpec: cfg.RecalculateSpec}
}

// Handler returns the routing mux for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/patients", s.patientsHandler)
	mux.HandleFunc("/patients/", s.patientHandler)
	mux.HandleFunc("/sequences", s.sequencesHandler)
	mux.HandleFunc("/sequences/", s.sequenceHandler)
	mux.HandleFunc("/checkins", s.checkInsHandler)
	mux.HandleFunc("/checkins/recalculate", s.recalculateHandler)
	mux.HandleFunc("/checkins/clear-future", s.clearFutureHandler)
	mux.HandleFunc("/tasks", s.tasksHandler)
	mux.HandleFunc("/tasks/", s.taskHandler)
	mux.HandleFunc("/webhooks/call-completed", s.callCompletedHandler)
	mux.HandleFunc("/events", s.eventsHandler)
	mux.HandleFunc("/config", s.configHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the dispatcher loop, the nightly schedule recalculation, and the
// HTTP server, then blocks until the context is cancelled and shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.dispatcher != nil {
		go s.dispatcher.Run(ctx)
	}

	if s.sched != nil {
		err := s.sched.AddJob(s.recalcSpec, func() {
			if err := s.recalculate(s.clock.Now()); err != nil {
				slog.Error("Server.Run: nightly recalculation failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
		defer s.sched.Stop()
	}

	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: CarePipe API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// recalculate reconciles the materialized check-in schedule with the current
// patients and sequences and writes the result back.
func (s *Server) recalculate(now time.Time) error {
	patients, err := s.st.ListPatients()
	if err != nil {
		return err
	}
	sequences, err := s.st.ListSequences()
	if err != nil {
		return err
	}
	existing, err := s.st.ListCheckIns()
	if err != nil {
		return err
	}
	// Drop not-yet-fired items first so they regenerate from the current
	// sequence content; the merge keeps kept items verbatim by id, which
	// would otherwise preserve stale goals and scripts on future check-ins.
	kept := schedule.ClearFutureCheckIns(existing, now)
	reconciled := schedule.ReconcileCheckIns(patients, sequences, kept, now)
	if err := s.st.ReplaceCheckIns(reconciled); err != nil {
		return err
	}
	slog.Debug("Server.recalculate: schedule reconciled", "checkIns", len(reconciled))
	return nil
}
