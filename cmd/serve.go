package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/company"
	"github.com/sells-group/directory-cli/internal/reconcile"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server that triggers and reports reconcile runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve", true)
		if err != nil {
			return err
		}
		defer env.Close()

		job := newReconcileJob(func(ctx context.Context) (*reconcile.Summary, error) {
			return newReconciler(env, reconcileConfig(cfg.Reconcile, company.FieldSet(0))).Run(ctx)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(ctx, job, cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

type reconcileRunner func(ctx context.Context) (*reconcile.Summary, error)

// reconcileJob runs at most one reconcile loop at a time in the background
// and remembers the outcome of the last one.
type reconcileJob struct {
	run reconcileRunner

	mu        sync.Mutex
	running   bool
	runs      int
	startedAt time.Time
	last      *reconcile.Summary
	lastErr   string
}

func newReconcileJob(run reconcileRunner) *reconcileJob {
	return &reconcileJob{run: run}
}

// jobStatus is the JSON view of a reconcileJob.
type jobStatus struct {
	Running   bool               `json:"running"`
	Runs      int                `json:"runs"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	Last      *reconcile.Summary `json:"last,omitempty"`
	LastError string             `json:"last_error,omitempty"`
}

// Start launches a run under ctx. It returns false when one is already in
// progress.
func (j *reconcileJob) Start(ctx context.Context) bool {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return false
	}
	j.running = true
	j.runs++
	j.startedAt = time.Now()
	j.mu.Unlock()

	go func() {
		sum, err := j.run(ctx)

		j.mu.Lock()
		defer j.mu.Unlock()
		j.running = false
		j.last = sum
		j.lastErr = ""
		if err != nil {
			j.lastErr = err.Error()
			zap.L().Error("reconcile run failed", zap.Error(err))
			return
		}
		if sum != nil {
			zap.L().Info("reconcile run complete",
				zap.Int("cycles", sum.Cycles),
				zap.Int("fixed", sum.Fixed),
			)
		}
	}()
	return true
}

// Status snapshots the job.
func (j *reconcileJob) Status() jobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := jobStatus{
		Running:   j.running,
		Runs:      j.runs,
		Last:      j.last,
		LastError: j.lastErr,
	}
	if j.runs > 0 {
		started := j.startedAt
		st.StartedAt = &started
	}
	return st
}

// buildRouter registers the HTTP routes. Runs started over HTTP live as
// long as ctx, not the request.
func buildRouter(ctx context.Context, job *reconcileJob, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/reconcile", func(w http.ResponseWriter, _ *http.Request) {
		if job == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "reconcile not configured"})
			return
		}
		if !job.Start(ctx) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "reconcile already running"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	r.Get("/reconcile/status", func(w http.ResponseWriter, _ *http.Request) {
		if job == nil {
			writeJSON(w, http.StatusOK, jobStatus{})
			return
		}
		writeJSON(w, http.StatusOK, job.Status())
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
