package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/failures"
	"github.com/sells-group/contact-migrator/internal/model"
	"github.com/sells-group/contact-migrator/internal/monitoring"
	"github.com/sells-group/contact-migrator/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitor API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		collector, st := initCollector(ctx)
		var runs runReader
		if st != nil {
			defer st.Close() //nolint:errcheck
			runs = st
		}

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		go monitoring.NewChecker(collector, alerter, cfg.Monitoring).Run(ctx)

		router := buildRouter(collector, failurePath(), runs)
		return startServer(ctx, router, resolvePort(servePort, cfg.Server.Port))
	},
}

// runReader is the read side of the run ledger used by the API.
type runReader interface {
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// buildRouter wires the monitor API. runs may be nil when no ledger is
// available, in which case the run endpoints answer 503.
func buildRouter(collector *monitoring.Collector, failuresPath string, runs runReader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			st, err := collector.Collect(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, st)
		})

		r.Get("/failures", func(w http.ResponseWriter, req *http.Request) {
			sum, err := failures.ReadSummary(failuresPath, queryInt(req, "limit", 100))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, sum)
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			if runs == nil {
				writeError(w, http.StatusServiceUnavailable, eris.New("run ledger unavailable"))
				return
			}
			q := req.URL.Query()
			list, err := runs.ListRuns(req.Context(), store.RunFilter{
				Status: model.RunStatus(q.Get("status")),
				Source: q.Get("source"),
				Limit:  queryInt(req, "limit", 50),
				Offset: queryInt(req, "offset", 0),
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if list == nil {
				list = []model.Run{}
			}
			writeJSON(w, http.StatusOK, list)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			if runs == nil {
				writeError(w, http.StatusServiceUnavailable, eris.New("run ledger unavailable"))
				return
			}
			run, err := runs.GetRun(req.Context(), chi.URLParam(req, "id"))
			if errors.Is(err, store.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, run)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(req *http.Request, key string, def int) int {
	n, err := strconv.Atoi(req.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// resolvePort prefers the flag value and falls back to config.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled, then shuts
// down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
