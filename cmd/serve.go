package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sunfield-ops/solarledger/internal/identity"
	"github.com/sunfield-ops/solarledger/internal/validate"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a read-only HTTP API over the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/components", func(w http.ResponseWriter, req *http.Request) {
			refs, err := st.Identities(req.Context())
			if err != nil {
				serveError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, refs)
		})

		r.Get("/components/history", func(w http.ResponseWriter, req *http.Request) {
			key, ok := identityParam(w, req)
			if !ok {
				return
			}
			history, err := st.History(req.Context(), key)
			if err != nil {
				serveError(w, err)
				return
			}
			if len(history) == 0 {
				http.Error(w, `{"error":"unknown component"}`, http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, history)
		})

		r.Get("/components/effective", func(w http.ResponseWriter, req *http.Request) {
			key, ok := identityParam(w, req)
			if !ok {
				return
			}
			at := time.Now().UTC()
			if raw := req.URL.Query().Get("at"); raw != "" {
				t, err := validate.ParseDate(raw)
				if err != nil {
					http.Error(w, `{"error":"invalid at parameter"}`, http.StatusBadRequest)
					return
				}
				at = t
			}
			v, err := st.EffectiveAt(req.Context(), key, at)
			if err != nil {
				serveError(w, err)
				return
			}
			if v == nil {
				http.Error(w, `{"error":"no effective version"}`, http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, v)
		})

		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			stats, err := st.Stats(req.Context())
			if err != nil {
				serveError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, stats)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func identityParam(w http.ResponseWriter, req *http.Request) (string, bool) {
	q := req.URL.Query()
	supplier := q.Get("supplier")
	product := q.Get("product")
	if supplier == "" || product == "" {
		http.Error(w, `{"error":"supplier and product are required"}`, http.StatusBadRequest)
		return "", false
	}
	return identity.Key(supplier, product), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func serveError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
