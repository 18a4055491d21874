// Command backoffice runs the admin backend: migrated database, cached
// stores, websocket change feed and a public contact-form endpoint.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/activesoft/go-backoffice/auth"
	"github.com/activesoft/go-backoffice/config"
	"github.com/activesoft/go-backoffice/internal/bootstrap"
	"github.com/activesoft/go-backoffice/pkg/di"
	"github.com/activesoft/go-backoffice/record"
	"github.com/activesoft/go-backoffice/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootstrap.NewLogger("development", "info").Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	logger := bootstrap.NewLogger(cfg.Environment, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.New(cfg, logger)
	if err != nil {
		return err
	}
	defer container.Dispose()

	if err := container.Init(ctx); err != nil {
		return err
	}

	contacts := di.NewStore(container, "contact_submissions",
		func() *record.ContactSubmission { return new(record.ContactSubmission) },
		store.WithImmutable[*record.ContactSubmission](),
		store.WithAnonymousCreate[*record.ContactSubmission](),
	)

	services := di.NewCachedStore(container, "services",
		func() *record.Service { return new(record.Service) },
		store.WithSearchColumn[*record.Service]("title_en"),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /ws", container.Hub.ServeWS)
	mux.HandleFunc("GET /api/services", servicesHandler(services, logger))
	mux.HandleFunc("POST /api/contact", contactHandler(contacts, logger))
	mux.HandleFunc("POST /api/auth/login", loginHandler(container.Auth))
	mux.HandleFunc("POST /api/auth/logout", logoutHandler(container.Auth))

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func loginHandler(manager *auth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var creds struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&creds); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		ip, _, _ := net.SplitHostPort(r.RemoteAddr)
		state, err := manager.SignIn(r.Context(), creds.Email, creds.Password, ip, r.UserAgent())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(state.Session)
	}
}

func logoutHandler(manager *auth.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, _ := net.SplitHostPort(r.RemoteAddr)
		manager.SignOut(r.Context(), ip, r.UserAgent())
		w.WriteHeader(http.StatusNoContent)
	}
}

func servicesHandler(services *store.Cached[*record.Service], logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := services.FindMany(r.Context(), store.ListOptions{
			Filters: map[string]any{"published": true},
			OrderBy: "sort_order",
		})
		if err != nil {
			logger.Error("service listing failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(page); err != nil {
			logger.Warn("response encode failed", "error", err)
		}
	}
}

func contactHandler(contacts *store.Store[*record.ContactSubmission], logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var submission record.ContactSubmission
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&submission); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}

		created, err := contacts.Create(r.Context(), &submission)
		if err != nil {
			if store.IsValidationError(err) {
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
				return
			}
			logger.Error("contact submission failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(created); err != nil {
			logger.Warn("response encode failed", "error", err)
		}
	}
}
