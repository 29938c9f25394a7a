package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"civicease/civicfeed/internal/server/api"
	"civicease/civicfeed/internal/server/storage"
)

// apiKeyMiddleware checks for the X-API-Key header and validates it against the provided key.
func apiKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			reqAPIKey := r.Header.Get("X-API-Key")
			if reqAPIKey == "" {
				http.Error(w, "API key required", http.StatusUnauthorized)
				return
			}
			if reqAPIKey != apiKey {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter builds the API handler with its logging middleware chain. An empty apiKey
// disables authentication.
func NewRouter(repo storage.Repository, logger zerolog.Logger, apiKey string, now func() time.Time) http.Handler {
	handler := api.NewHandler(repo, now)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/announcements", handler.ListAnnouncements)
	mux.HandleFunc("GET /v1/announcements/{id}", handler.GetAnnouncement)
	mux.HandleFunc("GET /v1/users/{id}/notifications", handler.UserNotifications)
	mux.HandleFunc("POST /v1/notifications/{id}/read", handler.MarkNotificationRead)
	mux.HandleFunc("PUT /v1/reminders", handler.PutReminder)
	mux.HandleFunc("GET /health", healthCheckHandler(repo))

	var h http.Handler = mux
	if apiKey != "" {
		h = apiKeyMiddleware(apiKey)(h)
	}

	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		idReq, _ := hlog.IDFromRequest(r)

		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("req_id", idReq.String()).
			Msg("HTTP Request")
	})(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.UserAgentHandler("user_agent")(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.NewHandler(logger)(h)

	return h
}

// RunServer serves handler on listenAddr until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, handler http.Handler, listenAddr string, logger zerolog.Logger) error {
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("address", listenAddr).Msg("API server starting")
		err := httpServer.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
			if err := httpServer.Close(); err != nil {
				logger.Error().Err(err).Msg("HTTP server force close error")
			}
		} else {
			logger.Info().Msg("HTTP server shutdown complete")
		}
		if err := <-serverErr; err != nil {
			logger.Error().Err(err).Msg("ListenAndServe error during shutdown")
		}
	}

	return nil
}

// healthCheckHandler reports 200 when the store answers a ping.
func healthCheckHandler(repo storage.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repo.PingContext(ctx); err != nil {
			log.Warn().Err(err).Msg("Health check failed: store unreachable")
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("Error writing health check response")
		}
	}
}
