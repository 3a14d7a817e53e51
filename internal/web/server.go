package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/example/dropsched/internal/auth"
	"github.com/example/dropsched/internal/broadcast"
	"github.com/example/dropsched/internal/community"
	"github.com/example/dropsched/internal/infrastructure/metrics"
	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/promo"
	"github.com/example/dropsched/internal/randy"
	"github.com/example/dropsched/internal/settings"
)

type Server struct {
	Auth      *auth.Store
	Plans     *plans.Service
	Promo     *promo.Service
	Randy     *randy.Service
	Settings  *settings.Service
	Broadcast *broadcast.Service
	Community *community.Service
	// Metrics is optional; /metrics is only mounted when set.
	Metrics *metrics.Metrics

	WorkerToken string
	// Location renders *_local timestamps and interprets zone-less input.
	Location *time.Location
	Logger   zerolog.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.Auth.RequireAuth)

			r.Get("/promocodes", s.handlePromoList)
			r.Post("/promocodes", s.handlePromoUpload)
			r.Post("/promocodes/schedule", s.handlePromoSchedule)
			r.Post("/promocodes/reset", s.handlePromoReset)

			r.Get("/randy", s.handleRandyList)
			r.Post("/randy", s.handleRandyCreate)
			r.Delete("/randy", s.handleRandyDelete)
			r.Get("/randy/slots", s.handleRandySlots)
			r.Delete("/randy/{id}", s.handleRandyDelete)
			r.Get("/randy/{id}/slots", s.handleRandySlots)

			r.Post("/messages/send", s.handleMessageSend)
			r.Get("/messages/history", s.handleMessageHistory)
			r.Get("/announcements", s.handleAnnouncementList)
			r.Post("/announcements", s.handleAnnouncementCreate)

			r.Get("/users", s.handleUsers)
			r.Get("/invites", s.handleInvites)
			r.Get("/invites/details", s.handleInviteDetails)
			r.Get("/stats", s.handleStats)

			r.Get("/plans", s.handlePlanList)
			r.Get("/plans/{id}", s.handlePlanGet)
			r.Delete("/plans/{id}", s.handlePlanReset)

			r.Get("/settings", s.handleSettingsGet)
			r.Post("/settings", s.handleSettingsPost)

			r.Post("/database/reset", s.handleDatabaseReset)
		})

		r.Route("/worker", func(r chi.Router) {
			r.Use(auth.RequireToken(s.WorkerToken))
			r.Get("/due", s.handleWorkerDue)
			r.Post("/entries/{id}/claim", s.handleWorkerClaim)
			r.Post("/entries/{id}/delivered", s.handleWorkerDelivered)
		})
	})

	return r
}

// observe logs each request and counts it by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		if s.Metrics != nil {
			s.Metrics.HTTPRequest(route, status)
		}
		s.Logger.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func Start(ctx context.Context, addr string, h http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Str("addr", addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
