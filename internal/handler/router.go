/*
Package handler provides the HTTP handlers and routing setup for the CycleConnect server.

This file defines the main Router, applying middleware for logging, CORS, security headers,
metrics, tracing, compression and IP-based rate limiting before delegating requests to the
API and WebSocket handlers.
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/limiter"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/metrics"
	"cycleconnect/internal/pkg/resp"
	"cycleconnect/internal/pkg/tracing"
)

const (
	JoinRate  = 0.5
	JoinBurst = 10
)

// securityHeaders are set on every response.
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "SAMEORIGIN"},
	{"Referrer-Policy", "no-referrer"},
	{"X-DNS-Prefetch-Control", "off"},
	{"Strict-Transport-Security", "max-age=15552000; includeSubDomains"},
}

// Router sets up the main HTTP routing table (chi.Router) for the application.
// The limiters stop cleaning up their visitor maps when ctx is cancelled.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	apiLimiter := limiter.NewWindowLimiter(ctx, deps.Config.RateLimitMax, deps.Config.RateLimitWindow)
	joinLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	for _, h := range securityHeaders {
		r.Use(middleware.SetHeader(h[0], h[1]))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		resp.RespondError(w, r, errs.NewError(errs.ErrRouteNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		resp.RespondError(w, r, errs.NewError(errs.ErrRouteNotFound))
	})

	r.Get("/ws", HandleWebSocket(deps, wsUpgrader, joinLimiter))
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(metrics.Middleware)
		r.Use(tracing.Middleware)
		r.Use(middleware.Compress(5))

		r.Get("/health", HandleHealth(deps))

		r.Route("/api", func(api chi.Router) {
			api.Use(apiLimiter.Middleware)

			api.Get("/health", HandleAPIHealth(deps))

			api.Route("/auth", func(auth chi.Router) {
				auth.Post("/register", HandleRegister(deps))
				auth.Post("/login", HandleLogin(deps))
				auth.Post("/refresh", HandleRefresh(deps))
				auth.With(deps.Gate.OptionalAuth).Post("/logout", HandleLogout(deps))
			})

			api.Route("/users", func(users chi.Router) {
				users.Use(deps.Gate.RequireAuth)

				users.Get("/profile", HandleGetProfile(deps))
				users.Put("/profile", HandleUpdateProfile(deps))
				users.Put("/location", HandleUpdateLocation(deps))
				users.Get("/nearby/cyclists", HandleNearbyCyclists(deps))
				users.Delete("/account", HandleDeleteAccount(deps))
				users.Post("/avatar/presign", HandlePresignAvatar(deps))
				users.Get("/{id}", HandleGetUser(deps))
			})

			api.Route("/rides", func(rides chi.Router) {
				rides.Use(deps.Gate.RequireAuth)

				rides.Get("/", HandleListRides(deps))
				rides.Post("/", HandleCreateRide(deps))
				rides.Get("/nearby", HandleNearbyRides(deps))
				rides.Get("/user/my-rides", HandleMyRides(deps))
				rides.Get("/{id}", HandleGetRide(deps))
				rides.Post("/{id}/join", HandleJoinRide(deps))
				rides.Post("/{id}/leave", HandleLeaveRide(deps))
				rides.Get("/{id}/messages", HandleRideMessages(deps))
			})
		})
	})

	return r
}
