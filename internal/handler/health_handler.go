package handler

import (
	"context"
	"net/http"
	"time"

	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/resp"
)

// HandleHealth reports that the process is up.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":    "OK",
			"timestamp": deps.now(),
		})
	}
}

// HandleAPIHealth also reports whether the store answers.
func HandleAPIHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		database := "connected"
		if err := deps.Store.Ping(ctx); err != nil {
			logx.Ctx(r.Context()).Warn().Err(err).Msg("Health check: store unreachable")
			database = "disconnected"
		}

		resp.RespondSuccess(w, r, map[string]any{
			"status":    "OK",
			"timestamp": deps.now(),
			"database":  database,
		})
	}
}
