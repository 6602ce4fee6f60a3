/*
Package handler provides the HTTP handlers and routing setup for the CycleConnect server.

This file contains the realtime hub handshake: rate limiting, token verification
and the upgrade to WebSocket.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"cycleconnect/internal/pkg/auth/jwt"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/limiter"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/resp"
)

// HandleWebSocket authenticates the handshake and hands the upgraded connection to the hub.
// The token comes from the Authorization header or the "token" query parameter.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.Allow(ip) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(ip))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		identity, customErr := deps.Gate.Authenticate(r.Context(), jwt.HandshakeToken(r))
		if customErr != nil {
			logx.Info("WebSocket connection rejected: Authentication failed.", "code", customErr.Code)
			resp.RespondError(w, r, customErr)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		logx.Info("WebSocket connection established", "user_id", identity.UserID)

		deps.Hub.Serve(conn, identity.User)
	}
}
