/*
Package handler provides the HTTP handlers and routing setup for the CycleConnect server.

This file contains registration, login, token refresh and logout.
*/
package handler

import (
	"errors"
	"net/http"

	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/randx"
	"cycleconnect/internal/pkg/req"
	"cycleconnect/internal/pkg/resp"
)

type authResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user,omitempty"`
}

// HandleRegister creates an account and signs the user in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input user.RegisterInput
		if customErr := req.DecodeJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		input.Normalize()
		if customErr := req.Validate(&input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, customErr := input.NewUser(randx.ID(), deps.now())
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Store.CreateUser(r.Context(), u); err != nil {
			if errors.Is(err, store.ErrEmailTaken) {
				logx.Ctx(r.Context()).Warn().Msg("Registration conflict: email already exists")
			} else {
				logx.Ctx(r.Context()).Error().Err(err).Msg("Failed to create user")
			}
			resp.RespondError(w, r, storeError(err, errs.ErrUserNotFound))
			return
		}

		token, err := deps.Gate.IssueToken(u.ID)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		logx.Ctx(r.Context()).Info().Str("user_id", u.ID).Msg("User registered")
		resp.RespondCreated(w, r, "User created successfully", authResponse{Token: token, User: u})
	}
}

// HandleLogin verifies credentials and issues a token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input user.LoginInput
		if customErr := req.DecodeJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		input.Email = user.NormalizeEmail(input.Email)
		if customErr := req.Validate(&input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Store.GetUserByEmail(r.Context(), input.Email)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.Internal(err))
				return
			}
			logx.Ctx(r.Context()).Warn().Msg("Login: unknown email")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		if !u.CheckPassword(input.Password) {
			logx.Ctx(r.Context()).Warn().Str("user_id", u.ID).Msg("Login: password mismatch")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidCredentials))
			return
		}

		token, err := deps.Gate.IssueToken(u.ID)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		resp.RespondMessage(w, r, "Login successful", authResponse{Token: token, User: u})
	}
}

type refreshInput struct {
	Token string `json:"token"`
}

// HandleRefresh exchanges a valid, unexpired token for a new one.
func HandleRefresh(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input refreshInput
		if customErr := req.DecodeJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		identity, customErr := deps.Gate.Authenticate(r.Context(), input.Token)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, err := deps.Gate.IssueToken(identity.UserID)
		if err != nil {
			resp.RespondError(w, r, errs.Internal(err))
			return
		}

		resp.RespondSuccess(w, r, authResponse{Token: token})
	}
}

// HandleLogout acknowledges a logout. Tokens are stateless, so the client discards its own.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if u := currentUser(r); u != nil {
			logx.Ctx(r.Context()).Info().Str("user_id", u.ID).Msg("User logged out")
		}
		resp.RespondMessage(w, r, "Logout successful", nil)
	}
}
