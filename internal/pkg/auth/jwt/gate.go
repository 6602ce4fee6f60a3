package jwt

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/resp"
)

// UserResolver loads the user a token refers to.
// found is false when the user no longer exists.
type UserResolver[U any] interface {
	ResolveUser(ctx context.Context, id string) (user U, found bool, err error)
}

// ResolverFunc adapts a function to the UserResolver interface.
type ResolverFunc[U any] func(ctx context.Context, id string) (U, bool, error)

// ResolveUser calls f(ctx, id).
func (f ResolverFunc[U]) ResolveUser(ctx context.Context, id string) (U, bool, error) {
	return f(ctx, id)
}

// Identity is what the gate attaches to an authenticated request.
type Identity[U any] struct {
	UserID string
	User   U
}

type contextKey string

// ContextIdentityKey is the key under which the Identity is stored in the request context.
const ContextIdentityKey contextKey = "auth_identity"

// Gate verifies bearer tokens and resolves them to users.
type Gate[U any] struct {
	secret string
	ttl    time.Duration
	users  UserResolver[U]
}

// NewGate creates a Gate. A non-positive ttl falls back to DefaultExpiration.
func NewGate[U any](secret string, ttl time.Duration, users UserResolver[U]) *Gate[U] {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &Gate[U]{secret: secret, ttl: ttl, users: users}
}

// IssueToken signs a new token for userID.
func (g *Gate[U]) IssueToken(userID string) (string, error) {
	return GenerateToken(userID, g.secret, g.ttl)
}

// Authenticate checks token and resolves the referenced user. The four rejection
// cases map to distinct errors: missing, invalid, expired and stale credential.
func (g *Gate[U]) Authenticate(ctx context.Context, token string) (Identity[U], *errs.CustomError) {
	var zero Identity[U]

	payload, err := ParseToken(token, g.secret)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenMissing):
			return zero, errs.NewError(errs.ErrAuthRequired)
		case errors.Is(err, ErrTokenExpired):
			return zero, errs.NewError(errs.ErrTokenExpired)
		default:
			return zero, errs.NewError(errs.ErrTokenInvalid)
		}
	}

	user, found, err := g.users.ResolveUser(ctx, payload.ID)
	if err != nil {
		return zero, errs.Internal(err)
	}
	if !found {
		return zero, errs.NewError(errs.ErrStaleCredential)
	}

	return Identity[U]{UserID: payload.ID, User: user}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
// A header with another scheme yields the raw value so that it fails as invalid, not missing.
func BearerToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok {
		if strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return authHeader
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return authHeader
	}

	return strings.TrimSpace(token)
}

// HandshakeToken extracts the token for a realtime handshake: the bearer header
// first, then the "token" query parameter, which browsers can set on a WebSocket URL.
func HandshakeToken(r *http.Request) string {
	if token := BearerToken(r); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// RequireAuth rejects requests without a valid token for an existing user.
func (g *Gate[U]) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, customErr := g.Authenticate(r.Context(), BearerToken(r))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// OptionalAuth attaches the identity when the token checks out and otherwise
// lets the request through anonymously.
func (g *Gate[U]) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity, customErr := g.Authenticate(r.Context(), token)
		if customErr != nil {
			logx.Ctx(r.Context()).Warn().
				Int("code", customErr.Code).
				Msg("Credential rejected on optional-auth route, continuing anonymously")
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity[U any](ctx context.Context, identity Identity[U]) context.Context {
	return context.WithValue(ctx, ContextIdentityKey, identity)
}

// FromContext returns the identity attached by RequireAuth or OptionalAuth.
// ok is false for anonymous requests.
func FromContext[U any](ctx context.Context) (Identity[U], bool) {
	identity, ok := ctx.Value(ContextIdentityKey).(Identity[U])
	return identity, ok
}
