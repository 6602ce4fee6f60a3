package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cycleconnect/internal/app/chat"
	"cycleconnect/internal/app/events"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/storage"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/configs"
	"cycleconnect/internal/pkg/auth/jwt"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/logx"
)

// AppDeps carries everything the handlers need.
type AppDeps struct {
	Config *configs.AppConfig
	Store  store.Store
	Hub    *chat.Manager
	Gate   *jwt.Gate[*user.User]

	// StorageService is nil when profile image uploads are not configured.
	StorageService storage.StorageService

	Events events.Publisher

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// NewGate builds the authentication gate backed by the user store.
func NewGate(users store.Users, secret string, ttl time.Duration) *jwt.Gate[*user.User] {
	return jwt.NewGate[*user.User](secret, ttl, jwt.ResolverFunc[*user.User](
		func(ctx context.Context, id string) (*user.User, bool, error) {
			u, err := users.GetUser(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil, false, nil
			}
			if err != nil {
				return nil, false, err
			}
			return u, true, nil
		},
	))
}

func (d *AppDeps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// publish sends a ride event. A failure is logged and never fails the request.
func (d *AppDeps) publish(ctx context.Context, e events.Event) {
	if d.Events == nil {
		return
	}
	e.At = d.now()

	if err := d.Events.Publish(ctx, e); err != nil {
		logx.Ctx(ctx).Warn().Err(err).Str("event", e.Type).Str("ride_id", e.RideID).Msg("Failed to publish ride event")
	}
}

// currentUser returns the user attached by RequireAuth, or nil.
func currentUser(r *http.Request) *user.User {
	identity, ok := jwt.FromContext[*user.User](r.Context())
	if !ok {
		return nil
	}
	return identity.User
}

// storeError maps a store failure to the client error, using notFoundCode for missing records.
func storeError(err error, notFoundCode int) *errs.CustomError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NewError(notFoundCode)
	case errors.Is(err, store.ErrEmailTaken):
		return errs.NewError(errs.ErrEmailTaken).WithField("email", "is already registered")
	case errors.Is(err, ride.ErrOrganizerConflict):
		return errs.NewError(errs.ErrOrganizerCannotJoin)
	case errors.Is(err, ride.ErrAlreadyMember):
		return errs.NewError(errs.ErrAlreadyMember)
	case errors.Is(err, ride.ErrRideFull):
		return errs.NewError(errs.ErrRideFull)
	default:
		return errs.Internal(err)
	}
}

// populateRides expands organizers and participants of rides with one user lookup.
func (d *AppDeps) populateRides(ctx context.Context, rides ...*ride.Ride) ([]ride.View, error) {
	ids := make([]string, 0, len(rides))
	for _, rd := range rides {
		ids = append(ids, rd.MemberIDs()...)
	}

	users, err := d.Store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ride.View, 0, len(rides))
	for _, rd := range rides {
		views = append(views, ride.Populate(rd, users))
	}
	return views, nil
}
