/*
Package store defines the persistence contract for users, rides and messages,
and provides an in-memory implementation used in development and tests.
The PostgreSQL implementation lives in package db.
*/
package store

import (
	"context"
	"errors"
	"time"

	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/geo"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrEmailTaken is returned when a user with the same email already exists.
	ErrEmailTaken = errors.New("email already registered")
)

// NearbyUsersQuery selects users who share their location within RadiusKm of Origin.
type NearbyUsersQuery struct {
	Origin    geo.Point
	RadiusKm  float64
	Limit     int
	ExcludeID string
}

type Users interface {
	// CreateUser inserts u. It returns ErrEmailTaken for a duplicate email.
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	// GetUsers returns the users that exist among ids, keyed by id.
	GetUsers(ctx context.Context, ids []string) (map[string]*user.User, error)
	// UpdateUser loads the user, applies fn and saves the result atomically.
	UpdateUser(ctx context.Context, id string, fn func(*user.User) error) (*user.User, error)
	// DeleteUser removes the user with the rides they organize and their messages.
	DeleteUser(ctx context.Context, id string) error
	NearbyUsers(ctx context.Context, q NearbyUsersQuery) ([]*user.User, error)
}

type Rides interface {
	CreateRide(ctx context.Context, r *ride.Ride) error
	GetRide(ctx context.Context, id string) (*ride.Ride, error)
	// UpdateRide loads the ride, applies fn and saves the result while holding
	// the ride exclusively, so concurrent ledger changes never interleave.
	// An error from fn aborts the update and is returned unchanged.
	UpdateRide(ctx context.Context, id string, fn func(*ride.Ride) error) (*ride.Ride, error)
	// ListRides returns one page of matching rides ordered by start time, and the total count.
	ListRides(ctx context.Context, f ride.ListFilter) ([]*ride.Ride, int, error)
	// NearbyRides returns upcoming rides ordered by start time.
	NearbyRides(ctx context.Context, q ride.NearbyQuery) ([]*ride.Ride, error)
	// UserRides returns the rides of a user, latest start time first.
	UserRides(ctx context.Context, f ride.UserFilter) ([]*ride.Ride, error)
}

type Messages interface {
	CreateMessage(ctx context.Context, m *message.Message) error
	// ListMessages returns the latest limit messages of a ride, oldest first.
	ListMessages(ctx context.Context, rideID string, limit int) ([]*message.Message, error)
	// MarkRead adds a receipt for userID to each listed message of the ride that lacks one.
	// It returns the number of receipts added.
	MarkRead(ctx context.Context, rideID, userID string, messageIDs []string, at time.Time) (int, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	Users
	Rides
	Messages

	Ping(ctx context.Context) error
	Close()
}
