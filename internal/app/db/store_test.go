package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/geo"
	"cycleconnect/internal/pkg/randx"
)

func TestWhereBuilderNumbersArguments(t *testing.T) {
	var w whereBuilder
	w.add("a = ?", 1)
	w.add("b BETWEEN ? AND ?", 2, 3)
	limit := w.arg(10)

	if got := w.sql(); got != " WHERE a = $1 AND b BETWEEN $2 AND $3" {
		t.Fatalf("unexpected sql %q", got)
	}
	if limit != "$4" || len(w.args) != 4 {
		t.Fatalf("unexpected limit placeholder %q with %d args", limit, len(w.args))
	}
}

// newTestStore connects to TEST_DATABASE_URL, skipping when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := NewPool(context.Background(), dsn, true)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	s := NewStore(pool)
	t.Cleanup(s.Close)
	return s
}

func createTestUser(t *testing.T, s *Store, name string) *user.User {
	t.Helper()

	u := user.Defaults()
	u.ID = randx.ID()
	u.Email = fmt.Sprintf("%s-%s@example.com", name, u.ID[:8])
	u.PasswordHash = "x"
	u.Profile.FirstName = name
	u.Profile.LastName = "Test"
	u.Location.Coordinates = geo.NewPoint(37.77, -122.42)
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt

	if err := s.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return &u
}

func TestPostgresConcurrentJoins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	org := createTestUser(t, s, "org")
	if err := s.CreateUser(ctx, &user.User{ID: randx.ID(), Email: org.Email}); !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	r := &ride.Ride{
		ID:           randx.ID(),
		Organizer:    org.ID,
		Title:        "Capacity test",
		RideType:     ride.TypeRoad,
		Difficulty:   user.LevelBeginner,
		Route:        ride.Route{StartPoint: ride.Place{Coordinates: geo.NewPoint(37.77, -122.42), Address: "Ferry Building"}},
		Schedule:     ride.Schedule{StartTime: time.Now().Add(time.Hour).UTC(), Timezone: "UTC"},
		Participants: ride.Participants{MaxParticipants: 3},
		Status:       ride.StatusScheduled,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.CreateRide(ctx, r); err != nil {
		t.Fatalf("CreateRide: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 10 {
		u := createTestUser(t, s, fmt.Sprintf("rider%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateRide(ctx, r.ID, func(r *ride.Ride) error {
				_, err := r.Join(u.ID)
				return err
			})
			if err != nil && !errors.Is(err, ride.ErrRideFull) {
				t.Errorf("join: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRide: %v", err)
	}
	if len(got.Participants.Confirmed) != 3 {
		t.Fatalf("expected 3 confirmed, got %d", len(got.Participants.Confirmed))
	}

	msg := message.New(randx.ID(), org.ID, message.Draft{RideID: r.ID, Content: "hello", Type: message.TypeText}, time.Now().UTC())
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	for range 2 {
		if _, err := s.MarkRead(ctx, r.ID, got.Participants.Confirmed[0], []string{msg.ID}, time.Now().UTC()); err != nil {
			t.Fatalf("MarkRead: %v", err)
		}
	}
	msgs, err := s.ListMessages(ctx, r.ID, 50)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].ReadBy) != 1 {
		t.Fatalf("expected one message with one receipt, got %+v", msgs)
	}

	if err := s.DeleteUser(ctx, org.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetRide(ctx, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected organized ride to be deleted, got %v", err)
	}
}
