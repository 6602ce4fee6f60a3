package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/store"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const rideColumns = `r.id, r.organizer_id, r.title, r.description, r.ride_type, r.difficulty, r.route,
	r.start_time, r.end_time, r.timezone, r.max_participants, r.is_public, r.require_approval,
	r.allow_waitlist, r.status, r.chat_enabled, r.created_at, r.updated_at`

func scanRide(row rowScanner) (*ride.Ride, error) {
	var (
		r      ride.Ride
		route  []byte
		status string
	)
	err := row.Scan(
		&r.ID, &r.Organizer, &r.Title, &r.Description, &r.RideType, &r.Difficulty, &route,
		&r.Schedule.StartTime, &r.Schedule.EndTime, &r.Schedule.Timezone, &r.Participants.MaxParticipants,
		&r.Settings.IsPublic, &r.Settings.RequireApproval, &r.Settings.AllowWaitlist,
		&status, &r.ChatEnabled, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(route, &r.Route); err != nil {
		return nil, fmt.Errorf("decode route of ride %s: %w", r.ID, err)
	}
	r.Status = ride.Status(status)
	r.Participants.Confirmed = []string{}
	r.Participants.Pending = []string{}
	return &r, nil
}

func collectRides(rows pgx.Rows) ([]*ride.Ride, error) {
	defer rows.Close()

	var out []*ride.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// loadParticipants fills the ledger lists of rides in their stored order.
func loadParticipants(ctx context.Context, q querier, rides []*ride.Ride) error {
	if len(rides) == 0 {
		return nil
	}

	byID := make(map[string]*ride.Ride, len(rides))
	ids := make([]string, 0, len(rides))
	for _, r := range rides {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	rows, err := q.Query(ctx, `SELECT ride_id, user_id, state FROM ride_participants
		WHERE ride_id = ANY($1) ORDER BY ride_id, state, position`, ids)
	if err != nil {
		return fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rideID, userID, state string
		if err := rows.Scan(&rideID, &userID, &state); err != nil {
			return fmt.Errorf("scan participant: %w", err)
		}
		r := byID[rideID]
		if state == "confirmed" {
			r.Participants.Confirmed = append(r.Participants.Confirmed, userID)
		} else {
			r.Participants.Pending = append(r.Participants.Pending, userID)
		}
	}
	return rows.Err()
}

func rideArgs(r *ride.Ride) ([]any, error) {
	route, err := json.Marshal(r.Route)
	if err != nil {
		return nil, fmt.Errorf("encode route: %w", err)
	}
	return []any{
		r.ID, r.Organizer, r.Title, r.Description, r.RideType, r.Difficulty,
		r.Route.StartPoint.Coordinates.Lon(), r.Route.StartPoint.Coordinates.Lat(), route,
		r.Schedule.StartTime, r.Schedule.EndTime, r.Schedule.Timezone, r.Participants.MaxParticipants,
		r.Settings.IsPublic, r.Settings.RequireApproval, r.Settings.AllowWaitlist,
		string(r.Status), r.ChatEnabled, r.CreatedAt, r.UpdatedAt,
	}, nil
}

// writeParticipants replaces the stored ledger of r with its in-memory lists.
func writeParticipants(ctx context.Context, q querier, r *ride.Ride) error {
	if _, err := q.Exec(ctx, `DELETE FROM ride_participants WHERE ride_id = $1`, r.ID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}

	for state, ids := range map[string][]string{
		"confirmed": r.Participants.Confirmed,
		"pending":   r.Participants.Pending,
	} {
		if len(ids) == 0 {
			continue
		}
		_, err := q.Exec(ctx, `INSERT INTO ride_participants (ride_id, user_id, state, position)
			SELECT $1, u.user_id, $2, u.ord
			FROM unnest($3::text[]) WITH ORDINALITY AS u(user_id, ord)`,
			r.ID, state, ids)
		if err != nil {
			return fmt.Errorf("insert %s participants: %w", state, err)
		}
	}
	return nil
}

func (s *Store) CreateRide(ctx context.Context, r *ride.Ride) error {
	args, err := rideArgs(r)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO rides (id, organizer_id, title, description, ride_type, difficulty,
			start_lon, start_lat, route, start_time, end_time, timezone, max_participants,
			is_public, require_approval, allow_waitlist, status, chat_enabled, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`, args...)
		if IsForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("insert ride: %w", err)
		}
		return writeParticipants(ctx, tx, r)
	})
}

func (s *Store) GetRide(ctx context.Context, id string) (*ride.Ride, error) {
	r, err := scanRide(s.pool.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides r WHERE r.id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if err := loadParticipants(ctx, s.pool, []*ride.Ride{r}); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRide locks the ride row for the duration of fn, so concurrent joins
// are serialized and the capacity check sees the latest ledger.
func (s *Store) UpdateRide(ctx context.Context, id string, fn func(*ride.Ride) error) (*ride.Ride, error) {
	var updated *ride.Ride

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := scanRide(tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides r WHERE r.id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}
		if err := loadParticipants(ctx, tx, []*ride.Ride{r}); err != nil {
			return err
		}

		if err := fn(r); err != nil {
			return err
		}
		r.ID = id
		r.UpdatedAt = time.Now().UTC()

		args, err := rideArgs(r)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE rides SET title = $3, description = $4, ride_type = $5, difficulty = $6,
			start_lon = $7, start_lat = $8, route = $9, start_time = $10, end_time = $11, timezone = $12,
			max_participants = $13, is_public = $14, require_approval = $15, allow_waitlist = $16,
			status = $17, chat_enabled = $18, created_at = $19, updated_at = $20
			WHERE id = $1 AND organizer_id = $2`, args...)
		if err != nil {
			return fmt.Errorf("update ride: %w", err)
		}

		if err := writeParticipants(ctx, tx, r); err != nil {
			return err
		}

		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// whereBuilder accumulates SQL conditions with positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (s *Store) ListRides(ctx context.Context, f ride.ListFilter) ([]*ride.Ride, int, error) {
	var w whereBuilder
	w.add("r.status = ?", string(f.Status))
	if f.RideType != "" {
		w.add("r.ride_type = ?", f.RideType)
	}
	if f.Difficulty != "" {
		w.add("r.difficulty = ?", f.Difficulty)
	}
	if f.Status == ride.StatusScheduled {
		w.add("r.start_time >= ?", f.Now)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM rides r`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rides: %w", err)
	}

	query := `SELECT ` + rideColumns + ` FROM rides r` + w.sql() +
		` ORDER BY r.start_time ASC LIMIT ` + w.arg(f.Limit) + ` OFFSET ` + w.arg(f.Offset())

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query rides: %w", err)
	}
	rides, err := collectRides(rows)
	if err != nil {
		return nil, 0, err
	}
	if err := loadParticipants(ctx, s.pool, rides); err != nil {
		return nil, 0, err
	}
	return rides, total, nil
}

func (s *Store) NearbyRides(ctx context.Context, q ride.NearbyQuery) ([]*ride.Ride, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rideColumns+` FROM rides r
		WHERE r.status = $1 AND r.start_time >= $2
		  AND haversine_m($3, $4, r.start_lat, r.start_lon) <= $5
		ORDER BY r.start_time ASC
		LIMIT $6`,
		string(ride.StatusScheduled), q.Now, q.Origin.Lat(), q.Origin.Lon(), q.RadiusKm*1000, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query nearby rides: %w", err)
	}
	rides, err := collectRides(rows)
	if err != nil {
		return nil, err
	}
	return rides, loadParticipants(ctx, s.pool, rides)
}

func (s *Store) UserRides(ctx context.Context, f ride.UserFilter) ([]*ride.Ride, error) {
	var w whereBuilder

	organized := "r.organizer_id = " + w.arg(f.UserID)
	joined := "EXISTS (SELECT 1 FROM ride_participants p WHERE p.ride_id = r.id AND p.user_id = $1 AND p.state = 'confirmed')"

	switch f.Type {
	case ride.MembershipOrganized:
		w.conds = append(w.conds, organized)
	case ride.MembershipJoined:
		w.conds = append(w.conds, joined)
	default:
		w.conds = append(w.conds, "("+organized+" OR "+joined+")")
	}
	if f.Status != "" {
		w.add("r.status = ?", string(f.Status))
	}

	rows, err := s.pool.Query(ctx, `SELECT `+rideColumns+` FROM rides r`+w.sql()+` ORDER BY r.start_time DESC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("query user rides: %w", err)
	}
	rides, err := collectRides(rows)
	if err != nil {
		return nil, err
	}
	return rides, loadParticipants(ctx, s.pool, rides)
}
