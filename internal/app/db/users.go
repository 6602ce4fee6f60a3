package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
)

const userColumns = `id, email, password_hash, first_name, last_name, profile_image, bio, date_of_birth,
	phone_number, verified, experience_level, preferred_ride_types, avg_speed, max_distance,
	lon, lat, address, radius_km, notify_new_rides, notify_messages, notify_ride_reminders,
	show_location, show_profile, rating_average, rating_count, created_at, updated_at`

func scanUser(row rowScanner) (*user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash,
		&u.Profile.FirstName, &u.Profile.LastName, &u.Profile.ProfileImage, &u.Profile.Bio,
		&u.Profile.DateOfBirth, &u.Profile.PhoneNumber, &u.Profile.Verified,
		&u.Cycling.ExperienceLevel, &u.Cycling.PreferredRideTypes, &u.Cycling.AvgSpeed, &u.Cycling.MaxDistance,
		&u.Location.Coordinates[0], &u.Location.Coordinates[1], &u.Location.Address, &u.Location.Radius,
		&u.Preferences.Notifications.NewRides, &u.Preferences.Notifications.Messages, &u.Preferences.Notifications.RideReminders,
		&u.Preferences.Privacy.ShowLocation, &u.Preferences.Privacy.ShowProfile,
		&u.Ratings.Average, &u.Ratings.Count,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if u.Cycling.PreferredRideTypes == nil {
		u.Cycling.PreferredRideTypes = []string{}
	}
	return &u, nil
}

func userArgs(u *user.User) []any {
	rideTypes := u.Cycling.PreferredRideTypes
	if rideTypes == nil {
		rideTypes = []string{}
	}
	return []any{
		u.ID, u.Email, u.PasswordHash,
		u.Profile.FirstName, u.Profile.LastName, u.Profile.ProfileImage, u.Profile.Bio,
		u.Profile.DateOfBirth, u.Profile.PhoneNumber, u.Profile.Verified,
		u.Cycling.ExperienceLevel, rideTypes, u.Cycling.AvgSpeed, u.Cycling.MaxDistance,
		u.Location.Coordinates.Lon(), u.Location.Coordinates.Lat(), u.Location.Address, u.Location.Radius,
		u.Preferences.Notifications.NewRides, u.Preferences.Notifications.Messages, u.Preferences.Notifications.RideReminders,
		u.Preferences.Privacy.ShowLocation, u.Preferences.Privacy.ShowProfile,
		u.Ratings.Average, u.Ratings.Count,
		u.CreatedAt, u.UpdatedAt,
	}
}

func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		userArgs(u)...)
	if IsUniqueViolation(err) {
		return store.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, notFound(err)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	return u, notFound(err)
}

func (s *Store) GetUsers(ctx context.Context, ids []string) (map[string]*user.User, error) {
	out := make(map[string]*user.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, id string, fn func(*user.User) error) (*user.User, error) {
	var updated *user.User

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err)
		}

		email := u.Email
		if err := fn(u); err != nil {
			return err
		}
		u.ID, u.Email = id, email

		args := userArgs(u)
		_, err = tx.Exec(ctx, `UPDATE users SET
			password_hash = $3, first_name = $4, last_name = $5, profile_image = $6, bio = $7,
			date_of_birth = $8, phone_number = $9, verified = $10, experience_level = $11,
			preferred_ride_types = $12, avg_speed = $13, max_distance = $14, lon = $15, lat = $16,
			address = $17, radius_km = $18, notify_new_rides = $19, notify_messages = $20,
			notify_ride_reminders = $21, show_location = $22, show_profile = $23,
			rating_average = $24, rating_count = $25, created_at = $26, updated_at = $27
			WHERE id = $1 AND email = $2`, args...)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}

		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) NearbyUsers(ctx context.Context, q store.NearbyUsersQuery) ([]*user.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users
		WHERE id <> $1 AND show_location
		  AND haversine_m($2, $3, lat, lon) <= $4
		ORDER BY haversine_m($2, $3, lat, lon)
		LIMIT $5`,
		q.ExcludeID, q.Origin.Lat(), q.Origin.Lon(), q.RadiusKm*1000, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("query nearby users: %w", err)
	}
	defer rows.Close()

	var out []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
