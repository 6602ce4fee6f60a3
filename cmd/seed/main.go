/*
Package main seeds a PostgreSQL database with three test riders and a few upcoming
rides around San Francisco, for local development and manual testing.

Existing seed users are removed first, together with the rides they organize.
*/
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"

	"cycleconnect/internal/app/db"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/randx"
)

var cli = struct {
	DatabaseURL string `name:"database-url" env:"DATABASE_URL" required:"" help:"PostgreSQL connection string."`
	Password    string `name:"password" default:"password123" help:"Password given to every seed user."`
	Migrate     bool   `name:"migrate" default:"true" negatable:"" help:"Apply pending migrations first."`
}{}

type seedUser struct {
	email     string
	firstName string
	lastName  string
	bio       string
	level     string
	lon, lat  float64
	radius    float64
}

var seedUsers = []seedUser{
	{"alice@test.com", "Alice", "Johnson", "Mountain biker who loves exploring new trails.", user.LevelAdvanced, -122.4194, 37.7749, 25},
	{"bob@test.com", "Bob", "Smith", "Road cycling enthusiast and commuter.", user.LevelIntermediate, -122.4594, 37.7849, 20},
	{"charlie@test.com", "Charlie", "Davis", "Beginner looking to join friendly groups.", user.LevelBeginner, -122.4094, 37.7649, 15},
}

type seedRide struct {
	title      string
	organizer  int
	rideType   string
	difficulty string
	start      ride.PlaceInput
	end        ride.PlaceInput
	distance   float64
	inDays     int
	max        int
	riders     []int
}

var seedRides = []seedRide{
	{
		title: "Golden Gate Bridge Morning Ride", organizer: 0, rideType: ride.TypeRoad, difficulty: "intermediate",
		start:    ride.PlaceInput{Coordinates: []float64{-122.4661, 37.8024}, Address: "Crissy Field, San Francisco, CA"},
		end:      ride.PlaceInput{Coordinates: []float64{-122.4852, 37.8590}, Address: "Sausalito, CA"},
		distance: 15.5, inDays: 2, max: 8, riders: []int{1},
	},
	{
		title: "Twin Peaks Climb Challenge", organizer: 1, rideType: ride.TypeRoad, difficulty: "advanced",
		start:    ride.PlaceInput{Coordinates: []float64{-122.4194, 37.7749}, Address: "Market Street, San Francisco, CA"},
		end:      ride.PlaceInput{Coordinates: []float64{-122.4477, 37.7516}, Address: "Twin Peaks, San Francisco, CA"},
		distance: 8.2, inDays: 5, max: 6,
	},
	{
		title: "Beginner-Friendly Bay Trail Tour", organizer: 0, rideType: ride.TypeLeisure, difficulty: "beginner",
		start:    ride.PlaceInput{Coordinates: []float64{-122.3959, 37.7955}, Address: "Embarcadero, San Francisco, CA"},
		end:      ride.PlaceInput{Coordinates: []float64{-122.4194, 37.8077}, Address: "Aquatic Park, San Francisco, CA"},
		distance: 5.8, inDays: 1, max: 10, riders: []int{2},
	},
}

func main() {
	kong.Parse(&cli, kong.Description("Seed CycleConnect with test riders and rides."))
	logx.InitGlobalLogger(true, "info")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		logx.Fatal(err, "Seeding failed")
	}
}

func run(ctx context.Context) error {
	pool, err := db.NewPool(ctx, cli.DatabaseURL, cli.Migrate)
	if err != nil {
		return err
	}
	st := db.NewStore(pool)
	defer st.Close()

	now := time.Now().UTC()

	ids := make([]string, len(seedUsers))
	for i, su := range seedUsers {
		if err := removeUser(ctx, st, su.email); err != nil {
			return err
		}

		radius := su.radius
		input := user.RegisterInput{
			Email:    su.email,
			Password: cli.Password,
			Profile:  user.ProfileInput{FirstName: su.firstName, LastName: su.lastName, Bio: su.bio},
			Cycling:  &user.CyclingInput{ExperienceLevel: su.level},
			Location: user.LocationInput{
				Coordinates: []float64{su.lon, su.lat},
				Address:     "San Francisco, CA",
				Radius:      &radius,
			},
		}
		u, customErr := input.NewUser(randx.ID(), now)
		if customErr != nil {
			return customErr
		}
		if err := st.CreateUser(ctx, u); err != nil {
			return err
		}

		ids[i] = u.ID
		logx.Info("Created user", "email", u.Email, "id", u.ID)
	}

	for _, sr := range seedRides {
		end := sr.end
		distance := sr.distance
		maxRiders := sr.max
		input := ride.CreateInput{
			Title:      sr.title,
			RideType:   sr.rideType,
			Difficulty: sr.difficulty,
			Route: ride.RouteInput{
				StartPoint: sr.start,
				EndPoint:   &end,
				Distance:   &distance,
			},
			Schedule:     ride.ScheduleInput{StartTime: now.Add(time.Duration(sr.inDays) * 24 * time.Hour)},
			Participants: &ride.ParticipantsInput{MaxParticipants: &maxRiders},
		}

		r, customErr := input.NewRide(randx.ID(), ids[sr.organizer], now)
		if customErr != nil {
			return customErr
		}
		for _, idx := range sr.riders {
			if _, err := r.Join(ids[idx]); err != nil {
				return err
			}
		}
		if err := st.CreateRide(ctx, r); err != nil {
			return err
		}

		logx.Info("Created ride", "title", r.Title, "id", r.ID, "confirmed", len(r.Participants.Confirmed))
	}

	logx.Info("Seeding complete", "users", len(ids), "rides", len(seedRides), "password", cli.Password)
	return nil
}

func removeUser(ctx context.Context, st store.Users, email string) error {
	u, err := st.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return st.DeleteUser(ctx, u.ID)
}
