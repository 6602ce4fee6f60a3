/*
Package user contains the User record, its public projections and the input
types accepted when registering or editing a profile.
*/
package user

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"cycleconnect/internal/pkg/geo"
)

// Experience levels, shared with ride difficulty.
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
	LevelExpert       = "expert"
)

// DefaultRadiusKm is the search radius assigned when none is given.
const DefaultRadiusKm = 25

// HashCost is the bcrypt cost used for new credentials.
var HashCost = bcrypt.DefaultCost

// User is a registered cyclist.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	// PasswordHash never leaves the server.
	PasswordHash string `json:"-"`

	Profile     Profile     `json:"profile"`
	Cycling     Cycling     `json:"cycling"`
	Location    Location    `json:"location"`
	Preferences Preferences `json:"preferences"`
	Ratings     Ratings     `json:"ratings"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Profile struct {
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	ProfileImage string     `json:"profileImage,omitempty"`
	Bio          string     `json:"bio,omitempty"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	PhoneNumber  string     `json:"phoneNumber,omitempty"`
	Verified     bool       `json:"verified"`
}

type Cycling struct {
	ExperienceLevel    string   `json:"experienceLevel"`
	PreferredRideTypes []string `json:"preferredRideTypes"`
	AvgSpeed           *float64 `json:"avgSpeed,omitempty"`
	MaxDistance        *float64 `json:"maxDistance,omitempty"`
}

// Location is the user's home point and the radius they search rides in.
type Location struct {
	Coordinates geo.Point `json:"coordinates"`
	Address     string    `json:"address,omitempty"`
	Radius      float64   `json:"radius"`
}

type Notifications struct {
	NewRides      bool `json:"newRides"`
	Messages      bool `json:"messages"`
	RideReminders bool `json:"rideReminders"`
}

type Privacy struct {
	ShowLocation bool `json:"showLocation"`
	ShowProfile  bool `json:"showProfile"`
}

type Preferences struct {
	Notifications Notifications `json:"notifications"`
	Privacy       Privacy       `json:"privacy"`
}

type Ratings struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetPassword hashes password into PasswordHash.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), HashCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.Profile.FirstName + " " + u.Profile.LastName)
}

// Public is the subset of a user visible to other users.
type Public struct {
	ID        string    `json:"id"`
	Profile   Profile   `json:"profile"`
	Cycling   Cycling   `json:"cycling"`
	Ratings   Ratings   `json:"ratings"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public returns the public projection of u.
func (u *User) Public() Public {
	return Public{
		ID:        u.ID,
		Profile:   u.Profile,
		Cycling:   u.Cycling,
		Ratings:   u.Ratings,
		CreatedAt: u.CreatedAt,
	}
}

// Nearby is the projection returned by the nearby cyclists search.
type Nearby struct {
	ID       string  `json:"id"`
	Profile  Profile `json:"profile"`
	Cycling  Cycling `json:"cycling"`
	Ratings  Ratings `json:"ratings"`
	Location struct {
		Address string `json:"address,omitempty"`
	} `json:"location"`
	DistanceKm float64 `json:"distanceKm"`
}

// NearbyFrom builds the nearby projection of u as seen from origin.
func (u *User) NearbyFrom(origin geo.Point) Nearby {
	n := Nearby{
		ID:         u.ID,
		Profile:    u.Profile,
		Cycling:    u.Cycling,
		Ratings:    u.Ratings,
		DistanceKm: geo.DistanceMeters(origin, u.Location.Coordinates) / 1000,
	}
	n.Location.Address = u.Location.Address
	return n
}

// Summary is the short form used when a user is referenced from a ride or message.
type Summary struct {
	ID      string `json:"id"`
	Profile struct {
		FirstName    string `json:"firstName"`
		LastName     string `json:"lastName"`
		ProfileImage string `json:"profileImage,omitempty"`
	} `json:"profile"`
	Cycling struct {
		ExperienceLevel string `json:"experienceLevel,omitempty"`
	} `json:"cycling"`
}

// Summary returns the short form of u.
func (u *User) Summary() Summary {
	var s Summary
	s.ID = u.ID
	s.Profile.FirstName = u.Profile.FirstName
	s.Profile.LastName = u.Profile.LastName
	s.Profile.ProfileImage = u.Profile.ProfileImage
	s.Cycling.ExperienceLevel = u.Cycling.ExperienceLevel
	return s
}

// UnknownSummary stands in for a referenced user that no longer exists.
func UnknownSummary(id string) Summary {
	var s Summary
	s.ID = id
	s.Profile.FirstName = "Unknown"
	s.Profile.LastName = "User"
	return s
}

// Defaults applies the default values of a freshly registered user.
func Defaults() User {
	return User{
		Cycling: Cycling{
			ExperienceLevel:    LevelIntermediate,
			PreferredRideTypes: []string{},
		},
		Location: Location{Radius: DefaultRadiusKm},
		Preferences: Preferences{
			Notifications: Notifications{NewRides: true, Messages: true, RideReminders: true},
			Privacy:       Privacy{ShowLocation: true, ShowProfile: true},
		},
	}
}
