package user

import (
	"strings"
	"time"

	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/geo"
)

// RegisterInput is the body of POST /api/auth/register.
type RegisterInput struct {
	Email    string        `json:"email" validate:"required,email"`
	Password string        `json:"password" validate:"required,min=6"`
	Profile  ProfileInput  `json:"profile"`
	Cycling  *CyclingInput `json:"cycling,omitempty"`
	Location LocationInput `json:"location"`
}

type ProfileInput struct {
	FirstName    string     `json:"firstName" validate:"required,max=100"`
	LastName     string     `json:"lastName" validate:"required,max=100"`
	ProfileImage string     `json:"profileImage,omitempty" validate:"omitempty,url"`
	Bio          string     `json:"bio,omitempty" validate:"max=500"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	PhoneNumber  string     `json:"phoneNumber,omitempty" validate:"max=32"`
}

type CyclingInput struct {
	ExperienceLevel    string   `json:"experienceLevel,omitempty" validate:"omitempty,oneof=beginner intermediate advanced expert"`
	PreferredRideTypes []string `json:"preferredRideTypes,omitempty" validate:"omitempty,max=5,dive,oneof=road mountain gravel commute leisure"`
	AvgSpeed           *float64 `json:"avgSpeed,omitempty" validate:"omitempty,min=0,max=100"`
	MaxDistance        *float64 `json:"maxDistance,omitempty" validate:"omitempty,min=0,max=500"`
}

type LocationInput struct {
	Coordinates []float64 `json:"coordinates" validate:"required,len=2"`
	Address     string    `json:"address,omitempty" validate:"max=300"`
	Radius      *float64  `json:"radius,omitempty" validate:"omitempty,min=1,max=100"`
}

// Normalize trims text fields before validation.
func (in *RegisterInput) Normalize() {
	in.Email = NormalizeEmail(in.Email)
	in.Profile.normalize()
	in.Location.Address = strings.TrimSpace(in.Location.Address)
}

func (p *ProfileInput) normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Bio = strings.TrimSpace(p.Bio)
}

// Point converts the coordinates to a geo.Point, checking WGS84 bounds.
func (l LocationInput) Point() (geo.Point, *errs.CustomError) {
	if len(l.Coordinates) != 2 {
		return geo.Point{}, errs.NewError(errs.ErrInvalidParams).
			WithField("location.coordinates", "must be [longitude, latitude]")
	}

	p := geo.Point{l.Coordinates[0], l.Coordinates[1]}
	if err := p.Validate(); err != nil {
		return geo.Point{}, errs.NewError(errs.ErrInvalidParams).
			WithField("location.coordinates", err.Error())
	}
	return p, nil
}

// Apply writes the location onto loc. A missing radius resets it to DefaultRadiusKm.
func (l LocationInput) Apply(loc *Location) *errs.CustomError {
	p, customErr := l.Point()
	if customErr != nil {
		return customErr
	}

	loc.Coordinates = p
	loc.Address = l.Address
	loc.Radius = DefaultRadiusKm
	if l.Radius != nil {
		loc.Radius = *l.Radius
	}
	return nil
}

func (c *CyclingInput) apply(dst *Cycling) {
	if c.ExperienceLevel != "" {
		dst.ExperienceLevel = c.ExperienceLevel
	}
	if c.PreferredRideTypes != nil {
		dst.PreferredRideTypes = append([]string(nil), c.PreferredRideTypes...)
	}
	if c.AvgSpeed != nil {
		dst.AvgSpeed = c.AvgSpeed
	}
	if c.MaxDistance != nil {
		dst.MaxDistance = c.MaxDistance
	}
}

// NewUser builds the User described by in, with defaults applied.
// The password is hashed; in.Password is not retained.
func (in *RegisterInput) NewUser(id string, now time.Time) (*User, *errs.CustomError) {
	u := Defaults()
	u.ID = id
	u.Email = in.Email
	u.Profile = Profile{
		FirstName:    in.Profile.FirstName,
		LastName:     in.Profile.LastName,
		ProfileImage: in.Profile.ProfileImage,
		Bio:          in.Profile.Bio,
		DateOfBirth:  in.Profile.DateOfBirth,
		PhoneNumber:  in.Profile.PhoneNumber,
	}
	if in.Cycling != nil {
		in.Cycling.apply(&u.Cycling)
	}
	if customErr := in.Location.Apply(&u.Location); customErr != nil {
		return nil, customErr
	}
	if err := u.SetPassword(in.Password); err != nil {
		return nil, errs.Internal(err)
	}

	u.CreatedAt = now
	u.UpdatedAt = now
	return &u, nil
}

// LoginInput is the body of POST /api/auth/login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate is the body of PUT /api/users/profile. Email, password and the
// server-owned fields of User are accepted so that a client can send back the
// record it got from GET /api/users/profile; they are ignored.
type ProfileUpdate struct {
	Email       any               `json:"email,omitempty"`
	Password    any               `json:"password,omitempty"`
	Profile     *ProfilePatch     `json:"profile,omitempty"`
	Cycling     *CyclingInput     `json:"cycling,omitempty"`
	Location    *LocationInput    `json:"location,omitempty"`
	Preferences *PreferencesPatch `json:"preferences,omitempty"`

	ID        any `json:"id,omitempty"`
	Ratings   any `json:"ratings,omitempty"`
	CreatedAt any `json:"createdAt,omitempty"`
	UpdatedAt any `json:"updatedAt,omitempty"`
}

type ProfilePatch struct {
	FirstName    *string    `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
	LastName     *string    `json:"lastName,omitempty" validate:"omitempty,min=1,max=100"`
	ProfileImage *string    `json:"profileImage,omitempty" validate:"omitempty,max=2048"`
	Bio          *string    `json:"bio,omitempty" validate:"omitempty,max=500"`
	DateOfBirth  *time.Time `json:"dateOfBirth,omitempty"`
	PhoneNumber  *string    `json:"phoneNumber,omitempty" validate:"omitempty,max=32"`
	Verified     any        `json:"verified,omitempty"`
}

type PreferencesPatch struct {
	Notifications *Notifications `json:"notifications,omitempty"`
	Privacy       *Privacy       `json:"privacy,omitempty"`
}

// Normalize drops the fields this endpoint must not change and trims names.
func (in *ProfileUpdate) Normalize() {
	in.Email = nil
	in.Password = nil
	in.ID, in.Ratings, in.CreatedAt, in.UpdatedAt = nil, nil, nil, nil

	if in.Profile != nil {
		in.Profile.Verified = nil
		for _, s := range []*string{in.Profile.FirstName, in.Profile.LastName, in.Profile.Bio} {
			if s != nil {
				*s = strings.TrimSpace(*s)
			}
		}
	}
}

// Apply merges the update into u.
func (in *ProfileUpdate) Apply(u *User, now time.Time) *errs.CustomError {
	if p := in.Profile; p != nil {
		if p.FirstName != nil {
			u.Profile.FirstName = *p.FirstName
		}
		if p.LastName != nil {
			u.Profile.LastName = *p.LastName
		}
		if p.ProfileImage != nil {
			u.Profile.ProfileImage = *p.ProfileImage
		}
		if p.Bio != nil {
			u.Profile.Bio = *p.Bio
		}
		if p.DateOfBirth != nil {
			u.Profile.DateOfBirth = p.DateOfBirth
		}
		if p.PhoneNumber != nil {
			u.Profile.PhoneNumber = *p.PhoneNumber
		}
	}

	if in.Cycling != nil {
		in.Cycling.apply(&u.Cycling)
	}

	if in.Location != nil {
		if customErr := in.Location.Apply(&u.Location); customErr != nil {
			return customErr
		}
	}

	if p := in.Preferences; p != nil {
		if p.Notifications != nil {
			u.Preferences.Notifications = *p.Notifications
		}
		if p.Privacy != nil {
			u.Preferences.Privacy = *p.Privacy
		}
	}

	u.UpdatedAt = now
	return nil
}
