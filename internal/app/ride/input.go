package ride

import (
	"strings"
	"time"

	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/geo"
)

// CreateInput is the body of POST /api/rides.
type CreateInput struct {
	Title       string `json:"title" validate:"required,min=3,max=100"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	RideType    string `json:"rideType" validate:"required,oneof=road mountain gravel commute leisure"`
	Difficulty  string `json:"difficulty" validate:"required,oneof=beginner intermediate advanced expert"`

	Route        RouteInput         `json:"route"`
	Schedule     ScheduleInput      `json:"schedule"`
	Participants *ParticipantsInput `json:"participants,omitempty"`
	Settings     *SettingsInput     `json:"settings,omitempty"`
	ChatEnabled  *bool              `json:"chatEnabled,omitempty"`
}

type PlaceInput struct {
	Coordinates []float64 `json:"coordinates" validate:"required,len=2"`
	Address     string    `json:"address" validate:"required,max=300"`
}

type WaypointInput struct {
	Coordinates []float64 `json:"coordinates" validate:"required,len=2"`
	Description string    `json:"description,omitempty" validate:"max=300"`
}

type RouteInput struct {
	StartPoint        PlaceInput      `json:"startPoint"`
	EndPoint          *PlaceInput     `json:"endPoint,omitempty"`
	Waypoints         []WaypointInput `json:"waypoints,omitempty" validate:"omitempty,max=50,dive"`
	Distance          *float64        `json:"distance,omitempty" validate:"omitempty,min=0"`
	Elevation         *float64        `json:"elevation,omitempty" validate:"omitempty,min=0"`
	EstimatedDuration *float64        `json:"estimatedDuration,omitempty" validate:"omitempty,min=0"`
}

type ScheduleInput struct {
	StartTime time.Time  `json:"startTime" validate:"required"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Timezone  string     `json:"timezone,omitempty" validate:"max=64"`
}

type ParticipantsInput struct {
	MaxParticipants *int `json:"maxParticipants,omitempty" validate:"omitempty,min=2,max=50"`
}

type SettingsInput struct {
	IsPublic        *bool `json:"isPublic,omitempty"`
	RequireApproval *bool `json:"requireApproval,omitempty"`
	AllowWaitlist   *bool `json:"allowWaitlist,omitempty"`
}

// Normalize trims text fields before validation.
func (in *CreateInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Route.StartPoint.Address = strings.TrimSpace(in.Route.StartPoint.Address)
}

func toPoint(field string, coords []float64) (geo.Point, *errs.CustomError) {
	if len(coords) != 2 {
		return geo.Point{}, errs.NewError(errs.ErrInvalidParams).WithField(field, "must be [longitude, latitude]")
	}
	p := geo.Point{coords[0], coords[1]}
	if err := p.Validate(); err != nil {
		return geo.Point{}, errs.NewError(errs.ErrInvalidParams).WithField(field, err.Error())
	}
	return p, nil
}

// NewRide builds the Ride described by in, owned by organizerID, with defaults applied.
func (in *CreateInput) NewRide(id, organizerID string, now time.Time) (*Ride, *errs.CustomError) {
	start, customErr := toPoint("route.startPoint.coordinates", in.Route.StartPoint.Coordinates)
	if customErr != nil {
		return nil, customErr
	}

	r := &Ride{
		ID:          id,
		Organizer:   organizerID,
		Title:       in.Title,
		Description: in.Description,
		RideType:    in.RideType,
		Difficulty:  in.Difficulty,
		Route: Route{
			StartPoint:        Place{Coordinates: start, Address: in.Route.StartPoint.Address},
			Distance:          in.Route.Distance,
			Elevation:         in.Route.Elevation,
			EstimatedDuration: in.Route.EstimatedDuration,
		},
		Schedule: Schedule{
			StartTime: in.Schedule.StartTime.UTC(),
			Timezone:  in.Schedule.Timezone,
		},
		Participants: Participants{
			Confirmed:       []string{},
			Pending:         []string{},
			MaxParticipants: DefaultMaxParticipants,
		},
		Settings: Settings{
			IsPublic:      true,
			AllowWaitlist: true,
		},
		Status:      StatusScheduled,
		ChatEnabled: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if r.Schedule.Timezone == "" {
		r.Schedule.Timezone = "UTC"
	}

	if in.Schedule.EndTime != nil {
		if in.Schedule.EndTime.Before(in.Schedule.StartTime) {
			return nil, errs.NewError(errs.ErrInvalidParams).WithField("schedule.endTime", "must not be before startTime")
		}
		end := in.Schedule.EndTime.UTC()
		r.Schedule.EndTime = &end
	}

	if ep := in.Route.EndPoint; ep != nil {
		p, customErr := toPoint("route.endPoint.coordinates", ep.Coordinates)
		if customErr != nil {
			return nil, customErr
		}
		r.Route.EndPoint = &Place{Coordinates: p, Address: ep.Address}
	}

	for _, wp := range in.Route.Waypoints {
		p, customErr := toPoint("route.waypoints.coordinates", wp.Coordinates)
		if customErr != nil {
			return nil, customErr
		}
		r.Route.Waypoints = append(r.Route.Waypoints, Waypoint{Coordinates: p, Description: wp.Description})
	}

	if in.Participants != nil && in.Participants.MaxParticipants != nil {
		r.Participants.MaxParticipants = *in.Participants.MaxParticipants
	}

	if s := in.Settings; s != nil {
		if s.IsPublic != nil {
			r.Settings.IsPublic = *s.IsPublic
		}
		if s.RequireApproval != nil {
			r.Settings.RequireApproval = *s.RequireApproval
		}
		if s.AllowWaitlist != nil {
			r.Settings.AllowWaitlist = *s.AllowWaitlist
		}
	}

	if in.ChatEnabled != nil {
		r.ChatEnabled = *in.ChatEnabled
	}

	return r, nil
}
