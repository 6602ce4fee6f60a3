/*
Package ride defines the Ride record, its participant ledger and the query
filters used to list rides.
*/
package ride

import (
	"encoding/json"
	"time"

	"cycleconnect/internal/pkg/geo"
)

// Ride types.
const (
	TypeRoad     = "road"
	TypeMountain = "mountain"
	TypeGravel   = "gravel"
	TypeCommute  = "commute"
	TypeLeisure  = "leisure"
)

// Status is the lifecycle state of a ride.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Participant limits.
const (
	DefaultMaxParticipants = 10
	MinParticipants        = 2
	MaxParticipants        = 50
)

// Ride is a scheduled group ride.
type Ride struct {
	ID          string `json:"id"`
	Organizer   string `json:"organizer"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RideType    string `json:"rideType"`
	Difficulty  string `json:"difficulty"`

	Route        Route        `json:"route"`
	Schedule     Schedule     `json:"schedule"`
	Participants Participants `json:"participants"`
	Settings     Settings     `json:"settings"`
	Status       Status       `json:"status"`
	ChatEnabled  bool         `json:"chatEnabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Place struct {
	Coordinates geo.Point `json:"coordinates"`
	Address     string    `json:"address"`
}

type Waypoint struct {
	Coordinates geo.Point `json:"coordinates"`
	Description string    `json:"description,omitempty"`
}

type Route struct {
	StartPoint        Place      `json:"startPoint"`
	EndPoint          *Place     `json:"endPoint,omitempty"`
	Waypoints         []Waypoint `json:"waypoints,omitempty"`
	Distance          *float64   `json:"distance,omitempty"`
	Elevation         *float64   `json:"elevation,omitempty"`
	EstimatedDuration *float64   `json:"estimatedDuration,omitempty"`
}

type Schedule struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Timezone  string     `json:"timezone"`
}

type Settings struct {
	IsPublic        bool `json:"isPublic"`
	RequireApproval bool `json:"requireApproval"`
	AllowWaitlist   bool `json:"allowWaitlist"`
}

// Participants is the membership ledger of a ride. The organizer holds a
// confirmed seat implicitly and is never listed.
type Participants struct {
	Confirmed       []string
	Pending         []string
	MaxParticipants int
}

// CurrentCount is the number of confirmed seats, organizer included.
func (p Participants) CurrentCount() int {
	return len(p.Confirmed) + 1
}

type participantsJSON struct {
	Confirmed       []string `json:"confirmed"`
	Pending         []string `json:"pending"`
	MaxParticipants int      `json:"maxParticipants"`
	CurrentCount    int      `json:"currentCount"`
}

// MarshalJSON emits currentCount derived from the confirmed list.
func (p Participants) MarshalJSON() ([]byte, error) {
	return json.Marshal(participantsJSON{
		Confirmed:       nonNil(p.Confirmed),
		Pending:         nonNil(p.Pending),
		MaxParticipants: p.MaxParticipants,
		CurrentCount:    p.CurrentCount(),
	})
}

// UnmarshalJSON ignores any incoming currentCount.
func (p *Participants) UnmarshalJSON(data []byte) error {
	var raw participantsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Confirmed = raw.Confirmed
	p.Pending = raw.Pending
	p.MaxParticipants = raw.MaxParticipants
	return nil
}

// IsOrganizer reports whether userID organizes r.
func (r *Ride) IsOrganizer(userID string) bool {
	return r.Organizer == userID
}

// IsConfirmed reports whether userID holds a confirmed seat, organizer included.
func (r *Ride) IsConfirmed(userID string) bool {
	return r.IsOrganizer(userID) || contains(r.Participants.Confirmed, userID)
}

// IsPending reports whether userID is waiting for approval or on the waitlist.
func (r *Ride) IsPending(userID string) bool {
	return contains(r.Participants.Pending, userID)
}

// Clone returns a deep copy of r.
func (r *Ride) Clone() *Ride {
	c := *r
	c.Participants.Confirmed = append([]string(nil), r.Participants.Confirmed...)
	c.Participants.Pending = append([]string(nil), r.Participants.Pending...)
	c.Route.Waypoints = append([]Waypoint(nil), r.Route.Waypoints...)
	if r.Route.EndPoint != nil {
		ep := *r.Route.EndPoint
		c.Route.EndPoint = &ep
	}
	if r.Schedule.EndTime != nil {
		et := *r.Schedule.EndTime
		c.Schedule.EndTime = &et
	}
	return &c
}

// MemberIDs returns the organizer followed by confirmed and pending users.
func (r *Ride) MemberIDs() []string {
	ids := make([]string, 0, 1+len(r.Participants.Confirmed)+len(r.Participants.Pending))
	ids = append(ids, r.Organizer)
	ids = append(ids, r.Participants.Confirmed...)
	ids = append(ids, r.Participants.Pending...)
	return ids
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}

func without(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
