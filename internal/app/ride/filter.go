package ride

import (
	"math"
	"time"

	"cycleconnect/internal/pkg/geo"
)

// Listing defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultRadiusKm = 25
)

// ListFilter selects rides for GET /api/rides.
type ListFilter struct {
	RideType   string
	Difficulty string
	Status     Status
	Page       int
	Limit      int

	// Now bounds scheduled rides to those starting in the future.
	Now time.Time
}

// Offset returns the number of rows to skip for the requested page.
// It saturates at math.MaxInt instead of wrapping for very large pages.
func (f ListFilter) Offset() int {
	if f.Page <= 1 || f.Limit <= 0 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

// Matches reports whether r passes the filter, ignoring pagination.
func (f ListFilter) Matches(r *Ride) bool {
	if r.Status != f.Status {
		return false
	}
	if f.RideType != "" && r.RideType != f.RideType {
		return false
	}
	if f.Difficulty != "" && r.Difficulty != f.Difficulty {
		return false
	}
	if f.Status == StatusScheduled && r.Schedule.StartTime.Before(f.Now) {
		return false
	}
	return true
}

// Pagination is the metadata returned alongside a page of rides.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination computes the page count for total rows.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// NearbyQuery selects upcoming scheduled rides starting within RadiusKm of Origin.
type NearbyQuery struct {
	Origin   geo.Point
	RadiusKm float64
	Limit    int
	Now      time.Time
}

// Matches reports whether r is an upcoming scheduled ride within range.
func (q NearbyQuery) Matches(r *Ride) bool {
	return r.Status == StatusScheduled &&
		!r.Schedule.StartTime.Before(q.Now) &&
		geo.Within(q.Origin, r.Route.StartPoint.Coordinates, q.RadiusKm)
}

// Membership kinds for UserFilter.
const (
	MembershipAll       = "all"
	MembershipOrganized = "organized"
	MembershipJoined    = "joined"
)

// UserFilter selects the rides a user organizes or has a confirmed seat on.
type UserFilter struct {
	UserID string
	Type   string
	Status Status
}

// Matches reports whether r belongs to the user under the filter.
func (f UserFilter) Matches(r *Ride) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}

	organized := r.Organizer == f.UserID
	joined := contains(r.Participants.Confirmed, f.UserID)

	switch f.Type {
	case MembershipOrganized:
		return organized
	case MembershipJoined:
		return joined
	default:
		return organized || joined
	}
}
