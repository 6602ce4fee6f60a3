package ride

import (
	"time"

	"cycleconnect/internal/app/user"
)

// View is a ride with its organizer and participants expanded to user summaries.
type View struct {
	ID           string           `json:"id"`
	Organizer    user.Summary     `json:"organizer"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	RideType     string           `json:"rideType"`
	Difficulty   string           `json:"difficulty"`
	Route        Route            `json:"route"`
	Schedule     Schedule         `json:"schedule"`
	Participants ParticipantsView `json:"participants"`
	Settings     Settings         `json:"settings"`
	Status       Status           `json:"status"`
	ChatEnabled  bool             `json:"chatEnabled"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

type ParticipantsView struct {
	Confirmed       []user.Summary `json:"confirmed"`
	Pending         []user.Summary `json:"pending"`
	MaxParticipants int            `json:"maxParticipants"`
	CurrentCount    int            `json:"currentCount"`
}

// Populate expands r using users, keyed by id. Missing users become placeholders.
func Populate(r *Ride, users map[string]*user.User) View {
	lookup := func(id string) user.Summary {
		if u, ok := users[id]; ok && u != nil {
			return u.Summary()
		}
		return user.UnknownSummary(id)
	}

	v := View{
		ID:          r.ID,
		Organizer:   lookup(r.Organizer),
		Title:       r.Title,
		Description: r.Description,
		RideType:    r.RideType,
		Difficulty:  r.Difficulty,
		Route:       r.Route,
		Schedule:    r.Schedule,
		Participants: ParticipantsView{
			Confirmed:       make([]user.Summary, 0, len(r.Participants.Confirmed)),
			Pending:         make([]user.Summary, 0, len(r.Participants.Pending)),
			MaxParticipants: r.Participants.MaxParticipants,
			CurrentCount:    r.Participants.CurrentCount(),
		},
		Settings:    r.Settings,
		Status:      r.Status,
		ChatEnabled: r.ChatEnabled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}

	for _, id := range r.Participants.Confirmed {
		v.Participants.Confirmed = append(v.Participants.Confirmed, lookup(id))
	}
	for _, id := range r.Participants.Pending {
		v.Participants.Pending = append(v.Participants.Pending, lookup(id))
	}

	return v
}
