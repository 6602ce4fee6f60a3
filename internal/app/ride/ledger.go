package ride

import "errors"

var (
	// ErrOrganizerConflict is returned when the organizer tries to join their own ride.
	ErrOrganizerConflict = errors.New("organizer cannot join their own ride")

	// ErrAlreadyMember is returned when the user is already confirmed or pending.
	ErrAlreadyMember = errors.New("already joined this ride")

	// ErrRideFull is returned when the ride is at capacity and has no waitlist.
	ErrRideFull = errors.New("ride is full")
)

// JoinOutcome describes where a successful join placed the user.
type JoinOutcome string

const (
	Joined          JoinOutcome = "joined"
	PendingApproval JoinOutcome = "pending_approval"
	Waitlisted      JoinOutcome = "waitlisted"
)

// Message is the human-readable acknowledgment for the outcome.
func (o JoinOutcome) Message() string {
	switch o {
	case Waitlisted:
		return "Added to waitlist"
	case PendingApproval:
		return "Join request sent for approval"
	default:
		return "Successfully joined ride"
	}
}

// Join applies the join rules to r in place.
//
// Capacity is measured against the confirmed list only. A full ride puts the
// user on the waitlist when allowed; otherwise approval-gated rides queue the
// user as pending and open rides confirm them directly.
func (r *Ride) Join(userID string) (JoinOutcome, error) {
	if r.IsOrganizer(userID) {
		return "", ErrOrganizerConflict
	}
	if contains(r.Participants.Confirmed, userID) || contains(r.Participants.Pending, userID) {
		return "", ErrAlreadyMember
	}

	if len(r.Participants.Confirmed) >= r.Participants.MaxParticipants {
		if !r.Settings.AllowWaitlist {
			return "", ErrRideFull
		}
		r.Participants.Pending = append(r.Participants.Pending, userID)
		return Waitlisted, nil
	}

	if r.Settings.RequireApproval {
		r.Participants.Pending = append(r.Participants.Pending, userID)
		return PendingApproval, nil
	}

	r.Participants.Confirmed = append(r.Participants.Confirmed, userID)
	return Joined, nil
}

// Leave removes userID from both lists. It reports whether anything changed;
// leaving a ride one is not part of is not an error.
func (r *Ride) Leave(userID string) bool {
	before := len(r.Participants.Confirmed) + len(r.Participants.Pending)
	r.Participants.Confirmed = without(r.Participants.Confirmed, userID)
	r.Participants.Pending = without(r.Participants.Pending, userID)
	return len(r.Participants.Confirmed)+len(r.Participants.Pending) != before
}
