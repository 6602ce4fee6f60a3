/*
Package message defines chat messages exchanged within a ride and their read receipts.
*/
package message

import (
	"strings"
	"time"
	"unicode/utf8"

	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/geo"
)

// MaxContentLength is the maximum number of characters in a message.
const MaxContentLength = 1000

// Type tags the kind of content a message carries.
type Type string

const (
	TypeText     Type = "text"
	TypeLocation Type = "location"
	TypeSystem   Type = "system"
)

// Metadata carries type-specific details.
type Metadata struct {
	Location   *geo.Point `json:"location,omitempty"`
	SystemType string     `json:"systemType,omitempty"`
}

// Receipt records that User read the message at ReadAt.
type Receipt struct {
	User   string    `json:"user"`
	ReadAt time.Time `json:"readAt"`
}

// Message is one chat entry in a ride. Content, sender and type never change
// after creation; only ReadBy grows.
type Message struct {
	ID        string    `json:"id"`
	RideID    string    `json:"rideId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Type      Type      `json:"type"`
	Metadata  *Metadata `json:"metadata,omitempty"`
	ReadBy    []Receipt `json:"readBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Draft is what a client submits; the server assigns id, sender and timestamps.
type Draft struct {
	RideID   string    `json:"rideId"`
	Content  string    `json:"content"`
	Type     Type      `json:"type"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Validate checks a client draft. Clients may send text and location messages only.
func (d *Draft) Validate() *errs.CustomError {
	if strings.TrimSpace(d.RideID) == "" {
		return errs.NewError(errs.ErrInvalidParams).WithField("rideId", "is required")
	}

	if d.Type == "" {
		d.Type = TypeText
	}
	if d.Type != TypeText && d.Type != TypeLocation {
		return errs.NewError(errs.ErrMessageTypeInvalid)
	}

	if strings.TrimSpace(d.Content) == "" {
		return errs.NewError(errs.ErrMessageContentEmpty)
	}
	if utf8.RuneCountInString(d.Content) > MaxContentLength {
		return errs.NewError(errs.ErrMessageContentTooLong, MaxContentLength)
	}

	if d.Metadata != nil {
		d.Metadata.SystemType = ""
		if d.Metadata.Location != nil {
			if err := d.Metadata.Location.Validate(); err != nil {
				return errs.NewError(errs.ErrInvalidParams).WithField("metadata.location", err.Error())
			}
		}
	}
	if d.Type == TypeLocation && (d.Metadata == nil || d.Metadata.Location == nil) {
		return errs.NewError(errs.ErrInvalidParams).WithField("metadata.location", "is required for location messages")
	}

	return nil
}

// New creates a message from a validated draft.
func New(id, senderID string, d Draft, now time.Time) *Message {
	return &Message{
		ID:        id,
		RideID:    d.RideID,
		Sender:    senderID,
		Content:   d.Content,
		Type:      d.Type,
		Metadata:  d.Metadata,
		ReadBy:    []Receipt{},
		CreatedAt: now,
	}
}

// MarkRead appends a receipt for userID unless one exists. It reports whether a receipt was added.
func (m *Message) MarkRead(userID string, at time.Time) bool {
	if m.ReadByUser(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, Receipt{User: userID, ReadAt: at})
	return true
}

// ReadByUser reports whether userID has a receipt on m.
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.User == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	c := *m
	c.ReadBy = append([]Receipt{}, m.ReadBy...)
	if m.Metadata != nil {
		md := *m.Metadata
		if m.Metadata.Location != nil {
			loc := *m.Metadata.Location
			md.Location = &loc
		}
		c.Metadata = &md
	}
	return &c
}

// View is a message with its sender expanded, as broadcast to ride members.
type View struct {
	ID        string       `json:"id"`
	RideID    string       `json:"rideId"`
	Sender    user.Summary `json:"sender"`
	Content   string       `json:"content"`
	Type      Type         `json:"type"`
	Metadata  *Metadata    `json:"metadata,omitempty"`
	ReadBy    []Receipt    `json:"readBy"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Populate expands m with sender.
func Populate(m *Message, sender user.Summary) View {
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []Receipt{}
	}
	return View{
		ID:        m.ID,
		RideID:    m.RideID,
		Sender:    sender,
		Content:   m.Content,
		Type:      m.Type,
		Metadata:  m.Metadata,
		ReadBy:    readBy,
		CreatedAt: m.CreatedAt,
	}
}
