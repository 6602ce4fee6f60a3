/*
Package chat contains the realtime session hub: ride rooms, user connections and
event fan-out.

This file defines the wire format. Every frame is a JSON text message of the form
{"event": "<name>", "data": <payload>}.
*/
package chat

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"cycleconnect/internal/app/message"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/geo"
)

// Events sent by clients.
const (
	EventJoinRide         = "join-ride"
	EventLeaveRide        = "leave-ride"
	EventSendMessage      = "send-message"
	EventLocationUpdate   = "location-update"
	EventRideStatusUpdate = "ride-status-update"
	EventUserJoinedRide   = "user-joined-ride"
	EventUserLeftRide     = "user-left-ride"
	EventEmergencyAlert   = "emergency-alert"
	EventMarkMessagesRead = "mark-messages-read"
	EventTypingStart      = "typing-start"
	EventTypingStop       = "typing-stop"
)

// Events sent by the server.
const (
	EventJoinedRide          = "joined-ride"
	EventLeftRide            = "left-ride"
	EventNewMessage          = "new-message"
	EventMessageError        = "message-error"
	EventParticipantLocation = "participant-location"
	EventRideStatusChanged   = "ride-status-changed"
	EventParticipantJoined   = "participant-joined"
	EventParticipantLeft     = "participant-left"
	EventUserTyping          = "user-typing"
	EventError               = "error"
)

// Envelope is one frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds the frame for event carrying data.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// RideRef names a room. Clients may send it as a bare string or as {"rideId": "..."}.
type RideRef struct {
	RideID string `json:"rideId"`
}

func (r *RideRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.RideID)
	}

	type plain RideRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RideRef(p)
	return nil
}

type locationUpdate struct {
	RideID      string    `json:"rideId"`
	Coordinates geo.Point `json:"coordinates"`
}

type statusUpdate struct {
	RideID  string `json:"rideId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type memberNotice struct {
	RideID   string `json:"rideId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type emergency struct {
	RideID   string    `json:"rideId"`
	Location geo.Point `json:"location"`
	Message  string    `json:"message,omitempty"`
}

type markRead struct {
	RideID     string   `json:"rideId"`
	MessageIDs []string `json:"messageIds"`
}

// ParticipantLocation is broadcast to the other members when someone shares a position.
type ParticipantLocation struct {
	UserID      string    `json:"userId"`
	Coordinates geo.Point `json:"coordinates"`
	Timestamp   time.Time `json:"timestamp"`
}

// RideStatusChanged is broadcast to every member, the sender included.
type RideStatusChanged struct {
	RideID    string    `json:"rideId"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedBy string    `json:"updatedBy"`
}

// ParticipantNotice announces a membership change to the other members.
type ParticipantNotice struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

// EmergencyAlert is broadcast to every member, the sender included.
type EmergencyAlert struct {
	UserID    string    `json:"userId"`
	Location  geo.Point `json:"location"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTyping struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessageError tells the sender that send-message failed.
type MessageError struct {
	Error  string            `json:"error"`
	Code   int               `json:"code"`
	Fields []errs.FieldError `json:"fields,omitempty"`
}

// ErrorPayload answers an unknown event or a malformed payload.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewMessage is the payload of new-message.
type NewMessage = message.View

func decode(event string, raw json.RawMessage, dst any) *errs.CustomError {
	if len(raw) == 0 {
		return errs.NewError(errs.ErrInvalidEventPayload, event)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errs.NewError(errs.ErrInvalidEventPayload, event)
	}
	return nil
}

func requireRide(event, rideID string) (string, *errs.CustomError) {
	rideID = strings.TrimSpace(rideID)
	if rideID == "" {
		return "", errs.NewError(errs.ErrInvalidEventPayload, event).WithField("rideId", "is required")
	}
	return rideID, nil
}
