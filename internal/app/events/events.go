/*
Package events publishes ride lifecycle events (created, joined, left) to an
external stream so that other services can react to membership changes.
*/
package events

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	RideCreated = "ride.created"
	RideJoined  = "ride.joined"
	RideLeft    = "ride.left"
)

// Event is one ride lifecycle change.
type Event struct {
	Type    string    `json:"type"`
	RideID  string    `json:"rideId"`
	UserID  string    `json:"userId"`
	Outcome string    `json:"outcome,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher delivers events. Publish failures are reported but never undo the change.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what has been published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
