/*
Package chat contains the realtime session hub: ride rooms, user connections and
event fan-out.

This file defines the Room struct. A room exists while at least one connection has
joined the ride, and a single goroutine delivers its frames in arrival order.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"

	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/metrics"
)

const broadcastChannelBuffer = 1024

// Room is the set of connections that joined one ride.
type Room struct {
	// RideID identifies the ride whose members share the room.
	RideID string

	// connections currently in the room.
	clients map[*Client]struct{}

	// frames waiting to be delivered to the members.
	broadcast chan Frame

	// closed when the room is removed.
	done     chan struct{}
	stopOnce sync.Once

	// mu protects access to the clients map.
	mu sync.RWMutex

	logger zerolog.Logger
}

func newRoom(rideID string) *Room {
	r := &Room{
		RideID:    rideID,
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan Frame, broadcastChannelBuffer),
		done:      make(chan struct{}),
	}
	r.logger = logx.Component("room").With().Str("room", r.Name()).Logger()
	return r
}

// Name is the room label used in logs.
func (r *Room) Name() string {
	return "ride-" + r.RideID
}

// Run delivers frames until the room is stopped.
func (r *Room) Run() {
	r.logger.Debug().Msg("Room started.")

	for {
		select {
		case f := <-r.broadcast:
			r.deliver(f)

		case <-r.done:
			r.logger.Debug().Msg("Room stopped.")
			return
		}
	}
}

func (r *Room) deliver(f Frame) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c := range r.clients {
		if f.Skip != "" && c.ID == f.Skip {
			continue
		}
		if !c.enqueue(f.Payload) {
			metrics.HubDroppedFrames.Inc()
			r.logger.Warn().
				Str("client_id", c.ID).
				Str("user_id", c.UserID).
				Msg("Client send queue full, frame dropped.")
		}
	}
}

// enqueue hands f to the room goroutine. It blocks while the queue is full
// and gives up once the room has stopped.
func (r *Room) enqueue(f Frame) {
	select {
	case r.broadcast <- f:
	case <-r.done:
	}
}

// Stop terminates the Run loop.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

func (r *Room) add(c *Client) {
	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
}

// remove drops c and reports how many connections remain.
func (r *Room) remove(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, c)
	return len(r.clients)
}

// Size returns the number of connections in the room.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients)
}
