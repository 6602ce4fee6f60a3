/*
Package chat contains the realtime session hub: ride rooms, user connections and
event fan-out.

This file defines the Manager struct, which serves as the central manager for the hub.
It tracks connections, creates rooms lazily on the first join, removes them when the
last member leaves, and routes room frames through the configured Fanout.
*/
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/metrics"
	"cycleconnect/internal/pkg/randx"
)

// storeTimeout bounds each store call made on behalf of a realtime event.
const storeTimeout = 5 * time.Second

// Store is the persistence the hub needs.
type Store interface {
	GetRide(ctx context.Context, id string) (*ride.Ride, error)
	CreateMessage(ctx context.Context, m *message.Message) error
	MarkRead(ctx context.Context, rideID, userID string, messageIDs []string, at time.Time) (int, error)
}

// Options tunes hub behavior.
type Options struct {
	// EnforceMembership limits join-ride to the organizer and confirmed
	// participants, and room events to connections that joined the room.
	EnforceMembership bool

	// Now is the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Manager coordinates all connections and ride rooms of this process.
type Manager struct {
	store  Store
	fanout Fanout
	opts   Options

	// mu protects rooms and clients.
	mu      sync.Mutex
	rooms   map[string]*Room
	clients map[*Client]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewManager constructs a Manager and subscribes it to fanout.
// A nil fanout keeps delivery within the process.
func NewManager(st Store, fanout Fanout, opts Options) (*Manager, error) {
	if fanout == nil {
		fanout = NewLocalFanout()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		store:   st,
		fanout:  fanout,
		opts:    opts,
		rooms:   make(map[string]*Room),
		clients: make(map[*Client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logx.Component("hub"),
	}

	if err := fanout.Subscribe(ctx, m.deliver); err != nil {
		cancel()
		return nil, err
	}

	m.logger.Info().Bool("enforce_membership", opts.EnforceMembership).Msg("Hub started.")
	return m, nil
}

// Serve runs the session of an upgraded connection for u until it closes.
func (m *Manager) Serve(conn *websocket.Conn, u *user.User) {
	id, err := randx.SocketID()
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to generate connection id.")
		conn.Close()
		return
	}

	c := newClient(m, conn, id, u)

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()
	metrics.HubConnections.Inc()

	c.logger.Info().Msg("Client connected.")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.WritePump()
	}()

	c.ReadPump()
}

// join adds c to the room of rideID, creating the room if needed.
func (m *Manager) join(c *Client, rideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[rideID]
	if !ok {
		room = newRoom(rideID)
		m.rooms[rideID] = room
		metrics.HubRooms.Inc()
		go room.Run()
	}

	room.add(c)
	c.rooms[rideID] = struct{}{}
}

// leave removes c from the room of rideID. The room is removed with its last member.
func (m *Manager) leave(c *Client, rideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.leaveLocked(c, rideID)
}

func (m *Manager) leaveLocked(c *Client, rideID string) {
	delete(c.rooms, rideID)

	room, ok := m.rooms[rideID]
	if !ok {
		return
	}

	if room.remove(c) == 0 {
		delete(m.rooms, rideID)
		metrics.HubRooms.Dec()
		room.Stop()
	}
}

func (m *Manager) inRoom(c *Client, rideID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := c.rooms[rideID]
	return ok
}

// unregister drops every membership of c without notifying anyone.
func (m *Manager) unregister(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[c]; !ok {
		return
	}

	for rideID := range c.rooms {
		m.leaveLocked(c, rideID)
	}
	delete(m.clients, c)
	metrics.HubConnections.Dec()
}

// broadcast encodes event and publishes it to the room of rideID.
// skip names a connection to leave out, or is empty.
func (m *Manager) broadcast(ctx context.Context, rideID, skip, event string, data any) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}

	return m.fanout.Publish(ctx, Frame{RideID: rideID, Skip: skip, Payload: payload})
}

// deliver hands a frame to the local room, if this process has one.
func (m *Manager) deliver(f Frame) {
	m.mu.Lock()
	room := m.rooms[f.RideID]
	m.mu.Unlock()

	if room == nil {
		return
	}
	room.enqueue(f)
}

// RoomSize returns the number of local connections in the room of rideID.
func (m *Manager) RoomSize(rideID string) int {
	m.mu.Lock()
	room := m.rooms[rideID]
	m.mu.Unlock()

	if room == nil {
		return 0
	}
	return room.Size()
}

// RoomCount returns the number of active rooms.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.rooms)
}

// Shutdown closes every connection, stops all rooms and the fanout subscription.
func (m *Manager) Shutdown() {
	m.logger.Info().Msg("Shutting down hub...")

	m.cancel()

	m.mu.Lock()
	for c := range m.clients {
		c.close()
	}
	for id, room := range m.rooms {
		room.Stop()
		delete(m.rooms, id)
		metrics.HubRooms.Dec()
	}
	m.mu.Unlock()

	if err := m.fanout.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Fanout close failed.")
	}

	m.wg.Wait()
	m.logger.Info().Msg("Hub shutdown complete.")
}
