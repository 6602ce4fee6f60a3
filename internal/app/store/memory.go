package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/geo"
)

// Memory is an in-process Store. Records are copied on the way in and out,
// so callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	users    map[string]*user.User
	emails   map[string]string
	rides    map[string]*ride.Ride
	messages map[string][]*message.Message
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*user.User),
		emails:   make(map[string]string),
		rides:    make(map[string]*ride.Ride),
		messages: make(map[string][]*message.Message),
	}
}

func cloneUser(u *user.User) *user.User {
	c := *u
	c.Cycling.PreferredRideTypes = append([]string(nil), u.Cycling.PreferredRideTypes...)
	return &c
}

func (m *Memory) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.emails[u.Email]; taken {
		return ErrEmailTaken
	}
	m.users[u.ID] = cloneUser(u)
	m.emails[u.Email] = u.ID
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *Memory) GetUsers(_ context.Context, ids []string) (map[string]*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*user.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (m *Memory) UpdateUser(_ context.Context, id string, fn func(*user.User) error) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := cloneUser(u)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = u.ID
	next.Email = u.Email
	m.users[id] = next
	return cloneUser(next), nil
}

func (m *Memory) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	delete(m.emails, u.Email)

	for rideID, r := range m.rides {
		if r.Organizer == id {
			delete(m.rides, rideID)
			delete(m.messages, rideID)
			continue
		}
		r.Leave(id)
	}

	for rideID, msgs := range m.messages {
		kept := msgs[:0]
		for _, msg := range msgs {
			if msg.Sender != id {
				kept = append(kept, msg)
			}
		}
		m.messages[rideID] = kept
	}
	return nil
}

func (m *Memory) NearbyUsers(_ context.Context, q NearbyUsersQuery) ([]*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type pair struct {
		u    *user.User
		dist float64
	}
	var arr []pair
	for _, u := range m.users {
		if u.ID == q.ExcludeID || !u.Preferences.Privacy.ShowLocation {
			continue
		}
		dist := geo.DistanceMeters(q.Origin, u.Location.Coordinates)
		if dist <= q.RadiusKm*1000 {
			arr = append(arr, pair{u, dist})
		}
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })

	out := make([]*user.User, 0, len(arr))
	for i, p := range arr {
		if q.Limit > 0 && i >= q.Limit {
			break
		}
		out = append(out, cloneUser(p.u))
	}
	return out, nil
}

func (m *Memory) CreateRide(_ context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *Memory) GetRide(_ context.Context, id string) (*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *Memory) UpdateRide(_ context.Context, id string, fn func(*ride.Ride) error) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := r.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = r.ID
	next.UpdatedAt = time.Now().UTC()
	m.rides[id] = next
	return next.Clone(), nil
}

func (m *Memory) collectRides(match func(*ride.Ride) bool) []*ride.Ride {
	var out []*ride.Ride
	for _, r := range m.rides {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (m *Memory) ListRides(_ context.Context, f ride.ListFilter) ([]*ride.Ride, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.collectRides(f.Matches)
	sortByStart(all, true)

	total := len(all)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return all[start:end], total, nil
}

func (m *Memory) NearbyRides(_ context.Context, q ride.NearbyQuery) ([]*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.collectRides(q.Matches)
	sortByStart(out, true)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) UserRides(_ context.Context, f ride.UserFilter) ([]*ride.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.collectRides(f.Matches)
	sortByStart(out, false)
	return out, nil
}

func sortByStart(rides []*ride.Ride, asc bool) {
	sort.SliceStable(rides, func(i, j int) bool {
		a, b := rides[i].Schedule.StartTime, rides[j].Schedule.StartTime
		if asc {
			return a.Before(b)
		}
		return a.After(b)
	})
}

func (m *Memory) CreateMessage(_ context.Context, msg *message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rides[msg.RideID]; !ok {
		return ErrNotFound
	}
	m.messages[msg.RideID] = append(m.messages[msg.RideID], msg.Clone())
	return nil
}

func (m *Memory) ListMessages(_ context.Context, rideID string, limit int) ([]*message.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[rideID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]*message.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, msg.Clone())
	}
	return out, nil
}

func (m *Memory) MarkRead(_ context.Context, rideID, userID string, messageIDs []string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}

	added := 0
	for _, msg := range m.messages[rideID] {
		if _, ok := wanted[msg.ID]; ok && msg.MarkRead(userID, at) {
			added++
		}
	}
	return added, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
