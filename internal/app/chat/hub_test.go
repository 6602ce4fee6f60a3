package chat

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/geo"
	"cycleconnect/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard, zerolog.Disabled)
	m.Run()
}

const waitFor = 2 * time.Second

type testHub struct {
	manager *Manager
	store   *store.Memory
	server  *httptest.Server
}

func newTestHub(t *testing.T, opts Options) *testHub {
	t.Helper()

	st := store.NewMemory()
	m, err := NewManager(st, nil, opts)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.URL.Query().Get("uid")
		u := &user.User{ID: uid}
		u.Profile.FirstName = strings.ToUpper(uid)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.Serve(conn, u)
	}))

	t.Cleanup(srv.Close)
	t.Cleanup(m.Shutdown)

	return &testHub{manager: m, store: st, server: srv}
}

func (h *testHub) seedRide(t *testing.T, id, organizer string, confirmed ...string) {
	t.Helper()

	r := &ride.Ride{
		ID:        id,
		Organizer: organizer,
		Title:     "Sunday loop",
		Route:     ride.Route{StartPoint: ride.Place{Coordinates: geo.NewPoint(37.77, -122.42)}},
		Schedule:  ride.Schedule{StartTime: time.Now().Add(24 * time.Hour)},
		Participants: ride.Participants{
			Confirmed:       confirmed,
			MaxParticipants: 10,
		},
		Status: ride.StatusScheduled,
	}
	if err := h.store.CreateRide(context.Background(), r); err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
}

func (h *testHub) dial(t *testing.T, uid string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?uid=" + uid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", uid, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	frame, err := Encode(event, data)
	if err != nil {
		t.Fatalf("encode %s: %v", event, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func next(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(waitFor))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("decode frame %s: %v", frame, err)
	}
	return env
}

func expect(t *testing.T, conn *websocket.Conn, event string) Envelope {
	t.Helper()

	env := next(t, conn)
	if env.Event != event {
		t.Fatalf("expected %q, got %q (%s)", event, env.Event, env.Data)
	}
	return env
}

// expectSilence fails if event arrives within d. The connection cannot be read afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn, event string, d time.Duration) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(d))
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if json.Unmarshal(frame, &env) == nil && env.Event == event {
			t.Fatalf("unexpected %q: %s", event, env.Data)
		}
	}
}

func join(t *testing.T, conn *websocket.Conn, rideID string) {
	t.Helper()

	send(t, conn, EventJoinRide, rideID)
	env := expect(t, conn, EventJoinedRide)

	var ref RideRef
	if err := json.Unmarshal(env.Data, &ref); err != nil || ref.RideID != rideID {
		t.Fatalf("unexpected ack %s", env.Data)
	}
}

func TestSendMessageReachesEveryMemberOnce(t *testing.T) {
	h := newTestHub(t, Options{})
	h.seedRide(t, "42", "a", "b")

	a := h.dial(t, "a")
	b := h.dial(t, "b")
	join(t, a, "42")
	join(t, b, "42")

	send(t, a, EventSendMessage, map[string]any{"rideId": "42", "content": "hello"})

	var got NewMessage
	if err := json.Unmarshal(expect(t, b, EventNewMessage).Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID == "" || got.Content != "hello" || got.Sender.ID != "a" || got.Type != message.TypeText {
		t.Fatalf("unexpected message %+v", got)
	}
	if got.Sender.Profile.FirstName != "A" {
		t.Errorf("sender should be populated, got %+v", got.Sender)
	}

	var echo NewMessage
	json.Unmarshal(expect(t, a, EventNewMessage).Data, &echo)
	if echo.ID != got.ID {
		t.Errorf("sender should receive the same message, got %q want %q", echo.ID, got.ID)
	}

	expectSilence(t, b, EventNewMessage, 200*time.Millisecond)

	stored, err := h.store.ListMessages(context.Background(), "42", 50)
	if err != nil || len(stored) != 1 || stored[0].ID != got.ID {
		t.Fatalf("expected the message persisted once, got %v %v", stored, err)
	}
}

func TestLocationUpdateExcludesSender(t *testing.T) {
	h := newTestHub(t, Options{})
	h.seedRide(t, "42", "a", "b")

	a := h.dial(t, "a")
	b := h.dial(t, "b")
	join(t, a, "42")
	join(t, b, "42")

	send(t, a, EventLocationUpdate, map[string]any{"rideId": "42", "coordinates": []float64{-122.4, 37.7}})
	send(t, a, EventRideStatusUpdate, map[string]any{"rideId": "42", "status": "in-progress"})

	var loc ParticipantLocation
	json.Unmarshal(expect(t, b, EventParticipantLocation).Data, &loc)
	if loc.UserID != "a" || loc.Coordinates.Lat() != 37.7 {
		t.Errorf("unexpected location %+v", loc)
	}
	expect(t, b, EventRideStatusChanged)

	// Frames of one room arrive in order, so the sender's next frame is the status change.
	var status RideStatusChanged
	json.Unmarshal(expect(t, a, EventRideStatusChanged).Data, &status)
	if status.UpdatedBy != "a" || status.Status != "in-progress" || status.RideID != "42" {
		t.Errorf("unexpected status change %+v", status)
	}
}

func TestTypingAndNoticesGoToOthers(t *testing.T) {
	h := newTestHub(t, Options{})

	a := h.dial(t, "a")
	b := h.dial(t, "b")
	join(t, a, "7")
	join(t, b, "7")

	send(t, a, EventTypingStart, map[string]any{"rideId": "7"})
	send(t, a, EventUserJoinedRide, map[string]any{"rideId": "7", "userId": "a", "userName": "Ann"})
	send(t, a, EventEmergencyAlert, map[string]any{"rideId": "7", "location": []float64{1, 2}, "message": "flat tyre"})

	var typing UserTyping
	json.Unmarshal(expect(t, b, EventUserTyping).Data, &typing)
	if typing.UserID != "a" || !typing.IsTyping {
		t.Errorf("unexpected typing %+v", typing)
	}

	var notice ParticipantNotice
	json.Unmarshal(expect(t, b, EventParticipantJoined).Data, &notice)
	if notice.UserName != "Ann" {
		t.Errorf("unexpected notice %+v", notice)
	}

	expect(t, b, EventEmergencyAlert)
	expect(t, a, EventEmergencyAlert)
}

func TestSendMessageFailuresGoToSenderOnly(t *testing.T) {
	h := newTestHub(t, Options{})
	h.seedRide(t, "42", "a")

	a := h.dial(t, "a")
	join(t, a, "42")

	send(t, a, EventSendMessage, map[string]any{"rideId": "42", "content": "   "})
	var blank MessageError
	json.Unmarshal(expect(t, a, EventMessageError).Data, &blank)
	if blank.Code != errs.ErrMessageContentEmpty {
		t.Errorf("expected empty-content error, got %+v", blank)
	}

	send(t, a, EventSendMessage, map[string]any{"rideId": "42", "content": strings.Repeat("x", message.MaxContentLength+1)})
	var long MessageError
	json.Unmarshal(expect(t, a, EventMessageError).Data, &long)
	if long.Code != errs.ErrMessageContentTooLong {
		t.Errorf("expected too-long error, got %+v", long)
	}

	send(t, a, EventSendMessage, map[string]any{"rideId": "missing", "content": "hi"})
	var failed MessageError
	json.Unmarshal(expect(t, a, EventMessageError).Data, &failed)
	if failed.Error != "Failed to send message" {
		t.Errorf("unexpected persistence error %+v", failed)
	}

	send(t, a, EventSendMessage, map[string]any{"rideId": "42", "content": "hi", "type": "system"})
	var system MessageError
	json.Unmarshal(expect(t, a, EventMessageError).Data, &system)
	if system.Code != errs.ErrMessageTypeInvalid {
		t.Errorf("clients must not send system messages, got %+v", system)
	}
}

func TestUnknownAndMalformedEvents(t *testing.T) {
	h := newTestHub(t, Options{})
	a := h.dial(t, "a")

	send(t, a, "dance", map[string]any{})
	var unknown ErrorPayload
	json.Unmarshal(expect(t, a, EventError).Data, &unknown)
	if unknown.Code != errs.ErrUnknownEvent || unknown.Event != "dance" {
		t.Errorf("unexpected error %+v", unknown)
	}

	a.WriteMessage(websocket.TextMessage, []byte("not json"))
	var malformed ErrorPayload
	json.Unmarshal(expect(t, a, EventError).Data, &malformed)
	if malformed.Code != errs.ErrInvalidJSONFormat {
		t.Errorf("unexpected error %+v", malformed)
	}

	send(t, a, EventJoinRide, map[string]any{"rideId": ""})
	var missing ErrorPayload
	json.Unmarshal(expect(t, a, EventError).Data, &missing)
	if missing.Code != errs.ErrInvalidEventPayload {
		t.Errorf("unexpected error %+v", missing)
	}
}

func TestMarkMessagesReadIsIdempotent(t *testing.T) {
	h := newTestHub(t, Options{})
	h.seedRide(t, "42", "a", "b")

	msg := message.New("m1", "a", message.Draft{RideID: "42", Content: "hi", Type: message.TypeText}, time.Now())
	if err := h.store.CreateMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	b := h.dial(t, "b")
	payload := map[string]any{"rideId": "42", "messageIds": []string{"m1"}}
	send(t, b, EventMarkMessagesRead, payload)
	send(t, b, EventMarkMessagesRead, payload)

	// Events of one connection are handled in order; the ack proves both reads ran.
	join(t, b, "sync")

	msgs, err := h.store.ListMessages(context.Background(), "42", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || len(msgs[0].ReadBy) != 1 || msgs[0].ReadBy[0].User != "b" {
		t.Fatalf("expected one receipt for b, got %+v", msgs[0].ReadBy)
	}
}

func TestRoomsAreCreatedAndRemovedLazily(t *testing.T) {
	h := newTestHub(t, Options{})

	a := h.dial(t, "a")
	b := h.dial(t, "b")
	join(t, a, "42")
	join(t, b, "42")

	if got := h.manager.RoomSize("42"); got != 2 {
		t.Fatalf("expected 2 members, got %d", got)
	}

	send(t, a, EventLeaveRide, "42")
	expect(t, a, EventLeftRide)
	send(t, a, EventLeaveRide, "42")
	expect(t, a, EventLeftRide)

	if got := h.manager.RoomSize("42"); got != 1 {
		t.Fatalf("expected 1 member, got %d", got)
	}

	b.Close()
	deadline := time.Now().Add(waitFor)
	for h.manager.RoomCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room should be removed after the last member disconnects")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnforcedMembership(t *testing.T) {
	h := newTestHub(t, Options{EnforceMembership: true})
	h.seedRide(t, "42", "org", "rider")

	stranger := h.dial(t, "stranger")
	send(t, stranger, EventJoinRide, "42")
	var denied ErrorPayload
	json.Unmarshal(expect(t, stranger, EventError).Data, &denied)
	if denied.Code != errs.ErrNotRideMember {
		t.Errorf("expected not-member error, got %+v", denied)
	}

	send(t, stranger, EventJoinRide, "nope")
	var missing ErrorPayload
	json.Unmarshal(expect(t, stranger, EventError).Data, &missing)
	if missing.Code != errs.ErrRideNotFound {
		t.Errorf("expected ride-not-found error, got %+v", missing)
	}

	send(t, stranger, EventSendMessage, map[string]any{"rideId": "42", "content": "hi"})
	expect(t, stranger, EventMessageError)

	join(t, h.dial(t, "org"), "42")
	join(t, h.dial(t, "rider"), "42")
}

func TestRideRefAcceptsStringOrObject(t *testing.T) {
	var a, b RideRef
	if err := json.Unmarshal([]byte(`"42"`), &a); err != nil || a.RideID != "42" {
		t.Errorf("string form: %+v %v", a, err)
	}
	if err := json.Unmarshal([]byte(`{"rideId":"42"}`), &b); err != nil || b.RideID != "42" {
		t.Errorf("object form: %+v %v", b, err)
	}
}

func TestLocalFanoutRequiresSubscriber(t *testing.T) {
	f := NewLocalFanout()
	if err := f.Publish(context.Background(), Frame{RideID: "1"}); err == nil {
		t.Fatal("expected error without subscriber")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Frame, 1)
	f.Subscribe(ctx, func(fr Frame) { got <- fr })
	if err := f.Publish(ctx, Frame{RideID: "1"}); err != nil {
		t.Fatal(err)
	}
	if fr := <-got; fr.RideID != "1" {
		t.Errorf("unexpected frame %+v", fr)
	}
}

func TestRoomName(t *testing.T) {
	r := newRoom("r1")
	defer r.Stop()

	if got := r.Name(); got != "ride-r1" {
		t.Errorf("Name() = %q, want ride-r1", got)
	}
}
