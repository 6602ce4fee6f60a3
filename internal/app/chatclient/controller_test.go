package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cycleconnect/internal/app/chat"
	"cycleconnect/internal/app/message"
	"cycleconnect/internal/app/ride"
	"cycleconnect/internal/app/store"
	"cycleconnect/internal/app/user"
	"cycleconnect/internal/pkg/geo"
	"cycleconnect/internal/pkg/logx"
	"cycleconnect/internal/pkg/resp"
)

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard, zerolog.Disabled)
	m.Run()
}

// newServer serves the hub and the history endpoint. The bearer token is the user id.
func newServer(t *testing.T) (*httptest.Server, *store.Memory, *chat.Manager) {
	t.Helper()

	st := store.NewMemory()
	hub, err := chat.NewManager(st, nil, chat.Options{})
	if err != nil {
		t.Fatal(err)
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		u := &user.User{ID: uid}
		u.Profile.FirstName = uid
		hub.Serve(conn, u)
	})
	mux.HandleFunc("/api/rides/42/messages", func(w http.ResponseWriter, r *http.Request) {
		msgs, _ := st.ListMessages(r.Context(), "42", 50)
		views := make([]message.View, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, message.Populate(m, user.UnknownSummary(m.Sender)))
		}
		resp.RespondSuccess(w, r, views)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Shutdown)

	r := &ride.Ride{
		ID:           "42",
		Organizer:    "org",
		Route:        ride.Route{StartPoint: ride.Place{Coordinates: geo.NewPoint(1, 1)}},
		Schedule:     ride.Schedule{StartTime: time.Now().Add(time.Hour)},
		Participants: ride.Participants{Confirmed: []string{"rider"}, MaxParticipants: 10},
		Status:       ride.StatusScheduled,
	}
	if err := st.CreateRide(context.Background(), r); err != nil {
		t.Fatal(err)
	}

	return srv, st, hub
}

func getRide(t *testing.T, st *store.Memory) *ride.Ride {
	t.Helper()
	r, err := st.GetRide(context.Background(), "42")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartLockedForNonMembers(t *testing.T) {
	srv, st, _ := newServer(t)

	c := New(Session{BaseURL: srv.URL, Token: "stranger", UserID: "stranger"}, "42")
	err := c.Start(context.Background(), getRide(t, st))
	if !errors.Is(err, ErrChatLocked) {
		t.Fatalf("expected ErrChatLocked, got %v", err)
	}
	if c.Placeholder() != "Join this ride to access the chat" {
		t.Errorf("unexpected placeholder %q", c.Placeholder())
	}
	if c.Connected() {
		t.Error("locked chat must not connect")
	}
	if err := c.Send("hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestHistoryLiveMessagesAndUnread(t *testing.T) {
	srv, st, hub := newServer(t)

	old := message.New("m0", "org", message.Draft{RideID: "42", Content: "welcome", Type: message.TypeText}, time.Now())
	if err := st.CreateMessage(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	r := getRide(t, st)
	org := New(Session{BaseURL: srv.URL, Token: "org", UserID: "org"}, "42")
	rider := New(Session{BaseURL: srv.URL, Token: "rider", UserID: "rider"}, "42")

	if err := org.Start(context.Background(), r); err != nil {
		t.Fatalf("org start: %v", err)
	}
	if err := rider.Start(context.Background(), r); err != nil {
		t.Fatalf("rider start: %v", err)
	}
	if !org.Connected() || org.Placeholder() != "" {
		t.Fatal("organizer should be connected")
	}

	eventually(t, "both members in the room", func() bool { return hub.RoomSize("42") == 2 })

	if err := org.Send("   "); err != nil {
		t.Fatalf("blank send: %v", err)
	}
	if err := org.Send("  rolling out  "); err != nil {
		t.Fatalf("send: %v", err)
	}

	eventually(t, "rider receives the message", func() bool { return len(rider.Messages()) == 2 })
	eventually(t, "organizer receives the echo", func() bool { return len(org.Messages()) == 2 })

	msgs := rider.Messages()
	if msgs[0].ID != "m0" || msgs[1].Content != "rolling out" {
		t.Fatalf("unexpected order or content: %+v", msgs)
	}

	if got := rider.Unread(); got != 1 {
		t.Errorf("rider should have 1 unread, got %d", got)
	}
	if got := org.Unread(); got != 0 {
		t.Errorf("own messages are never unread, got %d", got)
	}

	rider.SetExpanded(true)
	if rider.Unread() != 0 {
		t.Error("expanding the panel should clear unread")
	}

	if err := rider.Send("on my way"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "organizer receives the reply", func() bool { return len(org.Messages()) == 3 })
	if rider.Unread() != 0 {
		t.Error("messages arriving while expanded are read")
	}
	if org.Unread() != 1 {
		t.Errorf("collapsed organizer should count the reply, got %d", org.Unread())
	}

	if err := rider.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	if rider.Connected() {
		t.Error("closed chat should report disconnected")
	}
	eventually(t, "rider leaves the room", func() bool { return hub.RoomSize("42") == 1 })

	org.Close()
}

func TestMergeHistoryKeepsLiveMessages(t *testing.T) {
	c := New(Session{UserID: "me"}, "42")

	live := message.View{ID: "m3", RideID: "42", Content: "live"}
	live.Sender.ID = "you"
	c.receive(live)

	dup := message.View{ID: "m3", RideID: "42", Content: "live"}
	older := message.View{ID: "m1", RideID: "42", Content: "old"}
	c.mergeHistory([]message.View{older, dup})

	msgs := c.Messages()
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m3" {
		t.Fatalf("unexpected merge %+v", msgs)
	}

	c.receive(live)
	if len(c.Messages()) != 2 {
		t.Error("duplicate live message should be ignored")
	}
	if c.Unread() != 1 {
		t.Errorf("expected 1 unread, got %d", c.Unread())
	}
}

func TestLastErrorPicksUpMessageError(t *testing.T) {
	srv, st, hub := newServer(t)

	rider := New(Session{BaseURL: srv.URL, Token: "rider", UserID: "rider"}, "42",
		WithHTTPClient(srv.Client()),
		WithDialer(&websocket.Dialer{HandshakeTimeout: time.Second}),
	)
	if err := rider.Start(context.Background(), getRide(t, st)); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer rider.Close()

	eventually(t, "rider in the room", func() bool { return hub.RoomSize("42") == 1 })

	if rider.LastError() != "" {
		t.Fatalf("unexpected error before sending: %q", rider.LastError())
	}
	if err := rider.Send(strings.Repeat("a", message.MaxContentLength+1)); err != nil {
		t.Fatalf("send: %v", err)
	}

	eventually(t, "message-error", func() bool { return rider.LastError() != "" })
	if got := rider.LastError(); !strings.Contains(got, "too long") {
		t.Errorf("LastError() = %q", got)
	}
	if len(rider.Messages()) != 0 {
		t.Errorf("rejected message was added: %+v", rider.Messages())
	}
}

func TestMalformedErrorFrameIsIgnored(t *testing.T) {
	c := New(Session{UserID: "me"}, "42")

	c.handle(chat.Envelope{Event: chat.EventMessageError, Data: json.RawMessage(`{"error":"first"}`)})
	c.handle(chat.Envelope{Event: chat.EventError, Data: json.RawMessage(`"not an object"`)})

	if got := c.LastError(); got != "first" {
		t.Errorf("LastError() = %q, want first", got)
	}
}

func TestDisconnectWhenHubShutsDown(t *testing.T) {
	srv, st, hub := newServer(t)

	rider := New(Session{BaseURL: srv.URL, Token: "rider", UserID: "rider"}, "42")
	if err := rider.Start(context.Background(), getRide(t, st)); err != nil {
		t.Fatalf("start: %v", err)
	}
	eventually(t, "rider in the room", func() bool { return hub.RoomSize("42") == 1 })

	hub.Shutdown()

	eventually(t, "controller notices the lost connection", func() bool { return !rider.Connected() })
	if err := rider.Send("anyone there?"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("send after disconnect: got %v, want ErrNotConnected", err)
	}
	rider.Close()
}
