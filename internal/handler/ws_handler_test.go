package handler

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cycleconnect/internal/app/chat"
)

func wsURL(e *testEnv) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws"
}

func TestWebSocketHandshakeRequiresToken(t *testing.T) {
	e := newTestEnv(t)

	_, res, err := websocket.DefaultDialer.Dial(wsURL(e), nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if res == nil || res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", res)
	}

	_, res, err = websocket.DefaultDialer.Dial(wsURL(e)+"?token=garbage", nil)
	if err == nil || res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("garbage token: err %v response %v, want 403", err, res)
	}
}

func TestWebSocketJoinWithQueryToken(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "ws@example.com")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(e)+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"event": chat.EventJoinRide, "data": "ride-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env chat.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	if env.Event != chat.EventJoinedRide {
		t.Fatalf("event = %q, want %q", env.Event, chat.EventJoinedRide)
	}

	var ref chat.RideRef
	if err := ref.UnmarshalJSON(env.Data); err != nil || ref.RideID != "ride-1" {
		t.Fatalf("ack = %s (%v)", env.Data, err)
	}
}
