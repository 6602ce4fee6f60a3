package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestRecorderKeepsOrder(t *testing.T) {
	var rec Recorder
	ctx := context.Background()

	_ = rec.Publish(ctx, Event{Type: RideCreated, RideID: "r1"})
	_ = rec.Publish(ctx, Event{Type: RideJoined, RideID: "r1", UserID: "u2"})

	got := rec.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != RideCreated || got[1].Type != RideJoined {
		t.Errorf("unexpected order: %+v", got)
	}

	got[0].Type = "mutated"
	if rec.Events()[0].Type != RideCreated {
		t.Error("Events must return a copy")
	}
}

func TestEventEncoding(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	b, err := json.Marshal(Event{Type: RideLeft, RideID: "r1", UserID: "u1", At: at})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["rideId"] != "r1" || m["userId"] != "u1" || m["type"] != RideLeft {
		t.Errorf("unexpected payload: %s", b)
	}
	if _, ok := m["outcome"]; ok {
		t.Errorf("empty outcome should be omitted: %s", b)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish(context.Background(), Event{}); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}
