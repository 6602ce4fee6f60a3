package message

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cycleconnect/internal/pkg/errs"
	"cycleconnect/internal/pkg/geo"
	"cycleconnect/internal/pkg/logx"
)

func TestMain(m *testing.M) {
	logx.SetOutput(io.Discard, zerolog.Disabled)
	m.Run()
}

func TestDraftValidate(t *testing.T) {
	loc := geo.NewPoint(37.77, -122.42)

	cases := []struct {
		name  string
		draft Draft
		code  int
	}{
		{"ok text", Draft{RideID: "r1", Content: "hi"}, 0},
		{"ok location", Draft{RideID: "r1", Content: "here", Type: TypeLocation, Metadata: &Metadata{Location: &loc}}, 0},
		{"missing ride", Draft{Content: "hi"}, errs.ErrInvalidParams},
		{"blank", Draft{RideID: "r1", Content: "   "}, errs.ErrMessageContentEmpty},
		{"too long", Draft{RideID: "r1", Content: strings.Repeat("é", MaxContentLength+1)}, errs.ErrMessageContentTooLong},
		{"system from client", Draft{RideID: "r1", Content: "x", Type: TypeSystem}, errs.ErrMessageTypeInvalid},
		{"unknown type", Draft{RideID: "r1", Content: "x", Type: "video"}, errs.ErrMessageTypeInvalid},
		{"location without point", Draft{RideID: "r1", Content: "x", Type: TypeLocation}, errs.ErrInvalidParams},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.draft
			customErr := d.Validate()
			if tc.code == 0 {
				if customErr != nil {
					t.Fatalf("unexpected error: %v", customErr)
				}
				return
			}
			if customErr == nil || customErr.Code != tc.code {
				t.Fatalf("expected code %d, got %v", tc.code, customErr)
			}
		})
	}

	exact := Draft{RideID: "r1", Content: strings.Repeat("é", MaxContentLength)}
	if customErr := exact.Validate(); customErr != nil {
		t.Fatalf("expected %d runes to be accepted: %v", MaxContentLength, customErr)
	}
	if exact.Type != TypeText {
		t.Fatalf("expected default type text, got %q", exact.Type)
	}
}

func TestMarkReadIsUniquePerUser(t *testing.T) {
	m := New("m1", "alice", Draft{RideID: "r1", Content: "hello", Type: TypeText}, time.Now())

	if !m.MarkRead("bob", time.Now()) {
		t.Fatal("expected first receipt to be added")
	}
	if m.MarkRead("bob", time.Now().Add(time.Minute)) {
		t.Fatal("expected duplicate receipt to be ignored")
	}
	if len(m.ReadBy) != 1 {
		t.Fatalf("expected one receipt, got %d", len(m.ReadBy))
	}
	if m.Content != "hello" || m.Sender != "alice" {
		t.Fatal("content and sender must not change")
	}
}
