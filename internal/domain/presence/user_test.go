package presence

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseLocation(t *testing.T) {
	cases := []struct {
		raw   string
		want  Location
		valid bool
	}{
		{raw: "doc1", want: Location{ID: "doc1"}, valid: true},
		{raw: "doc1:f2", want: Location{ID: "doc1", Field: "f2"}, valid: true},
		{raw: "doc1:f2:x", want: Location{ID: "doc1", Field: "f2:x"}, valid: true},
		{raw: ":f2", valid: false},
		{raw: "  ", valid: false},
	}
	for _, tc := range cases {
		got, ok := ParseLocation(tc.raw)
		if ok != tc.valid {
			t.Fatalf("%q: ok=%v", tc.raw, ok)
		}
		if ok && got != tc.want {
			t.Fatalf("%q: got=%+v want=%+v", tc.raw, got, tc.want)
		}
	}
	if (Location{ID: "a", Field: "b"}).Key() != "a:b" {
		t.Fatal("unexpected key")
	}
}

func TestDecodePresentUsers(t *testing.T) {
	raw := json.RawMessage(`{"users":[{"handle":"ann","lastActive":1700000000000,"location":"doc:f"},{"handle":""},{"handle":"bob","lastActive":1700000001000}]}`)
	users, err := DecodePresentUsers(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len=%d", len(users))
	}
	if users[0].RawLocation == nil || *users[0].RawLocation != "doc:f" {
		t.Fatalf("location=%v", users[0].RawLocation)
	}
	if !users[0].LastActiveAt.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("lastActive=%s", users[0].LastActiveAt)
	}
	if users[1].RawLocation != nil {
		t.Fatalf("expected nil location for bob")
	}
}

func TestSessionInvariants(t *testing.T) {
	if (Session{Online: true, Offline: true}).Valid() {
		t.Fatal("online+offline must be invalid")
	}
	if (Session{SessionID: "s"}).Valid() {
		t.Fatal("session id without started must be invalid")
	}
	if !(Session{Offline: true, TabVisible: true}).NeedsReconnect() {
		t.Fatal("expected reconnect condition")
	}
	if (Session{Offline: true, TabVisible: true, Idling: true}).NeedsReconnect() {
		t.Fatal("idle sessions must not reconnect")
	}
}
