package presence

import (
	"encoding/json"
	"strings"
	"time"
)

// PresentUser is one entry of a PresentUsers push. The whole list is replaced
// on every push.
type PresentUser struct {
	Handle       string    `json:"handle"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	RawLocation  *string   `json:"location,omitempty"`
}

// Location is a parsed raw location of the form locationId[:fieldId].
type Location struct {
	ID    string
	Field string
}

func (l Location) Key() string {
	if l.Field == "" {
		return l.ID
	}
	return l.ID + ":" + l.Field
}

// ParseLocation splits raw on its first colon. An empty location id yields ok=false.
func ParseLocation(raw string) (Location, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, false
	}
	id, field, _ := strings.Cut(raw, ":")
	if id == "" {
		return Location{}, false
	}
	return Location{ID: id, Field: field}, true
}

type presentUserWire struct {
	Handle     string  `json:"handle"`
	LastActive int64   `json:"lastActive"`
	Location   *string `json:"location"`
}

type presentUsersWire struct {
	Users []presentUserWire `json:"users"`
}

// DecodePresentUsers parses a PresentUsers payload. Entries without a handle
// are dropped.
func DecodePresentUsers(data json.RawMessage) ([]PresentUser, error) {
	var wire presentUsersWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	out := make([]PresentUser, 0, len(wire.Users))
	for _, u := range wire.Users {
		handle := strings.TrimSpace(u.Handle)
		if handle == "" {
			continue
		}
		out = append(out, PresentUser{
			Handle:       handle,
			LastActiveAt: time.UnixMilli(u.LastActive),
			RawLocation:  u.Location,
		})
	}
	return out, nil
}
