package presence

import (
	"encoding/json"
	"strings"
)

type EventType string

const (
	EventPresentUsers   EventType = "PresentUsers"
	EventProfiles       EventType = "Profiles"
	EventMessage        EventType = "Message"
	EventNotification   EventType = "Notification"
	EventControl        EventType = "Control"
	EventLogout         EventType = "Logout"
	EventGradeUpdate    EventType = "GradeUpdate"
	EventProgressUpdate EventType = "ProgressUpdate"
)

// AllEventTypes lists every push event the engine understands.
var AllEventTypes = []EventType{
	EventPresentUsers,
	EventProfiles,
	EventMessage,
	EventNotification,
	EventControl,
	EventLogout,
	EventGradeUpdate,
	EventProgressUpdate,
}

// Event is one frame received on the push channel.
type Event struct {
	Type  EventType       `json:"type"`
	ID    int64           `json:"id,omitempty"`
	HasID bool            `json:"-"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ControlType string

const (
	ControlStart           ControlType = "Start"
	ControlHeartbeat       ControlType = "Heartbeat"
	ControlSessionEnded    ControlType = "SessionEnded"
	ControlAnnouncement    ControlType = "Announcement"
	ControlAnnouncementEnd ControlType = "AnnouncementEnd"
)

type Control struct {
	Type    ControlType `json:"type"`
	Message string      `json:"message,omitempty"`
}

func DecodeControl(data json.RawMessage) (Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return Control{}, err
	}
	c.Type = ControlType(strings.TrimSpace(string(c.Type)))
	return c, nil
}
