package api

// SessionSnapshot is the activity snapshot sent with create and heartbeat.
// Nil scene pointers mean "unchanged since the last report".
type SessionSnapshot struct {
	Visible           bool      `json:"visible"`
	MillisSinceActive int64     `json:"millisSinceActive"`
	InScenes          *[]string `json:"inScenes,omitempty"`
	FollowScenes      *[]string `json:"followScenes,omitempty"`
}

type CreateSessionRequest struct {
	SessionSnapshot
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type HeartbeatRequest struct {
	SessionSnapshot
	LastEventID int64 `json:"lastEventId"`
}

type OpenRoomRequest struct {
	Participants []string `json:"participants,omitempty"`
	Name         string   `json:"name,omitempty"`
}

type OpenRoomResponse struct {
	RoomID string `json:"roomId"`
}

type sendMessageRequest struct {
	ClientID string `json:"clientId"`
	Text     string `json:"text"`
}

type typingRequest struct {
	Typing bool `json:"typing"`
}
