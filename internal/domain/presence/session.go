package presence

// Session is the client-side view of one presence session. It is owned by the
// session manager; everything else reads it through a store subscription.
type Session struct {
	SessionID  string `json:"sessionId,omitempty"`
	Started    bool   `json:"started"`
	Online     bool   `json:"online"`
	Offline    bool   `json:"offline"`
	Idling     bool   `json:"idling"`
	TabVisible bool   `json:"tabVisible"`
}

// Valid reports whether the flag invariants hold.
func (s Session) Valid() bool {
	if s.Online && s.Offline {
		return false
	}
	if s.SessionID != "" && !s.Started {
		return false
	}
	return true
}

// NeedsReconnect is the trigger condition of the reconnection policy.
func (s Session) NeedsReconnect() bool {
	return s.Offline && s.TabVisible && !s.Idling
}
