package chat

import "time"

// Stanza is a run of consecutive lines from one sender.
type Stanza struct {
	Sender string    `json:"sender"`
	Start  time.Time `json:"start"`
	Finish time.Time `json:"finish"`
	Lines  []string  `json:"lines"`
	// ShowTimestampAfter is set when a long silence came before this stanza.
	ShowTimestampAfter bool `json:"showTimestampAfter"`
	// ShowTimestamp is resolved when the conversation is read.
	ShowTimestamp bool `json:"showTimestamp"`
}

type Conversation struct {
	RoomID        string   `json:"roomId"`
	Stanzas       []Stanza `json:"stanzas"`
	TypingUsers   []string `json:"typingUsers"`
	HistoryLoaded bool     `json:"historyLoaded"`
	UnreadCount   int      `json:"unreadCount"`
	Open          bool     `json:"open"`
}

// ShowTimestamp reports whether stanza i carries a timestamp under it: when
// the next stanza is tagged, or when i is last and older than trailing.
func ShowTimestamp(stanzas []Stanza, i int, now time.Time, trailing time.Duration) bool {
	if i < 0 || i >= len(stanzas) {
		return false
	}
	if i+1 < len(stanzas) {
		return stanzas[i+1].ShowTimestampAfter
	}
	return now.Sub(stanzas[i].Finish) > trailing
}
