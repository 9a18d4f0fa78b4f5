package chat

import (
	"encoding/json"
	"strings"
	"time"
)

// Message is a transient chat push. A nil Text with a non-nil Typing is a
// typing notification, not a chat line.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Text      *string   `json:"text,omitempty"`
	Typing    *bool     `json:"typing,omitempty"`
}

func (m Message) IsLine() bool { return m.Text != nil }

func (m Message) IsTyping() bool { return m.Text == nil && m.Typing != nil }

type messageWire struct {
	ID        string  `json:"id"`
	RoomID    string  `json:"roomId"`
	Sender    string  `json:"sender"`
	Timestamp int64   `json:"timestamp"`
	Text      *string `json:"text"`
	Typing    *bool   `json:"typing"`
}

func (w messageWire) message() Message {
	return Message{
		ID:        strings.TrimSpace(w.ID),
		RoomID:    strings.TrimSpace(w.RoomID),
		Sender:    strings.TrimSpace(w.Sender),
		Timestamp: time.UnixMilli(w.Timestamp),
		Text:      w.Text,
		Typing:    w.Typing,
	}
}

// DecodeMessage parses a single Message push.
func DecodeMessage(data json.RawMessage) (Message, error) {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	return w.message(), nil
}

// DecodeHistory parses a history page: {"messages":[...]} in chronological order.
func DecodeHistory(data []byte) ([]Message, error) {
	var page struct {
		Messages []messageWire `json:"messages"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(page.Messages))
	for _, w := range page.Messages {
		out = append(out, w.message())
	}
	return out, nil
}
