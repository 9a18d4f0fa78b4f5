// Package chat keeps the per-room conversation state the UI renders: message
// lines grouped into stanzas, who is typing, and unread counts.
package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
)

var ErrNoRoom = errors.New("no chat room open")

type HistoryFetcher interface {
	FetchHistory(ctx context.Context, roomID string, offset, limit int) ([]domain.Message, error)
}

type Config struct {
	Self string
	// TimestampGap is the silence that tags the following stanza.
	TimestampGap time.Duration
	// TrailingTimestamp is how old the last stanza must be before it shows
	// its own timestamp.
	TrailingTimestamp time.Duration
	HistoryPage       int
}

func (c Config) withDefaults() Config {
	if c.TimestampGap <= 0 {
		c.TimestampGap = 5 * time.Minute
	}
	if c.TrailingTimestamp <= 0 {
		c.TrailingTimestamp = time.Minute
	}
	if c.HistoryPage <= 0 {
		c.HistoryPage = 50
	}
	c.Self = strings.TrimSpace(c.Self)
	return c
}

type room struct {
	id            string
	stanzas       []Stanza
	typing        map[string]bool
	seen          map[string]bool
	historyLoaded bool
	loading       bool
	// live holds lines received while a history fetch is in flight; they
	// are replayed on top of the fetched page.
	live   []domain.Message
	unread int
	open   bool
}

// Model must only be used from the loop.
type Model struct {
	cfg     Config
	sched   loop.Scheduler
	fetcher HistoryFetcher
	log     *logger.Logger

	rooms    map[string]*room
	openRoom string
	onChange func(roomID string)
}

func New(cfg Config, sched loop.Scheduler, fetcher HistoryFetcher, log *logger.Logger) *Model {
	if log == nil {
		log = logger.NewNop()
	}
	return &Model{
		cfg:     cfg.withDefaults(),
		sched:   sched,
		fetcher: fetcher,
		log:     log.With("component", "ChatModel"),
		rooms:   map[string]*room{},
	}
}

func (m *Model) OnChange(fn func(roomID string)) { m.onChange = fn }

// OpenRoom is the id of the open room, or "".
func (m *Model) OpenRoom() string { return m.openRoom }

func (m *Model) room(id string) *room {
	r, ok := m.rooms[id]
	if !ok {
		r = &room{id: id, typing: map[string]bool{}, seen: map[string]bool{}}
		m.rooms[id] = r
	}
	return r
}

// Open shows roomID, closing whatever room was open. History is fetched the
// first time a room is opened, and again only if that fetch failed.
func (m *Model) Open(roomID string) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return
	}
	if m.openRoom != "" && m.openRoom != roomID {
		m.Close()
	}
	r := m.room(roomID)
	r.open = true
	r.unread = 0
	m.openRoom = roomID
	if !r.historyLoaded && !r.loading {
		m.LoadHistory(roomID)
	}
	m.notify(roomID)
}

// Close hides the open room. Its lines and typing state are kept.
func (m *Model) Close() {
	if m.openRoom == "" {
		return
	}
	id := m.openRoom
	m.room(id).open = false
	m.openRoom = ""
	m.notify(id)
}

// LoadHistory replaces the room's stanzas with the latest history page.
func (m *Model) LoadHistory(roomID string) {
	r := m.room(roomID)
	if m.fetcher == nil || r.loading {
		return
	}
	r.loading = true
	r.live = nil
	limit := m.cfg.HistoryPage
	loop.Call(m.sched, func(ctx context.Context) ([]domain.Message, error) {
		return m.fetcher.FetchHistory(ctx, roomID, 0, limit)
	}, func(history []domain.Message, err error) {
		r.loading = false
		live := r.live
		r.live = nil
		if err != nil {
			m.log.Warn("chat history fetch failed", "room", roomID, "error", err)
			m.notify(roomID)
			return
		}
		m.reset(r)
		for _, msg := range history {
			if msg.IsLine() {
				m.appendLine(r, msg)
			}
		}
		for _, msg := range live {
			m.appendLine(r, msg)
		}
		r.historyLoaded = true
		m.notify(roomID)
	})
}

func (m *Model) reset(r *room) {
	r.stanzas = nil
	r.seen = map[string]bool{}
}

// Receive applies one chat push.
func (m *Model) Receive(msg domain.Message) {
	if msg.RoomID == "" || msg.Sender == "" {
		return
	}
	r := m.room(msg.RoomID)
	if msg.IsTyping() {
		if m.setTyping(r, msg.Sender, *msg.Typing) {
			m.notify(r.id)
		}
		return
	}
	if !msg.IsLine() {
		return
	}
	if r.loading {
		r.live = append(r.live, msg)
	}
	if !m.appendLine(r, msg) {
		return
	}
	delete(r.typing, msg.Sender)
	if !r.open && msg.Sender != m.cfg.Self {
		r.unread++
	}
	m.notify(r.id)
}

// SetTyping marks handle as typing (or not) in roomID.
func (m *Model) SetTyping(roomID, handle string, typing bool) {
	if roomID == "" || handle == "" {
		return
	}
	if m.setTyping(m.room(roomID), handle, typing) {
		m.notify(roomID)
	}
}

func (m *Model) setTyping(r *room, handle string, typing bool) bool {
	if r.typing[handle] == typing {
		return false
	}
	if typing {
		r.typing[handle] = true
	} else {
		delete(r.typing, handle)
	}
	return true
}

// appendLine adds msg to the last stanza when the sender matches, otherwise
// starts a new one. Lines already seen by id are ignored.
func (m *Model) appendLine(r *room, msg domain.Message) bool {
	if msg.ID != "" {
		if r.seen[msg.ID] {
			return false
		}
		r.seen[msg.ID] = true
	}
	ts := msg.Timestamp
	if ts.IsZero() || ts.UnixMilli() == 0 {
		ts = m.sched.Now()
	}

	if n := len(r.stanzas); n > 0 && r.stanzas[n-1].Sender == msg.Sender {
		last := &r.stanzas[n-1]
		last.Lines = append(last.Lines, *msg.Text)
		if ts.After(last.Finish) {
			last.Finish = ts
		}
		return true
	}

	st := Stanza{
		Sender: msg.Sender,
		Start:  ts,
		Finish: ts,
		Lines:  []string{*msg.Text},
	}
	if n := len(r.stanzas); n > 0 {
		st.ShowTimestampAfter = ts.Sub(r.stanzas[n-1].Finish) >= m.cfg.TimestampGap
	}
	r.stanzas = append(r.stanzas, st)
	return true
}

// Conversation is a copy of roomID's state with timestamps resolved for now.
func (m *Model) Conversation(roomID string) Conversation {
	r, ok := m.rooms[roomID]
	if !ok {
		return Conversation{RoomID: roomID, Stanzas: []Stanza{}, TypingUsers: []string{}}
	}
	now := m.sched.Now()
	c := Conversation{
		RoomID:        r.id,
		Stanzas:       make([]Stanza, len(r.stanzas)),
		TypingUsers:   make([]string, 0, len(r.typing)),
		HistoryLoaded: r.historyLoaded,
		UnreadCount:   r.unread,
		Open:          r.open,
	}
	for i, st := range r.stanzas {
		st.Lines = slices.Clone(st.Lines)
		st.ShowTimestamp = ShowTimestamp(r.stanzas, i, now, m.cfg.TrailingTimestamp)
		c.Stanzas[i] = st
	}
	for h := range r.typing {
		c.TypingUsers = append(c.TypingUsers, h)
	}
	slices.Sort(c.TypingUsers)
	return c
}

// Rooms lists every room referenced so far.
func (m *Model) Rooms() []string {
	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// TotalUnread sums unread counts across rooms.
func (m *Model) TotalUnread() int {
	n := 0
	for _, r := range m.rooms {
		n += r.unread
	}
	return n
}

func (m *Model) notify(roomID string) {
	if m.onChange != nil {
		m.onChange(roomID)
	}
}
