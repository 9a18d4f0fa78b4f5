package projection

import (
	"slices"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
)

type Change uint8

const (
	ChangedUsers Change = 1 << iota
	ChangedIndex
	ChangedProfiles
	ChangedStatus
)

func (c Change) Has(flag Change) bool { return c&flag != 0 }

// UserView is a present user as the UI shows it.
type UserView struct {
	Handle         string          `json:"handle"`
	Status         Status          `json:"status"`
	LastActiveAt   time.Time       `json:"lastActiveAt"`
	LastActiveText string          `json:"lastActiveText,omitempty"`
	Location       *string         `json:"location,omitempty"`
	Profile        *domain.Profile `json:"profile,omitempty"`
}

// Tracker owns the projection state on the loop: the latest users, the
// index derived from them, merged profiles, and the one away timer.
type Tracker struct {
	sched loop.Scheduler
	th    Thresholds
	log   *logger.Logger

	self      string
	users     []domain.PresentUser
	ancestors map[string][]string
	index     Index
	profiles  map[string]domain.Profile
	statuses  map[string]Status

	timer    loop.Timer
	onChange func(Change)
}

func NewTracker(sched loop.Scheduler, th Thresholds, self string, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNop()
	}
	if th.AwayAfter <= 0 {
		th.AwayAfter = DefaultThresholds().AwayAfter
	}
	if th.LastActiveAfter <= 0 {
		th.LastActiveAfter = DefaultThresholds().LastActiveAfter
	}
	return &Tracker{
		sched:    sched,
		th:       th,
		log:      log.With("component", "PresenceTracker"),
		self:     strings.TrimSpace(self),
		profiles: map[string]domain.Profile{},
		statuses: map[string]Status{},
	}
}

func (t *Tracker) OnChange(fn func(Change)) { t.onChange = fn }

// SetUsers replaces the present users wholesale.
func (t *Tracker) SetUsers(users []domain.PresentUser) {
	t.users = slices.Clone(users)
	ix, changed := project(t.index, t.users, t.ancestors, t.self)
	t.index = ix
	change := ChangedUsers
	if changed {
		change |= ChangedIndex
	}
	if t.refreshStatuses() {
		change |= ChangedStatus
	}
	t.rearm()
	t.notify(change)
}

// SetAncestors installs the location tree used for subtree grouping.
func (t *Tracker) SetAncestors(ancestors map[string][]string) {
	t.ancestors = ancestors
	ix, changed := project(t.index, t.users, t.ancestors, t.self)
	t.index = ix
	if changed {
		t.notify(ChangedIndex)
	}
}

func (t *Tracker) MergeProfiles(incoming []domain.Profile) {
	if len(incoming) == 0 {
		return
	}
	t.profiles = MergeProfiles(t.profiles, incoming)
	t.notify(ChangedProfiles)
}

func (t *Tracker) Index() Index { return t.index }

func (t *Tracker) Profiles() map[string]domain.Profile { return t.profiles }

func (t *Tracker) Profile(handle string) (domain.Profile, bool) {
	p, ok := t.profiles[handle]
	return p, ok
}

// Users labels every present user except self at the current time, sorted by
// handle.
func (t *Tracker) Users() []UserView {
	now := t.sched.Now()
	out := make([]UserView, 0, len(t.users))
	for _, u := range t.users {
		if u.Handle == t.self {
			continue
		}
		v := UserView{
			Handle:         u.Handle,
			Status:         StatusOf(u.LastActiveAt, now, t.th.AwayAfter),
			LastActiveAt:   u.LastActiveAt,
			LastActiveText: LastActiveText(u.LastActiveAt, now, t.th.LastActiveAfter),
			Location:       u.RawLocation,
		}
		if p, ok := t.profiles[u.Handle]; ok {
			v.Profile = &p
		}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b UserView) int { return strings.Compare(a.Handle, b.Handle) })
	return out
}

func (t *Tracker) Status(handle string) (Status, bool) {
	s, ok := t.statuses[handle]
	return s, ok
}

// NextWake is the delay of the armed away timer.
func (t *Tracker) NextWake() (time.Duration, bool) {
	return NextWake(t.users, t.self, t.sched.Now(), t.th.AwayAfter)
}

func (t *Tracker) Close() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tracker) rearm() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	d, ok := t.NextWake()
	if !ok {
		return
	}
	t.timer = t.sched.AfterFunc(d, t.wake)
}

func (t *Tracker) wake() {
	t.timer = nil
	changed := t.refreshStatuses()
	t.rearm()
	if changed {
		t.notify(ChangedStatus)
	}
}

func (t *Tracker) refreshStatuses() bool {
	now := t.sched.Now()
	next := make(map[string]Status, len(t.users))
	changed := false
	for _, u := range t.users {
		if u.Handle == t.self {
			continue
		}
		s := StatusOf(u.LastActiveAt, now, t.th.AwayAfter)
		next[u.Handle] = s
		if old, ok := t.statuses[u.Handle]; !ok || old != s {
			changed = true
		}
	}
	if len(next) != len(t.statuses) {
		changed = true
	}
	t.statuses = next
	return changed
}

func (t *Tracker) notify(c Change) {
	if t.onChange != nil {
		t.onChange(c)
	}
}
