package projection

import (
	"fmt"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/domain"
)

type Status string

const (
	StatusActive Status = "Active"
	StatusAway   Status = "Away"
)

type Thresholds struct {
	AwayAfter       time.Duration
	LastActiveAfter time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{AwayAfter: 10 * time.Minute, LastActiveAfter: 2 * time.Minute}
}

func StatusOf(lastActive, now time.Time, awayAfter time.Duration) Status {
	if now.Sub(lastActive) >= awayAfter {
		return StatusAway
	}
	return StatusActive
}

// NextWake returns the smallest positive lastActive+awayAfter-now over every
// user but self. ok is false when no user will turn away in the future.
func NextWake(users []domain.PresentUser, self string, now time.Time, awayAfter time.Duration) (time.Duration, bool) {
	var (
		best  time.Duration
		found bool
	)
	for _, u := range users {
		if u.Handle == self {
			continue
		}
		d := u.LastActiveAt.Add(awayAfter).Sub(now)
		if d <= 0 {
			continue
		}
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}

// LastActiveText is "" until threshold has passed, then "last active N ago".
func LastActiveText(lastActive, now time.Time, threshold time.Duration) string {
	d := now.Sub(lastActive)
	if d < threshold {
		return ""
	}
	return "last active " + humanizeDuration(d) + " ago"
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "less than a minute"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
