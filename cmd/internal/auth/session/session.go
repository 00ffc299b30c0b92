package session

import (
	"time"
)

// Session mirrors one sessions row.
type Session struct {
	ID        string
	AccountID string
	Device    Device
	IP        string

	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// Info is the result of GetInfo.
type Info struct {
	SessionID     string
	AccountID     string
	LastActivity  time.Time
	ExpiresAt     time.Time
	TimeRemaining time.Duration
	Expired       bool
}

// deadline is the earlier of the inactivity deadline and absolute expiry.
func (s Session) deadline(idle time.Duration) time.Time {
	d := s.LastActivityAt.Add(idle)
	if s.ExpiresAt.Before(d) {
		return s.ExpiresAt
	}
	return d
}

// Expired reports whether s is past its inactivity window or absolute expiry at now.
func (s Session) Expired(now time.Time, idle time.Duration) bool {
	return now.Sub(s.LastActivityAt) > idle || !now.Before(s.ExpiresAt)
}

func (s Session) info(now time.Time, idle time.Duration) Info {
	in := Info{
		SessionID:    s.ID,
		AccountID:    s.AccountID,
		LastActivity: s.LastActivityAt,
		ExpiresAt:    s.ExpiresAt,
		Expired:      s.Expired(now, idle),
	}
	if !in.Expired {
		in.TimeRemaining = s.deadline(idle).Sub(now)
	}
	return in
}
