package domain

import "time"

// LoginOutcome classifies an authentication event.
type LoginOutcome string

const (
	LoginOutcomeSuccess LoginOutcome = "success"
	LoginOutcomeFailure LoginOutcome = "failure"
	LoginOutcomeLogout  LoginOutcome = "logout"
)

// Valid reports whether o is a known outcome.
func (o LoginOutcome) Valid() bool {
	switch o {
	case LoginOutcomeSuccess, LoginOutcomeFailure, LoginOutcomeLogout:
		return true
	default:
		return false
	}
}

// LoginHistoryEntry is an append-only audit record. It never carries the
// submitted password or anything derived from it.
type LoginHistoryEntry struct {
	ID            string
	SubjectID     *string
	Username      string
	OccurredAt    time.Time
	SourceAddress string
	UserAgent     string
	Outcome       LoginOutcome
	Detail        string
}

// LoginHistoryFilter narrows a history listing.
type LoginHistoryFilter struct {
	SubjectID string
	Username  string
	Outcome   LoginOutcome
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Normalize clamps pagination values.
func (f LoginHistoryFilter) Normalize() LoginHistoryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
