package dto

import (
	"time"

	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/observability"
)

// LoginHistoryResponse is one connection entry.
type LoginHistoryResponse struct {
	ID            string    `json:"id"`
	SubjectID     *string   `json:"subject_id"`
	Username      string    `json:"username"`
	OccurredAt    time.Time `json:"occurred_at"`
	SourceAddress string    `json:"source_address"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Outcome       string    `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
}

// LogsResponse is the body of GET /logs.
type LogsResponse struct {
	Application []observability.LogRecord `json:"application"`
	Connexions  []LoginHistoryResponse    `json:"connexions"`
}

// PageMeta describes the window returned by a listing.
type PageMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// NewLoginHistoryResponses maps domain entries.
func NewLoginHistoryResponses(entries []domain.LoginHistoryEntry) []LoginHistoryResponse {
	out := make([]LoginHistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, LoginHistoryResponse{
			ID:            e.ID,
			SubjectID:     e.SubjectID,
			Username:      e.Username,
			OccurredAt:    e.OccurredAt,
			SourceAddress: e.SourceAddress,
			UserAgent:     e.UserAgent,
			Outcome:       string(e.Outcome),
			Detail:        e.Detail,
		})
	}
	return out
}
