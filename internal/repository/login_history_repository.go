package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/chantiers-api/internal/domain"
)

// LoginHistoryRepository is the append-only store behind the audit log.
type LoginHistoryRepository interface {
	Create(ctx context.Context, entry *domain.LoginHistoryEntry) error
	List(ctx context.Context, filter domain.LoginHistoryFilter) ([]domain.LoginHistoryEntry, error)
}

type loginHistoryRepository struct {
	db DBTX
}

// NewLoginHistoryRepository returns a Postgres-backed implementation.
func NewLoginHistoryRepository(db DBTX) LoginHistoryRepository {
	return &loginHistoryRepository{db: db}
}

func (r *loginHistoryRepository) Create(ctx context.Context, entry *domain.LoginHistoryEntry) error {
	const query = `
        INSERT INTO login_history (id, subject_id, username, occurred_at, source_address, user_agent, outcome, detail)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.SubjectID,
		entry.Username,
		entry.OccurredAt,
		entry.SourceAddress,
		entry.UserAgent,
		string(entry.Outcome),
		entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert login history: %w", err)
	}
	return nil
}

func (r *loginHistoryRepository) List(ctx context.Context, filter domain.LoginHistoryFilter) ([]domain.LoginHistoryEntry, error) {
	filter = filter.Normalize()

	var (
		conditions []string
		args       []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.SubjectID != "" {
		add("subject_id = $%d", filter.SubjectID)
	}
	if filter.Username != "" {
		add("lower(username) = lower($%d)", filter.Username)
	}
	if filter.Outcome != "" {
		add("outcome = $%d", string(filter.Outcome))
	}
	if filter.Since != nil {
		add("occurred_at >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("occurred_at < $%d", *filter.Until)
	}

	query := `SELECT id::text, subject_id, username, occurred_at, source_address, user_agent, outcome, detail
        FROM login_history`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, seq DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list login history: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LoginHistoryEntry, 0)
	for rows.Next() {
		var (
			id, username, source, agent, outcome, detail string
			subjectID                                    *string
			occurredAt                                   time.Time
		)
		if err := rows.Scan(&id, &subjectID, &username, &occurredAt, &source, &agent, &outcome, &detail); err != nil {
			return nil, fmt.Errorf("scan login history: %w", err)
		}
		entries = append(entries, domain.LoginHistoryEntry{
			ID:            id,
			SubjectID:     subjectID,
			Username:      username,
			OccurredAt:    occurredAt,
			SourceAddress: source,
			UserAgent:     agent,
			Outcome:       domain.LoginOutcome(outcome),
			Detail:        detail,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list login history: %w", err)
	}
	return entries, nil
}
