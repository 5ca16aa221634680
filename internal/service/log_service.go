package service

import (
	"context"

	"github.com/spec-kit/chantiers-api/internal/domain"
	"github.com/spec-kit/chantiers-api/internal/observability"
	apperrors "github.com/spec-kit/chantiers-api/pkg/util/errorutil"
)

// HistoryReader lists login history entries newest first.
type HistoryReader interface {
	List(ctx context.Context, filter domain.LoginHistoryFilter) ([]domain.LoginHistoryEntry, error)
}

// LogService serves the admin log views. Role checks happen in the router.
type LogService struct {
	history HistoryReader
	buffer  *observability.LogBuffer
}

// NewLogService creates the service.
func NewLogService(history HistoryReader, buffer *observability.LogBuffer) *LogService {
	return &LogService{history: history, buffer: buffer}
}

// LogsOverview combines recent application logs with recent connections.
type LogsOverview struct {
	Application []observability.LogRecord
	Connexions  []domain.LoginHistoryEntry
}

// Overview returns the newest application log records and login history.
func (s *LogService) Overview(ctx context.Context, limit int) (*LogsOverview, error) {
	connexions, err := s.Connexions(ctx, domain.LoginHistoryFilter{Limit: limit})
	if err != nil {
		return nil, err
	}
	var application []observability.LogRecord
	if s.buffer != nil {
		application = s.buffer.Recent(domain.LoginHistoryFilter{Limit: limit}.Normalize().Limit)
	}
	if application == nil {
		application = []observability.LogRecord{}
	}
	return &LogsOverview{Application: application, Connexions: connexions}, nil
}

// Connexions lists login history with the given filter.
func (s *LogService) Connexions(ctx context.Context, filter domain.LoginHistoryFilter) ([]domain.LoginHistoryEntry, error) {
	if filter.Outcome != "" && !filter.Outcome.Valid() {
		return nil, apperrors.NewValidationError("invalid outcome filter", map[string]any{"outcome": string(filter.Outcome)})
	}
	if filter.Since != nil && filter.Until != nil && !filter.Since.Before(*filter.Until) {
		return nil, apperrors.NewValidationError("since must be before until", nil)
	}
	entries, err := s.history.List(ctx, filter.Normalize())
	if err != nil {
		return nil, apperrors.NewStoreUnavailable(err)
	}
	return entries, nil
}
