package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/chantiers-api/internal/events"
)

// NotificationService writes authentication events to the security log.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("security"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventLoginSucceeded, n.handleLoginSucceeded)
	n.dispatcher.Subscribe(events.EventLoginFailed, n.handleLoginFailed)
	n.dispatcher.Subscribe(events.EventLoggedOut, n.handleLoggedOut)
}

func (n *NotificationService) handleLoginSucceeded(_ context.Context, event events.Event) error {
	fields := eventFields(event)
	if payload, ok := event.Payload.(events.LoginSucceededPayload); ok {
		fields = append(fields, zap.String("role", string(payload.Role)))
	}
	n.logger.Info("login succeeded", fields...)
	return nil
}

func (n *NotificationService) handleLoginFailed(_ context.Context, event events.Event) error {
	fields := eventFields(event)
	if payload, ok := event.Payload.(events.LoginFailedPayload); ok {
		fields = append(fields, zap.String("reason", payload.Reason))
	}
	n.logger.Warn("login failed", fields...)
	return nil
}

func (n *NotificationService) handleLoggedOut(_ context.Context, event events.Event) error {
	n.logger.Info("logged out", eventFields(event)...)
	return nil
}

func eventFields(event events.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("username", event.Username),
		zap.String("source_address", event.SourceAddress),
	}
	if event.SubjectID != nil {
		fields = append(fields, zap.String("subject_id", *event.SubjectID))
	}
	return fields
}
