package worker

import (
	"context"

	"github.com/spec-kit/chantiers-api/internal/events"
	"github.com/spec-kit/chantiers-api/internal/observability"
	"github.com/spec-kit/chantiers-api/internal/service"
)

// StartNotificationWorker registers security log handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartMetricsWorker turns authentication events into Prometheus counters.
func StartMetricsWorker(dispatcher events.Dispatcher, metrics *observability.Metrics) {
	if dispatcher == nil || metrics == nil {
		return
	}
	dispatcher.Subscribe(events.EventLoginSucceeded, func(context.Context, events.Event) error {
		metrics.RecordLogin("success")
		return nil
	})
	dispatcher.Subscribe(events.EventLoginFailed, func(context.Context, events.Event) error {
		metrics.RecordLogin("failure")
		return nil
	})
	dispatcher.Subscribe(events.EventLoggedOut, func(context.Context, events.Event) error {
		metrics.RecordLogout()
		return nil
	})
}
