package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-exp-cases/internal/service"
)

// NotificationPublisher publishes case events to NATS for consumption by
// the notification dispatch service.
//
// Subject convention: notifications.exp.<event_type>
// Event types: case_created, case_stage_changed
//
// All publish operations are non-fatal: errors are logged but never
// propagated to the caller, so notification failures never interrupt case
// operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishCaseEvent publishes one case event. Subject:
// notifications.exp.<eventType>.
func (p *NotificationPublisher) PublishCaseEvent(ctx context.Context, eventType string, event *service.CaseEvent) {
	if p.conn == nil || event == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.exp.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("case_id", event.CaseID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("case_id", event.CaseID).
		Msg("notification: event published")
}
