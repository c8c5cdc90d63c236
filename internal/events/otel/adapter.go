// Package otel renders auth events as OpenTelemetry log records exported via
// OTLP, so an external pipeline can consume them without this core knowing
// the transport.
package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"authcore/internal/events"
)

// NewEmitter returns an emitter sending events as OTel log records via the
// given LoggerProvider. A nil provider yields a no-op emitter.
func NewEmitter(provider *sdklog.LoggerProvider) events.Emitter {
	if provider == nil {
		return events.Nop{}
	}
	return &otelEmitter{logger: provider.Logger("authcore.events")}
}

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the event to an OTel log record and hands it to the logger.
func (e *otelEmitter) Emit(ctx context.Context, ev events.Event) error {
	rec := otellog.Record{}
	if !ev.At.IsZero() {
		rec.SetTimestamp(ev.At)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetBody(otellog.StringValue(string(ev.Type)))
	rec.AddAttributes(otellog.String("event_type", string(ev.Type)))
	if ev.SubjectID != "" {
		rec.AddAttributes(otellog.String("subject_id", ev.SubjectID))
	}
	if ev.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", ev.SessionID))
	}
	for k, v := range ev.Fields {
		rec.AddAttributes(otellog.String(k, v))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
