package gateway

import (
	"context"
	"log/slog"

	"salesbot/pkg/bus"
)

const eventBuffer = 64

// observeEvents logs bus events until ctx ends or the bus closes. Events the
// buffer cannot hold are dropped by the bus, never blocking a reply.
func observeEvents(ctx context.Context, events <-chan bus.Event, unsubscribe func(), log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bus.events")
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	// Same attribute set for every type so events grep by tenant and chat.
	attrs := []any{
		"event_type", event.Type,
		"request_id", event.RequestID,
		"tenant_id", event.TenantID,
		"channel", event.Channel,
		"chat_id", event.ChatID,
		"session_key", event.SessionKey,
		"timestamp", event.At.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case bus.EventCollaboratorFailed:
		log.Warn("Dialog event", append(attrs, "error", event.Error)...)
	case bus.EventLeadCreated, bus.EventFunnelCompleted:
		log.Info("Dialog event", attrs...)
	default:
		log.Debug("Dialog event", attrs...)
	}
}
