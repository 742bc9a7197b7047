package service

import (
	"context"
	"log/slog"

	"github.com/phrazzld/taskquota/internal/domain"
	"github.com/phrazzld/taskquota/internal/events"
	"github.com/phrazzld/taskquota/internal/platform/logger"
)

// eventSink emits events after a transaction has committed. Emission
// failures are logged and never fail the operation that caused them.
type eventSink struct {
	emitter events.EventEmitter
	logger  *slog.Logger
}

func newEventSink(emitter events.EventEmitter, logger *slog.Logger) eventSink {
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	return eventSink{emitter: emitter, logger: logger}
}

func (s eventSink) emit(ctx context.Context, eventType string, payload any) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	event, err := events.NewEvent(eventType, payload)
	if err != nil {
		log.Error("failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		log.Warn("failed to emit event",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", eventType),
			slog.String("error", err.Error()))
	}
}

func (s eventSink) referralSettled(ctx context.Context, rs *domain.ReferralSettlement) {
	s.emit(ctx, events.TypeReferralSettled, events.ReferralSettledPayload{
		ReferredUserID:     rs.ReferredUserID,
		DirectReferrerID:   rs.DirectReferrerID,
		IndirectReferrerID: rs.IndirectReferrerID,
		DirectBonus:        rs.DirectBonus,
		IndirectBonus:      rs.IndirectBonus,
	})
}
