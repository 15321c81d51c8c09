package consumer

import (
	"context"
	"errors"
	"log"

	"example.com/feed/internal/deadletter"
	"example.com/feed/internal/domain"
	"example.com/feed/internal/observability"
)

// Distributor is the slice of the fan-out writer the handler invokes.
type Distributor interface {
	Distribute(ctx context.Context, event domain.Event) (int, error)
}

// DeadLetterSink parks events whose fan-out failed transiently.
type DeadLetterSink interface {
	Park(ctx context.Context, entry deadletter.Entry) error
}

// FanoutHandler maps upstream domain events to fan-out calls.
//
// Failure policy mirrors the write-path contract: validation failures are
// logged and dropped (committed), transient failures are parked in the
// dead-letter table and committed, so the producing service is never blocked
// and the feed gap is repaired by the DLQ manager or a backfill.
type FanoutHandler struct {
	dist   Distributor
	dlq    DeadLetterSink
	logger *log.Logger
}

// NewFanoutHandler constructs a FanoutHandler.
func NewFanoutHandler(dist Distributor, dlq DeadLetterSink) *FanoutHandler {
	return &FanoutHandler{
		dist:   dist,
		dlq:    dlq,
		logger: log.New(log.Writer(), "[fanout] ", log.LstdFlags),
	}
}

// Handle decodes and distributes one message. A non-nil return leaves the
// offset uncommitted for redelivery; that only happens when even parking the
// event failed.
func (h *FanoutHandler) Handle(ctx context.Context, msg Message) error {
	event, err := domain.DecodeEvent(msg.EventType, msg.Payload)
	if err != nil {
		h.logger.Printf("dropping undecodable event (event_type=%s, offset=%d): %v", msg.EventType, msg.Offset, err)
		return nil
	}

	written, err := h.dist.Distribute(ctx, event)
	if err == nil {
		if written > 0 {
			h.logger.Printf("distributed %s into %d records", msg.EventType, written)
		}
		return nil
	}

	if errors.Is(err, domain.ErrInvalidEvent) {
		h.logger.Printf("dropping invalid event (event_type=%s, offset=%d): %v", msg.EventType, msg.Offset, err)
		return nil
	}

	observability.RecordFanoutFailure(msg.EventType)
	h.logger.Printf("fan-out failed (event_type=%s, offset=%d), parking: %v", msg.EventType, msg.Offset, err)

	parkErr := h.dlq.Park(ctx, deadletter.Entry{
		EventType: msg.EventType,
		Payload:   msg.Payload,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Reason:    err.Error(),
	})
	if parkErr != nil {
		return parkErr
	}
	return nil
}
