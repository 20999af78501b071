package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/scambio/internal/clock"
	"github.com/smallbiznis/scambio/pkg/telemetry/correlation"
)

// Envelope is a drained outbox row handed to a sink.
type Envelope struct {
	ID        snowflake.ID   `gorm:"column:id"`
	OrgID     snowflake.ID   `gorm:"column:org_id"`
	EventType string         `gorm:"column:event_type"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

// Sink receives drained outbox events. Delivery must be idempotent; a
// failed row stays unpublished and is retried on the next pass.
type Sink interface {
	Deliver(ctx context.Context, event Envelope) error
}

// LogSink writes drained events to the structured log. It stands in for
// an external broker in standalone deployments.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) Sink {
	return &LogSink{log: log.Named("events.sink")}
}

func (s *LogSink) Deliver(ctx context.Context, event Envelope) error {
	s.log.Info("event published",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.String("org_id", event.OrgID.String()),
		zap.String("correlation_id", correlation.ExtractCorrelationID(ctx)),
		zap.ByteString("payload", event.Payload),
	)
	return nil
}

// Dispatcher drains unpublished outbox rows in creation order.
type Dispatcher struct {
	db   *gorm.DB
	log  *zap.Logger
	sink Sink
	clk  clock.Clock
}

func NewDispatcher(db *gorm.DB, log *zap.Logger, sink Sink, clk clock.Clock) *Dispatcher {
	return &Dispatcher{
		db:   db,
		log:  log.Named("events.dispatcher"),
		sink: sink,
		clk:  clk,
	}
}

func (d *Dispatcher) ProcessPending(ctx context.Context, limit int) error {
	var rows []Envelope
	err := d.db.WithContext(ctx).Raw(
		`SELECT id, org_id, event_type, payload, created_at FROM sdi_events
		 WHERE published = false
		 ORDER BY created_at ASC
		 LIMIT ?`,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return err
	}

	for _, row := range rows {
		if err := d.dispatchOne(ctx, row); err != nil {
			d.log.Error("failed to dispatch event",
				zap.Error(err),
				zap.String("event_id", row.ID.String()),
				zap.String("event_type", row.EventType),
			)
		}
	}

	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, row Envelope) error {
	if err := d.sink.Deliver(deliveryContext(ctx, row.Payload), row); err != nil {
		return err
	}
	return d.db.WithContext(ctx).Exec(
		`UPDATE sdi_events SET published = true, published_at = ? WHERE id = ?`,
		d.clk.Now(), row.ID,
	).Error
}

// deliveryContext resumes the correlation and trace recorded with the
// row so the sink attributes delivery to the request that produced it.
func deliveryContext(ctx context.Context, payload datatypes.JSON) context.Context {
	var meta struct {
		CorrelationID string `json:"correlation_id"`
		TraceID       string `json:"trace_id"`
		SpanID        string `json:"span_id"`
	}
	if len(payload) == 0 || json.Unmarshal(payload, &meta) != nil {
		return ctx
	}
	ctx = correlation.ContextWithCorrelationID(ctx, meta.CorrelationID)
	return correlation.ContextWithRemoteSpan(ctx, meta.TraceID, meta.SpanID)
}
