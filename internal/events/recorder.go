package events

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/scambio/internal/events/domain"
	"github.com/smallbiznis/scambio/pkg/telemetry/correlation"
)

// Recorder appends rows to the sdi_events outbox. Callers pass the
// transaction carrying the state change so the event commits atomically
// with it. Rows with a dedupe key are silently skipped on replay.
type Recorder struct {
	genID *snowflake.Node
}

func NewRecorder(genID *snowflake.Node) *Recorder {
	return &Recorder{genID: genID}
}

// Record stamps the payload with the caller's correlation and trace
// identifiers before inserting, so a drained row can be joined back to
// the request that produced it.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, event *domain.SDIEvent) error {
	if event.ID == 0 {
		event.ID = r.genID.Generate()
	}
	event.Payload = correlation.InjectTraceIntoMetadata(ctx, event.Payload)
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error
}
