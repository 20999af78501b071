package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Topics emitted through the sdi_events outbox.
const (
	TopicTransmissionCreated       = "transmission.created"
	TopicTransmissionStatusChanged = "transmission.status_changed"
	TopicNotificationReceived      = "sdi.notification.received"
)

// SDIEvent captures outbox events for transmission workflows. Rows are
// written in the same transaction as the state change they describe and
// drained by the dispatcher.
type SDIEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	OrgID       snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_sdi_event_dedupe,priority:1"`
	EventType   string            `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_sdi_event_dedupe,priority:2"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SDIEvent) TableName() string { return "sdi_events" }
