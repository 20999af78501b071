// Package domain contains persistence models for SDI transmissions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Transmission is one invoice file on its way through the exchange
// system. The signed envelope and the XML it wraps are kept alongside
// the lifecycle state so a failed delivery can be retried without
// rebuilding or re-signing.
type Transmission struct {
	ID                   snowflake.ID     `gorm:"primaryKey"`
	OrgID                snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_transmission_org_file,priority:1;uniqueIndex:ux_transmission_org_progressivo,priority:1"`
	SDIID                *string          `gorm:"column:sdi_id;type:text;index"`
	InvoiceNumber        string           `gorm:"type:text;not null"`
	InvoiceDate          time.Time        `gorm:"type:date;not null"`
	DocumentType         string           `gorm:"type:text;not null"`
	RecipientName        string           `gorm:"type:text"`
	RecipientVAT         *string          `gorm:"column:recipient_vat;type:text"`
	RecipientFiscalCode  *string          `gorm:"type:text"`
	RecipientRoutingCode *string          `gorm:"type:text"`
	RecipientPEC         *string          `gorm:"column:recipient_pec;type:text"`
	Progressivo          string           `gorm:"type:text;not null;uniqueIndex:ux_transmission_org_progressivo,priority:2"`
	FileName             string           `gorm:"type:text;not null;uniqueIndex:ux_transmission_org_file,priority:2"`
	SignatureFormat      string           `gorm:"type:text;not null;default:'CADES'"`
	InvoicePayload       datatypes.JSON   `gorm:"type:jsonb;not null"`
	DocumentXML          []byte           `gorm:"column:document_xml"`
	Envelope             []byte           `gorm:""`
	Checksum             string           `gorm:"type:text"`
	Status               Status           `gorm:"type:text;not null;default:'CREATED';index"`
	Channel              string           `gorm:"type:text"`
	AttemptCount         int              `gorm:"not null;default:0"`
	LastError            *string          `gorm:"type:text"`
	TotalAmount          int64            `gorm:"not null;default:0"`
	Currency             string           `gorm:"type:text;not null;default:'EUR'"`
	SubmittedAt          *time.Time       `gorm:""`
	DeliveredAt          *time.Time       `gorm:""`
	OutcomeDeadlineAt    *time.Time       `gorm:"index"`
	CompletedAt          *time.Time       `gorm:""`
	CreatedAt            time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transmission) TableName() string { return "transmissions" }

// Trigger types recorded on history rows.
const (
	TriggerSubmit       = "SUBMIT"
	TriggerNotification = "NOTIFICATION"
	TriggerScheduler    = "SCHEDULER"
	TriggerRetry        = "RETRY"
)

// TransmissionHistory is an append-only record of every status change.
type TransmissionHistory struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	TransmissionID snowflake.ID `gorm:"not null;index"`
	OrgID          snowflake.ID `gorm:"not null;index"`
	FromStatus     Status       `gorm:"type:text;not null"`
	ToStatus       Status       `gorm:"type:text;not null"`
	TriggerType    string       `gorm:"type:text;not null"`
	TriggerRef     *string      `gorm:"type:text"`
	Note           *string      `gorm:"type:text"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TransmissionHistory) TableName() string { return "transmission_history" }

// SDINotification stores every message received from the exchange
// system, including replays and messages that did not change the
// transmission status. Applied reports whether the row moved the
// status when it was first processed.
type SDINotification struct {
	ID               snowflake.ID     `gorm:"primaryKey"`
	TransmissionID   snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_sdi_notification_message,priority:1"`
	OrgID            snowflake.ID     `gorm:"not null;index"`
	MessageID        string           `gorm:"type:text;not null;uniqueIndex:ux_sdi_notification_message,priority:2"`
	NotificationType NotificationType `gorm:"type:text;not null"`
	Outcome          *string          `gorm:"type:text"`
	FileName         string           `gorm:"type:text"`
	Payload          []byte           `gorm:""`
	Reasons          datatypes.JSON   `gorm:"type:jsonb"`
	Applied          bool             `gorm:"not null;default:false"`
	ReceivedAt       time.Time        `gorm:"not null"`
	CreatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SDINotification) TableName() string { return "sdi_notifications" }

// TransmissionCounter backs the per-organization progressivo sequence.
type TransmissionCounter struct {
	OrgID     snowflake.ID `gorm:"primaryKey"`
	LastValue int64        `gorm:"not null;default:0"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TransmissionCounter) TableName() string { return "transmission_counters" }
