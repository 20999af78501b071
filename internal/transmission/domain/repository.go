package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// ListFilter narrows a transmission listing. The cursor fields mark
// the last row of the previous page; rows at or after that position
// are skipped.
type ListFilter struct {
	Status        *Status
	InvoiceDate   *time.Time
	CursorCreated *time.Time
	CursorID      snowflake.ID
	Limit         int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, transmission *Transmission) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Transmission, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Transmission, error)
	FindByFileName(ctx context.Context, db *gorm.DB, fileName string) (*Transmission, error)
	FindByFileNameForUpdate(ctx context.Context, db *gorm.DB, fileName string) (*Transmission, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter) ([]Transmission, error)

	// UpdateStatus moves a transmission from one status to another and
	// applies the extra column updates in the same statement. It reports
	// false when the row was no longer in the expected status.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, updates map[string]any) (bool, error)

	AppendHistory(ctx context.Context, db *gorm.DB, entry *TransmissionHistory) error
	ListHistory(ctx context.Context, db *gorm.DB, transmissionID snowflake.ID) ([]TransmissionHistory, error)

	// InsertNotification stores a received message. It reports false
	// when a row with the same transmission and message id already
	// exists, leaving the stored row untouched.
	InsertNotification(ctx context.Context, db *gorm.DB, notification *SDINotification) (bool, error)
	FindNotification(ctx context.Context, db *gorm.DB, transmissionID snowflake.ID, messageID string) (*SDINotification, error)
	ListNotifications(ctx context.Context, db *gorm.DB, transmissionID snowflake.ID) ([]SDINotification, error)

	// NextProgressivo atomically advances the per-organization counter
	// and returns the new value.
	NextProgressivo(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error)

	// FindExpirable claims delivered transmissions whose outcome window
	// elapsed before now. FindStuck claims transmissions sitting in
	// SUBMITTING since before the cutoff. Both lock the rows they
	// return and skip rows locked by concurrent sweeps.
	FindExpirable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Transmission, error)
	FindStuck(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Transmission, error)
}
