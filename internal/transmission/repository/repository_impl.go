package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/scambio/internal/transmission/domain"
)

type repository struct{}

// NewRepository returns the gorm-backed transmission store. Every
// method takes the handle it should run on so callers can thread one
// transaction through a multi-step state change.
func NewRepository() domain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, transmission *domain.Transmission) error {
	return db.WithContext(ctx).Create(transmission).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Transmission, error) {
	var rows []domain.Transmission
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM transmissions WHERE org_id = ? AND id = ?`,
		orgID, id,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Transmission, error) {
	var rows []domain.Transmission
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM transmissions WHERE org_id = ? AND id = ? FOR UPDATE`,
		orgID, id,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) FindByFileName(ctx context.Context, db *gorm.DB, fileName string) (*domain.Transmission, error) {
	var rows []domain.Transmission
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM transmissions WHERE file_name = ?`,
		fileName,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) FindByFileNameForUpdate(ctx context.Context, db *gorm.DB, fileName string) (*domain.Transmission, error) {
	var rows []domain.Transmission
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM transmissions WHERE file_name = ? FOR UPDATE`,
		fileName,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter) ([]domain.Transmission, error) {
	query := db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.InvoiceDate != nil {
		query = query.Where("invoice_date = ?", *filter.InvoiceDate)
	}
	if filter.CursorCreated != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			*filter.CursorCreated, *filter.CursorCreated, filter.CursorID,
		)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []domain.Transmission
	err := query.Order("created_at DESC, id DESC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, updates map[string]any) (bool, error) {
	assign := map[string]any{"status": to}
	for column, value := range updates {
		assign[column] = value
	}

	res := db.WithContext(ctx).
		Model(&domain.Transmission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(assign)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AppendHistory(ctx context.Context, db *gorm.DB, entry *domain.TransmissionHistory) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListHistory(ctx context.Context, db *gorm.DB, transmissionID snowflake.ID) ([]domain.TransmissionHistory, error) {
	var rows []domain.TransmissionHistory
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM transmission_history WHERE transmission_id = ? ORDER BY created_at ASC, id ASC`,
		transmissionID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) InsertNotification(ctx context.Context, db *gorm.DB, notification *domain.SDINotification) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(notification)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindNotification(ctx context.Context, db *gorm.DB, transmissionID snowflake.ID, messageID string) (*domain.SDINotification, error) {
	var rows []domain.SDINotification
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM sdi_notifications WHERE transmission_id = ? AND message_id = ?`,
		transmissionID, messageID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repository) ListNotifications(ctx context.Context, db *gorm.DB, transmissionID snowflake.ID) ([]domain.SDINotification, error) {
	var rows []domain.SDINotification
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM sdi_notifications WHERE transmission_id = ? ORDER BY received_at ASC, id ASC`,
		transmissionID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) NextProgressivo(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (int64, error) {
	var row struct {
		LastValue int64 `gorm:"column:last_value"`
	}
	err := db.WithContext(ctx).Raw(
		`INSERT INTO transmission_counters (org_id, last_value, updated_at)
		 VALUES (?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT (org_id) DO UPDATE
		 SET last_value = transmission_counters.last_value + 1, updated_at = CURRENT_TIMESTAMP
		 RETURNING last_value`,
		orgID,
	).Scan(&row).Error
	if err != nil {
		return 0, err
	}
	if row.LastValue <= 0 {
		return 0, domain.ErrProgressivoUnavailable
	}
	return row.LastValue, nil
}

func (r *repository) FindExpirable(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Transmission, error) {
	var rows []domain.Transmission
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM transmissions
		 WHERE status = ? AND outcome_deadline_at IS NOT NULL AND outcome_deadline_at <= ?
		 ORDER BY outcome_deadline_at ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		domain.StatusDelivered, now, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindStuck(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Transmission, error) {
	var rows []domain.Transmission
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM transmissions
		 WHERE status = ? AND updated_at <= ?
		 ORDER BY updated_at ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		domain.StatusSubmitting, cutoff, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
