package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/scambio/internal/document"
	documentdomain "github.com/smallbiznis/scambio/internal/document/domain"
	"github.com/smallbiznis/scambio/pkg/db/pagination"
)

type SubmitInvoiceRequest struct {
	OrganizationID  string                         `json:"organization_id"`
	Invoice         documentdomain.InvoiceDocument `json:"invoice"`
	SignatureFormat string                         `json:"signature_format,omitempty"`
	Channel         string                         `json:"channel,omitempty"`
}

type RetryTransmissionRequest struct {
	TransmissionID string `json:"transmission_id"`
}

type IngestNotificationRequest struct {
	FileName string `json:"file_name"`
	Payload  []byte `json:"payload"`
}

type ListTransmissionsRequest struct {
	Status      string
	InvoiceDate *time.Time
	PageToken   string
	PageSize    int32
}

type ListTransmissionsResponse struct {
	pagination.PageInfo
	Transmissions []TransmissionResponse `json:"transmissions"`
}

type TransmissionResponse struct {
	ID                string     `json:"id"`
	OrganizationID    string     `json:"organization_id"`
	SDIID             *string    `json:"sdi_id,omitempty"`
	Status            Status     `json:"status"`
	InvoiceNumber     string     `json:"invoice_number"`
	InvoiceDate       string     `json:"invoice_date"`
	DocumentType      string     `json:"document_type"`
	RecipientName     string     `json:"recipient_name,omitempty"`
	Progressivo       string     `json:"progressivo"`
	FileName          string     `json:"file_name"`
	SignatureFormat   string     `json:"signature_format"`
	Channel           string     `json:"channel,omitempty"`
	AttemptCount      int        `json:"attempt_count"`
	LastError         *string    `json:"last_error,omitempty"`
	TotalAmount       int64      `json:"total_amount"`
	Currency          string     `json:"currency"`
	SubmittedAt       *time.Time `json:"submitted_at,omitempty"`
	DeliveredAt       *time.Time `json:"delivered_at,omitempty"`
	OutcomeDeadlineAt *time.Time `json:"outcome_deadline_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	History       []HistoryEntryResponse          `json:"history,omitempty"`
	Notifications []NotificationSummary           `json:"notifications,omitempty"`
	Invoice       *documentdomain.InvoiceDocument `json:"invoice,omitempty"`
}

type HistoryEntryResponse struct {
	FromStatus  Status    `json:"from_status"`
	ToStatus    Status    `json:"to_status"`
	TriggerType string    `json:"trigger_type"`
	TriggerRef  *string   `json:"trigger_ref,omitempty"`
	Note        *string   `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type NotificationSummary struct {
	MessageID        string           `json:"message_id"`
	NotificationType NotificationType `json:"notification_type"`
	Outcome          *string          `json:"outcome,omitempty"`
	Applied          bool             `json:"applied"`
	ReceivedAt       time.Time        `json:"received_at"`
}

type IngestNotificationResponse struct {
	TransmissionID   string           `json:"transmission_id"`
	MessageID        string           `json:"message_id"`
	NotificationType NotificationType `json:"notification_type"`
	Outcome          *string          `json:"outcome,omitempty"`
	Result           TransitionResult `json:"result"`
	Status           Status           `json:"status"`
	Duplicate        bool             `json:"duplicate"`
}

type Service interface {
	Submit(context.Context, SubmitInvoiceRequest) (TransmissionResponse, error)
	Retry(context.Context, RetryTransmissionRequest) (TransmissionResponse, error)
	GetByID(context.Context, string) (TransmissionResponse, error)
	List(context.Context, ListTransmissionsRequest) (ListTransmissionsResponse, error)
	IngestNotification(context.Context, IngestNotificationRequest) (IngestNotificationResponse, error)

	// ExpireOverdue moves delivered transmissions whose outcome window
	// has elapsed to EXPIRED. RecoverStuck returns transmissions left in
	// SUBMITTING by a crashed submit to FAILED_DELIVERY so they can be
	// retried. Both are scheduler entry points and return the number of
	// rows they moved.
	ExpireOverdue(ctx context.Context, limit int) (int, error)
	RecoverStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// ValidationError carries the full report for a document that failed
// local validation. The transmission is not created.
type ValidationError struct {
	Report document.Report
}

func (e *ValidationError) Error() string { return "invoice_validation_failed" }

var (
	ErrInvalidOrganization    = errors.New("invalid_organization")
	ErrInvalidTransmission    = errors.New("invalid_transmission")
	ErrTransmissionNotFound   = errors.New("transmission_not_found")
	ErrInvalidStatusFilter    = errors.New("invalid_status_filter")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrNotRetryable           = errors.New("transmission_not_retryable")
	ErrSigningFailed          = errors.New("signing_failed")
	ErrMalformedNotification  = errors.New("malformed_notification")
	ErrUnknownNotifiedFile    = errors.New("unknown_notified_file")
	ErrProgressivoUnavailable = errors.New("progressivo_unavailable")
)
