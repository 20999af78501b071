package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/scambio/internal/channel"
	channeldomain "github.com/smallbiznis/scambio/internal/channel/domain"
	"github.com/smallbiznis/scambio/internal/clock"
	"github.com/smallbiznis/scambio/internal/cloudmetrics"
	"github.com/smallbiznis/scambio/internal/config"
	"github.com/smallbiznis/scambio/internal/document"
	documentdomain "github.com/smallbiznis/scambio/internal/document/domain"
	"github.com/smallbiznis/scambio/internal/events"
	eventsdomain "github.com/smallbiznis/scambio/internal/events/domain"
	"github.com/smallbiznis/scambio/internal/notification"
	obsmetrics "github.com/smallbiznis/scambio/internal/observability/metrics"
	"github.com/smallbiznis/scambio/internal/orgcontext"
	orgdomain "github.com/smallbiznis/scambio/internal/organization/domain"
	"github.com/smallbiznis/scambio/internal/signature"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
	"github.com/smallbiznis/scambio/pkg/db/pagination"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	SDI       *config.SDIConfigHolder
	Repo      transmissiondomain.Repository
	OrgRepo   orgdomain.Repository
	Builder   *document.Builder
	Validator *document.Validator
	Signer    signature.Signer
	Channels  *channel.Registry
	Retrier   *channel.Retrier
	Parser    *notification.Parser
	Recorder  *events.Recorder
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	sdi       *config.SDIConfigHolder
	repo      transmissiondomain.Repository
	orgRepo   orgdomain.Repository
	builder   *document.Builder
	validator *document.Validator
	signer    signature.Signer
	channels  *channel.Registry
	retrier   *channel.Retrier
	parser    *notification.Parser
	recorder  *events.Recorder
}

func NewService(p ServiceParam) transmissiondomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("transmission.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		sdi:       p.SDI,
		repo:      p.Repo,
		orgRepo:   p.OrgRepo,
		builder:   p.Builder,
		validator: p.Validator,
		signer:    p.Signer,
		channels:  p.Channels,
		retrier:   p.Retrier,
		parser:    p.Parser,
		recorder:  p.Recorder,
	}
}

// Submit validates, builds, signs and dispatches one invoice. The
// transmission is committed in SUBMITTING before the first channel
// call so a crash mid-dispatch leaves a row the recovery sweep can
// move to FAILED_DELIVERY.
func (s *Service) Submit(ctx context.Context, req transmissiondomain.SubmitInvoiceRequest) (transmissiondomain.TransmissionResponse, error) {
	orgID, err := s.resolveOrgID(ctx, req.OrganizationID)
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}

	org, err := s.orgRepo.GetByID(ctx, orgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return transmissiondomain.TransmissionResponse{}, transmissiondomain.ErrInvalidOrganization
		}
		return transmissiondomain.TransmissionResponse{}, err
	}

	invoice := req.Invoice
	fillSupplier(&invoice, org)

	report := s.validator.Validate(invoice)
	if !report.Valid {
		return transmissiondomain.TransmissionResponse{}, &transmissiondomain.ValidationError{Report: report}
	}

	format := strings.ToUpper(strings.TrimSpace(req.SignatureFormat))
	if format == "" {
		format = s.signer.Format()
	}
	if format != s.signer.Format() {
		return transmissiondomain.TransmissionResponse{}, fmt.Errorf("%w: %s", signature.ErrUnsupportedFormat, format)
	}

	cfg := s.sdi.Get()
	channelCode := strings.ToLower(strings.TrimSpace(req.Channel))
	if channelCode == "" {
		channelCode = strings.ToLower(strings.TrimSpace(cfg.Channel))
	}
	if !s.channels.ChannelExists(channelCode) {
		return transmissiondomain.TransmissionResponse{}, channeldomain.ErrChannelNotFound
	}

	var created *transmissiondomain.Transmission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.repo.NextProgressivo(ctx, tx, orgID)
		if err != nil {
			return err
		}
		progressivo := document.EncodeProgressivo(seq)

		xml, err := s.builder.Build(invoice, progressivo)
		if err != nil {
			return err
		}

		envelope, err := s.signer.Sign(ctx, xml)
		if err != nil {
			s.log.Error("signing failed",
				zap.String("org_id", orgID.String()),
				zap.String("progressivo", progressivo),
				zap.Error(err),
			)
			cloudmetrics.RecordEngineError(orgID.String(), "sign")
			return fmt.Errorf("%w: %v", transmissiondomain.ErrSigningFailed, err)
		}

		base := document.BaseFilename(countryOrDefault(org.CountryCode), org.VATNumber, progressivo)
		fileName := document.SignedFilename(base, format)
		checksum := sha256.Sum256(envelope)

		payload, err := json.Marshal(invoice)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		t := &transmissiondomain.Transmission{
			ID:                   s.genID.Generate(),
			OrgID:                orgID,
			InvoiceNumber:        invoice.Number,
			InvoiceDate:          dateOnly(invoice.IssueDate),
			DocumentType:         invoice.DocumentType,
			RecipientName:        invoice.Customer.Name,
			RecipientVAT:         optionalString(invoice.Customer.VATNumber),
			RecipientFiscalCode:  optionalString(invoice.Customer.FiscalCode),
			RecipientRoutingCode: optionalString(invoice.Routing.Code),
			RecipientPEC:         optionalString(invoice.Routing.PEC),
			Progressivo:          progressivo,
			FileName:             fileName,
			SignatureFormat:      format,
			InvoicePayload:       datatypes.JSON(payload),
			DocumentXML:          xml,
			Envelope:             envelope,
			Checksum:             hex.EncodeToString(checksum[:]),
			Status:               transmissiondomain.StatusCreated,
			Channel:              channelCode,
			TotalAmount:          invoice.TotalCents(),
			Currency:             currencyOrDefault(invoice.Currency),
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.repo.Insert(ctx, tx, t); err != nil {
			return err
		}

		if err := s.transition(ctx, tx, t, transmissiondomain.StatusCreated, transmissiondomain.StatusSigned, transmissiondomain.TriggerSubmit, nil, nil, nil); err != nil {
			return err
		}
		if err := s.transition(ctx, tx, t, transmissiondomain.StatusSigned, transmissiondomain.StatusSubmitting, transmissiondomain.TriggerSubmit, nil, nil, nil); err != nil {
			return err
		}

		dedupe := "created:" + t.ID.String()
		if err := s.recorder.Record(ctx, tx, &eventsdomain.SDIEvent{
			OrgID:     orgID,
			EventType: eventsdomain.TopicTransmissionCreated,
			DedupeKey: &dedupe,
			Payload: datatypes.JSONMap{
				"transmission_id": t.ID.String(),
				"file_name":       t.FileName,
				"progressivo":     t.Progressivo,
				"channel":         t.Channel,
			},
			CreatedAt: now,
		}); err != nil {
			return err
		}

		created = t
		return nil
	})
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}

	cloudmetrics.RecordTransmissionSubmitted(orgID.String(), channelCode)
	s.log.Info("transmission created",
		zap.String("transmission_id", created.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("file_name", created.FileName),
		zap.String("channel", channelCode),
	)

	return s.dispatch(ctx, created, transmissiondomain.TriggerSubmit)
}

// Retry re-dispatches the stored envelope of a failed delivery. The
// document is not rebuilt or re-signed; progressivo and filename stay
// the same.
func (s *Service) Retry(ctx context.Context, req transmissiondomain.RetryTransmissionRequest) (transmissiondomain.TransmissionResponse, error) {
	orgID, err := s.resolveOrgID(ctx, "")
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}
	id, err := parseID(req.TransmissionID)
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, transmissiondomain.ErrInvalidTransmission
	}

	var claimed *transmissiondomain.Transmission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.repo.FindByIDForUpdate(ctx, tx, orgID, id)
		if err != nil {
			return err
		}
		if t == nil {
			return transmissiondomain.ErrTransmissionNotFound
		}
		if t.Status != transmissiondomain.StatusFailedDelivery {
			return transmissiondomain.ErrNotRetryable
		}
		if len(t.Envelope) == 0 {
			return transmissiondomain.ErrNotRetryable
		}

		updates := map[string]any{"last_error": nil}
		if err := s.transition(ctx, tx, t, transmissiondomain.StatusFailedDelivery, transmissiondomain.StatusSubmitting, transmissiondomain.TriggerRetry, nil, nil, updates); err != nil {
			return err
		}

		claimed = t
		return nil
	})
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}

	s.log.Info("transmission retry claimed",
		zap.String("transmission_id", claimed.ID.String()),
		zap.String("file_name", claimed.FileName),
		zap.Int("previous_attempts", claimed.AttemptCount),
	)

	return s.dispatch(ctx, claimed, transmissiondomain.TriggerRetry)
}

func (s *Service) GetByID(ctx context.Context, id string) (transmissiondomain.TransmissionResponse, error) {
	orgID, err := s.resolveOrgID(ctx, "")
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}
	tid, err := parseID(id)
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, transmissiondomain.ErrInvalidTransmission
	}

	t, err := s.repo.FindByID(ctx, s.db, orgID, tid)
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}
	if t == nil {
		return transmissiondomain.TransmissionResponse{}, transmissiondomain.ErrTransmissionNotFound
	}

	history, err := s.repo.ListHistory(ctx, s.db, t.ID)
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}
	notifications, err := s.repo.ListNotifications(ctx, s.db, t.ID)
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}

	resp := toResponse(t)
	resp.History = make([]transmissiondomain.HistoryEntryResponse, 0, len(history))
	for _, entry := range history {
		resp.History = append(resp.History, transmissiondomain.HistoryEntryResponse{
			FromStatus:  entry.FromStatus,
			ToStatus:    entry.ToStatus,
			TriggerType: entry.TriggerType,
			TriggerRef:  entry.TriggerRef,
			Note:        entry.Note,
			CreatedAt:   entry.CreatedAt,
		})
	}
	resp.Notifications = make([]transmissiondomain.NotificationSummary, 0, len(notifications))
	for _, n := range notifications {
		resp.Notifications = append(resp.Notifications, transmissiondomain.NotificationSummary{
			MessageID:        n.MessageID,
			NotificationType: n.NotificationType,
			Outcome:          n.Outcome,
			Applied:          n.Applied,
			ReceivedAt:       n.ReceivedAt,
		})
	}

	if len(t.InvoicePayload) > 0 {
		var doc documentdomain.InvoiceDocument
		if err := json.Unmarshal(t.InvoicePayload, &doc); err == nil {
			resp.Invoice = &doc
		}
	}

	return resp, nil
}

func (s *Service) List(ctx context.Context, req transmissiondomain.ListTransmissionsRequest) (transmissiondomain.ListTransmissionsResponse, error) {
	orgID, err := s.resolveOrgID(ctx, "")
	if err != nil {
		return transmissiondomain.ListTransmissionsResponse{}, err
	}

	pageSize := int(req.PageSize)
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	filter := transmissiondomain.ListFilter{Limit: pageSize + 1}
	if raw := strings.ToUpper(strings.TrimSpace(req.Status)); raw != "" {
		status := transmissiondomain.Status(raw)
		if !transmissiondomain.ValidStatus(status) {
			return transmissiondomain.ListTransmissionsResponse{}, transmissiondomain.ErrInvalidStatusFilter
		}
		filter.Status = &status
	}
	if req.InvoiceDate != nil {
		date := dateOnly(*req.InvoiceDate)
		filter.InvoiceDate = &date
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return transmissiondomain.ListTransmissionsResponse{}, transmissiondomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return transmissiondomain.ListTransmissionsResponse{}, transmissiondomain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return transmissiondomain.ListTransmissionsResponse{}, transmissiondomain.ErrInvalidPageToken
		}
		filter.CursorCreated = &createdAt
		filter.CursorID = cursorID
	}

	rows, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return transmissiondomain.ListTransmissionsResponse{}, err
	}

	pointers := make([]*transmissiondomain.Transmission, len(rows))
	for i := range rows {
		pointers[i] = &rows[i]
	}
	pageInfo, page := pagination.BuildCursorPageInfo(pointers, pageSize, func(t *transmissiondomain.Transmission) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        t.ID.String(),
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	resp := transmissiondomain.ListTransmissionsResponse{
		PageInfo:      *pageInfo,
		Transmissions: make([]transmissiondomain.TransmissionResponse, 0, len(page)),
	}
	for _, t := range page {
		resp.Transmissions = append(resp.Transmissions, toResponse(t))
	}
	return resp, nil
}

// IngestNotification applies one exchange-system message to the
// transmission it references. Replays of an already-stored message id
// change nothing and report Duplicate.
func (s *Service) IngestNotification(ctx context.Context, req transmissiondomain.IngestNotificationRequest) (transmissiondomain.IngestNotificationResponse, error) {
	parsed, err := s.parser.Parse(req.FileName, req.Payload)
	if err != nil {
		return transmissiondomain.IngestNotificationResponse{}, fmt.Errorf("%w: %v", transmissiondomain.ErrMalformedNotification, err)
	}

	var resp transmissiondomain.IngestNotificationResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := s.findNotifiedTransmission(ctx, tx, parsed.FileName)
		if err != nil {
			return err
		}

		receivedAt := parsed.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = s.clock.Now().UTC()
		}

		newStatus, result := transmissiondomain.ApplyNotification(t.Status, parsed.Type, parsed.Outcome)

		row := &transmissiondomain.SDINotification{
			ID:               s.genID.Generate(),
			TransmissionID:   t.ID,
			OrgID:            t.OrgID,
			MessageID:        parsed.MessageID,
			NotificationType: parsed.Type,
			Outcome:          optionalString(parsed.Outcome),
			FileName:         req.FileName,
			Payload:          req.Payload,
			Applied:          result == transmissiondomain.TransitionApplied,
			ReceivedAt:       receivedAt,
			CreatedAt:        s.clock.Now().UTC(),
		}
		if len(parsed.Errors) > 0 {
			reasons, err := json.Marshal(parsed.Errors)
			if err != nil {
				return err
			}
			row.Reasons = datatypes.JSON(reasons)
		}

		inserted, err := s.repo.InsertNotification(ctx, tx, row)
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Info("duplicate notification ignored",
				zap.String("transmission_id", t.ID.String()),
				zap.String("message_id", parsed.MessageID),
				zap.String("type", string(parsed.Type)),
			)
			resp = transmissiondomain.IngestNotificationResponse{
				TransmissionID:   t.ID.String(),
				MessageID:        parsed.MessageID,
				NotificationType: parsed.Type,
				Outcome:          optionalString(parsed.Outcome),
				Result:           transmissiondomain.TransitionRecordedOnly,
				Status:           t.Status,
				Duplicate:        true,
			}
			return nil
		}

		ref := parsed.MessageID
		switch result {
		case transmissiondomain.TransitionApplied:
			updates := s.notificationUpdates(t, parsed, newStatus, receivedAt)
			if err := s.transition(ctx, tx, t, t.Status, newStatus, transmissiondomain.TriggerNotification, &ref, notificationNote(parsed), updates); err != nil {
				return err
			}
		default:
			if parsed.Type != transmissiondomain.NotificationNE {
				s.log.Warn("notification did not move the transmission",
					zap.String("transmission_id", t.ID.String()),
					zap.String("message_id", parsed.MessageID),
					zap.String("type", string(parsed.Type)),
					zap.String("status", string(t.Status)),
					zap.String("result", string(result)),
				)
			}
			note := string(result)
			if err := s.appendHistory(ctx, tx, t, t.Status, t.Status, transmissiondomain.TriggerNotification, &ref, &note); err != nil {
				return err
			}
			newStatus = t.Status
		}

		dedupe := "notification:" + t.ID.String() + ":" + parsed.MessageID
		if err := s.recorder.Record(ctx, tx, &eventsdomain.SDIEvent{
			OrgID:     t.OrgID,
			EventType: eventsdomain.TopicNotificationReceived,
			DedupeKey: &dedupe,
			Payload: datatypes.JSONMap{
				"transmission_id": t.ID.String(),
				"message_id":      parsed.MessageID,
				"type":            string(parsed.Type),
				"outcome":         parsed.Outcome,
				"result":          string(result),
			},
			CreatedAt: s.clock.Now().UTC(),
		}); err != nil {
			return err
		}

		cloudmetrics.RecordNotificationReceived(t.OrgID.String(), string(parsed.Type))
		resp = transmissiondomain.IngestNotificationResponse{
			TransmissionID:   t.ID.String(),
			MessageID:        parsed.MessageID,
			NotificationType: parsed.Type,
			Outcome:          optionalString(parsed.Outcome),
			Result:           result,
			Status:           newStatus,
		}
		return nil
	})
	if err != nil {
		return transmissiondomain.IngestNotificationResponse{}, err
	}
	return resp, nil
}

// ExpireOverdue synthesizes the deadline expiry for delivered
// transmissions whose outcome window has elapsed.
func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := s.clock.Now().UTC()
	moved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.FindExpirable(ctx, tx, now, limit)
		if err != nil {
			return err
		}
		for i := range rows {
			t := &rows[i]
			newStatus, result := transmissiondomain.ApplyNotification(t.Status, transmissiondomain.NotificationDT, "")
			if result != transmissiondomain.TransitionApplied {
				continue
			}
			note := "outcome window elapsed"
			updates := map[string]any{"completed_at": now}
			if err := s.transition(ctx, tx, t, t.Status, newStatus, transmissiondomain.TriggerScheduler, nil, &note, updates); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.log.Info("expired overdue transmissions", zap.Int("count", moved))
	}
	return moved, nil
}

// RecoverStuck returns transmissions abandoned in SUBMITTING to
// FAILED_DELIVERY so a retry can pick them up.
func (s *Service) RecoverStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := s.clock.Now().UTC().Add(-olderThan)
	moved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.repo.FindStuck(ctx, tx, cutoff, limit)
		if err != nil {
			return err
		}
		for i := range rows {
			t := &rows[i]
			note := "submission interrupted"
			updates := map[string]any{"last_error": note}
			if err := s.transition(ctx, tx, t, transmissiondomain.StatusSubmitting, transmissiondomain.StatusFailedDelivery, transmissiondomain.TriggerScheduler, nil, &note, updates); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.log.Warn("recovered stuck transmissions", zap.Int("count", moved))
	}
	return moved, nil
}

// dispatch runs the channel submission for a transmission already
// committed in SUBMITTING and finalizes it to SENT or FAILED_DELIVERY.
func (s *Service) dispatch(ctx context.Context, t *transmissiondomain.Transmission, trigger string) (transmissiondomain.TransmissionResponse, error) {
	cfg := s.sdi.Get()

	var (
		result       *channeldomain.SubmitResult
		attempts     int
		submittedErr error
	)

	ch, err := s.channels.NewChannel(t.Channel, channeldomain.ChannelConfig{
		Code:    t.Channel,
		Options: cfg.ChannelOptions(t.Channel),
	})
	if err != nil {
		submittedErr = err
	} else {
		result, attempts, submittedErr = s.retrier.Submit(ctx, channel.PolicyFromConfig(cfg), func(ctx context.Context, attempt int) (*channeldomain.SubmitResult, error) {
			return ch.Submit(ctx, channeldomain.SubmitRequest{
				TransmissionID: t.ID,
				OrgID:          t.OrgID,
				FileName:       t.FileName,
				Envelope:       t.Envelope,
				Format:         t.SignatureFormat,
			})
		})
	}

	if err := s.finalize(ctx, t, result, attempts, submittedErr, trigger); err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}

	final, err := s.repo.FindByID(ctx, s.db, t.OrgID, t.ID)
	if err != nil {
		return transmissiondomain.TransmissionResponse{}, err
	}
	if final == nil {
		return transmissiondomain.TransmissionResponse{}, transmissiondomain.ErrTransmissionNotFound
	}
	return toResponse(final), nil
}

func (s *Service) finalize(ctx context.Context, t *transmissiondomain.Transmission, result *channeldomain.SubmitResult, attempts int, submitErr error, trigger string) error {
	now := s.clock.Now().UTC()
	totalAttempts := t.AttemptCount + attempts

	var (
		to      transmissiondomain.Status
		updates map[string]any
		ref     *string
		note    *string
	)
	switch {
	case submitErr != nil:
		to = transmissiondomain.StatusFailedDelivery
		msg := submitErr.Error()
		updates = map[string]any{"attempt_count": totalAttempts, "last_error": msg}
		note = &msg
		s.log.Warn("transmission dispatch failed",
			zap.String("transmission_id", t.ID.String()),
			zap.String("channel", t.Channel),
			zap.Int("attempts", attempts),
			zap.Error(submitErr),
		)
	case !result.Accepted:
		to = transmissiondomain.StatusFailedDelivery
		msg := strings.Join(result.Errors, "; ")
		if msg == "" {
			msg = "channel rejected the file"
		}
		updates = map[string]any{"attempt_count": totalAttempts, "last_error": msg}
		note = &msg
		if result.ChannelID != "" {
			updates["sdi_id"] = result.ChannelID
			ref = &result.ChannelID
		}
		s.log.Warn("channel rejected transmission",
			zap.String("transmission_id", t.ID.String()),
			zap.String("channel", t.Channel),
			zap.String("last_error", msg),
		)
	default:
		to = transmissiondomain.StatusSent
		updates = map[string]any{
			"attempt_count": totalAttempts,
			"last_error":    nil,
			"sdi_id":        result.ChannelID,
			"submitted_at":  now,
		}
		ref = &result.ChannelID
		s.log.Info("transmission sent",
			zap.String("transmission_id", t.ID.String()),
			zap.String("channel", t.Channel),
			zap.String("sdi_id", result.ChannelID),
			zap.Int("attempts", attempts),
		)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.transition(ctx, tx, t, transmissiondomain.StatusSubmitting, to, trigger, ref, note, updates)
	})
}

// transition performs one status-guarded move with its history row and
// outbox event, all on the caller's transaction.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, t *transmissiondomain.Transmission, from, to transmissiondomain.Status, trigger string, ref, note *string, updates map[string]any) error {
	ok, err := s.repo.UpdateStatus(ctx, tx, t.ID, from, to, updates)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("transmission %s is no longer %s", t.ID, from)
	}

	if err := s.appendHistory(ctx, tx, t, from, to, trigger, ref, note); err != nil {
		return err
	}

	dedupe := fmt.Sprintf("status:%s:%s:%s", t.ID, to, trigger)
	if ref != nil {
		dedupe += ":" + *ref
	}
	if err := s.recorder.Record(ctx, tx, &eventsdomain.SDIEvent{
		OrgID:     t.OrgID,
		EventType: eventsdomain.TopicTransmissionStatusChanged,
		DedupeKey: &dedupe,
		Payload: datatypes.JSONMap{
			"transmission_id": t.ID.String(),
			"from":            string(from),
			"to":              string(to),
			"trigger":         trigger,
		},
		CreatedAt: s.clock.Now().UTC(),
	}); err != nil {
		return err
	}

	cloudmetrics.RecordStatusChange(t.OrgID.String(), string(to))
	obsmetrics.Sweep().IncTransmissionTransition(string(from), string(to))
	t.Status = to
	return nil
}

func (s *Service) appendHistory(ctx context.Context, tx *gorm.DB, t *transmissiondomain.Transmission, from, to transmissiondomain.Status, trigger string, ref, note *string) error {
	return s.repo.AppendHistory(ctx, tx, &transmissiondomain.TransmissionHistory{
		ID:             s.genID.Generate(),
		TransmissionID: t.ID,
		OrgID:          t.OrgID,
		FromStatus:     from,
		ToStatus:       to,
		TriggerType:    trigger,
		TriggerRef:     ref,
		Note:           note,
		CreatedAt:      s.clock.Now().UTC(),
	})
}

// findNotifiedTransmission resolves the transmitted file a
// notification refers to, trying the stored name with and without the
// signed-envelope extension.
func (s *Service) findNotifiedTransmission(ctx context.Context, tx *gorm.DB, fileName string) (*transmissiondomain.Transmission, error) {
	name := strings.TrimSpace(fileName)
	if name == "" {
		return nil, transmissiondomain.ErrUnknownNotifiedFile
	}

	t, err := s.repo.FindByFileNameForUpdate(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if t == nil {
		alternate := name + ".p7m"
		if strings.HasSuffix(name, ".p7m") {
			alternate = strings.TrimSuffix(name, ".p7m")
		}
		t, err = s.repo.FindByFileNameForUpdate(ctx, tx, alternate)
		if err != nil {
			return nil, err
		}
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", transmissiondomain.ErrUnknownNotifiedFile, name)
	}
	return t, nil
}

// notificationUpdates builds the column changes for an applied
// notification: delivery timestamps, the outcome deadline, rejection
// reasons and completion markers.
func (s *Service) notificationUpdates(t *transmissiondomain.Transmission, parsed *notification.Notification, to transmissiondomain.Status, receivedAt time.Time) map[string]any {
	updates := map[string]any{}
	if t.SDIID == nil && parsed.SDIID != "" {
		updates["sdi_id"] = parsed.SDIID
	}

	switch to {
	case transmissiondomain.StatusDelivered:
		deadline := receivedAt.Add(time.Duration(s.sdi.Get().OutcomeDeadlineDays) * 24 * time.Hour)
		updates["delivered_at"] = receivedAt
		updates["outcome_deadline_at"] = deadline
	case transmissiondomain.StatusRejected:
		updates["last_error"] = joinReasons(parsed.Errors)
		updates["completed_at"] = receivedAt
	case transmissiondomain.StatusFailedDelivery:
		msg := parsed.Description
		if msg == "" {
			msg = "delivery failed"
		}
		updates["last_error"] = msg
	case transmissiondomain.StatusAccepted, transmissiondomain.StatusRefused, transmissiondomain.StatusExpired:
		updates["completed_at"] = receivedAt
	}
	return updates
}

func (s *Service) resolveOrgID(ctx context.Context, explicit string) (snowflake.ID, error) {
	if raw := strings.TrimSpace(explicit); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			return 0, transmissiondomain.ErrInvalidOrganization
		}
		return id, nil
	}
	if id, ok := orgcontext.OrgIDFromContext(ctx); ok {
		return id, nil
	}
	return 0, transmissiondomain.ErrInvalidOrganization
}

func notificationNote(parsed *notification.Notification) *string {
	if len(parsed.Errors) > 0 {
		note := joinReasons(parsed.Errors)
		return &note
	}
	if parsed.Outcome != "" {
		note := parsed.Outcome
		return &note
	}
	if parsed.Description != "" {
		return &parsed.Description
	}
	return nil
}

func joinReasons(entries []notification.ErrorEntry) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		switch {
		case entry.Code != "" && entry.Description != "":
			parts = append(parts, entry.Code+" "+entry.Description)
		case entry.Code != "":
			parts = append(parts, entry.Code)
		default:
			parts = append(parts, entry.Description)
		}
	}
	return strings.Join(parts, "; ")
}

func fillSupplier(invoice *documentdomain.InvoiceDocument, org *orgdomain.Organization) {
	if invoice.Supplier.VATNumber == "" {
		invoice.Supplier.VATNumber = org.VATNumber
	}
	if invoice.Supplier.FiscalCode == "" {
		invoice.Supplier.FiscalCode = org.FiscalCode
	}
	if invoice.Supplier.Name == "" {
		invoice.Supplier.Name = org.Name
	}
	if invoice.Supplier.TaxRegime == "" {
		invoice.Supplier.TaxRegime = org.TaxRegime
	}
	if invoice.Supplier.Street == "" {
		invoice.Supplier.Street = org.Street
	}
	if invoice.Supplier.PostalCode == "" {
		invoice.Supplier.PostalCode = org.PostalCode
	}
	if invoice.Supplier.City == "" {
		invoice.Supplier.City = org.City
	}
	if invoice.Supplier.Province == "" {
		invoice.Supplier.Province = org.Province
	}
	if invoice.Supplier.Country == "" {
		invoice.Supplier.Country = org.CountryCode
	}
}

func toResponse(t *transmissiondomain.Transmission) transmissiondomain.TransmissionResponse {
	return transmissiondomain.TransmissionResponse{
		ID:                t.ID.String(),
		OrganizationID:    t.OrgID.String(),
		SDIID:             t.SDIID,
		Status:            t.Status,
		InvoiceNumber:     t.InvoiceNumber,
		InvoiceDate:       t.InvoiceDate.Format("2006-01-02"),
		DocumentType:      t.DocumentType,
		RecipientName:     t.RecipientName,
		Progressivo:       t.Progressivo,
		FileName:          t.FileName,
		SignatureFormat:   t.SignatureFormat,
		Channel:           t.Channel,
		AttemptCount:      t.AttemptCount,
		LastError:         t.LastError,
		TotalAmount:       t.TotalAmount,
		Currency:          t.Currency,
		SubmittedAt:       t.SubmittedAt,
		DeliveredAt:       t.DeliveredAt,
		OutcomeDeadlineAt: t.OutcomeDeadlineAt,
		CompletedAt:       t.CompletedAt,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
}

func parseID(raw string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(raw))
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func dateOnly(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

func currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return "EUR"
	}
	return currency
}

func countryOrDefault(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "IT"
	}
	return code
}
