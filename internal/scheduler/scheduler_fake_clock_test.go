package scheduler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/scambio/internal/channel"
	"github.com/smallbiznis/scambio/internal/channel/mock"
	"github.com/smallbiznis/scambio/internal/clock"
	"github.com/smallbiznis/scambio/internal/config"
	"github.com/smallbiznis/scambio/internal/document"
	"github.com/smallbiznis/scambio/internal/events"
	eventsdomain "github.com/smallbiznis/scambio/internal/events/domain"
	"github.com/smallbiznis/scambio/internal/notification"
	obsmetrics "github.com/smallbiznis/scambio/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/scambio/internal/organization/domain"
	orgrepository "github.com/smallbiznis/scambio/internal/organization/repository"
	"github.com/smallbiznis/scambio/internal/signature"
	transmissiondomain "github.com/smallbiznis/scambio/internal/transmission/domain"
	"github.com/smallbiznis/scambio/internal/transmission/repository"
	"github.com/smallbiznis/scambio/internal/transmission/service"
)

var sweepStart = time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)

type sweepEnv struct {
	t        *testing.T
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	sched    *Scheduler
	org      *orgdomain.Organization
	registry *prometheus.Registry
	seq      int
}

func newSweepEnv(t *testing.T, cfg Config) *sweepEnv {
	t.Helper()
	registry := setupSweepMetrics(t)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	stripRowLocks(db)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&transmissiondomain.Transmission{},
		&transmissiondomain.TransmissionHistory{},
		&transmissiondomain.SDINotification{},
		&transmissiondomain.TransmissionCounter{},
		&eventsdomain.SDIEvent{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	clk := clock.NewFakeClock(sweepStart)
	log := zap.NewNop()

	org := &orgdomain.Organization{
		ID:          node.Generate(),
		Name:        "Esempio SRL",
		Slug:        "esempio-srl",
		VATNumber:   "01234567897",
		TaxRegime:   "RF01",
		Street:      "Via Roma 1",
		PostalCode:  "00100",
		City:        "Roma",
		Province:    "RM",
		CountryCode: "IT",
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   clk.Now(),
		UpdatedAt:   clk.Now(),
	}
	require.NoError(t, db.Create(org).Error)

	transmissionSvc := service.NewService(service.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		SDI:       config.NewStaticSDIConfigHolder(config.DefaultSDIConfig()),
		Repo:      repository.NewRepository(),
		OrgRepo:   orgrepository.NewRepository(db),
		Builder:   document.NewBuilder(),
		Validator: document.NewValidator(),
		Signer:    signature.NewMockSigner(clk),
		Channels:  channel.NewRegistry(mock.NewFactory()),
		Retrier:   channel.NewRetrier(log),
		Parser:    notification.NewParser(log),
		Recorder:  events.NewRecorder(node),
	})

	sched, err := New(Params{
		Log:             log,
		TransmissionSvc: transmissionSvc,
		Dispatcher:      events.NewDispatcher(db, log, events.NewLogSink(log), clk),
		GenID:           node,
		Clock:           clk,
		Config:          cfg,
	})
	require.NoError(t, err)

	return &sweepEnv{
		t:        t,
		db:       db,
		node:     node,
		clk:      clk,
		sched:    sched,
		org:      org,
		registry: registry,
	}
}

// stripRowLocks rewrites locking selects before they run; sqlite has no
// FOR UPDATE syntax.
func stripRowLocks(db *gorm.DB) {
	strip := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(sql)
		}
	}
	db.Callback().Query().Before("gorm:query").Register("sqlite_strip_locks", strip)
	db.Callback().Row().Before("gorm:row").Register("sqlite_strip_locks_row", strip)
}

func (e *sweepEnv) seedTransmission(status transmissiondomain.Status, mutate func(*transmissiondomain.Transmission)) *transmissiondomain.Transmission {
	e.t.Helper()
	e.seq++
	now := e.clk.Now().UTC()
	progressivo := fmt.Sprintf("%05d", e.seq)
	tr := &transmissiondomain.Transmission{
		ID:              e.node.Generate(),
		OrgID:           e.org.ID,
		InvoiceNumber:   fmt.Sprintf("2026/%d", e.seq),
		InvoiceDate:     time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		DocumentType:    "TD01",
		Progressivo:     progressivo,
		FileName:        "IT01234567897_" + progressivo + ".xml.p7m",
		SignatureFormat: signature.FormatCAdES,
		InvoicePayload:  datatypes.JSON(`{}`),
		Envelope:        []byte("signed-envelope"),
		Status:          status,
		Channel:         "mock",
		AttemptCount:    1,
		TotalAmount:     12200,
		Currency:        "EUR",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if mutate != nil {
		mutate(tr)
	}
	require.NoError(e.t, e.db.Create(tr).Error)
	return tr
}

func (e *sweepEnv) reload(id snowflake.ID) *transmissiondomain.Transmission {
	e.t.Helper()
	var tr transmissiondomain.Transmission
	require.NoError(e.t, e.db.First(&tr, "id = ?", id).Error)
	return &tr
}

func (e *sweepEnv) historyCount(id snowflake.ID) int64 {
	e.t.Helper()
	var n int64
	require.NoError(e.t, e.db.Model(&transmissiondomain.TransmissionHistory{}).
		Where("transmission_id = ?", id).Count(&n).Error)
	return n
}

func (e *sweepEnv) unpublishedEvents() int64 {
	e.t.Helper()
	var n int64
	require.NoError(e.t, e.db.Model(&eventsdomain.SDIEvent{}).
		Where("published = ?", false).Count(&n).Error)
	return n
}

func TestRunOnce_FakeClockLifecycleSweep(t *testing.T) {
	env := newSweepEnv(t, Config{RecoveryThreshold: 30 * time.Minute})
	ctx := context.Background()

	deadline := sweepStart.Add(15 * 24 * time.Hour)
	overdue := env.seedTransmission(transmissiondomain.StatusDelivered, func(tr *transmissiondomain.Transmission) {
		tr.SubmittedAt = &sweepStart
		tr.DeliveredAt = &sweepStart
		tr.OutcomeDeadlineAt = &deadline
	})
	farDeadline := sweepStart.Add(30 * 24 * time.Hour)
	watching := env.seedTransmission(transmissiondomain.StatusDelivered, func(tr *transmissiondomain.Transmission) {
		tr.SubmittedAt = &sweepStart
		tr.DeliveredAt = &sweepStart
		tr.OutcomeDeadlineAt = &farDeadline
	})
	stale := env.seedTransmission(transmissiondomain.StatusSubmitting, nil)

	pending := &eventsdomain.SDIEvent{
		ID:        env.node.Generate(),
		OrgID:     env.org.ID,
		EventType: eventsdomain.TopicTransmissionCreated,
		Payload:   datatypes.JSONMap{"transmission_id": overdue.ID.String()},
		CreatedAt: sweepStart,
	}
	require.NoError(t, env.db.Create(pending).Error)

	// Nothing is due yet; the stale row is 0 minutes old and the
	// outcome window is open. Only the outbox has work.
	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Equal(t, transmissiondomain.StatusDelivered, env.reload(overdue.ID).Status)
	assert.Equal(t, transmissiondomain.StatusSubmitting, env.reload(stale.ID).Status)
	assert.EqualValues(t, 0, env.unpublishedEvents())

	var drained eventsdomain.SDIEvent
	require.NoError(t, env.db.First(&drained, "id = ?", pending.ID).Error)
	assert.True(t, drained.Published)
	require.NotNil(t, drained.PublishedAt)
	assert.WithinDuration(t, sweepStart, *drained.PublishedAt, time.Second)

	env.clk.Advance(16 * 24 * time.Hour)
	sweepTime := env.clk.Now().UTC()
	fresh := env.seedTransmission(transmissiondomain.StatusSubmitting, func(tr *transmissiondomain.Transmission) {
		tr.CreatedAt = sweepTime
		tr.UpdatedAt = sweepTime
	})

	require.NoError(t, env.sched.RunOnce(ctx))

	expired := env.reload(overdue.ID)
	assert.Equal(t, transmissiondomain.StatusExpired, expired.Status)
	require.NotNil(t, expired.CompletedAt)
	assert.WithinDuration(t, sweepTime, *expired.CompletedAt, time.Second)

	recovered := env.reload(stale.ID)
	assert.Equal(t, transmissiondomain.StatusFailedDelivery, recovered.Status)
	require.NotNil(t, recovered.LastError)
	assert.Equal(t, "submission interrupted", *recovered.LastError)

	assert.Equal(t, transmissiondomain.StatusDelivered, env.reload(watching.ID).Status)
	assert.Equal(t, transmissiondomain.StatusSubmitting, env.reload(fresh.ID).Status)

	var expiredHistory transmissiondomain.TransmissionHistory
	require.NoError(t, env.db.
		Where("transmission_id = ?", overdue.ID).
		Order("created_at DESC, id DESC").
		First(&expiredHistory).Error)
	assert.Equal(t, transmissiondomain.StatusDelivered, expiredHistory.FromStatus)
	assert.Equal(t, transmissiondomain.StatusExpired, expiredHistory.ToStatus)
	assert.Equal(t, transmissiondomain.TriggerScheduler, expiredHistory.TriggerType)
	require.NotNil(t, expiredHistory.Note)
	assert.Equal(t, "outcome window elapsed", *expiredHistory.Note)

	// Both transitions wrote outbox rows and the dispatch job ran last,
	// so nothing stays unpublished.
	assert.EqualValues(t, 0, env.unpublishedEvents())

	processedLabels := map[string]string{
		"service":  "scambio",
		"env":      "test",
		"job":      "expiry_sweep",
		"resource": obsmetrics.LockResourceTransmissionsForExpiry,
	}
	assert.Equal(t, float64(1), getCounterValue(t, env.registry, "scambio_sweep_batch_processed_total", processedLabels))
	recoveredLabels := map[string]string{
		"service":  "scambio",
		"env":      "test",
		"job":      "recovery_sweep",
		"resource": obsmetrics.LockResourceTransmissionsForRecovery,
	}
	assert.Equal(t, float64(1), getCounterValue(t, env.registry, "scambio_sweep_batch_processed_total", recoveredLabels))

	// A second pass finds nothing to move.
	overdueHistory := env.historyCount(overdue.ID)
	staleHistory := env.historyCount(stale.ID)
	require.NoError(t, env.sched.RunOnce(ctx))
	assert.Equal(t, overdueHistory, env.historyCount(overdue.ID))
	assert.Equal(t, staleHistory, env.historyCount(stale.ID))
	assert.Equal(t, transmissiondomain.StatusExpired, env.reload(overdue.ID).Status)
}

func TestRunOnce_DisabledJobsLeaveWorkUntouched(t *testing.T) {
	env := newSweepEnv(t, Config{
		RecoveryThreshold: 30 * time.Minute,
		EnabledJobs:       []string{"expiry_sweep"},
	})
	ctx := context.Background()

	stale := env.seedTransmission(transmissiondomain.StatusSubmitting, nil)
	pending := &eventsdomain.SDIEvent{
		ID:        env.node.Generate(),
		OrgID:     env.org.ID,
		EventType: eventsdomain.TopicTransmissionCreated,
		Payload:   datatypes.JSONMap{"transmission_id": stale.ID.String()},
		CreatedAt: sweepStart,
	}
	require.NoError(t, env.db.Create(pending).Error)

	env.clk.Advance(2 * time.Hour)
	require.NoError(t, env.sched.RunOnce(ctx))

	assert.Equal(t, transmissiondomain.StatusSubmitting, env.reload(stale.ID).Status)
	assert.EqualValues(t, 1, env.unpublishedEvents())
}
