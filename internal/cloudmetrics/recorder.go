package cloudmetrics

import (
	"strings"
	"sync"
)

type Recorder interface {
	RecordTransmissionSubmitted(orgID, channel string)
	RecordStatusChange(orgID, status string)
	RecordNotificationReceived(orgID, ntype string)
	RecordEngineError(orgID, operation string)
}

type recorder struct {
	metrics      *metrics
	defaultOrgID string
}

type noopRecorder struct{}

func (noopRecorder) RecordTransmissionSubmitted(string, string) {}
func (noopRecorder) RecordStatusChange(string, string)          {}
func (noopRecorder) RecordNotificationReceived(string, string)  {}
func (noopRecorder) RecordEngineError(string, string)           {}

var (
	activeRecorder Recorder = noopRecorder{}
	recorderMu     sync.RWMutex
)

func setRecorder(rec Recorder) {
	if rec == nil {
		return
	}
	recorderMu.Lock()
	activeRecorder = rec
	recorderMu.Unlock()
}

func RecordTransmissionSubmitted(orgID, channel string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordTransmissionSubmitted(orgID, channel)
}

func RecordStatusChange(orgID, status string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordStatusChange(orgID, status)
}

func RecordNotificationReceived(orgID, ntype string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordNotificationReceived(orgID, ntype)
}

func RecordEngineError(orgID, operation string) {
	recorderMu.RLock()
	rec := activeRecorder
	recorderMu.RUnlock()
	rec.RecordEngineError(orgID, operation)
}

func (r *recorder) RecordTransmissionSubmitted(orgID, channel string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.transmissionsSubmitted.WithLabelValues(r.normalizeOrg(orgID), normalizeLabel(channel)).Inc()
}

func (r *recorder) RecordStatusChange(orgID, status string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.statusChanges.WithLabelValues(r.normalizeOrg(orgID), normalizeLabel(status)).Inc()
}

func (r *recorder) RecordNotificationReceived(orgID, ntype string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.notificationsReceived.WithLabelValues(r.normalizeOrg(orgID), normalizeLabel(ntype)).Inc()
}

func (r *recorder) RecordEngineError(orgID, operation string) {
	if r == nil || r.metrics == nil {
		return
	}
	r.metrics.engineErrors.WithLabelValues(r.normalizeOrg(orgID), normalizeLabel(operation)).Inc()
}

func (r *recorder) normalizeOrg(orgID string) string {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		orgID = strings.TrimSpace(r.defaultOrgID)
	}
	if orgID == "" {
		return "unknown"
	}
	return orgID
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
