package domain

// Status represents transmission lifecycle states.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusSigned         Status = "SIGNED"
	StatusSubmitting     Status = "SUBMITTING"
	StatusSent           Status = "SENT"
	StatusDelivered      Status = "DELIVERED"
	StatusRejected       Status = "REJECTED"
	StatusFailedDelivery Status = "FAILED_DELIVERY"
	StatusAccepted       Status = "ACCEPTED"
	StatusRefused        Status = "REFUSED"
	StatusExpired        Status = "EXPIRED"
)

// NotificationType identifies the message kinds the exchange system
// sends back about a transmission.
type NotificationType string

const (
	NotificationRC NotificationType = "RC" // ricevuta di consegna
	NotificationNS NotificationType = "NS" // notifica di scarto
	NotificationMC NotificationType = "MC" // mancata consegna
	NotificationNE NotificationType = "NE" // notifica esito
	NotificationEC NotificationType = "EC" // esito committente
	NotificationDT NotificationType = "DT" // decorrenza termini
)

// Outcome values carried by EC notifications.
const (
	OutcomeAccepted = "EC01"
	OutcomeRefused  = "EC02"
)

// IsTerminal reports whether the status absorbs further notifications.
// A rejected file can only re-enter the pipeline as a new transmission
// with a fresh progressivo, so REJECTED is terminal. FAILED_DELIVERY is
// not: the signed envelope can be resubmitted as-is.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusRefused, StatusExpired, StatusRejected:
		return true
	default:
		return false
	}
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusCreated, StatusSigned, StatusSubmitting, StatusSent,
		StatusDelivered, StatusRejected, StatusFailedDelivery,
		StatusAccepted, StatusRefused, StatusExpired:
		return true
	default:
		return false
	}
}

func ValidNotificationType(t NotificationType) bool {
	switch t {
	case NotificationRC, NotificationNS, NotificationMC,
		NotificationNE, NotificationEC, NotificationDT:
		return true
	default:
		return false
	}
}

// TransitionResult says how a notification affected a transmission.
type TransitionResult string

const (
	// TransitionApplied means the status moved.
	TransitionApplied TransitionResult = "APPLIED"
	// TransitionRecordedOnly means the message was stored for audit but
	// the status did not change, either because the type is purely
	// informational or because it arrived out of order.
	TransitionRecordedOnly TransitionResult = "RECORDED_ONLY"
	// TransitionIgnoredTerminal means the transmission had already
	// reached a terminal state.
	TransitionIgnoredTerminal TransitionResult = "IGNORED_TERMINAL"
)

// ApplyNotification resolves the status a transmission moves to when a
// notification arrives. It never errors: anything that does not match a
// known transition is recorded without changing the status, so a replay
// or an out-of-order message can always be stored for audit.
func ApplyNotification(current Status, ntype NotificationType, outcome string) (Status, TransitionResult) {
	if current.IsTerminal() {
		return current, TransitionIgnoredTerminal
	}

	switch current {
	case StatusSent:
		switch ntype {
		case NotificationRC:
			return StatusDelivered, TransitionApplied
		case NotificationNS:
			return StatusRejected, TransitionApplied
		case NotificationMC:
			return StatusFailedDelivery, TransitionApplied
		}
	case StatusDelivered:
		switch ntype {
		case NotificationMC:
			return StatusFailedDelivery, TransitionApplied
		case NotificationDT:
			return StatusExpired, TransitionApplied
		case NotificationEC:
			switch outcome {
			case OutcomeAccepted:
				return StatusAccepted, TransitionApplied
			case OutcomeRefused:
				return StatusRefused, TransitionApplied
			}
		}
	}

	return current, TransitionRecordedOnly
}
