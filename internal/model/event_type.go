package model

// EventType tags a notification so the formatter and channels know what
// happened to the signal.
type EventType string

const (
	TypeEntry       EventType = "ENTRY"
	TypeTargetHit   EventType = "TARGET_HIT"
	TypeStopLoss    EventType = "STOP_LOSS"
	TypeManualClose EventType = "MANUAL_CLOSE"
	TypeCancelled   EventType = "CANCELLED"
	TypeUpdate      EventType = "UPDATE"
)

// EventType maps a lifecycle event kind to its notification tag. Kinds
// without a dedicated tag (the New bookkeeping event) fall back to UPDATE.
func (k EventKind) EventType() EventType {
	switch k {
	case EventEntry:
		return TypeEntry
	case EventTargetHit:
		return TypeTargetHit
	case EventStopLoss:
		return TypeStopLoss
	case EventManualClose:
		return TypeManualClose
	case EventCancelled:
		return TypeCancelled
	default:
		return TypeUpdate
	}
}
