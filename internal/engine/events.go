package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/txgraph/internal/ir"
)

// EventKind tags an Event on the notification bus.
type EventKind int

const (
	// Lifecycle events, delivered to every observer kind.
	EventSubTransactionCreating EventKind = iota + 1
	EventSubTransactionInitialize
	EventSubTransactionCreated
	EventNewObjectCreating
	EventObjectsLoading
	EventObjectsLoaded
	EventObjectDeleting
	EventObjectDeleted
	EventPropertyValueChanging
	EventPropertyValueChanged
	EventRelationChanging
	EventRelationChanged
	EventCommitting
	EventCommitValidate
	EventCommitted
	EventRollingBack
	EventRolledBack
	EventTransactionDiscard

	// Structural events, delivered to listeners only.
	EventRecordRegistered
	EventRecordUnregistered
	EventEndPointRegistered
	EventStateUpdated
	EventObjectMarkedInvalid
)

var eventKindNames = map[EventKind]string{
	EventSubTransactionCreating:   "SubTransactionCreating",
	EventSubTransactionInitialize: "SubTransactionInitialize",
	EventSubTransactionCreated:    "SubTransactionCreated",
	EventNewObjectCreating:        "NewObjectCreating",
	EventObjectsLoading:           "ObjectsLoading",
	EventObjectsLoaded:            "ObjectsLoaded",
	EventObjectDeleting:           "ObjectDeleting",
	EventObjectDeleted:            "ObjectDeleted",
	EventPropertyValueChanging:    "PropertyValueChanging",
	EventPropertyValueChanged:     "PropertyValueChanged",
	EventRelationChanging:         "RelationChanging",
	EventRelationChanged:          "RelationChanged",
	EventCommitting:               "Committing",
	EventCommitValidate:           "CommitValidate",
	EventCommitted:                "Committed",
	EventRollingBack:              "RollingBack",
	EventRolledBack:               "RolledBack",
	EventTransactionDiscard:       "TransactionDiscard",
	EventRecordRegistered:         "RecordRegistered",
	EventRecordUnregistered:       "RecordUnregistered",
	EventEndPointRegistered:       "EndPointRegistered",
	EventStateUpdated:             "StateUpdated",
	EventObjectMarkedInvalid:      "ObjectMarkedInvalid",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// ParseEventKind parses an event kind name as printed by String.
func ParseEventKind(s string) (EventKind, error) {
	for k, n := range eventKindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

// IsPre reports whether k announces a change that has not happened yet.
// Observers of pre events may veto by returning an error.
func (k EventKind) IsPre() bool {
	switch k {
	case EventSubTransactionCreating, EventSubTransactionInitialize, EventNewObjectCreating,
		EventObjectsLoading, EventObjectDeleting, EventPropertyValueChanging,
		EventRelationChanging, EventCommitting, EventCommitValidate, EventRollingBack:
		return true
	}
	return false
}

// IsStructural reports whether k is a listener-only event.
func (k EventKind) IsStructural() bool {
	return k >= EventRecordRegistered
}

// Event is one notification. Which fields are set depends on Kind.
type Event struct {
	Seq  int64
	Kind EventKind
	Tx   *Transaction

	// Entity is set for single-record events.
	Entity ir.EntityID

	// IDs is set for batch events: loading, loaded, committing, committed,
	// rolling back, rolled back.
	IDs []ir.EntityID

	// EndPoint, OldRelated and NewRelated are set for relation events.
	// Collection additions have a null OldRelated, removals a null
	// NewRelated; a reorder has both null.
	EndPoint   ir.EndPointID
	OldRelated ir.EntityID
	NewRelated ir.EntityID

	// Property, OldValue and NewValue are set for property events.
	Property string
	OldValue ir.IRValue
	NewValue ir.IRValue

	// Class is set for NewObjectCreating.
	Class string

	// Sub is set for sub-transaction events.
	Sub *Transaction

	// Round is the 1-based round number of Committing and RollingBack.
	Round int

	// Registrar is set for Committing and RollingBack.
	Registrar *Registrar

	// Data is set for CommitValidate.
	Data []PersistableData

	// State is set for StateUpdated and ObjectMarkedInvalid.
	State ir.State
}

// Concerns reports whether the event is about record id.
func (ev Event) Concerns(id ir.EntityID) bool {
	if ev.Entity == id || ev.EndPoint.Entity == id {
		return true
	}
	for _, x := range ev.IDs {
		if x == id {
			return true
		}
	}
	return false
}

// String renders the event as one trace line without its sequence number.
func (ev Event) String() string {
	var b strings.Builder
	b.WriteString(ev.Kind.String())
	switch ev.Kind {
	case EventRelationChanging, EventRelationChanged:
		fmt.Fprintf(&b, " %s %s -> %s", ev.EndPoint, ev.OldRelated, ev.NewRelated)
	case EventPropertyValueChanging, EventPropertyValueChanged:
		fmt.Fprintf(&b, " %s.%s %s -> %s", ev.Entity, ev.Property, ir.Display(ev.OldValue), ir.Display(ev.NewValue))
	case EventCommitting, EventRollingBack:
		fmt.Fprintf(&b, " round=%d %s", ev.Round, formatIDs(ev.IDs))
	case EventCommitValidate:
		ids := make([]ir.EntityID, len(ev.Data))
		for i, d := range ev.Data {
			ids[i] = d.ID
		}
		b.WriteString(" " + formatIDs(ids))
	case EventObjectsLoading, EventObjectsLoaded, EventCommitted, EventRolledBack:
		b.WriteString(" " + formatIDs(ev.IDs))
	case EventNewObjectCreating:
		b.WriteString(" " + ev.Class)
	case EventStateUpdated, EventObjectMarkedInvalid:
		fmt.Fprintf(&b, " %s %s", ev.Entity, ev.State)
	case EventEndPointRegistered:
		b.WriteString(" " + ev.EndPoint.String())
	case EventSubTransactionCreating, EventSubTransactionInitialize, EventSubTransactionCreated, EventTransactionDiscard:
		// no payload
	default:
		if !ev.Entity.IsNull() {
			b.WriteString(" " + ev.Entity.String())
		}
	}
	return b.String()
}

func formatIDs(ids []ir.EntityID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
