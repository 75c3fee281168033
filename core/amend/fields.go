package amend

import (
	"time"

	"github.com/DavidCapener182/incommand-sub013/core/store"
)

type FieldKind int

const (
	KindText FieldKind = iota
	KindEnum
	KindTimestamp
	KindInt
)

// FieldSpec declares one amendable field: its storage column, the value shape
// the validator enforces, and how to read its current value off a record.
type FieldSpec struct {
	Name    string
	Column  string
	Kind    FieldKind
	Enum    []string
	MaxLen  int
	IntMin  int
	IntMax  int
	Current func(*store.LogRecord) any
}

const (
	FieldOccurrence      = "occurrence"
	FieldActionTaken     = "action_taken"
	FieldLocation        = "location"
	FieldPriority        = "priority"
	FieldOccurredAt      = "occurred_at"
	FieldCategory        = "category"
	FieldEscalationLevel = "escalation_level"
)

var priorityValues = []string{"low", "medium", "high", "critical"}

var categoryValues = []string{
	"disturbance",
	"medical",
	"theft",
	"damage",
	"ejection",
	"lost_property",
	"crowd",
	"technical",
	"other",
}

// amendableFields is the fixed allow-list. System fields (id, event id,
// log number, logger identity, lock state, creation time) are absent on
// purpose and can never become amendment targets.
var amendableFields = map[string]FieldSpec{
	FieldOccurrence: {
		Name: FieldOccurrence, Column: "occurrence", Kind: KindText, MaxLen: 4000,
		Current: func(r *store.LogRecord) any { return r.Occurrence },
	},
	FieldActionTaken: {
		Name: FieldActionTaken, Column: "action_taken", Kind: KindText, MaxLen: 4000,
		Current: func(r *store.LogRecord) any { return r.ActionTaken },
	},
	FieldLocation: {
		Name: FieldLocation, Column: "location", Kind: KindText, MaxLen: 200,
		Current: func(r *store.LogRecord) any { return r.Location },
	},
	FieldPriority: {
		Name: FieldPriority, Column: "priority", Kind: KindEnum, Enum: priorityValues,
		Current: func(r *store.LogRecord) any { return r.Priority },
	},
	FieldOccurredAt: {
		Name: FieldOccurredAt, Column: "occurred_at", Kind: KindTimestamp,
		Current: func(r *store.LogRecord) any { return r.OccurredAt.UTC().Format(time.RFC3339) },
	},
	FieldCategory: {
		Name: FieldCategory, Column: "category", Kind: KindEnum, Enum: categoryValues,
		Current: func(r *store.LogRecord) any { return r.Category },
	},
	FieldEscalationLevel: {
		Name: FieldEscalationLevel, Column: "escalation_level", Kind: KindInt, IntMin: 0, IntMax: 3,
		Current: func(r *store.LogRecord) any { return r.EscalationLevel },
	},
}

func FieldSpecFor(name string) (FieldSpec, bool) {
	spec, ok := amendableFields[name]
	return spec, ok
}

var validChangeTypes = map[string]struct{}{
	"correction":       {},
	"addition":         {},
	"clarification":    {},
	"reclassification": {},
}

// changeTypeReclassification is reserved for engine-generated entries.
const changeTypeReclassification = "reclassification"
