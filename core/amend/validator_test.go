package amend

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DavidCapener182/incommand-sub013/core/store"
)

func sampleRecord() *store.LogRecord {
	return &store.LogRecord{
		ID:              1,
		EventID:         1,
		Occurrence:      "Altercation at Gate 3",
		ActionTaken:     "Steward spoke to both parties",
		Location:        "Gate 3",
		Priority:        "medium",
		OccurredAt:      time.Date(2026, 6, 20, 21, 5, 0, 0, time.UTC),
		Category:        "disturbance",
		EscalationLevel: 1,
	}
}

func TestValidateAcceptsTextChange(t *testing.T) {
	v := NewValidator(500)
	res := v.Validate(sampleRecord(), FieldLocation, json.RawMessage(`"Gate 4"`), "wrong gate recorded", "correction")
	require.True(t, res.Valid, "violations: %v", res.Violations)
	require.Equal(t, "Gate 4", res.StoreValue)
	require.JSONEq(t, `"Gate 4"`, string(res.Normalized))
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := NewValidator(500)
	res := v.Validate(sampleRecord(), "log_no", json.RawMessage(`"X"`), "  ", "edit")
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, "amendments.fieldNotAmendable")
	require.Contains(t, res.Violations, "amendments.reasonRequired")
	require.Contains(t, res.Violations, "amendments.changeTypeInvalid")
}

func TestValidateRejectsUnchangedValue(t *testing.T) {
	v := NewValidator(500)
	res := v.Validate(sampleRecord(), FieldLocation, json.RawMessage(`"Gate 3"`), "no change really", "correction")
	require.False(t, res.Valid)
	require.Equal(t, []string{"amendments.valueUnchanged"}, res.Violations)
}

func TestValidateTrimBeforeCompare(t *testing.T) {
	v := NewValidator(500)
	res := v.Validate(sampleRecord(), FieldLocation, json.RawMessage(`"  Gate 3  "`), "whitespace only", "correction")
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, "amendments.valueUnchanged")
}

func TestValidateReasonTooLong(t *testing.T) {
	v := NewValidator(10)
	res := v.Validate(sampleRecord(), FieldLocation, json.RawMessage(`"Gate 4"`), "this reason is far too long", "correction")
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, "amendments.reasonTooLong")
}

func TestValidateTextTooLong(t *testing.T) {
	v := NewValidator(500)
	long := strings.Repeat("x", 201)
	res := v.Validate(sampleRecord(), FieldLocation, mustJSON(long), "moved", "correction")
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, "amendments.valueTooLong")
	require.NotContains(t, res.Violations, "amendments.valueTypeMismatch")
}

func TestValidateEnumMembership(t *testing.T) {
	v := NewValidator(500)

	res := v.Validate(sampleRecord(), FieldPriority, json.RawMessage(`"urgent"`), "raise it", "correction")
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, "amendments.valueTypeMismatch")

	res = v.Validate(sampleRecord(), FieldPriority, json.RawMessage(`"HIGH"`), "raise it", "correction")
	require.True(t, res.Valid, "violations: %v", res.Violations)
	require.Equal(t, "high", res.StoreValue)
}

func TestValidateTimestamp(t *testing.T) {
	v := NewValidator(500)

	res := v.Validate(sampleRecord(), FieldOccurredAt, json.RawMessage(`"not a time"`), "clock was wrong", "correction")
	require.False(t, res.Valid)

	res = v.Validate(sampleRecord(), FieldOccurredAt, json.RawMessage(`"2026-06-20T21:00:00Z"`), "clock was wrong", "correction")
	require.True(t, res.Valid, "violations: %v", res.Violations)
	ts, ok := res.StoreValue.(time.Time)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 6, 20, 21, 0, 0, 0, time.UTC), ts)
}

func TestValidateIntRange(t *testing.T) {
	v := NewValidator(500)

	res := v.Validate(sampleRecord(), FieldEscalationLevel, json.RawMessage(`5`), "escalated", "correction")
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, "amendments.valueTypeMismatch")

	res = v.Validate(sampleRecord(), FieldEscalationLevel, json.RawMessage(`2.5`), "escalated", "correction")
	require.False(t, res.Valid)

	res = v.Validate(sampleRecord(), FieldEscalationLevel, json.RawMessage(`2`), "escalated", "correction")
	require.True(t, res.Valid, "violations: %v", res.Violations)
	require.Equal(t, 2, res.StoreValue)
}

func TestValidateTypeMismatchForText(t *testing.T) {
	v := NewValidator(500)
	res := v.Validate(sampleRecord(), FieldOccurrence, json.RawMessage(`42`), "typo", "correction")
	require.False(t, res.Valid)
	require.Contains(t, res.Violations, "amendments.valueTypeMismatch")
}
