package amend

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/DavidCapener182/incommand-sub013/core/store"
)

// Validator checks a proposed amendment against the field registry. Every
// rule is evaluated; violations are reported together rather than fail-fast.
type Validator struct {
	reasonMaxLen int
}

func NewValidator(reasonMaxLen int) *Validator {
	if reasonMaxLen <= 0 {
		reasonMaxLen = 500
	}
	return &Validator{reasonMaxLen: reasonMaxLen}
}

type ValidationResult struct {
	Valid      bool
	Violations []string
	// StoreValue is the typed value handed to the projection update.
	StoreValue any
	// Normalized is the canonical JSON encoding recorded in the revision.
	Normalized json.RawMessage
}

func (v *Validator) Validate(rec *store.LogRecord, field string, newValue json.RawMessage, reason, changeType string) ValidationResult {
	var violations []string

	spec, known := FieldSpecFor(field)
	if !known {
		violations = append(violations, "amendments.fieldNotAmendable")
	}

	trimmedReason := strings.TrimSpace(reason)
	if trimmedReason == "" {
		violations = append(violations, "amendments.reasonRequired")
	} else if len(trimmedReason) > v.reasonMaxLen {
		violations = append(violations, "amendments.reasonTooLong")
	}

	if _, ok := validChangeTypes[strings.TrimSpace(changeType)]; !ok {
		violations = append(violations, "amendments.changeTypeInvalid")
	}

	var storeValue any
	var normalized json.RawMessage
	if known {
		val, norm, violation := coerceValue(spec, newValue)
		if violation != "" {
			violations = append(violations, violation)
		} else {
			storeValue = val
			normalized = norm
			if structEqual(spec.Current(rec), normalized) {
				violations = append(violations, "amendments.valueUnchanged")
			}
		}
	}

	return ValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
		StoreValue: storeValue,
		Normalized: normalized,
	}
}

// coerceValue parses the raw JSON value into the field's declared shape and
// returns the store-typed value, its canonical JSON form, and an empty
// violation key on success.
func coerceValue(spec FieldSpec, raw json.RawMessage) (any, json.RawMessage, string) {
	const mismatch = "amendments.valueTypeMismatch"
	switch spec.Kind {
	case KindText:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, mismatch
		}
		s = strings.TrimSpace(s)
		if spec.MaxLen > 0 && len(s) > spec.MaxLen {
			return nil, nil, "amendments.valueTooLong"
		}
		return s, mustJSON(s), ""
	case KindEnum:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, mismatch
		}
		s = strings.ToLower(strings.TrimSpace(s))
		for _, allowed := range spec.Enum {
			if s == allowed {
				return s, mustJSON(s), ""
			}
		}
		return nil, nil, mismatch
	case KindTimestamp:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, mismatch
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
		if err != nil {
			return nil, nil, mismatch
		}
		t = t.UTC()
		return t, mustJSON(t.Format(time.RFC3339)), ""
	case KindInt:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, nil, mismatch
		}
		if f != math.Trunc(f) {
			return nil, nil, mismatch
		}
		n := int(f)
		if n < spec.IntMin || n > spec.IntMax {
			return nil, nil, mismatch
		}
		return n, mustJSON(n), ""
	}
	return nil, nil, mismatch
}

// structEqual reports deep structural equality between a Go value and a JSON
// encoding, comparing through a common decoded representation so objects and
// arrays compare by content rather than by reference or encoding order.
func structEqual(current any, proposed json.RawMessage) bool {
	curRaw, err := json.Marshal(current)
	if err != nil {
		return false
	}
	var a, b any
	if err := json.Unmarshal(curRaw, &a); err != nil {
		return false
	}
	if err := json.Unmarshal(proposed, &b); err != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return raw
}
