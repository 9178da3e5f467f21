// Package validate checks candidate records against the field contract.
// Validation is a pure function: it has no side effects and collects every
// violation rather than stopping at the first.
package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sunfield-ops/solarledger/internal/contract"
	"github.com/sunfield-ops/solarledger/internal/model"
)

// ViolationKind classifies a single contract violation.
type ViolationKind string

const (
	MissingField  ViolationKind = "missing_field"
	TypeMismatch  ViolationKind = "type_mismatch"
	InvalidWindow ViolationKind = "invalid_window"
)

// Violation is one contract violation found in a candidate record.
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Field    string        `json:"field,omitempty"`
	Expected string        `json:"expected,omitempty"`
	Actual   string        `json:"actual,omitempty"`
}

func (v Violation) String() string {
	switch v.Kind {
	case MissingField:
		return fmt.Sprintf("missing required field %q", v.Field)
	case TypeMismatch:
		return fmt.Sprintf("field %q: expected %s, got %s", v.Field, v.Expected, v.Actual)
	case InvalidWindow:
		return fmt.Sprintf("valid_from must precede valid_to (%s)", v.Actual)
	default:
		return string(v.Kind)
	}
}

// Error carries all violations found in one candidate record.
type Error struct {
	SourceFile string
	Violations []Violation
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("validation failed for %s: %s", e.SourceFile, strings.Join(msgs, "; "))
}

// Validate checks a candidate record against the contract. On success the
// returned ValidatedRecord has all dates normalized to UTC and every
// unrecognized field moved verbatim into Extras. On failure it returns a
// *validate.Error listing every violation.
func Validate(c *contract.Contract, cand *model.CandidateRecord) (*model.ValidatedRecord, error) {
	var violations []Violation

	fields := make(map[string]any, len(cand.Fields))
	extras := make(map[string]any, len(cand.Extras))
	for k, v := range cand.Extras {
		extras[k] = v
	}

	for name, raw := range cand.Fields {
		spec, known := c.Lookup(name)
		if !known {
			// Permissiveness policy: unknown fields degrade to extras
			// instead of failing the document.
			extras[name] = raw
			continue
		}
		val, viol := coerce(spec, raw)
		if viol != nil {
			violations = append(violations, *viol)
			continue
		}
		if val != nil {
			fields[name] = val
		}
	}

	for _, name := range c.Required() {
		if _, ok := fields[name]; !ok {
			if hasViolation(violations, name) {
				continue // already reported as a type mismatch
			}
			violations = append(violations, Violation{Kind: MissingField, Field: name})
		}
	}

	rec := &model.ValidatedRecord{
		SourceFile:  cand.SourceFile,
		ExtractedAt: cand.ExtractedAt,
		Fields:      fields,
		Extras:      extras,
	}

	from, okFrom := fields[c.WindowStart].(time.Time)
	to, okTo := fields[c.WindowEnd].(time.Time)
	if okFrom && okTo {
		if !from.Before(to) {
			violations = append(violations, Violation{
				Kind:   InvalidWindow,
				Actual: fmt.Sprintf("valid_from=%s valid_to=%s", from.Format(time.RFC3339), to.Format(time.RFC3339)),
			})
		}
		rec.ValidFrom = from
		rec.ValidTo = to
	}

	if len(violations) > 0 {
		return nil, &Error{SourceFile: cand.SourceFile, Violations: violations}
	}
	return rec, nil
}

func hasViolation(violations []Violation, field string) bool {
	for _, v := range violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// coerce converts a raw extracted value to the contract type. A nil value
// with nil violation means the field was present but empty and should be
// treated as absent.
func coerce(spec contract.Field, raw any) (any, *Violation) {
	if raw == nil {
		return nil, nil
	}

	switch spec.Type {
	case contract.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, mismatch(spec.Name, "string", raw)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		return s, nil

	case contract.TypeNumber:
		switch n := raw.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return nil, mismatch(spec.Name, "finite number", raw)
			}
			return n, nil
		case int:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, mismatch(spec.Name, "finite number", raw)
			}
			return f, nil
		default:
			return nil, mismatch(spec.Name, "finite number", raw)
		}

	case contract.TypeDate:
		s, ok := raw.(string)
		if !ok {
			if t, isTime := raw.(time.Time); isTime {
				return t.UTC(), nil
			}
			return nil, mismatch(spec.Name, "ISO date-time", raw)
		}
		t, err := ParseDate(s)
		if err != nil {
			return nil, mismatch(spec.Name, "ISO date-time", raw)
		}
		return t, nil

	default:
		return nil, mismatch(spec.Name, string(spec.Type), raw)
	}
}

func mismatch(field, expected string, actual any) *Violation {
	return &Violation{
		Kind:     TypeMismatch,
		Field:    field,
		Expected: expected,
		Actual:   fmt.Sprintf("%T(%v)", actual, actual),
	}
}

// ParseDate parses an RFC 3339 timestamp or a bare date. Bare dates are
// normalized to midnight UTC; timestamps are converted to UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		// Timestamps without an offset are taken as UTC.
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
