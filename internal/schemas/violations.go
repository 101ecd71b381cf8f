package schemas

import (
	"fmt"
	"strings"
)

// ViolationKind classifies a contract violation
type ViolationKind string

// ViolationKind constants
const (
	MissingField     ViolationKind = "missing_field"
	InvalidEnumValue ViolationKind = "invalid_enum_value"
	OutOfRange       ViolationKind = "out_of_range"
	InvalidType      ViolationKind = "invalid_type"
	InvalidFormat    ViolationKind = "invalid_format"
	DuplicateValue   ViolationKind = "duplicate_value"
	Malformed        ViolationKind = "malformed_document"
)

// Bounds is an inclusive numeric range; a nil end is unbounded
type Bounds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v falls within the bounds
func (b Bounds) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

func (b Bounds) String() string {
	lo, hi := "-inf", "+inf"
	if b.Min != nil {
		lo = fmt.Sprintf("%g", *b.Min)
	}
	if b.Max != nil {
		hi = fmt.Sprintf("%g", *b.Max)
	}
	return "[" + lo + ", " + hi + "]"
}

// Violation is a single contract failure at a field path
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Field   string        `json:"field"`
	Value   any           `json:"value,omitempty"`
	Allowed []string      `json:"allowed,omitempty"`
	Bounds  *Bounds       `json:"bounds,omitempty"`
	Message string        `json:"message,omitempty"`
}

func (v Violation) String() string {
	switch v.Kind {
	case MissingField:
		return fmt.Sprintf("MissingField(%s)", v.Field)
	case InvalidEnumValue:
		return fmt.Sprintf("InvalidEnumValue(%s, %v, [%s])", v.Field, v.Value, strings.Join(v.Allowed, ", "))
	case OutOfRange:
		bounds := ""
		if v.Bounds != nil {
			bounds = v.Bounds.String()
		}
		return fmt.Sprintf("OutOfRange(%s, %v, %s)", v.Field, v.Value, bounds)
	case InvalidType:
		return fmt.Sprintf("InvalidType(%s): %s", v.Field, v.Message)
	case InvalidFormat:
		return fmt.Sprintf("InvalidFormat(%s): %s", v.Field, v.Message)
	case DuplicateValue:
		return fmt.Sprintf("DuplicateValue(%s, %v)", v.Field, v.Value)
	default:
		return fmt.Sprintf("Malformed(%s): %s", v.Field, v.Message)
	}
}

// Violations is an ordered, non-empty list of contract failures
type Violations []Violation

func (vs Violations) Error() string {
	var sb strings.Builder
	sb.WriteString("contract validation failed:\n")
	for i, v := range vs {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, v.String()))
	}
	return sb.String()
}

// Strings renders each violation on its own line
func (vs Violations) Strings() []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.String())
	}
	return out
}
