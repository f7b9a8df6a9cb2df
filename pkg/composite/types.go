package composite

import (
	"strings"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// Ready is the tri-state readiness of a resource.
type Ready int

const (
	// ReadyUnspecified leaves readiness to the control plane.
	ReadyUnspecified Ready = iota
	// ReadyTrue marks the resource ready.
	ReadyTrue
	// ReadyFalse marks the resource not ready.
	ReadyFalse
)

// String returns the protocol enum name.
func (r Ready) String() string {
	switch r {
	case ReadyTrue:
		return "READY_TRUE"
	case ReadyFalse:
		return "READY_FALSE"
	}
	return "READY_UNSPECIFIED"
}

// Value returns r as it is stored in a protocol tree.
func (r Ready) Value() value.Value { return value.String(r.String()) }

// ReadyFromValue parses a protocol ready field. Booleans are accepted too.
func ReadyFromValue(v value.Value) Ready {
	switch v.Kind() {
	case value.KindBool:
		if v.Bool() {
			return ReadyTrue
		}
		return ReadyFalse
	case value.KindString:
		switch v.Str() {
		case "READY_TRUE", "True", "true":
			return ReadyTrue
		case "READY_FALSE", "False", "false":
			return ReadyFalse
		}
	case value.KindNumber:
		switch v.Number() {
		case 1:
			return ReadyTrue
		case 2:
			return ReadyFalse
		}
	}
	return ReadyUnspecified
}

// ConditionStatus is the tri-state status of a condition.
type ConditionStatus int

const (
	// StatusUnknown is neither true nor false.
	StatusUnknown ConditionStatus = iota
	// StatusTrue is a satisfied condition.
	StatusTrue
	// StatusFalse is an unsatisfied condition.
	StatusFalse
)

// String returns the Kubernetes spelling of the status.
func (s ConditionStatus) String() string {
	switch s {
	case StatusTrue:
		return "True"
	case StatusFalse:
		return "False"
	}
	return "Unknown"
}

// Value returns s as a protocol condition status.
func (s ConditionStatus) Value() value.Value {
	switch s {
	case StatusTrue:
		return value.String("STATUS_CONDITION_TRUE")
	case StatusFalse:
		return value.String("STATUS_CONDITION_FALSE")
	}
	return value.String("STATUS_CONDITION_UNKNOWN")
}

// ConditionStatusFromValue parses either a protocol status enum or a
// Kubernetes status string.
func ConditionStatusFromValue(v value.Value) ConditionStatus {
	if v.Kind() == value.KindBool {
		if v.Bool() {
			return StatusTrue
		}
		return StatusFalse
	}
	switch strings.TrimPrefix(v.Str(), "STATUS_CONDITION_") {
	case "True", "TRUE":
		return StatusTrue
	case "False", "FALSE":
		return StatusFalse
	}
	return StatusUnknown
}

// Severity is the severity of a Result.
type Severity int

const (
	// SeverityNormal reports progress.
	SeverityNormal Severity = iota
	// SeverityWarning reports a problem that does not stop the pipeline.
	SeverityWarning
	// SeverityFatal stops the pipeline.
	SeverityFatal
)

// String returns the protocol enum name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "SEVERITY_WARNING"
	case SeverityFatal:
		return "SEVERITY_FATAL"
	}
	return "SEVERITY_NORMAL"
}

func severityFromValue(v value.Value) Severity {
	switch v.Str() {
	case "SEVERITY_FATAL":
		return SeverityFatal
	case "SEVERITY_WARNING":
		return SeverityWarning
	}
	return SeverityNormal
}

// target values of results and conditions.
const (
	targetComposite         = "TARGET_COMPOSITE"
	targetCompositeAndClaim = "TARGET_COMPOSITE_AND_CLAIM"
)

func targetValue(claim *bool) value.Value {
	switch {
	case claim == nil:
		return value.Absent()
	case *claim:
		return value.String(targetCompositeAndClaim)
	}
	return value.String(targetComposite)
}

func claimFromTarget(v value.Value) *bool {
	var b bool
	switch v.Str() {
	case targetCompositeAndClaim:
		b = true
	case targetComposite:
		b = false
	default:
		return nil
	}
	return &b
}

func str(h value.Handle) string {
	v, err := h.Value()
	if err != nil {
		return ""
	}
	switch v.Kind() {
	case value.KindString, value.KindBytes:
		return v.Str()
	}
	return ""
}

func val(h value.Handle) value.Value {
	v, err := h.Value()
	if err != nil {
		return value.Absent()
	}
	return v
}
