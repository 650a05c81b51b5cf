package demographics

import "fmt"

// Validation failures carry the attribute name and the offending value so
// callers can fix the input. Match with errors.As.

// SchemaError reports a structurally malformed specification: a missing
// required field, or a field of the wrong JSON type.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
	return fmt.Sprintf("schema error: attribute %q: %s", e.Field, e.Reason)
}

// RangeError reports an inverted range or a control point outside its
// attribute's declared range.
type RangeError struct {
	Attr   string
	Value  float64
	Min    float64
	Max    float64
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range error: attribute %q: %s (value %v, range [%v, %v])",
		e.Attr, e.Reason, e.Value, e.Min, e.Max)
}

// ProbabilityError reports a non-positive probability, a probability sum
// outside tolerance, or a duplicate category name.
type ProbabilityError struct {
	Attr   string
	Sum    float64
	Reason string
}

func (e *ProbabilityError) Error() string {
	return fmt.Sprintf("probability error: attribute %q: %s", e.Attr, e.Reason)
}

// CountError reports a non-positive target agent count.
type CountError struct {
	NumAgents int
}

func (e *CountError) Error() string {
	return fmt.Sprintf("count error: num_agents must be a positive integer, got %d", e.NumAgents)
}
