package demographics

import (
	"fmt"
	"math"
)

// SumTolerance is the accepted deviation of an attribute's probability sum
// from 1. Sums within the tolerance are rescaled to exactly 1; sums
// outside it fail validation.
const SumTolerance = 1e-3

// Validate checks a specification for structural and probabilistic
// consistency and returns an immutable, normalized copy safe to sample
// from. The first violation aborts the whole validation; no partial
// result is ever produced, because generating agents from an inconsistent
// distribution would silently produce misleading data.
func Validate(spec Spec) (*ValidSpec, error) {
	if spec.NumAgents <= 0 {
		return nil, &CountError{NumAgents: spec.NumAgents}
	}

	valid := ValidSpec{
		name:      spec.Name,
		numAgents: spec.NumAgents,
	}

	for _, field := range spec.Numerical {
		if field.IsGroup() {
			if len(field.Group) == 0 {
				return nil, &SchemaError{Field: field.Name, Reason: "nested numeric group has no sub-dimensions"}
			}
			group := NumericField{Name: field.Name}
			for _, sub := range field.Group {
				attr, err := validateNumeric(field.Name+"."+sub.Name, sub.Attr)
				if err != nil {
					return nil, err
				}
				group.Group = append(group.Group, SubAttr{Name: sub.Name, Attr: attr})
			}
			valid.numerical = append(valid.numerical, group)
			continue
		}

		attr, err := validateNumeric(field.Name, *field.Attr)
		if err != nil {
			return nil, err
		}
		valid.numerical = append(valid.numerical, NumericField{Name: field.Name, Attr: &attr})
	}

	for _, field := range spec.Categorical {
		if field.IsScalar {
			valid.categorical = append(valid.categorical, field)
			continue
		}

		normalized, err := validateCategorical(field.Name, field.Categories)
		if err != nil {
			return nil, err
		}
		valid.categorical = append(valid.categorical, CategoricalField{
			Name:       field.Name,
			Categories: normalized,
		})
	}

	return &valid, nil
}

// validateNumeric checks one numeric attribute and returns a copy with
// probabilities rescaled to sum exactly to 1.
func validateNumeric(name string, attr NumericAttr) (NumericAttr, error) {
	if attr.Range.Min >= attr.Range.Max {
		return NumericAttr{}, &RangeError{
			Attr:   name,
			Value:  attr.Range.Min,
			Min:    attr.Range.Min,
			Max:    attr.Range.Max,
			Reason: "range min must be strictly less than max",
		}
	}
	if len(attr.Points) == 0 {
		return NumericAttr{}, &SchemaError{Field: name, Reason: "points must be non-empty"}
	}
	if attr.RoundTo < 0 {
		return NumericAttr{}, &SchemaError{Field: name, Reason: fmt.Sprintf("round_to must be non-negative, got %v", attr.RoundTo)}
	}

	sum := 0.0
	for _, p := range attr.Points {
		if p.Value < attr.Range.Min || p.Value > attr.Range.Max {
			return NumericAttr{}, &RangeError{
				Attr:   name,
				Value:  p.Value,
				Min:    attr.Range.Min,
				Max:    attr.Range.Max,
				Reason: "control point value outside declared range",
			}
		}
		if p.Probability <= 0 {
			return NumericAttr{}, &ProbabilityError{
				Attr:   name,
				Reason: fmt.Sprintf("control point at %v has non-positive probability %v", p.Value, p.Probability),
			}
		}
		sum += p.Probability
	}

	if math.Abs(sum-1) > SumTolerance {
		return NumericAttr{}, &ProbabilityError{
			Attr:   name,
			Sum:    sum,
			Reason: fmt.Sprintf("probabilities sum to %v, outside tolerance %v of 1", sum, SumTolerance),
		}
	}

	normalized := NumericAttr{
		Range:   attr.Range,
		Points:  make([]ControlPoint, len(attr.Points)),
		RoundTo: attr.RoundTo,
	}
	for i, p := range attr.Points {
		normalized.Points[i] = ControlPoint{Value: p.Value, Probability: p.Probability / sum}
	}
	return normalized, nil
}

// validateCategorical checks one categorical attribute and returns a copy
// with probabilities rescaled to sum exactly to 1.
func validateCategorical(name string, categories []CategoryWeight) ([]CategoryWeight, error) {
	if len(categories) == 0 {
		return nil, &SchemaError{Field: name, Reason: "categories must be non-empty"}
	}

	seen := make(map[string]bool, len(categories))
	sum := 0.0
	for _, c := range categories {
		if c.Probability <= 0 {
			return nil, &ProbabilityError{
				Attr:   name,
				Reason: fmt.Sprintf("category %q has non-positive probability %v", c.Category, c.Probability),
			}
		}
		if seen[c.Category] {
			return nil, &ProbabilityError{
				Attr:   name,
				Reason: fmt.Sprintf("duplicate category name %q", c.Category),
			}
		}
		seen[c.Category] = true
		sum += c.Probability
	}

	if math.Abs(sum-1) > SumTolerance {
		return nil, &ProbabilityError{
			Attr:   name,
			Sum:    sum,
			Reason: fmt.Sprintf("probabilities sum to %v, outside tolerance %v of 1", sum, SumTolerance),
		}
	}

	normalized := make([]CategoryWeight, len(categories))
	for i, c := range categories {
		normalized[i] = CategoryWeight{Category: c.Category, Probability: c.Probability / sum}
	}
	return normalized, nil
}

// ValidSpec is a validated, normalized specification. It is constructed
// only by Validate and never mutated afterward, so it is safe to share
// across concurrent generation workers without locking.
type ValidSpec struct {
	name        string
	numAgents   int
	numerical   []NumericField
	categorical []CategoricalField
}

// Name returns the population name.
func (v *ValidSpec) Name() string { return v.name }

// NumAgents returns the target agent count.
func (v *ValidSpec) NumAgents() int { return v.numAgents }

// Numerical returns the numeric attributes in declared order. The slice
// and everything it references are read-only.
func (v *ValidSpec) Numerical() []NumericField { return v.numerical }

// Categorical returns the categorical attributes in declared order. The
// slice and everything it references are read-only.
func (v *ValidSpec) Categorical() []CategoricalField { return v.categorical }
