package demographics

import (
	"errors"
	"math"
	"testing"
)

func testSpec() Spec {
	return Spec{
		Name:      "Test Population",
		NumAgents: 100,
		Numerical: []NumericField{
			{
				Name: "age",
				Attr: &NumericAttr{
					Range: Range{Min: 18, Max: 80},
					Points: []ControlPoint{
						{Value: 25, Probability: 0.2},
						{Value: 35, Probability: 0.3},
						{Value: 45, Probability: 0.25},
						{Value: 65, Probability: 0.25},
					},
				},
			},
			{
				Name: "political_affiliation",
				Group: []SubAttr{
					{Name: "economic", Attr: NumericAttr{
						Range:  Range{Min: -1, Max: 1},
						Points: []ControlPoint{{Value: -0.5, Probability: 0.5}, {Value: 0.5, Probability: 0.5}},
					}},
					{Name: "governance", Attr: NumericAttr{
						Range:  Range{Min: -1, Max: 1},
						Points: []ControlPoint{{Value: 0, Probability: 1}},
					}},
					{Name: "cultural", Attr: NumericAttr{
						Range:  Range{Min: -1, Max: 1},
						Points: []ControlPoint{{Value: -0.6, Probability: 0.3}, {Value: 0.6, Probability: 0.7}},
					}},
				},
			},
		},
		Categorical: []CategoricalField{
			{
				Name: "gender",
				Categories: []CategoryWeight{
					{Category: "female", Probability: 0.51},
					{Category: "male", Probability: 0.49},
				},
			},
			{Name: "location", Scalar: "United States", IsScalar: true},
		},
	}
}

// TestValidateAcceptsWellFormedSpec verifies a consistent spec validates
func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	valid, err := Validate(testSpec())
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	if valid.Name() != "Test Population" {
		t.Errorf("Name() = %q, want %q", valid.Name(), "Test Population")
	}
	if valid.NumAgents() != 100 {
		t.Errorf("NumAgents() = %d, want 100", valid.NumAgents())
	}
	if len(valid.Numerical()) != 2 {
		t.Fatalf("Numerical() has %d fields, want 2", len(valid.Numerical()))
	}
	if len(valid.Categorical()) != 2 {
		t.Fatalf("Categorical() has %d fields, want 2", len(valid.Categorical()))
	}
}

// TestValidateRejectsZeroAgents verifies num_agents = 0 fails with CountError
func TestValidateRejectsZeroAgents(t *testing.T) {
	spec := testSpec()
	spec.NumAgents = 0

	_, err := Validate(spec)
	var countErr *CountError
	if !errors.As(err, &countErr) {
		t.Fatalf("Validate() error = %v, want CountError", err)
	}
	if countErr.NumAgents != 0 {
		t.Errorf("CountError.NumAgents = %d, want 0", countErr.NumAgents)
	}
}

// TestValidateRejectsPointOutsideRange verifies a control point beyond the
// declared range fails with RangeError carrying the offending value
func TestValidateRejectsPointOutsideRange(t *testing.T) {
	spec := testSpec()
	spec.Numerical = append(spec.Numerical, NumericField{
		Name: "religiosity",
		Attr: &NumericAttr{
			Range: Range{Min: 0, Max: 10},
			Points: []ControlPoint{
				{Value: 5, Probability: 0.5},
				{Value: 15, Probability: 0.5},
			},
		},
	})

	_, err := Validate(spec)
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("Validate() error = %v, want RangeError", err)
	}
	if rangeErr.Attr != "religiosity" {
		t.Errorf("RangeError.Attr = %q, want %q", rangeErr.Attr, "religiosity")
	}
	if rangeErr.Value != 15 {
		t.Errorf("RangeError.Value = %v, want 15", rangeErr.Value)
	}
}

// TestValidateRejectsInvertedRange verifies min >= max fails with RangeError
func TestValidateRejectsInvertedRange(t *testing.T) {
	spec := testSpec()
	spec.Numerical[0].Attr.Range = Range{Min: 80, Max: 18}

	_, err := Validate(spec)
	var rangeErr *RangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("Validate() error = %v, want RangeError", err)
	}
}

// TestValidateRejectsEmptyPoints verifies an attribute without control
// points fails with SchemaError
func TestValidateRejectsEmptyPoints(t *testing.T) {
	spec := testSpec()
	spec.Numerical[0].Attr.Points = nil

	_, err := Validate(spec)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Validate() error = %v, want SchemaError", err)
	}
	if schemaErr.Field != "age" {
		t.Errorf("SchemaError.Field = %q, want %q", schemaErr.Field, "age")
	}
}

// TestValidateRejectsBadProbabilitySum verifies a categorical sum beyond
// tolerance fails with ProbabilityError reporting the sum
func TestValidateRejectsBadProbabilitySum(t *testing.T) {
	spec := testSpec()
	spec.Categorical[0].Categories = []CategoryWeight{
		{Category: "female", Probability: 0.5},
		{Category: "male", Probability: 0.4},
	}

	_, err := Validate(spec)
	var probErr *ProbabilityError
	if !errors.As(err, &probErr) {
		t.Fatalf("Validate() error = %v, want ProbabilityError", err)
	}
	if probErr.Attr != "gender" {
		t.Errorf("ProbabilityError.Attr = %q, want %q", probErr.Attr, "gender")
	}
	if math.Abs(probErr.Sum-0.9) > 1e-12 {
		t.Errorf("ProbabilityError.Sum = %v, want 0.9", probErr.Sum)
	}
}

// TestValidateRejectsNonPositiveProbability verifies zero and negative
// weights fail with ProbabilityError
func TestValidateRejectsNonPositiveProbability(t *testing.T) {
	spec := testSpec()
	spec.Numerical[0].Attr.Points[0].Probability = 0
	spec.Numerical[0].Attr.Points[1].Probability = 0.5

	_, err := Validate(spec)
	var probErr *ProbabilityError
	if !errors.As(err, &probErr) {
		t.Fatalf("Validate() error = %v, want ProbabilityError", err)
	}
}

// TestValidateRejectsDuplicateCategories verifies repeated category names
// within one attribute fail with ProbabilityError
func TestValidateRejectsDuplicateCategories(t *testing.T) {
	spec := testSpec()
	spec.Categorical[0].Categories = []CategoryWeight{
		{Category: "female", Probability: 0.5},
		{Category: "female", Probability: 0.5},
	}

	_, err := Validate(spec)
	var probErr *ProbabilityError
	if !errors.As(err, &probErr) {
		t.Fatalf("Validate() error = %v, want ProbabilityError", err)
	}
}

// TestValidateRejectsNegativeRoundTo verifies a negative rounding step
// fails with SchemaError
func TestValidateRejectsNegativeRoundTo(t *testing.T) {
	spec := testSpec()
	spec.Numerical[0].Attr.RoundTo = -0.5

	_, err := Validate(spec)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Validate() error = %v, want SchemaError", err)
	}
}

// TestValidateRejectsEmptyGroup verifies a nested group without
// sub-dimensions fails with SchemaError
func TestValidateRejectsEmptyGroup(t *testing.T) {
	spec := testSpec()
	spec.Numerical[1].Group = nil

	_, err := Validate(spec)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("Validate() error = %v, want SchemaError", err)
	}
}

// TestValidateRescalesWithinTolerance verifies sums inside the tolerance
// are rescaled to exactly 1
func TestValidateRescalesWithinTolerance(t *testing.T) {
	spec := testSpec()
	spec.Numerical[0].Attr.Points = []ControlPoint{
		{Value: 25, Probability: 0.2002},
		{Value: 35, Probability: 0.3},
		{Value: 45, Probability: 0.25},
		{Value: 65, Probability: 0.25},
	}

	valid, err := Validate(spec)
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	sum := 0.0
	for _, p := range valid.Numerical()[0].Attr.Points {
		sum += p.Probability
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Errorf("rescaled probabilities sum to %v, want exactly 1", sum)
	}
}

// TestValidateDoesNotMutateInput verifies rescaling operates on a copy
func TestValidateDoesNotMutateInput(t *testing.T) {
	spec := testSpec()
	spec.Categorical[0].Categories[0].Probability = 0.5105
	before := spec.Categorical[0].Categories[0].Probability

	if _, err := Validate(spec); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	if spec.Categorical[0].Categories[0].Probability != before {
		t.Errorf("input spec mutated: probability changed from %v to %v",
			before, spec.Categorical[0].Categories[0].Probability)
	}
}

// TestValidatePreservesDeclarationOrder verifies attribute order survives
// validation unchanged
func TestValidatePreservesDeclarationOrder(t *testing.T) {
	valid, err := Validate(testSpec())
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	if valid.Numerical()[0].Name != "age" || valid.Numerical()[1].Name != "political_affiliation" {
		t.Errorf("numeric order = [%s, %s], want [age, political_affiliation]",
			valid.Numerical()[0].Name, valid.Numerical()[1].Name)
	}

	subs := valid.Numerical()[1].Group
	wantSubs := []string{"economic", "governance", "cultural"}
	for i, want := range wantSubs {
		if subs[i].Name != want {
			t.Errorf("sub-dimension %d = %q, want %q", i, subs[i].Name, want)
		}
	}

	if valid.Categorical()[0].Name != "gender" || valid.Categorical()[1].Name != "location" {
		t.Errorf("categorical order = [%s, %s], want [gender, location]",
			valid.Categorical()[0].Name, valid.Categorical()[1].Name)
	}
}

// TestValidateKeepsScalarCategorical verifies fixed scalar fields pass
// through untouched
func TestValidateKeepsScalarCategorical(t *testing.T) {
	valid, err := Validate(testSpec())
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	loc := valid.Categorical()[1]
	if !loc.IsScalar || loc.Scalar != "United States" {
		t.Errorf("scalar field = %+v, want IsScalar with %q", loc, "United States")
	}
}
