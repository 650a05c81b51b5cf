package population

import "github.com/popsynth/popsynth/demographics"

// CategoricalSampler samples a validated categorical attribute by
// weighted discrete choice over the categories in their declared order.
type CategoricalSampler struct {
	categories []string
	cum        []float64
}

var _ Sampler[string] = (*CategoricalSampler)(nil)

// NewCategoricalSampler builds the cumulative table for one attribute.
// The categories must already be validated (probabilities normalized).
func NewCategoricalSampler(categories []demographics.CategoryWeight) *CategoricalSampler {
	s := &CategoricalSampler{
		categories: make([]string, len(categories)),
		cum:        make([]float64, len(categories)),
	}
	sum := 0.0
	for i, c := range categories {
		s.categories[i] = c.Category
		sum += c.Probability
		s.cum[i] = sum
	}
	return s
}

// Sample returns the first category whose cumulative probability exceeds
// u. Each category owns a half-open interval; the last closes at 1.0
// inclusive to absorb floating-point rounding in the cumulative sums.
func (s *CategoricalSampler) Sample(u float64) string {
	for i, c := range s.cum {
		if u < c {
			return s.categories[i]
		}
	}
	return s.categories[len(s.categories)-1]
}
