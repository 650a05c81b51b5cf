package population

import (
	"math"
	"sort"

	"github.com/popsynth/popsynth/demographics"
)

// Sampler converts one uniform draw in [0, 1) into a concrete attribute
// value. Implementations are pure functions of their attribute and the
// draw; they hold no mutable state, so a single instance is safe to share
// across concurrent generation workers.
type Sampler[T any] interface {
	Sample(u float64) T
}

// anchor is one support point of the piecewise-linear density curve.
type anchor struct {
	x       float64
	density float64
}

// NumericSampler samples a validated numeric attribute through a
// piecewise-linear density built from its control points.
//
// The curve anchors at the sorted control points, extended with a virtual
// anchor at each range boundary not already covered by a point. A virtual
// anchor inherits its nearest real neighbor's density scaled by the
// fraction of the range the boundary gap leaves uncovered, so boundary
// segments carry weight without dominating the interior. Integrating the
// trapezoids between consecutive anchors yields a monotone CDF over
// [min, max]; sampling inverts it in closed form within the segment the
// draw lands in.
type NumericSampler struct {
	min     float64
	max     float64
	roundTo float64
	anchors []anchor
	cum     []float64 // CDF at each anchor; cum[0] = 0, cum[last] = 1
}

var _ Sampler[float64] = (*NumericSampler)(nil)

// NewNumericSampler builds the sampling curve for one attribute. The
// attribute must already be validated (probabilities normalized, points
// within range).
func NewNumericSampler(attr demographics.NumericAttr) *NumericSampler {
	points := make([]demographics.ControlPoint, len(attr.Points))
	copy(points, attr.Points)
	sort.Slice(points, func(i, j int) bool { return points[i].Value < points[j].Value })

	min, max := attr.Range.Min, attr.Range.Max
	width := max - min

	anchors := make([]anchor, 0, len(points)+2)
	first, last := points[0], points[len(points)-1]
	if first.Value > min {
		scale := 1 - (first.Value-min)/width
		anchors = append(anchors, anchor{x: min, density: first.Probability * scale})
	}
	for _, p := range points {
		anchors = append(anchors, anchor{x: p.Value, density: p.Probability})
	}
	if last.Value < max {
		scale := 1 - (max-last.Value)/width
		anchors = append(anchors, anchor{x: max, density: last.Probability * scale})
	}

	// Trapezoidal integration between consecutive anchors. Duplicate
	// point values produce zero-width segments that contribute no area
	// and can never be selected during sampling.
	cum := make([]float64, len(anchors))
	total := 0.0
	for i := 1; i < len(anchors); i++ {
		seg := (anchors[i].density + anchors[i-1].density) / 2 * (anchors[i].x - anchors[i-1].x)
		total += seg
		cum[i] = total
	}

	// total > 0 always holds for a validated attribute: every real anchor
	// has positive density and min < max guarantees at least one segment
	// of positive width touching one.
	for i := range anchors {
		anchors[i].density /= total
	}
	for i := range cum {
		cum[i] /= total
	}
	cum[len(cum)-1] = 1

	return &NumericSampler{
		min:     min,
		max:     max,
		roundTo: attr.RoundTo,
		anchors: anchors,
		cum:     cum,
	}
}

// Sample maps a uniform draw to a value in [min, max]. It is a pure
// function of the sampler's attribute and u.
func (s *NumericSampler) Sample(u float64) float64 {
	// First segment whose upper CDF bound exceeds u. Draws are in [0, 1)
	// so one always exists; guard anyway for u at or above 1.
	n := len(s.cum) - 1
	seg := sort.Search(n, func(i int) bool { return s.cum[i+1] > u })
	if seg == n {
		return s.clamp(s.anchors[n].x)
	}

	a, b := s.anchors[seg], s.anchors[seg+1]
	w := b.x - a.x
	area := u - s.cum[seg]
	slope := b.density - a.density

	var d float64
	switch {
	case w <= 0:
		d = 0
	case math.Abs(slope) < 1e-12:
		if a.density <= 0 {
			// Zero-density plateau; legitimate degenerate case, sample
			// uniformly within the segment.
			d = w * area / (s.cum[seg+1] - s.cum[seg])
		} else {
			d = area / a.density
		}
	default:
		// Invert area(d) = density_a*d + slope*d^2/(2w).
		disc := a.density*a.density + 2*slope*area/w
		if disc < 0 {
			disc = 0
		}
		d = w * (math.Sqrt(disc) - a.density) / slope
	}

	if d < 0 {
		d = 0
	}
	if d > w {
		d = w
	}

	v := a.x + d
	if s.roundTo > 0 {
		v = math.Round(v/s.roundTo) * s.roundTo
	}
	return s.clamp(v)
}

func (s *NumericSampler) clamp(v float64) float64 {
	if v < s.min {
		return s.min
	}
	if v > s.max {
		return s.max
	}
	return v
}
