package population

import "github.com/popsynth/popsynth/demographics"

// Composer builds one fully-populated agent attribute set per call from a
// validated specification. Samplers are built once per spec; composing is
// read-only afterward, so one Composer serves all parallel workers.
//
// Draw order is fixed and part of the reproducibility contract: numeric
// attributes in declared order (sub-dimensions of a group before the next
// top-level attribute), then categorical attributes in declared order.
// Scalar categoricals consume no draw.
type Composer struct {
	numeric     []numericEntry
	categorical []categoricalEntry
}

type numericEntry struct {
	name    string
	sampler *NumericSampler // nil for groups
	group   []subEntry
}

type subEntry struct {
	name    string
	sampler *NumericSampler
}

type categoricalEntry struct {
	name    string
	sampler *CategoricalSampler // nil for scalars
	scalar  string
}

// NewComposer precompiles samplers for every attribute of the spec.
func NewComposer(spec *demographics.ValidSpec) *Composer {
	c := &Composer{}

	for _, field := range spec.Numerical() {
		if field.IsGroup() {
			entry := numericEntry{name: field.Name}
			for _, sub := range field.Group {
				entry.group = append(entry.group, subEntry{
					name:    sub.Name,
					sampler: NewNumericSampler(sub.Attr),
				})
			}
			c.numeric = append(c.numeric, entry)
			continue
		}
		c.numeric = append(c.numeric, numericEntry{
			name:    field.Name,
			sampler: NewNumericSampler(*field.Attr),
		})
	}

	for _, field := range spec.Categorical() {
		if field.IsScalar {
			c.categorical = append(c.categorical, categoricalEntry{
				name:   field.Name,
				scalar: field.Scalar,
			})
			continue
		}
		c.categorical = append(c.categorical, categoricalEntry{
			name:    field.Name,
			sampler: NewCategoricalSampler(field.Categories),
		})
	}

	return c
}

// Compose draws one value per attribute leaf from the stream and
// assembles an agent's attribute maps.
func (c *Composer) Compose(stream *Stream) (map[string]NumericValue, map[string]string) {
	numerical := make(map[string]NumericValue, len(c.numeric))
	for _, entry := range c.numeric {
		if entry.sampler != nil {
			numerical[entry.name] = NumericValue{Scalar: entry.sampler.Sample(stream.Draw())}
			continue
		}
		sub := make(map[string]float64, len(entry.group))
		for _, s := range entry.group {
			sub[s.name] = s.sampler.Sample(stream.Draw())
		}
		numerical[entry.name] = NumericValue{Sub: sub}
	}

	categorical := make(map[string]string, len(c.categorical))
	for _, entry := range c.categorical {
		if entry.sampler != nil {
			categorical[entry.name] = entry.sampler.Sample(stream.Draw())
		} else {
			categorical[entry.name] = entry.scalar
		}
	}

	return numerical, categorical
}
