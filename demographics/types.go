package demographics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ControlPoint anchors a numeric distribution's shape at one value
// inside the attribute's range.
type ControlPoint struct {
	Value       float64 `json:"value"`
	Probability float64 `json:"probability"`
}

// Range is the inclusive [Min, Max] interval of a numeric attribute.
// Its JSON form is a two-element array, matching the stored record shape.
type Range struct {
	Min float64
	Max float64
}

// MarshalJSON encodes the range as [min, max].
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Min, r.Max})
}

// UnmarshalJSON decodes a [min, max] array.
func (r *Range) UnmarshalJSON(data []byte) error {
	var bounds []float64
	if err := json.Unmarshal(data, &bounds); err != nil {
		return fmt.Errorf("range must be a numeric array: %w", err)
	}
	if len(bounds) != 2 {
		return fmt.Errorf("range must have exactly 2 elements, got %d", len(bounds))
	}
	r.Min, r.Max = bounds[0], bounds[1]
	return nil
}

// NumericAttr describes one numeric distribution: a bounded range plus
// weighted control points. RoundTo optionally quantizes sampled values to
// the nearest multiple (e.g. 100 for income, 0.5 for a 0-10 scale);
// zero means no rounding.
type NumericAttr struct {
	Range   Range          `json:"range"`
	Points  []ControlPoint `json:"points"`
	RoundTo float64        `json:"round_to,omitempty"`
}

// SubAttr is one named sub-dimension of a grouped numeric attribute.
type SubAttr struct {
	Name string
	Attr NumericAttr
}

// NumericField is a single entry of the numerical characteristics object.
// Exactly one of Attr and Group is set: Attr for a flat distribution,
// Group for a named set of sub-dimensions (e.g. political affiliation's
// economic/governance/cultural scores). Group order follows the order of
// declaration in the source document.
type NumericField struct {
	Name  string
	Attr  *NumericAttr
	Group []SubAttr
}

// IsGroup reports whether the field is a nested group of sub-dimensions.
func (f NumericField) IsGroup() bool { return f.Attr == nil }

// CategoryWeight is one weighted category of a categorical attribute.
type CategoryWeight struct {
	Category    string  `json:"category"`
	Probability float64 `json:"probability"`
}

// CategoricalField is a single entry of the categorical characteristics
// object: either a weighted category list, or a fixed scalar string (such
// as a location) that is copied verbatim into every agent.
type CategoricalField struct {
	Name       string
	Categories []CategoryWeight
	Scalar     string
	IsScalar   bool
}

// Spec is one demographic specification: a named population description
// with a target agent count and ordered attribute distributions.
//
// Attribute order is preserved from the source JSON document because the
// draw order during generation follows declaration order; two specs that
// differ only in attribute order are different specs.
type Spec struct {
	Name        string
	NumAgents   int
	Numerical   []NumericField
	Categorical []CategoricalField
}

// Record is a stored demographic specification with storage metadata.
type Record struct {
	ID        string
	Spec      Spec
	CreatedAt time.Time
	UpdatedAt time.Time
}

// specJSON mirrors the top-level stored record shape.
type specJSON struct {
	Name        string          `json:"name"`
	NumAgents   int             `json:"num_agents"`
	Numerical   json.RawMessage `json:"numerical_characteristics"`
	Categorical json.RawMessage `json:"categorical_characteristics"`
}

// UnmarshalJSON decodes the stored record shape, preserving the order in
// which attributes appear in the document.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw specJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &SchemaError{Field: "", Reason: err.Error()}
	}

	s.Name = raw.Name
	s.NumAgents = raw.NumAgents
	s.Numerical = nil
	s.Categorical = nil

	if raw.Numerical != nil {
		fields, err := decodeOrderedObject(raw.Numerical, "numerical_characteristics")
		if err != nil {
			return err
		}
		for _, f := range fields {
			nf, err := decodeNumericField(f.name, f.value)
			if err != nil {
				return err
			}
			s.Numerical = append(s.Numerical, nf)
		}
	}

	if raw.Categorical != nil {
		fields, err := decodeOrderedObject(raw.Categorical, "categorical_characteristics")
		if err != nil {
			return err
		}
		for _, f := range fields {
			cf, err := decodeCategoricalField(f.name, f.value)
			if err != nil {
				return err
			}
			s.Categorical = append(s.Categorical, cf)
		}
	}

	return nil
}

// MarshalJSON encodes back to the stored record shape, in declared
// attribute order.
func (s Spec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"name":`)
	writeJSON(&buf, s.Name)
	buf.WriteString(`,"num_agents":`)
	fmt.Fprintf(&buf, "%d", s.NumAgents)

	buf.WriteString(`,"numerical_characteristics":{`)
	for i, f := range s.Numerical {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(&buf, f.Name)
		buf.WriteByte(':')
		if f.IsGroup() {
			buf.WriteByte('{')
			for j, sub := range f.Group {
				if j > 0 {
					buf.WriteByte(',')
				}
				writeJSON(&buf, sub.Name)
				buf.WriteByte(':')
				writeJSON(&buf, sub.Attr)
			}
			buf.WriteByte('}')
		} else {
			writeJSON(&buf, f.Attr)
		}
	}
	buf.WriteByte('}')

	buf.WriteString(`,"categorical_characteristics":{`)
	for i, f := range s.Categorical {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(&buf, f.Name)
		buf.WriteByte(':')
		if f.IsScalar {
			writeJSON(&buf, f.Scalar)
		} else {
			writeJSON(&buf, f.Categories)
		}
	}
	buf.WriteByte('}')

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		// All inputs here are marshalable types; keep the document valid.
		b = []byte("null")
	}
	buf.Write(b)
}

type orderedField struct {
	name  string
	value json.RawMessage
}

// decodeOrderedObject walks a JSON object token-by-token so key order
// survives decoding. encoding/json maps would lose it.
func decodeOrderedObject(data json.RawMessage, context string) ([]orderedField, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, &SchemaError{Field: context, Reason: err.Error()}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &SchemaError{Field: context, Reason: "expected a JSON object"}
	}

	var fields []orderedField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, &SchemaError{Field: context, Reason: err.Error()}
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, &SchemaError{Field: context, Reason: "expected a string key"}
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, &SchemaError{Field: context + "." + key, Reason: err.Error()}
		}
		fields = append(fields, orderedField{name: key, value: value})
	}

	return fields, nil
}

// decodeNumericField decides between a flat distribution and a nested
// group. An object carrying "range" and "points" keys is a distribution;
// any other object is treated as a group of named sub-distributions.
func decodeNumericField(name string, data json.RawMessage) (NumericField, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return NumericField{}, &SchemaError{Field: name, Reason: "numeric attribute must be a JSON object"}
	}

	if _, hasRange := probe["range"]; hasRange {
		var attr NumericAttr
		if err := json.Unmarshal(data, &attr); err != nil {
			return NumericField{}, &SchemaError{Field: name, Reason: err.Error()}
		}
		return NumericField{Name: name, Attr: &attr}, nil
	}

	subs, err := decodeOrderedObject(data, name)
	if err != nil {
		return NumericField{}, err
	}
	field := NumericField{Name: name}
	for _, sub := range subs {
		var attr NumericAttr
		if err := json.Unmarshal(sub.value, &attr); err != nil {
			return NumericField{}, &SchemaError{Field: name + "." + sub.name, Reason: err.Error()}
		}
		field.Group = append(field.Group, SubAttr{Name: sub.name, Attr: attr})
	}
	return field, nil
}

// decodeCategoricalField decides between a weighted category list and a
// fixed scalar string.
func decodeCategoricalField(name string, data json.RawMessage) (CategoricalField, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return CategoricalField{}, &SchemaError{Field: name, Reason: "empty categorical attribute"}
	}

	switch trimmed[0] {
	case '"':
		var scalar string
		if err := json.Unmarshal(trimmed, &scalar); err != nil {
			return CategoricalField{}, &SchemaError{Field: name, Reason: err.Error()}
		}
		return CategoricalField{Name: name, Scalar: scalar, IsScalar: true}, nil
	case '[':
		var categories []CategoryWeight
		if err := json.Unmarshal(trimmed, &categories); err != nil {
			return CategoricalField{}, &SchemaError{Field: name, Reason: err.Error()}
		}
		return CategoricalField{Name: name, Categories: categories}, nil
	default:
		return CategoricalField{}, &SchemaError{
			Field:  name,
			Reason: "categorical attribute must be a weighted category array or a plain string",
		}
	}
}
