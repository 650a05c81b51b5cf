package population

import (
	"encoding/json"
	"fmt"
	"time"
)

// NumericValue is one sampled numeric attribute of an agent: either a
// scalar, or a named set of sub-dimension scalars for grouped attributes.
// Exactly one of the two is meaningful; Sub non-nil marks a group.
type NumericValue struct {
	Scalar float64
	Sub    map[string]float64
}

// MarshalJSON encodes a scalar as a bare number and a group as an object,
// mirroring the attribute shape of the source specification.
func (v NumericValue) MarshalJSON() ([]byte, error) {
	if v.Sub != nil {
		return json.Marshal(v.Sub)
	}
	return json.Marshal(v.Scalar)
}

// UnmarshalJSON decodes either a bare number or a sub-dimension object.
func (v *NumericValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		return json.Unmarshal(data, &v.Sub)
	}
	v.Sub = nil
	return json.Unmarshal(data, &v.Scalar)
}

// Agent is one synthesized individual. Created once during generation and
// never mutated afterward; ownership passes to the caller.
type Agent struct {
	ID          int                     `json:"id"`
	Numerical   map[string]NumericValue `json:"numerical"`
	Categorical map[string]string       `json:"categorical"`
}

// Population is the ordered result of one generation call, together with
// the seed that produced it so runs can be audited and replayed.
type Population struct {
	Seed   uint64  `json:"seed"`
	Agents []Agent `json:"agents"`
}

// Run records one persisted generation call against a stored demographic.
type Run struct {
	ID            string    `json:"id"`
	DemographicID string    `json:"demographic_id"`
	Seed          uint64    `json:"seed"`
	NumAgents     int       `json:"num_agents"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *Run) String() string {
	return fmt.Sprintf("run %s (demographic %s, seed %d, %d agents)",
		r.ID, r.DemographicID, r.Seed, r.NumAgents)
}
