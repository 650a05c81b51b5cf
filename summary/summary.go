// Package summary condenses a generated population into a handful of
// representative buckets: subgroups of agents with similar numeric
// profiles, each described by its numeric ranges and categorical makeup.
package summary

import (
	"fmt"
	"math"
	"sort"

	"github.com/popsynth/popsynth/demographics"
	"github.com/popsynth/popsynth/population"
)

// Fixed clustering seed: summaries of the same population are stable
// across calls.
const clusterSeed = 42

// DefaultBuckets is the bucket count used when the caller does not ask
// for a specific one.
const DefaultBuckets = 4

// Bucket is a representative profile of one population subgroup.
// Numeric attributes are keyed by their flattened name
// ("political_affiliation.economic" for group sub-dimensions).
type Bucket struct {
	Name              string                        `json:"name"`
	Count             int                           `json:"count"`
	Percentage        float64                       `json:"percentage"`
	NumericRanges     map[string][2]float64         `json:"numeric_ranges"`
	NumericMeans      map[string]float64            `json:"numeric_means"`
	CategoricalShares map[string]map[string]float64 `json:"categorical_shares"`
}

// Summary is the bucketed view of one population.
type Summary struct {
	TotalAgents int      `json:"total_agents"`
	Buckets     []Bucket `json:"buckets"`
}

// featureColumn is one flattened numeric dimension used for clustering.
type featureColumn struct {
	attr string
	sub  string
	min  float64
	max  float64
}

func (c featureColumn) key() string {
	if c.sub != "" {
		return c.attr + "." + c.sub
	}
	return c.attr
}

// Summarize groups a population into numBuckets representative buckets.
// Clustering runs over range-normalized numeric features so attributes
// with large scales (income) do not drown out small ones (a 0-10 score).
func Summarize(spec *demographics.ValidSpec, pop *population.Population, numBuckets int) (*Summary, error) {
	if len(pop.Agents) == 0 {
		return nil, fmt.Errorf("cannot summarize an empty population")
	}
	if numBuckets <= 0 {
		numBuckets = DefaultBuckets
	}

	columns := featureColumns(spec)
	if len(columns) == 0 {
		return nil, fmt.Errorf("specification has no numeric attributes to cluster on")
	}

	features := make([][]float64, len(pop.Agents))
	for i, agent := range pop.Agents {
		row := make([]float64, len(columns))
		for j, col := range columns {
			v, ok := agent.Numerical[col.attr]
			if !ok {
				return nil, fmt.Errorf("agent %d is missing numeric attribute %q", agent.ID, col.attr)
			}
			value := v.Scalar
			if col.sub != "" {
				value, ok = v.Sub[col.sub]
				if !ok {
					return nil, fmt.Errorf("agent %d is missing sub-dimension %q of %q", agent.ID, col.sub, col.attr)
				}
			}
			row[j] = (value - col.min) / (col.max - col.min)
		}
		features[i] = row
	}

	labels := kmeans(features, numBuckets, clusterSeed)

	clusters := make(map[int][]population.Agent)
	for i, label := range labels {
		clusters[label] = append(clusters[label], pop.Agents[i])
	}

	total := len(pop.Agents)
	buckets := make([]Bucket, 0, len(clusters))
	for _, agents := range clusters {
		buckets = append(buckets, buildBucket(agents, columns, spec, total))
	}

	// Largest subgroups first; ties broken by name for stable output.
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Name < buckets[j].Name
	})

	return &Summary{TotalAgents: total, Buckets: buckets}, nil
}

func featureColumns(spec *demographics.ValidSpec) []featureColumn {
	var columns []featureColumn
	for _, field := range spec.Numerical() {
		if field.IsGroup() {
			for _, sub := range field.Group {
				columns = append(columns, featureColumn{
					attr: field.Name,
					sub:  sub.Name,
					min:  sub.Attr.Range.Min,
					max:  sub.Attr.Range.Max,
				})
			}
			continue
		}
		columns = append(columns, featureColumn{
			attr: field.Name,
			min:  field.Attr.Range.Min,
			max:  field.Attr.Range.Max,
		})
	}
	return columns
}

func buildBucket(agents []population.Agent, columns []featureColumn, spec *demographics.ValidSpec, total int) Bucket {
	bucket := Bucket{
		Count:             len(agents),
		Percentage:        float64(len(agents)) / float64(total) * 100,
		NumericRanges:     make(map[string][2]float64, len(columns)),
		NumericMeans:      make(map[string]float64, len(columns)),
		CategoricalShares: make(map[string]map[string]float64),
	}

	for _, col := range columns {
		lo, hi := math.Inf(1), math.Inf(-1)
		sum := 0.0
		for _, agent := range agents {
			v := agent.Numerical[col.attr]
			value := v.Scalar
			if col.sub != "" {
				value = v.Sub[col.sub]
			}
			lo = math.Min(lo, value)
			hi = math.Max(hi, value)
			sum += value
		}
		key := col.key()
		bucket.NumericRanges[key] = [2]float64{lo, hi}
		bucket.NumericMeans[key] = sum / float64(len(agents))
	}

	for _, field := range spec.Categorical() {
		counts := make(map[string]int)
		for _, agent := range agents {
			counts[agent.Categorical[field.Name]]++
		}
		shares := make(map[string]float64, len(counts))
		for category, n := range counts {
			shares[category] = float64(n) / float64(len(agents)) * 100
		}
		bucket.CategoricalShares[field.Name] = shares
	}

	bucket.Name = bucketName(bucket, spec)
	return bucket
}

// bucketName labels a bucket by the dominant category of its first few
// non-scalar categorical attributes, e.g. "female / christian / urban".
func bucketName(bucket Bucket, spec *demographics.ValidSpec) string {
	const maxParts = 3

	var parts []string
	for _, field := range spec.Categorical() {
		if field.IsScalar || len(parts) == maxParts {
			continue
		}
		shares := bucket.CategoricalShares[field.Name]
		dominant, best := "", -1.0
		for category, share := range shares {
			if share > best || (share == best && category < dominant) {
				dominant, best = category, share
			}
		}
		if dominant != "" {
			parts = append(parts, dominant)
		}
	}

	if len(parts) == 0 {
		return fmt.Sprintf("%d agents", bucket.Count)
	}

	name := parts[0]
	for _, p := range parts[1:] {
		name += " / " + p
	}
	return name
}
