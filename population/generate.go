package population

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/popsynth/popsynth/demographics"
)

// Generate validates the specification and synthesizes its full
// population. Validation failure aborts the whole call; no partial
// population is ever returned.
//
// A given (spec, seed) pair always yields a bit-identical population:
// each agent's draws come from its own stream derived from (seed, id), so
// the result does not depend on worker count or scheduling.
func Generate(ctx context.Context, spec demographics.Spec, seed uint64) (*Population, error) {
	valid, err := demographics.Validate(spec)
	if err != nil {
		return nil, err
	}
	return GenerateValid(ctx, valid, seed)
}

// GenerateValid synthesizes the population of an already-validated
// specification. Workers write into a slice pre-indexed by agent id, so
// out-of-order completion needs no sorting step. Cancellation is observed
// at agent boundaries; a cancelled call returns the context error and no
// population.
func GenerateValid(ctx context.Context, spec *demographics.ValidSpec, seed uint64) (*Population, error) {
	composer := NewComposer(spec)
	n := spec.NumAgents()
	agents := make([]Agent, n)

	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * n / workers
		hi := (w + 1) * n / workers
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				numerical, categorical := composer.Compose(NewStream(seed, uint64(i)))
				agents[i] = Agent{
					ID:          i,
					Numerical:   numerical,
					Categorical: categorical,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generation aborted: %w", err)
	}

	return &Population{Seed: seed, Agents: agents}, nil
}
