// Package filter evaluates CEL expressions against generated agents, so
// callers can select population subsets with expressions like
//
//	numerical.age >= 30 && categorical.gender == "female"
//
// Expressions see three variables: id (int), numerical (map of floats,
// with grouped attributes as nested maps) and categorical (map of
// strings).
package filter

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/popsynth/popsynth/population"
)

// Engine manages the CEL environment and compiled filter programs.
// Thread-safe: programs are compiled once per expression and cached under
// an RWMutex, so concurrent requests reusing an expression share the
// compiled form.
type Engine struct {
	env      *cel.Env
	programs map[string]cel.Program
	mu       sync.RWMutex
}

// NewEngine creates a filter engine with the agent variable declarations.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.IntType),
		cel.Variable("numerical", cel.DynType),
		cel.Variable("categorical", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile validates an expression and caches its program. Returning an
// error here gives callers a cheap syntax check before generation-sized
// work.
func (en *Engine) Compile(expression string) error {
	_, err := en.program(expression)
	return err
}

func (en *Engine) program(expression string) (cel.Program, error) {
	en.mu.RLock()
	prog, exists := en.programs[expression]
	en.mu.RUnlock()
	if exists {
		return prog, nil
	}

	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	// Cost limit prevents resource exhaustion from pathological
	// expressions evaluated once per agent.
	prog, err := en.env.Program(ast, cel.CostLimit(1_000_000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	en.mu.Lock()
	en.programs[expression] = prog
	en.mu.Unlock()

	return prog, nil
}

// Match evaluates the expression against a single agent. Non-boolean
// results are treated as no match.
func (en *Engine) Match(expression string, agent population.Agent) (bool, error) {
	prog, err := en.program(expression)
	if err != nil {
		return false, err
	}
	return match(prog, agent)
}

// Apply returns the agents matching the expression, preserving order. An
// evaluation error on any agent aborts the whole call: a filter that
// fails on some agents would silently return a misleading subset.
func (en *Engine) Apply(expression string, agents []population.Agent) ([]population.Agent, error) {
	prog, err := en.program(expression)
	if err != nil {
		return nil, err
	}

	matched := []population.Agent{}
	for _, agent := range agents {
		ok, err := match(prog, agent)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", agent.ID, err)
		}
		if ok {
			matched = append(matched, agent)
		}
	}
	return matched, nil
}

func match(prog cel.Program, agent population.Agent) (bool, error) {
	out, _, err := prog.Eval(agentVars(agent))
	if err != nil {
		return false, err
	}

	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

// agentVars flattens an agent into the CEL activation map.
func agentVars(agent population.Agent) map[string]any {
	numerical := make(map[string]any, len(agent.Numerical))
	for name, v := range agent.Numerical {
		if v.Sub != nil {
			numerical[name] = v.Sub
		} else {
			numerical[name] = v.Scalar
		}
	}

	categorical := make(map[string]any, len(agent.Categorical))
	for name, v := range agent.Categorical {
		categorical[name] = v
	}

	return map[string]any{
		"id":          agent.ID,
		"numerical":   numerical,
		"categorical": categorical,
	}
}
