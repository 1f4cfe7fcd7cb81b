package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowmesh-io/flowmesh/condition"
)

// Strategy selects the algorithm that orders step execution and governs how
// output flows between steps.
type Strategy string

// Supported execution strategies.
const (
	// StrategySequential executes one step at a time in plan order.
	StrategySequential Strategy = "sequential"
	// StrategyParallel executes each dependency level concurrently and
	// joins it before starting the next.
	StrategyParallel Strategy = "parallel"
	// StrategyPipeline executes one step at a time in plan order, merging
	// each step's output into the run context before the next step starts.
	StrategyPipeline Strategy = "pipeline"
	// StrategyConditional loops until all steps are terminal, executing
	// steps whose dependencies are satisfied and whose condition holds.
	StrategyConditional Strategy = "conditional"
	// StrategyBatch executes steps in fixed-size windows of
	// MaxParallelSteps in plan order, each window concurrently.
	StrategyBatch Strategy = "batch"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyPipeline, StrategyConditional, StrategyBatch:
		return true
	default:
		return false
	}
}

// FailurePolicy governs how a step failure affects the rest of the run.
type FailurePolicy string

// Supported failure policies.
const (
	// StopOnFailure aborts the run on the first step failure after its
	// retry budget is exhausted.
	StopOnFailure FailurePolicy = "stop_on_failure"
	// ContinueOnFailure records the failure, skips dependents of the
	// failed step and keeps executing the rest of the plan.
	ContinueOnFailure FailurePolicy = "continue_on_failure"
	// RetryOnFailure grants every step a retry budget of at least one
	// attempt beyond its own configuration, then stops like StopOnFailure.
	RetryOnFailure FailurePolicy = "retry_on_failure"
	// RollbackOnFailure is reserved for compensation logic and currently
	// behaves like StopOnFailure.
	RollbackOnFailure FailurePolicy = "rollback_on_failure"
)

// Valid reports whether p is a known failure policy.
func (p FailurePolicy) Valid() bool {
	switch p {
	case StopOnFailure, ContinueOnFailure, RetryOnFailure, RollbackOnFailure:
		return true
	default:
		return false
	}
}

// DefaultMaxParallelSteps bounds within-run concurrency for the batch
// strategy when the caller does not configure a value.
const DefaultMaxParallelSteps = 5

// Plan is an immutable, validated DAG of steps plus an execution strategy and
// failure policy. A plan is a template: it carries step configuration only
// and is shared read-only across every run created from it. Construct plans
// with NewPlan; a plan whose validation succeeded guarantees unique step IDs,
// resolvable dependencies and an acyclic dependency relation.
type Plan struct {
	// ID uniquely identifies the plan.
	ID string `json:"id"`
	// Name is the caller-supplied plan name.
	Name string `json:"name"`
	// Description optionally documents the plan's purpose.
	Description string `json:"description,omitempty"`
	// Steps holds the ordered step specifications.
	Steps []*StepSpec `json:"steps"`
	// Strategy selects the execution algorithm.
	Strategy Strategy `json:"strategy"`
	// FailurePolicy governs failure propagation.
	FailurePolicy FailurePolicy `json:"failure_policy"`
	// MaxParallelSteps bounds batch-strategy window size.
	MaxParallelSteps int `json:"max_parallel_steps"`
	// GlobalTimeout bounds the whole run. Zero disables the bound.
	GlobalTimeout time.Duration `json:"global_timeout,omitempty"`
	// Levels is the precomputed execution-level partition: each level is a
	// set of step IDs with no dependency relation among them, safe to run
	// concurrently once all earlier levels are terminal.
	Levels [][]string `json:"levels"`

	index      map[string]*StepSpec
	dependents map[string][]string
	conditions map[string]*condition.Expr
}

// PlanOptions holds the tunable construction parameters for NewPlan.
type PlanOptions struct {
	// Strategy selects the execution algorithm. Defaults to
	// StrategySequential.
	Strategy Strategy
	// FailurePolicy governs failure propagation. Defaults to
	// StopOnFailure.
	FailurePolicy FailurePolicy
	// MaxParallelSteps bounds batch windows. Defaults to
	// DefaultMaxParallelSteps.
	MaxParallelSteps int
	// GlobalTimeout bounds the whole run. Defaults to zero (unlimited).
	GlobalTimeout time.Duration
}

// NewPlan validates the given step specifications and returns an immutable
// plan. It fails with a *ValidationError when steps is empty, a step ID is
// duplicated, a dependency references an unknown step, the dependency
// relation contains a cycle, a step condition does not compile, or an option
// value is out of range.
func NewPlan(name, description string, steps []StepSpec, optFns ...func(o *PlanOptions)) (*Plan, error) {
	opts := PlanOptions{
		Strategy:         StrategySequential,
		FailurePolicy:    StopOnFailure,
		MaxParallelSteps: DefaultMaxParallelSteps,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}

	if len(steps) == 0 {
		return nil, &ValidationError{Field: "steps", Message: "must not be empty"}
	}

	if !opts.Strategy.Valid() {
		return nil, &ValidationError{Field: "strategy", Value: string(opts.Strategy), Message: "unknown strategy"}
	}

	if !opts.FailurePolicy.Valid() {
		return nil, &ValidationError{Field: "failure_policy", Value: string(opts.FailurePolicy), Message: "unknown failure policy"}
	}

	if opts.MaxParallelSteps < 1 {
		return nil, &ValidationError{Field: "max_parallel_steps", Value: opts.MaxParallelSteps, Message: "must be at least 1"}
	}

	p := &Plan{
		ID:               NewID(),
		Name:             name,
		Description:      description,
		Steps:            make([]*StepSpec, 0, len(steps)),
		Strategy:         opts.Strategy,
		FailurePolicy:    opts.FailurePolicy,
		MaxParallelSteps: opts.MaxParallelSteps,
		GlobalTimeout:    opts.GlobalTimeout,
		index:            make(map[string]*StepSpec, len(steps)),
		dependents:       make(map[string][]string),
		conditions:       make(map[string]*condition.Expr),
	}

	for _, s := range steps {
		spec := s.clone()

		if spec.ID == "" {
			return nil, &ValidationError{Field: "steps", Message: "step id must not be empty"}
		}

		if spec.AgentID == "" {
			return nil, &ValidationError{Field: "steps", Value: spec.ID, Message: "agent id must not be empty"}
		}

		if spec.Capability == "" {
			return nil, &ValidationError{Field: "steps", Value: spec.ID, Message: "capability name must not be empty"}
		}

		if _, exists := p.index[spec.ID]; exists {
			return nil, &ValidationError{Field: "steps", Value: spec.ID, Message: "duplicate step id"}
		}

		p.index[spec.ID] = spec
		p.Steps = append(p.Steps, spec)
	}

	for _, spec := range p.Steps {
		for _, dep := range spec.DependsOn {
			if _, ok := p.index[dep]; !ok {
				return nil, &ValidationError{
					Field:   "depends_on",
					Value:   spec.ID,
					Message: fmt.Sprintf("references unknown step %q", dep),
				}
			}
			p.dependents[dep] = append(p.dependents[dep], spec.ID)
		}

		if spec.Condition != "" {
			expr, err := condition.Compile(spec.Condition)
			if err != nil {
				return nil, &ValidationError{
					Field:   "condition",
					Value:   spec.ID,
					Message: err.Error(),
				}
			}
			p.conditions[spec.ID] = expr
		}
	}

	if cycleStep := p.findCycle(); cycleStep != "" {
		return nil, &ValidationError{
			Field:   "depends_on",
			Value:   cycleStep,
			Message: "dependency cycle detected",
		}
	}

	p.Levels = p.computeLevels()

	return p, nil
}

type planAlias Plan

// UnmarshalJSON restores a serialized plan and rebuilds the derived lookup
// state (step index, dependents relation, compiled conditions) that NewPlan
// computes, so runs loaded from a store stay fully queryable. Persisted plans
// passed validation at creation; structural checks are not repeated here.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var alias planAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	*p = Plan(alias)
	return p.rehydrate()
}

// rehydrate rebuilds the unexported lookup maps from the Steps slice.
func (p *Plan) rehydrate() error {
	p.index = make(map[string]*StepSpec, len(p.Steps))
	p.dependents = make(map[string][]string)
	p.conditions = make(map[string]*condition.Expr)

	for _, spec := range p.Steps {
		p.index[spec.ID] = spec
	}

	for _, spec := range p.Steps {
		for _, dep := range spec.DependsOn {
			p.dependents[dep] = append(p.dependents[dep], spec.ID)
		}

		if spec.Condition != "" {
			expr, err := condition.Compile(spec.Condition)
			if err != nil {
				return &ValidationError{Field: "condition", Value: spec.ID, Message: err.Error()}
			}
			p.conditions[spec.ID] = expr
		}
	}

	return nil
}

// Step returns the spec with the given ID.
func (p *Plan) Step(id string) (*StepSpec, bool) {
	s, ok := p.index[id]
	return s, ok
}

// StepIDs returns the step IDs in plan order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// CompiledCondition returns the compiled condition expression for a step, if
// the step declares one. Conditions are compiled during NewPlan and
// recompiled when a plan is restored from its serialized form.
func (p *Plan) CompiledCondition(stepID string) (*condition.Expr, bool) {
	expr, ok := p.conditions[stepID]
	return expr, ok
}

// Dependents returns the IDs of all steps that transitively depend on the
// given step, in breadth-first order.
func (p *Plan) Dependents(stepID string) []string {
	var out []string
	seen := map[string]bool{stepID: true}
	queue := append([]string(nil), p.dependents[stepID]...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, p.dependents[id]...)
	}

	return out
}

// findCycle runs a depth-first traversal over the dependency relation
// tracking the set of steps on the current recursion stack. Any edge back
// into that set is a cycle; the offending step ID is returned, or "" when the
// relation is acyclic.
func (p *Plan) findCycle() string {
	visited := make(map[string]bool, len(p.Steps))
	visiting := make(map[string]bool)

	var visit func(id string) string
	visit = func(id string) string {
		if visiting[id] {
			return id
		}
		if visited[id] {
			return ""
		}
		visiting[id] = true
		for _, dep := range p.index[id].DependsOn {
			if bad := visit(dep); bad != "" {
				return bad
			}
		}
		delete(visiting, id)
		visited[id] = true
		return ""
	}

	for _, s := range p.Steps {
		if bad := visit(s.ID); bad != "" {
			return bad
		}
	}

	return ""
}

// computeLevels partitions the (already acyclic) dependency graph into
// execution levels: repeatedly extract the steps whose dependencies are all
// assigned to earlier levels. Steps within one level share no dependency
// relation. Plan order is preserved inside each level.
func (p *Plan) computeLevels() [][]string {
	assigned := make(map[string]bool, len(p.Steps))
	var levels [][]string

	for len(assigned) < len(p.Steps) {
		var level []string
		for _, s := range p.Steps {
			if assigned[s.ID] {
				continue
			}
			ready := true
			for _, dep := range s.DependsOn {
				if !assigned[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, s.ID)
			}
		}
		for _, id := range level {
			assigned[id] = true
		}
		levels = append(levels, level)
	}

	return levels
}
