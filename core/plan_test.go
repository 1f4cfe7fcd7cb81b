package core

import (
	"errors"
	"testing"
	"time"
)

func specs(ids ...string) []StepSpec {
	out := make([]StepSpec, 0, len(ids))
	for _, id := range ids {
		out = append(out, StepSpec{ID: id, AgentID: "agent-" + id, Capability: "cap"})
	}
	return out
}

func TestNewPlan_Defaults(t *testing.T) {
	p, err := NewPlan("test", "", specs("a", "b"))
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}

	if p.ID == "" {
		t.Error("plan should get an ID")
	}
	if p.Strategy != StrategySequential {
		t.Errorf("default strategy should be sequential, got %s", p.Strategy)
	}
	if p.FailurePolicy != StopOnFailure {
		t.Errorf("default failure policy should be stop_on_failure, got %s", p.FailurePolicy)
	}
	if p.MaxParallelSteps != DefaultMaxParallelSteps {
		t.Errorf("default max parallel steps should be %d, got %d", DefaultMaxParallelSteps, p.MaxParallelSteps)
	}
	if p.GlobalTimeout != 0 {
		t.Errorf("default global timeout should be disabled, got %v", p.GlobalTimeout)
	}
}

func TestNewPlan_Options(t *testing.T) {
	p, err := NewPlan("test", "desc", specs("a"), func(o *PlanOptions) {
		o.Strategy = StrategyParallel
		o.FailurePolicy = ContinueOnFailure
		o.MaxParallelSteps = 2
		o.GlobalTimeout = 10 * time.Minute
	})
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}

	if p.Strategy != StrategyParallel || p.FailurePolicy != ContinueOnFailure {
		t.Errorf("options not applied: %s/%s", p.Strategy, p.FailurePolicy)
	}
	if p.MaxParallelSteps != 2 || p.GlobalTimeout != 10*time.Minute {
		t.Errorf("options not applied: %d/%v", p.MaxParallelSteps, p.GlobalTimeout)
	}
}

func TestNewPlan_Validation(t *testing.T) {
	cases := []struct {
		name  string
		steps []StepSpec
		opt   func(o *PlanOptions)
	}{
		{"empty steps", nil, nil},
		{"duplicate id", specs("a", "a"), nil},
		{"empty step id", []StepSpec{{AgentID: "x", Capability: "y"}}, nil},
		{"empty agent id", []StepSpec{{ID: "a", Capability: "y"}}, nil},
		{"empty capability", []StepSpec{{ID: "a", AgentID: "x"}}, nil},
		{"unknown dependency", []StepSpec{{ID: "a", AgentID: "x", Capability: "y", DependsOn: []string{"nope"}}}, nil},
		{"unknown strategy", specs("a"), func(o *PlanOptions) { o.Strategy = "bogus" }},
		{"unknown policy", specs("a"), func(o *PlanOptions) { o.FailurePolicy = "bogus" }},
		{"bad max parallel", specs("a"), func(o *PlanOptions) { o.MaxParallelSteps = 0 }},
	}

	for _, tc := range cases {
		var opts []func(o *PlanOptions)
		if tc.opt != nil {
			opts = append(opts, tc.opt)
		}
		_, err := NewPlan("test", "", tc.steps, opts...)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected *ValidationError, got %T", tc.name, err)
		}
	}
}

func TestNewPlan_CycleDetection(t *testing.T) {
	steps := []StepSpec{
		{ID: "a", AgentID: "x", Capability: "y", DependsOn: []string{"b"}},
		{ID: "b", AgentID: "x", Capability: "y", DependsOn: []string{"a"}},
	}

	_, err := NewPlan("cyclic", "", steps)
	if !IsValidationError(err) {
		t.Fatalf("expected validation error for cycle, got %v", err)
	}

	selfDep := []StepSpec{{ID: "a", AgentID: "x", Capability: "y", DependsOn: []string{"a"}}}
	if _, err := NewPlan("self", "", selfDep); !IsValidationError(err) {
		t.Fatalf("expected validation error for self dependency, got %v", err)
	}

	indirect := []StepSpec{
		{ID: "a", AgentID: "x", Capability: "y", DependsOn: []string{"c"}},
		{ID: "b", AgentID: "x", Capability: "y", DependsOn: []string{"a"}},
		{ID: "c", AgentID: "x", Capability: "y", DependsOn: []string{"b"}},
	}
	if _, err := NewPlan("indirect", "", indirect); !IsValidationError(err) {
		t.Fatalf("expected validation error for indirect cycle, got %v", err)
	}
}

func TestPlan_Levels(t *testing.T) {
	steps := []StepSpec{
		{ID: "a", AgentID: "x", Capability: "y"},
		{ID: "b", AgentID: "x", Capability: "y", DependsOn: []string{"a"}},
		{ID: "c", AgentID: "x", Capability: "y", DependsOn: []string{"a"}},
		{ID: "d", AgentID: "x", Capability: "y", DependsOn: []string{"b", "c"}},
	}

	p, err := NewPlan("diamond", "", steps)
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}

	if len(p.Levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(p.Levels), p.Levels)
	}

	levelOf := map[string]int{}
	total := 0
	for i, level := range p.Levels {
		for _, id := range level {
			if _, seen := levelOf[id]; seen {
				t.Errorf("step %s assigned to more than one level", id)
			}
			levelOf[id] = i
			total++
		}
	}
	if total != len(steps) {
		t.Errorf("levels should partition all steps, covered %d of %d", total, len(steps))
	}

	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if levelOf[s.ID] <= levelOf[dep] {
				t.Errorf("step %s (level %d) must be after dependency %s (level %d)",
					s.ID, levelOf[s.ID], dep, levelOf[dep])
			}
		}
	}

	if len(p.Levels[1]) != 2 {
		t.Errorf("b and c should share level 1, got %v", p.Levels[1])
	}
}

func TestNewPlan_CompilesConditions(t *testing.T) {
	steps := []StepSpec{
		{ID: "a", AgentID: "x", Capability: "y"},
		{ID: "b", AgentID: "x", Capability: "y", Condition: "status_code == 200"},
	}

	p, err := NewPlan("conditional", "", steps, func(o *PlanOptions) { o.Strategy = StrategyConditional })
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}

	if _, ok := p.CompiledCondition("b"); !ok {
		t.Error("condition for step b should be compiled")
	}
	if _, ok := p.CompiledCondition("a"); ok {
		t.Error("step a has no condition")
	}
}

func TestNewPlan_RejectsBadCondition(t *testing.T) {
	steps := []StepSpec{
		{ID: "a", AgentID: "x", Capability: "y", Condition: "status_code =="},
	}

	_, err := NewPlan("broken", "", steps)
	if !IsValidationError(err) {
		t.Fatalf("expected validation error for broken condition, got %v", err)
	}
}

func TestPlan_Dependents(t *testing.T) {
	steps := []StepSpec{
		{ID: "a", AgentID: "x", Capability: "y"},
		{ID: "b", AgentID: "x", Capability: "y", DependsOn: []string{"a"}},
		{ID: "c", AgentID: "x", Capability: "y", DependsOn: []string{"b"}},
		{ID: "d", AgentID: "x", Capability: "y"},
	}

	p, err := NewPlan("chain", "", steps)
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}

	deps := p.Dependents("a")
	if len(deps) != 2 {
		t.Fatalf("expected b and c as transitive dependents of a, got %v", deps)
	}
	if deps[0] != "b" || deps[1] != "c" {
		t.Errorf("unexpected dependent order: %v", deps)
	}
	if got := p.Dependents("d"); len(got) != 0 {
		t.Errorf("d has no dependents, got %v", got)
	}
}

func TestPlan_StepLookup(t *testing.T) {
	p, err := NewPlan("lookup", "", specs("a", "b"))
	if err != nil {
		t.Fatalf("NewPlan failed: %v", err)
	}

	if s, ok := p.Step("a"); !ok || s.ID != "a" {
		t.Error("Step should find a")
	}
	if _, ok := p.Step("zzz"); ok {
		t.Error("Step should not find zzz")
	}
	ids := p.StepIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("StepIDs should preserve plan order, got %v", ids)
	}
}
