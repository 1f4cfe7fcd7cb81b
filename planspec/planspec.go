// Package planspec parses declarative plan documents into executable plans.
//
// A plan document is the serialized form users author: YAML or JSON with
// snake_case fields and durations expressed in whole seconds and minutes.
// Parsing is lenient (unknown strategies and policies survive decoding);
// Document.Plan performs the real validation by delegating to core.NewPlan,
// so a malformed document surfaces the same *core.ValidationError a caller
// would get constructing the plan by hand.
package planspec

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/internal/xjson"
)

// StepDocument is the serialized form of one plan step.
type StepDocument struct {
	StepID            string         `yaml:"step_id" json:"step_id"`
	AgentID           string         `yaml:"agent_id" json:"agent_id"`
	CapabilityName    string         `yaml:"capability_name" json:"capability_name"`
	InputData         map[string]any `yaml:"input_data,omitempty" json:"input_data,omitempty"`
	DependsOn         []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	TimeoutSeconds    int            `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	RetryCount        int            `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`
	RetryDelaySeconds int            `yaml:"retry_delay_seconds,omitempty" json:"retry_delay_seconds,omitempty"`
	Condition         string         `yaml:"condition,omitempty" json:"condition,omitempty"`
	CredentialID      string         `yaml:"credential_id,omitempty" json:"credential_id,omitempty"`
}

// Document is a declarative plan before validation. Zero values defer to the
// engine defaults: sequential strategy, stop_on_failure policy, default
// parallelism, no global timeout.
type Document struct {
	Name                 string         `yaml:"name" json:"name"`
	Description          string         `yaml:"description,omitempty" json:"description,omitempty"`
	Steps                []StepDocument `yaml:"steps" json:"steps"`
	Strategy             string         `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	FailurePolicy        string         `yaml:"failure_policy,omitempty" json:"failure_policy,omitempty"`
	MaxParallelSteps     int            `yaml:"max_parallel_steps,omitempty" json:"max_parallel_steps,omitempty"`
	GlobalTimeoutMinutes int            `yaml:"global_timeout_minutes,omitempty" json:"global_timeout_minutes,omitempty"`
}

// ParseYAML decodes a YAML plan document. The document is not validated;
// call Plan to compile and validate it.
func ParseYAML(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse yaml plan document: %w", err)
	}
	return doc, nil
}

// ParseJSON decodes a JSON plan document. The document is not validated;
// call Plan to compile and validate it.
func ParseJSON(data []byte) (Document, error) {
	var doc Document
	if err := xjson.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse json plan document: %w", err)
	}
	return doc, nil
}

// Plan compiles the document into a validated core.Plan. Duplicate step IDs,
// unknown dependencies, cycles, unknown strategy or policy names and
// non-compiling conditions all surface as *core.ValidationError.
func (d Document) Plan() (*core.Plan, error) {
	specs := make([]core.StepSpec, 0, len(d.Steps))
	for _, s := range d.Steps {
		specs = append(specs, core.StepSpec{
			ID:           s.StepID,
			AgentID:      s.AgentID,
			Capability:   s.CapabilityName,
			Input:        s.InputData,
			DependsOn:    s.DependsOn,
			Timeout:      time.Duration(s.TimeoutSeconds) * time.Second,
			RetryCount:   s.RetryCount,
			RetryDelay:   time.Duration(s.RetryDelaySeconds) * time.Second,
			Condition:    s.Condition,
			CredentialID: s.CredentialID,
		})
	}

	return core.NewPlan(d.Name, d.Description, specs, func(o *core.PlanOptions) {
		if d.Strategy != "" {
			o.Strategy = core.Strategy(d.Strategy)
		}
		if d.FailurePolicy != "" {
			o.FailurePolicy = core.FailurePolicy(d.FailurePolicy)
		}
		if d.MaxParallelSteps > 0 {
			o.MaxParallelSteps = d.MaxParallelSteps
		}
		if d.GlobalTimeoutMinutes > 0 {
			o.GlobalTimeout = time.Duration(d.GlobalTimeoutMinutes) * time.Minute
		}
	})
}
