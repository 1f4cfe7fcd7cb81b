package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh-io/flowmesh/core"
)

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) record(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.record(msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.record(msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.record(msg) }

func (l *recordingLogger) logged() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

func hookTestRun(t *testing.T) *core.Run {
	t.Helper()
	plan, err := core.NewPlan("hooked", "", []core.StepSpec{
		{ID: "only", AgentID: "sa-x", Capability: "do"},
	})
	require.NoError(t, err)
	return core.NewRun(plan, "user-1", nil)
}

func TestHookManager_FanOutOrder(t *testing.T) {
	var events []string
	first := &FuncHook{
		RunStart: func(context.Context, *core.Run) { events = append(events, "first.start") },
		StepEnd: func(_ context.Context, _ *core.Run, o core.StepOutcome) {
			events = append(events, "first.step."+o.StepID)
		},
	}
	second := &FuncHook{
		RunStart: func(context.Context, *core.Run) { events = append(events, "second.start") },
	}

	m := NewHookManager(first)
	m.Register(second)

	run := hookTestRun(t)
	m.RunStart(context.Background(), run)
	m.StepEnd(context.Background(), run, core.StepOutcome{StepID: "only", Status: core.StepStatusCompleted})

	assert.Equal(t, []string{"first.start", "second.start", "first.step.only"}, events)
}

func TestFuncHook_NilFieldsAreSkipped(t *testing.T) {
	h := &FuncHook{}
	run := hookTestRun(t)

	h.OnRunStart(context.Background(), run)
	h.OnRunEnd(context.Background(), run)
	h.OnStepStart(context.Background(), run, "only")
	h.OnStepEnd(context.Background(), run, core.StepOutcome{})
	h.OnError(context.Background(), run, assert.AnError)
}

func TestLoggingHook_Messages(t *testing.T) {
	logger := &recordingLogger{}
	h := NewLoggingHook(logger)
	run := hookTestRun(t)

	h.OnRunStart(context.Background(), run)
	h.OnStepStart(context.Background(), run, "only")
	h.OnStepEnd(context.Background(), run, core.StepOutcome{StepID: "only", Status: core.StepStatusCompleted})
	h.OnError(context.Background(), run, assert.AnError)
	h.OnRunEnd(context.Background(), run)

	assert.Equal(t, []string{
		"run started",
		"step started",
		"step finished",
		"run error",
		"run finished",
	}, logger.logged())
}

func TestNewLoggingHook_NilLogger(t *testing.T) {
	h := NewLoggingHook(nil)
	h.OnRunStart(context.Background(), hookTestRun(t))
}
