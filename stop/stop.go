// Package stop provides the conditions that end a tool loop.
//
// A Condition is evaluated once per step, after the step's tool calls ran,
// with the post-increment step count and the step's finish reason.
package stop

import (
	"fmt"
	"strings"

	ai "github.com/spetersoncode/loom"
)

// DefaultMaxSteps bounds a loop that has no explicit condition.
const DefaultMaxSteps = 20

// Condition decides whether the loop stops after a step.
type Condition interface {
	ShouldStop(step int, last ai.FinishReason) bool
}

// Exhaustion is implemented by conditions that bound the number of steps.
// When such a condition stops a loop whose model still asked for tools, the
// loop fails with a max-steps error instead of finishing.
type Exhaustion interface {
	Exhausted(step int) bool
}

type stepCount struct {
	n int
}

// StepCountIs stops once step reaches n, regardless of the finish reason.
func StepCountIs(n int) Condition {
	return stepCount{n: n}
}

func (c stepCount) ShouldStop(step int, _ ai.FinishReason) bool {
	return step >= c.n
}

func (c stepCount) Exhausted(step int) bool {
	return step >= c.n
}

func (c stepCount) String() string {
	return fmt.Sprintf("step-count-is(%d)", c.n)
}

type unlessToolCalls struct{}

// UnlessToolCalls stops on every finish reason except tool-calls.
func UnlessToolCalls() Condition {
	return unlessToolCalls{}
}

func (unlessToolCalls) ShouldStop(_ int, last ai.FinishReason) bool {
	return last != ai.FinishToolCalls
}

func (unlessToolCalls) String() string {
	return "unless-tool-calls"
}

type funcCondition struct {
	name string
	fn   func(step int, last ai.FinishReason) bool
}

// Func adapts a function to a Condition. The name shows up in logs.
func Func(name string, fn func(step int, last ai.FinishReason) bool) Condition {
	return funcCondition{name: name, fn: fn}
}

func (c funcCondition) ShouldStop(step int, last ai.FinishReason) bool {
	return c.fn(step, last)
}

func (c funcCondition) String() string {
	return c.name
}

type anyOf []Condition

// Any stops when any of conds stops.
func Any(conds ...Condition) Condition {
	return anyOf(conds)
}

func (a anyOf) ShouldStop(step int, last ai.FinishReason) bool {
	for _, c := range a {
		if c.ShouldStop(step, last) {
			return true
		}
	}
	return false
}

// Exhausted reports whether a step-bounding member fired.
func (a anyOf) Exhausted(step int) bool {
	for _, c := range a {
		if e, ok := c.(Exhaustion); ok && e.Exhausted(step) {
			return true
		}
	}
	return false
}

func (a anyOf) String() string {
	names := make([]string, len(a))
	for i, c := range a {
		names[i] = Name(c)
	}
	return "any(" + strings.Join(names, ", ") + ")"
}

// Exhausted reports whether c stopped because of a step bound.
func Exhausted(c Condition, step int) bool {
	e, ok := c.(Exhaustion)
	return ok && e.Exhausted(step)
}

// Name returns a readable name for c.
func Name(c Condition) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c)
}

// StepPredicate inspects the latest step in full.
type StepPredicate func(step ai.StepResult) bool

// HasToolCall reports whether the step called the named tool.
func HasToolCall(name string) StepPredicate {
	return func(step ai.StepResult) bool {
		for _, call := range step.ToolCalls() {
			if call.Name == name {
				return true
			}
		}
		return false
	}
}
