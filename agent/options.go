package agent

import (
	"log/slog"
	"time"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/middleware"
	"github.com/spetersoncode/loom/retry"
	"github.com/spetersoncode/loom/stop"
	"github.com/spetersoncode/loom/store"
	"github.com/spetersoncode/loom/tool"
)

// ToolErrorPolicy decides what a failed tool call does to the run.
type ToolErrorPolicy int

const (
	// ToolErrorsRecoverable sends failures to the model as error results.
	ToolErrorsRecoverable ToolErrorPolicy = iota

	// ToolErrorsFatal fails the run with the first tool error. Rejected
	// calls are still reported to the model.
	ToolErrorsFatal
)

// Options contains configuration for a run.
type Options struct {
	// StopWhen ends the loop after a step. Default is
	// stop.StepCountIs(stop.DefaultMaxSteps).
	StopWhen stop.Condition

	// StopPredicates end the loop when any returns true for the latest
	// step. They never fail the run.
	StopPredicates []stop.StepPredicate

	// Instructions is sent as a system message before the conversation.
	// It is not part of the returned history.
	Instructions string

	// CallOptions are applied to every model call.
	CallOptions []ai.Option

	// Streaming selects Stream over Generate for model calls. Default true.
	Streaming bool

	// ParallelToolCalls runs the tool calls of a step concurrently.
	// Default true.
	ParallelToolCalls bool

	// MaxConcurrency bounds concurrent tool calls. Default is 10.
	MaxConcurrency int

	// ToolTimeout bounds each tool call. Default is 30 seconds.
	ToolTimeout time.Duration

	// Timeout bounds the whole run. 0 means only the context deadline.
	Timeout time.Duration

	// Approver enables approval of tool calls.
	Approver tool.Approver

	// ApprovalRequired limits approval to the listed tools.
	ApprovalRequired []string

	// ToolErrors selects the tool error policy.
	ToolErrors ToolErrorPolicy

	// Retry is applied to establishing each model call.
	Retry retry.Policy

	// Middleware wraps the model for the run.
	Middleware []middleware.Middleware

	// OnStepFinish is called with every completed step.
	OnStepFinish func(step ai.StepResult)

	// OnFinish is called with the result of a successful run.
	OnFinish func(result *Result)

	// PrepareStep may adjust the call options of each step.
	PrepareStep func(step int, opts ai.CallOptions) ai.CallOptions

	// Session persists the history under SessionKey.
	Session    store.Adapter
	SessionKey string

	Logger *slog.Logger
}

// Option is a functional option for configuring a run.
type Option func(*Options)

// WithStopWhen sets the stop condition. Several conditions stop the loop
// when any of them fires.
func WithStopWhen(conds ...stop.Condition) Option {
	return func(o *Options) {
		switch len(conds) {
		case 0:
		case 1:
			o.StopWhen = conds[0]
		default:
			o.StopWhen = stop.Any(conds...)
		}
	}
}

// WithMaxSteps is shorthand for WithStopWhen(stop.StepCountIs(n)).
func WithMaxSteps(n int) Option {
	return WithStopWhen(stop.StepCountIs(n))
}

// WithStopPredicate adds a predicate over the latest step, such as
// stop.HasToolCall("final_answer").
func WithStopPredicate(p stop.StepPredicate) Option {
	return func(o *Options) {
		o.StopPredicates = append(o.StopPredicates, p)
	}
}

// WithInstructions sets the system instructions.
func WithInstructions(text string) Option {
	return func(o *Options) {
		o.Instructions = text
	}
}

// WithCallOptions passes options through to every model call.
func WithCallOptions(opts ...ai.Option) Option {
	return func(o *Options) {
		o.CallOptions = append(o.CallOptions, opts...)
	}
}

// WithTemperature is a convenience option to set the sampling temperature.
func WithTemperature(t float64) Option {
	return WithCallOptions(ai.WithTemperature(t))
}

// WithMaxOutputTokens is a convenience option to bound each model call.
func WithMaxOutputTokens(n int) Option {
	return WithCallOptions(ai.WithMaxOutputTokens(n))
}

// WithStreaming selects streaming or non-streaming model calls.
func WithStreaming(enabled bool) Option {
	return func(o *Options) {
		o.Streaming = enabled
	}
}

// WithParallelToolCalls enables or disables concurrent tool execution.
func WithParallelToolCalls(enabled bool) Option {
	return func(o *Options) {
		o.ParallelToolCalls = enabled
	}
}

// WithMaxConcurrency bounds how many tool calls run at once.
func WithMaxConcurrency(n int) Option {
	return func(o *Options) {
		o.MaxConcurrency = n
	}
}

// WithToolTimeout sets the timeout of each tool call. 0 disables it.
func WithToolTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ToolTimeout = d
	}
}

// WithTimeout sets a deadline for the entire run.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithApprover requires approval of tool calls, of all calls or only of
// those to the listed tools.
func WithApprover(fn tool.Approver, tools ...string) Option {
	return func(o *Options) {
		o.Approver = fn
		o.ApprovalRequired = tools
	}
}

// WithToolErrorPolicy sets the tool error policy.
func WithToolErrorPolicy(p ToolErrorPolicy) Option {
	return func(o *Options) {
		o.ToolErrors = p
	}
}

// WithRetryPolicy sets the retry policy for model calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Options) {
		o.Retry = p
	}
}

// WithMiddleware wraps the model for the run. The first middleware is the
// outermost.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *Options) {
		o.Middleware = append(o.Middleware, mws...)
	}
}

// WithOnStepFinish registers a callback for completed steps.
func WithOnStepFinish(fn func(step ai.StepResult)) Option {
	return func(o *Options) {
		o.OnStepFinish = fn
	}
}

// WithOnFinish registers a callback for successful runs.
func WithOnFinish(fn func(result *Result)) Option {
	return func(o *Options) {
		o.OnFinish = fn
	}
}

// WithPrepareStep registers a hook that may change the call options of
// each step, e.g. to force a tool on the first step.
func WithPrepareStep(fn func(step int, opts ai.CallOptions) ai.CallOptions) Option {
	return func(o *Options) {
		o.PrepareStep = fn
	}
}

// WithSession loads the history stored under key before the run and stores
// the final history after a successful run.
func WithSession(adapter store.Adapter, key string) Option {
	return func(o *Options) {
		o.Session = adapter
		o.SessionKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// ApplyOptions applies functional options to an Options struct with defaults.
func ApplyOptions(opts ...Option) *Options {
	o := &Options{
		StopWhen:          stop.StepCountIs(stop.DefaultMaxSteps),
		Streaming:         true,
		ParallelToolCalls: true,
		MaxConcurrency:    10,
		ToolTimeout:       30 * time.Second,
		Retry:             retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
