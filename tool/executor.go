package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	ai "github.com/spetersoncode/loom"
)

// Approver decides whether a tool call may run. A rejection reason is sent
// back to the model.
type Approver func(ctx context.Context, call ai.ToolCall) (approved bool, reason string)

// Hooks observe tool execution. Hooks may be called concurrently.
type Hooks struct {
	// Approved is called after the approver accepted a call.
	Approved func(call ai.ToolCall)
	// Rejected is called after the approver rejected a call.
	Rejected func(call ai.ToolCall, reason string)
	// Executing is called right before a tool runs.
	Executing func(call ai.ToolCall)
	// Done is called with every outcome, failed ones included.
	Done func(o Outcome)
}

// Outcome is the result of executing one tool call.
type Outcome struct {
	Call   ai.ToolCall
	Result ai.ToolResult
	// Err is a *Error when the call failed, or the context error when the
	// call was never dispatched because ctx ended.
	Err error
}

// Executor runs tool calls against a Registry.
type Executor struct {
	registry         *Registry
	maxConcurrency   int
	timeout          time.Duration
	approver         Approver
	approvalRequired []string
	hooks            Hooks
	logger           *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxConcurrency bounds how many calls of one batch run at once.
// 1 runs calls sequentially. Default is 10.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxConcurrency = n
		}
	}
}

// WithTimeout sets the timeout of each tool call. 0 disables it.
// Default is 30 seconds.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithApprover requires approval before execution. With no tool names every
// call needs approval, otherwise only calls to the listed tools.
func WithApprover(fn Approver, tools ...string) ExecutorOption {
	return func(e *Executor) {
		e.approver = fn
		e.approvalRequired = tools
	}
}

// WithHooks sets execution observers.
func WithHooks(h Hooks) ExecutorOption {
	return func(e *Executor) {
		e.hooks = h
	}
}

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an Executor for registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:       registry,
		maxConcurrency: 10,
		timeout:        30 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call. The returned result is always usable: on
// failure it is an error result carrying the message, and err is the
// *Error describing the failure.
func (e *Executor) Execute(ctx context.Context, call ai.ToolCall, tc Context) (ai.ToolResult, error) {
	tc.CallID = call.ID
	output, err := e.execute(ctx, call, tc)

	o := Outcome{Call: call}
	if err != nil {
		o.Result = errorResult(call, err)
		o.Err = err
		e.logger.Debug("tool call failed", "tool", call.Name, "call_id", call.ID, "error", err)
	} else {
		o.Result = ai.ToolResult{ToolCallID: call.ID, ToolName: call.Name, Output: output}
	}
	if e.hooks.Done != nil {
		e.hooks.Done(o)
	}
	return o.Result, o.Err
}

// ExecuteAll runs independent calls of one step, up to the configured
// concurrency at a time. Outcomes are in declaration order regardless of
// completion order. Calls not yet dispatched when ctx ends carry the
// context error.
func (e *Executor) ExecuteAll(ctx context.Context, calls []ai.ToolCall, tc Context) []Outcome {
	outcomes := make([]Outcome, len(calls))
	sem := make(chan struct{}, e.maxConcurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		outcomes[i].Call = call
		if err := acquire(ctx, sem); err != nil {
			outcomes[i].Err = err
			continue
		}
		wg.Go(func() {
			defer func() { <-sem }()
			outcomes[i].Result, outcomes[i].Err = e.Execute(ctx, call, tc)
		})
	}

	wg.Wait()
	return outcomes
}

func acquire(ctx context.Context, sem chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) execute(ctx context.Context, call ai.ToolCall, tc Context) (json.RawMessage, error) {
	rt, ok := e.registry.lookup(call.Name)
	if !ok {
		return nil, &Error{Kind: KindNotFound, Tool: call.Name, CallID: call.ID, Reason: "no tool with this name"}
	}

	input, err := validateInput(rt, call.Input)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Tool: call.Name, CallID: call.ID, Err: err}
	}

	if e.requiresApproval(call.Name) {
		approved, reason := e.approver(ctx, call)
		if !approved {
			if reason == "" {
				reason = "tool call rejected"
			}
			if e.hooks.Rejected != nil {
				e.hooks.Rejected(call, reason)
			}
			return nil, &Error{Kind: KindExecutionDenied, Tool: call.Name, CallID: call.ID, Reason: reason}
		}
		if e.hooks.Approved != nil {
			e.hooks.Approved(call)
		}
	}

	execCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	if e.hooks.Executing != nil {
		e.hooks.Executing(call)
	}

	output, err := run(execCtx, rt.tool, input, tc)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			// Tools may return a shared *Error; annotate a copy.
			cp := *te
			cp.Tool, cp.CallID = call.Name, call.ID
			return nil, &cp
		}
		reason := ""
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			reason = fmt.Sprintf("timed out after %s", e.timeout)
		}
		return nil, &Error{Kind: KindExecutionFailed, Tool: call.Name, CallID: call.ID, Reason: reason, Err: err}
	}
	if len(output) == 0 {
		output = json.RawMessage("null")
	}
	if !json.Valid(output) {
		return nil, &Error{Kind: KindExecutionFailed, Tool: call.Name, CallID: call.ID, Reason: "tool returned invalid JSON"}
	}
	return output, nil
}

// run executes t and converts a panic into an error.
func run(ctx context.Context, t Tool, input json.RawMessage, tc Context) (out json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return t.Execute(ctx, input, tc)
}

func validateInput(rt registeredTool, input json.RawMessage) (json.RawMessage, error) {
	if strings.TrimSpace(string(input)) == "" {
		input = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(input, &v); err != nil {
		return nil, err
	}
	if rt.schema == nil {
		if _, ok := v.(map[string]any); !ok {
			return nil, errors.New("input must be a JSON object")
		}
		return input, nil
	}
	if err := rt.schema.Validate(v); err != nil {
		return nil, err
	}
	return input, nil
}

func (e *Executor) requiresApproval(name string) bool {
	if e.approver == nil {
		return false
	}
	return len(e.approvalRequired) == 0 || slices.Contains(e.approvalRequired, name)
}

func errorResult(call ai.ToolCall, err error) ai.ToolResult {
	msg := err.Error()
	kind := ""
	var te *Error
	if errors.As(err, &te) {
		kind = string(te.Kind)
		if te.Kind == KindExecutionDenied {
			msg = te.Reason
		}
	}
	output, _ := json.Marshal(msg)
	return ai.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Output:     output,
		IsError:    true,
		ErrorKind:  kind,
	}
}
