package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/event"
	"github.com/spetersoncode/loom/middleware"
	"github.com/spetersoncode/loom/retry"
	"github.com/spetersoncode/loom/stop"
	"github.com/spetersoncode/loom/store"
	"github.com/spetersoncode/loom/stream"
	"github.com/spetersoncode/loom/tool"
)

// Agent runs tool loops against a model.
type Agent struct {
	model    ai.LanguageModel
	registry *tool.Registry
	defaults []Option
}

// New creates an Agent. opts are defaults for every run; options passed to
// Run and RunStream are applied after them.
func New(model ai.LanguageModel, registry *tool.Registry, opts ...Option) *Agent {
	if registry == nil {
		registry = tool.NewRegistry()
	}
	return &Agent{
		model:    model,
		registry: registry,
		defaults: opts,
	}
}

// Run executes the loop until it finishes or fails. The result is never
// nil: on failure it holds the steps completed so far and err equals
// result.Err.
func (a *Agent) Run(ctx context.Context, messages []ai.Message, opts ...Option) (*Result, error) {
	r := a.newRun(messages, nil, opts)
	res := r.execute(ctx)
	return res, res.Err
}

// RunStream executes the loop in a goroutine and returns its events. The
// channel is closed after the RunEnd or RunError event. Callers must drain
// the channel or cancel ctx.
func (a *Agent) RunStream(ctx context.Context, messages []ai.Message, opts ...Option) <-chan event.Event {
	ch := event.NewChannel()
	r := a.newRun(messages, ch, opts)
	go func() {
		defer close(ch)
		r.execute(ctx)
	}()
	return ch
}

// run is the state of one loop invocation. It is owned by a single
// goroutine; only the event channel and the tool hooks are shared.
type run struct {
	id       string
	model    ai.LanguageModel
	registry *tool.Registry
	opts     *Options
	input    []ai.Message
	events   chan<- event.Event
	log      *slog.Logger

	decoder  *stream.Decoder
	executor *tool.Executor
	history  *store.MessageStore
	steps    []ai.StepResult
	usage    ai.Usage
	state    State
}

func (a *Agent) newRun(messages []ai.Message, events chan<- event.Event, opts []Option) *run {
	options := ApplyOptions(append(slices.Clone(a.defaults), opts...)...)
	id := uuid.NewString()
	log := options.Logger.With("run_id", id)

	model := a.model
	if model != nil && len(options.Middleware) > 0 {
		model = middleware.Wrap(model, options.Middleware...)
	}

	return &run{
		id:       id,
		model:    model,
		registry: a.registry,
		opts:     options,
		input:    messages,
		events:   events,
		log:      log,
		decoder:  stream.NewDecoder(stream.WithLogger(log)),
	}
}

func (r *run) execute(ctx context.Context) *Result {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	r.emit(ctx, event.Event{Type: event.RunStart})

	if err := r.prepare(ctx); err != nil {
		return r.fail(ctx, err)
	}

	for step := 1; ; step++ {
		if ctx.Err() != nil {
			return r.fail(ctx, cancelled(ctx))
		}
		r.emit(ctx, event.Event{Type: event.StepStart, Step: step})

		result, err := r.modelStep(ctx, step)
		if err != nil {
			return r.fail(ctx, err)
		}

		pending := pendingCalls(result)
		wantsTools := result.FinishReason == ai.FinishToolCalls && len(pending) > 0
		if wantsTools {
			r.transition(ctx, StateExecutingTools, step)
			results, err := r.executeTools(ctx, step, pending)
			if errors.Is(err, ErrCancelled) {
				return r.fail(ctx, err)
			}
			result.ToolResults = results
			r.history.Append(ai.NewToolMessage(results...))
			if err != nil {
				r.finishStep(ctx, result)
				return r.fail(ctx, err)
			}
		}
		r.finishStep(ctx, result)

		if !wantsTools {
			return r.finish(ctx)
		}
		if r.opts.StopWhen.ShouldStop(step, result.FinishReason) {
			if stop.Exhausted(r.opts.StopWhen, step) {
				return r.fail(ctx, fmt.Errorf("%w: %s", ErrMaxStepsReached, stop.Name(r.opts.StopWhen)))
			}
			r.log.Debug("stop condition met", "condition", stop.Name(r.opts.StopWhen), "step", step)
			return r.finish(ctx)
		}
		for _, p := range r.opts.StopPredicates {
			if p(result) {
				return r.finish(ctx)
			}
		}
	}
}

func (r *run) prepare(ctx context.Context) error {
	if r.model == nil {
		return &ai.ConfigError{Field: "model", Reason: "is required"}
	}
	if r.opts.StopWhen == nil {
		r.opts.StopWhen = stop.StepCountIs(stop.DefaultMaxSteps)
	}

	r.history = store.NewMessageStore(r.opts.Session)
	if r.opts.Session != nil && r.opts.SessionKey != "" {
		err := r.history.Reload(ctx, r.opts.SessionKey)
		if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return fmt.Errorf("agent: load session: %w", err)
		}
	}
	r.history.Append(r.input...)

	concurrency := r.opts.MaxConcurrency
	if !r.opts.ParallelToolCalls {
		concurrency = 1
	}
	r.executor = tool.NewExecutor(r.registry,
		tool.WithMaxConcurrency(concurrency),
		tool.WithTimeout(r.opts.ToolTimeout),
		tool.WithApprover(r.opts.Approver, r.opts.ApprovalRequired...),
		tool.WithLogger(r.log),
		tool.WithHooks(r.toolHooks(ctx)),
	)
	return nil
}

// modelStep runs AwaitingModel and Decoding for one step.
func (r *run) modelStep(ctx context.Context, step int) (ai.StepResult, error) {
	r.transition(ctx, StateAwaitingModel, step)

	opts, err := r.callOptions(step)
	if err != nil {
		return ai.StepResult{}, err
	}

	// scoped so the decoder and the model stream stop with the step
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	parts, warnings, err := r.call(stepCtx, step, opts)
	if err != nil {
		return ai.StepResult{}, err
	}

	r.transition(ctx, StateDecoding, step)
	acc, err := r.decode(ctx, step, parts)
	if err != nil {
		return ai.StepResult{}, err
	}

	resp := acc.Response()
	result := ai.StepResult{
		Step:         step,
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		Warnings:     warnings,
		Response:     resp.Response,
	}
	r.usage = r.usage.Add(result.Usage)
	if len(result.Content) > 0 {
		r.history.Append(ai.NewAssistantMessage(result.Content...))
	}
	return result, nil
}

func (r *run) callOptions(step int) (ai.CallOptions, error) {
	messages := r.history.Messages()
	if r.opts.Instructions != "" {
		messages = append([]ai.Message{ai.NewSystemMessage(r.opts.Instructions)}, messages...)
	}

	opts := ai.CallOptions{Messages: messages}
	if r.registry.Len() > 0 {
		opts.Tools = r.registry.Definitions()
	}
	for _, opt := range r.opts.CallOptions {
		opt(&opts)
	}
	if r.opts.PrepareStep != nil {
		opts = r.opts.PrepareStep(step, opts.Clone())
	}
	if err := opts.Validate(); err != nil {
		return ai.CallOptions{}, err
	}
	return opts, nil
}

// call establishes the model call with retries and returns its parts.
// Generate responses go through the decoder too, so both paths produce the
// same parts and ids.
func (r *run) call(ctx context.Context, step int, opts ai.CallOptions) (<-chan ai.StreamPart, []ai.Warning, error) {
	notify := retry.WithNotify(func(e retry.Event) {
		if e.Type != retry.EventRetrying {
			return
		}
		r.log.Warn("retrying model call", "step", step, "attempt", e.Attempt, "delay", e.Delay, "error", e.Err)
		r.emit(ctx, event.Event{Type: event.Retrying, Step: step, Attempt: e.Attempt, Delay: e.Delay, Error: e.Err})
	})

	if r.opts.Streaming {
		raw, err := retry.DoStream(ctx, r.opts.Retry, func() (<-chan ai.RawEvent, error) {
			return r.model.Stream(ctx, opts)
		}, notify)
		if err != nil {
			return nil, nil, r.callError(ctx, err)
		}
		return r.decoder.Decode(ctx, raw), nil, nil
	}

	resp, err := retry.Do(ctx, r.opts.Retry, func() (*ai.GenerateResponse, error) {
		return r.model.Generate(ctx, opts)
	}, notify)
	if err != nil {
		return nil, nil, r.callError(ctx, err)
	}
	if resp == nil {
		return nil, nil, &ai.ProtocolError{Reason: "model returned no response"}
	}
	return r.decoder.Decode(ctx, stream.Events(ctx, resp)), resp.Warnings, nil
}

func (r *run) callError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	return err
}

// decode consumes parts into an accumulator. Tool calls are final only at
// their end part; a cancelled stream yields no partial step.
func (r *run) decode(ctx context.Context, step int, parts <-chan ai.StreamPart) (*stream.Accumulator, error) {
	acc := stream.NewAccumulator()
	for {
		select {
		case <-ctx.Done():
			return nil, cancelled(ctx)
		case p, ok := <-parts:
			if !ok {
				if ctx.Err() != nil && !acc.Finished() {
					return nil, cancelled(ctx)
				}
				return acc, nil
			}
			if err := acc.Add(p); err != nil {
				return nil, err
			}
			r.forward(ctx, step, p)
		}
	}
}

// forward reports a decoded part as an event.
func (r *run) forward(ctx context.Context, step int, p ai.StreamPart) {
	e := event.Event{Step: step, MessageID: p.ID, Delta: p.Delta}
	switch p.Type {
	case ai.PartTextStart:
		e.Type = event.MessageStart
	case ai.PartTextDelta:
		e.Type = event.MessageDelta
	case ai.PartTextEnd:
		e.Type = event.MessageEnd
	case ai.PartReasoningStart:
		e.Type = event.ReasoningStart
	case ai.PartReasoningDelta:
		e.Type = event.ReasoningDelta
	case ai.PartReasoningEnd:
		e.Type = event.ReasoningEnd
	case ai.PartToolCallStart:
		e.Type = event.ToolCallStart
		e.ToolCall = &ai.ToolCall{ID: p.ID, Name: p.ToolName}
	case ai.PartToolInputDelta:
		e.Type = event.ToolCallArgs
		e.ToolCall = &ai.ToolCall{ID: p.ID, Name: p.ToolName}
		e.Partial = p.Partial
	case ai.PartToolCallEnd:
		e.Type = event.ToolCallEnd
		call := p.ToolCall()
		e.ToolCall = &call
	case ai.PartToolResult:
		e.Type = event.ToolCallResult
		e.ToolResult = p.ToolResult
	default:
		return
	}
	r.emit(ctx, e)
}

func (r *run) executeTools(ctx context.Context, step int, calls []ai.ToolCall) ([]ai.ToolResult, error) {
	tc := tool.Context{Step: step, Messages: r.history.Messages()}
	outcomes := r.executor.ExecuteAll(ctx, calls, tc)
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	results := make([]ai.ToolResult, len(outcomes))
	var fatal error
	for i, o := range outcomes {
		results[i] = o.Result
		if o.Err == nil || fatal != nil || r.opts.ToolErrors != ToolErrorsFatal {
			continue
		}
		if !tool.IsKind(o.Err, tool.KindExecutionDenied) {
			fatal = o.Err
		}
	}
	return results, fatal
}

func (r *run) toolHooks(ctx context.Context) tool.Hooks {
	return tool.Hooks{
		Approved: func(call ai.ToolCall) {
			r.emit(ctx, event.Event{Type: event.ToolCallApproved, ToolCall: &call})
		},
		Rejected: func(call ai.ToolCall, reason string) {
			r.emit(ctx, event.Event{Type: event.ToolCallRejected, ToolCall: &call, Message: reason})
		},
		Executing: func(call ai.ToolCall) {
			r.emit(ctx, event.Event{Type: event.ToolCallExecuting, ToolCall: &call})
		},
		Done: func(o tool.Outcome) {
			r.emit(ctx, event.Event{Type: event.ToolCallResult, ToolCall: &o.Call, ToolResult: &o.Result})
		},
	}
}

func (r *run) finishStep(ctx context.Context, result ai.StepResult) {
	r.steps = append(r.steps, result)
	if r.opts.OnStepFinish != nil {
		r.opts.OnStepFinish(result)
	}
	r.emit(ctx, event.Event{Type: event.StepEnd, Step: result.Step, StepResult: &result})
}

func (r *run) finish(ctx context.Context) *Result {
	if r.opts.Session != nil && r.opts.SessionKey != "" {
		if err := r.history.Sync(ctx, r.opts.SessionKey); err != nil {
			return r.fail(ctx, fmt.Errorf("agent: save session: %w", err))
		}
	}

	r.transition(ctx, StateFinished, len(r.steps))
	res := r.result(nil)
	r.log.Debug("agent run finished", "steps", len(r.steps), "finish_reason", res.FinishReason, "total_tokens", res.Usage.Total())
	if r.opts.OnFinish != nil {
		r.opts.OnFinish(res)
	}
	r.emitFinal(ctx, event.Event{Type: event.RunEnd, Step: len(r.steps), Message: string(res.FinishReason)})
	return res
}

func (r *run) fail(ctx context.Context, err error) *Result {
	r.transition(ctx, StateFailed, len(r.steps))
	if errors.Is(err, ErrCancelled) {
		r.log.Warn("agent run cancelled", "steps", len(r.steps), "error", err)
	} else {
		r.log.Error("agent run failed", "steps", len(r.steps), "error", err)
	}
	r.emitFinal(ctx, event.Event{Type: event.RunError, Step: len(r.steps), Error: err})
	return r.result(err)
}

func (r *run) result(err error) *Result {
	res := &Result{
		Steps:   slices.Clone(r.steps),
		Usage:   r.usage,
		State:   r.state,
		Err:     err,
		history: r.history,
	}
	if last, ok := res.LastStep(); ok {
		res.Text = last.Text()
		res.FinishReason = last.FinishReason
	}
	return res
}

func (r *run) transition(ctx context.Context, s State, step int) {
	r.state = s
	r.log.Debug("agent state", "state", s, "step", step)
	r.emit(ctx, event.Event{Type: event.StateChange, State: string(s), Step: step})
}

func (r *run) emit(ctx context.Context, e event.Event) {
	if r.events == nil {
		return
	}
	e.RunID = r.id
	_ = event.Emit(ctx, r.events, e)
}

// emitFinal delivers the terminal event even after cancellation when the
// channel has room.
func (r *run) emitFinal(ctx context.Context, e event.Event) {
	if r.events == nil {
		return
	}
	if ctx.Err() == nil {
		r.emit(ctx, e)
		return
	}
	e.RunID = r.id
	e.Timestamp = time.Now()
	select {
	case r.events <- e:
	default:
	}
}

// pendingCalls returns the step's tool calls that have no result yet.
// Provider-executed calls arrive with their result in the content.
func pendingCalls(step ai.StepResult) []ai.ToolCall {
	done := make(map[string]bool)
	for _, part := range step.Content {
		if part.Type == ai.ContentPartTypeToolResult && part.ToolResult != nil {
			done[part.ToolResult.ToolCallID] = true
		}
	}
	var pending []ai.ToolCall
	for _, call := range step.ToolCalls() {
		if !done[call.ID] {
			pending = append(pending, call)
		}
	}
	return pending
}
