package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	ai "github.com/spetersoncode/loom"
)

// Decision is a human decision on a pending tool call.
type Decision struct {
	ToolCallID string
	Approved   bool
	// Reason is sent to the model when the call is rejected.
	Reason string
}

// Broker routes decisions made elsewhere (a UI, an HTTP endpoint) to the
// tool calls waiting for them.
//
//	broker := tool.NewBroker()
//	go func() {
//	    for d := range decisions {
//	        broker.Decide(d)
//	    }
//	}()
//	executor := tool.NewExecutor(registry, tool.WithApprover(broker.Approver()))
type Broker struct {
	mu       sync.Mutex
	pending  map[string]chan Decision
	timeout  time.Duration
	onSubmit func(call ai.ToolCall)
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithDecisionTimeout bounds how long a call waits for its decision.
// Default is 5 minutes.
func WithDecisionTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		b.timeout = d
	}
}

// WithOnSubmit is called when a call starts waiting for a decision.
func WithOnSubmit(fn func(call ai.ToolCall)) BrokerOption {
	return func(b *Broker) {
		b.onSubmit = fn
	}
}

// NewBroker creates a Broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		pending: make(map[string]chan Decision),
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Approver returns an Approver that blocks until a decision arrives, the
// timeout passes, or ctx ends.
func (b *Broker) Approver() Approver {
	return b.wait
}

// Decide delivers a decision. It fails when no call with that id is
// waiting.
func (b *Broker) Decide(d Decision) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.pending[d.ToolCallID]
	if !ok {
		return fmt.Errorf("tool: no pending approval for call %q", d.ToolCallID)
	}
	select {
	case ch <- d:
	default:
	}
	return nil
}

// Approve approves a pending call.
func (b *Broker) Approve(toolCallID string) error {
	return b.Decide(Decision{ToolCallID: toolCallID, Approved: true})
}

// Reject rejects a pending call.
func (b *Broker) Reject(toolCallID, reason string) error {
	return b.Decide(Decision{ToolCallID: toolCallID, Reason: reason})
}

// Pending returns the number of calls waiting for a decision.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Broker) wait(ctx context.Context, call ai.ToolCall) (bool, string) {
	ch := make(chan Decision, 1)

	b.mu.Lock()
	b.pending[call.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, call.ID)
		b.mu.Unlock()
	}()

	if b.onSubmit != nil {
		b.onSubmit(call)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	select {
	case d := <-ch:
		return d.Approved, d.Reason
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return false, "approval cancelled"
		}
		return false, "approval timeout"
	}
}
