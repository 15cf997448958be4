// Package agui connects tool loop runs to the AG-UI protocol.
//
// AG-UI (Agent-User Interface) is an event-based protocol that standardizes
// how agents talk to user-facing applications. This package provides:
//
//   - [Mapper]: converts loop events into AG-UI events
//   - [ToMessages], [FromMessages]: message conversion in both directions
//   - [Handler]: an http.Handler serving a run as a stream of SSE events
//   - [ApprovalHandler]: delivers frontend approval decisions to a tool.Broker
//
// # Usage
//
//	broker := tool.NewBroker()
//	a := agent.New(model, registry, agent.WithApprover(broker.Approver(), "delete_file"))
//
//	mux := http.NewServeMux()
//	mux.Handle("/agent", agui.NewHandler(a, agui.WithRunOptions(agent.WithMaxSteps(10))))
//	mux.Handle("/approve", agui.ApprovalHandler(broker))
//
// # Event Mapping
//
//   - run_start, run_end, run_error → RUN_STARTED, RUN_FINISHED, RUN_ERROR
//   - step_start, step_end → STEP_STARTED, STEP_FINISHED named "step-N"
//   - message_start, message_delta, message_end → TEXT_MESSAGE_*
//   - tool_call_start, tool_call_args, tool_call_end → TOOL_CALL_*
//   - tool_call_result → TOOL_CALL_RESULT
//
// Reasoning, state changes, retries and approval events are not mapped.
//
// The Mapper is NOT safe for concurrent use. Message conversion functions
// are stateless.
package agui
