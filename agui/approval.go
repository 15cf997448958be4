package agui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spetersoncode/loom/tool"
)

// ErrNoToolCallID is returned for approvals that name no tool call.
var ErrNoToolCallID = errors.New("agui: approval has no toolCallId")

// approvalBody is the JSON a frontend posts when the user approves or
// rejects a pending tool call.
type approvalBody struct {
	ToolCallID string `json:"toolCallId"`
	Approved   bool   `json:"approved"`
	Reason     string `json:"reason,omitempty"`
}

// DecodeApproval reads an approval body of at most 1MB.
func DecodeApproval(r io.Reader) (tool.Decision, error) {
	var body approvalBody
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&body); err != nil {
		return tool.Decision{}, fmt.Errorf("agui: decode approval: %w", err)
	}
	if body.ToolCallID == "" {
		return tool.Decision{}, ErrNoToolCallID
	}
	return tool.Decision{ToolCallID: body.ToolCallID, Approved: body.Approved, Reason: body.Reason}, nil
}

// ApprovalHandler delivers posted decisions to broker. It answers 204 once
// the waiting call received the decision and 404 when no call with that id
// is waiting.
func ApprovalHandler(broker *tool.Broker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		d, err := DecodeApproval(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := broker.Decide(d); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
