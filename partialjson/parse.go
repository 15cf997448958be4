package partialjson

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// State reports how Parse obtained its value.
type State int

const (
	// Undefined means the input holds no value yet.
	Undefined State = iota
	// Successful means the input parsed strictly without repair.
	Successful
	// Repaired means the input parsed after repair.
	Repaired
	// Failed means the repaired text still did not parse. This is a defect
	// in the repairer and is logged as such.
	Failed
)

func (s State) String() string {
	switch s {
	case Successful:
		return "successful"
	case Repaired:
		return "repaired"
	case Failed:
		return "failed"
	default:
		return "undefined"
	}
}

// Parse decodes text strictly when possible and falls back to Repair.
// It returns the repaired text alongside the value so callers can forward
// both.
func Parse(text string) (value any, repaired string, state State) {
	if strings.TrimSpace(text) == "" {
		return nil, "", Undefined
	}
	if err := json.Unmarshal([]byte(text), &value); err == nil {
		return value, text, Successful
	}

	repaired = Repair(text)
	if repaired == "" {
		return nil, "", Undefined
	}
	if err := json.Unmarshal([]byte(repaired), &value); err != nil {
		slog.Error("partialjson: repaired text does not parse",
			"input", text,
			"repaired", repaired,
			"error", err,
		)
		return nil, repaired, Failed
	}
	return value, repaired, Repaired
}
