package loom

// FinishReason classifies why a single model call stopped producing output.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
	FinishUnknown       FinishReason = "unknown"
)

// String returns the finish reason identifier.
func (f FinishReason) String() string {
	if f == "" {
		return string(FinishUnknown)
	}
	return string(f)
}

// ParseFinishReason maps a normalized identifier back to a FinishReason.
// Unrecognized values map to FinishOther, empty to FinishUnknown.
func ParseFinishReason(s string) FinishReason {
	switch FinishReason(s) {
	case FinishStop, FinishLength, FinishContentFilter, FinishToolCalls, FinishError, FinishOther, FinishUnknown:
		return FinishReason(s)
	case "":
		return FinishUnknown
	default:
		return FinishOther
	}
}
