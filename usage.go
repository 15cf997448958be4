package loom

// Usage contains token counters for one or more model calls. Every counter
// is optional: nil means the provider never reported it.
type Usage struct {
	InputTokens       *int `json:"inputTokens,omitempty"`
	OutputTokens      *int `json:"outputTokens,omitempty"`
	TotalTokens       *int `json:"totalTokens,omitempty"`
	ReasoningTokens   *int `json:"reasoningTokens,omitempty"`
	CachedInputTokens *int `json:"cachedInputTokens,omitempty"`
}

// Tokens returns a pointer to n, for building Usage literals.
func Tokens(n int) *int {
	return &n
}

// Add returns the field-wise sum of u and other. An absent field counts as
// zero, but a field absent on both sides stays absent.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:       addCounter(u.InputTokens, other.InputTokens),
		OutputTokens:      addCounter(u.OutputTokens, other.OutputTokens),
		TotalTokens:       addCounter(u.TotalTokens, other.TotalTokens),
		ReasoningTokens:   addCounter(u.ReasoningTokens, other.ReasoningTokens),
		CachedInputTokens: addCounter(u.CachedInputTokens, other.CachedInputTokens),
	}
}

// IsZero reports whether no counter was ever reported.
func (u Usage) IsZero() bool {
	return u.InputTokens == nil && u.OutputTokens == nil && u.TotalTokens == nil &&
		u.ReasoningTokens == nil && u.CachedInputTokens == nil
}

// Total returns TotalTokens when reported, otherwise input plus output.
func (u Usage) Total() int {
	if u.TotalTokens != nil {
		return *u.TotalTokens
	}
	return valueOf(u.InputTokens) + valueOf(u.OutputTokens)
}

func addCounter(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	n := valueOf(a) + valueOf(b)
	return &n
}

func valueOf(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
