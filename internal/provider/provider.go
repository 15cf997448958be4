// Package provider holds helpers shared by the vendor adapters.
package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	ai "github.com/spetersoncode/loom"
)

// StatusError categorizes an HTTP failure reported by a vendor SDK. It
// extracts the Retry-After header for rate limits.
func StatusError(err error, code int, header http.Header) *ai.UpstreamError {
	cat := ai.CategoryForStatus(code)
	e := ai.NewUpstreamError(cat, err.Error(), code, err)
	if cat == ai.ErrorRateLimit || cat == ai.ErrorTransient {
		e.RetryDelay = ParseRetryAfter(header)
	}
	return e
}

// ParseRetryAfter extracts the Retry-After duration from response headers.
// Returns 0 if the header is not present or cannot be parsed.
func ParseRetryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	if ms := h.Get("Retry-After-Ms"); ms != "" {
		if n, err := strconv.ParseFloat(ms, 64); err == nil && n > 0 {
			return time.Duration(n * float64(time.Millisecond))
		}
	}

	header := h.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return 0
}

// ToolInput normalizes streamed tool arguments: empty input is {}.
func ToolInput(args string) json.RawMessage {
	if strings.TrimSpace(args) == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

// Object decodes a JSON object, falling back to an empty map so vendor
// SDKs that want maps never see nil.
func Object(raw json.RawMessage) map[string]any {
	m := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &m)
	}
	return m
}

// ResultValue decodes a tool output for vendors that want structured
// results. Non-object outputs are wrapped under "result"; failures under
// "error".
func ResultValue(r ai.ToolResult) map[string]any {
	var v any
	if err := json.Unmarshal(r.Output, &v); err != nil {
		v = string(r.Output)
	}
	key := "result"
	if r.IsError {
		key = "error"
	}
	if m, ok := v.(map[string]any); ok && !r.IsError {
		return m
	}
	return map[string]any{key: v}
}

// Unsupported reports a call setting the vendor ignores.
func Unsupported(setting string) ai.Warning {
	return ai.Warning{Type: "unsupported-setting", Setting: setting}
}

// Send delivers ev unless ctx ends first.
func Send(ctx context.Context, ch chan<- ai.RawEvent, ev ai.RawEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Float32 converts an optional float for SDKs using float32.
func Float32(p *float64) *float32 {
	if p == nil {
		return nil
	}
	f := float32(*p)
	return &f
}

// Int32 converts an optional int for SDKs using int32.
func Int32(p *int) *int32 {
	if p == nil {
		return nil
	}
	n := int32(*p)
	return &n
}

// Tokens converts a vendor counter into a usage field.
func Tokens[N ~int | ~int32 | ~int64](n N) *int {
	return ai.Tokens(int(n))
}

// FileURL returns a URL for a file part: its URL, or a data URI built from
// inline data.
func FileURL(f *ai.File) (string, error) {
	if f == nil {
		return "", &ai.ConfigError{Field: "messages", Reason: "file part without file"}
	}
	if f.URL != "" {
		return f.URL, nil
	}
	if len(f.Data) == 0 {
		return "", &ai.ConfigError{Field: "messages", Reason: "file part needs data or url"}
	}
	mediaType := f.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(f.Data), nil
}
