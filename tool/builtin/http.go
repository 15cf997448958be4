package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spetersoncode/loom/tool"
)

type httpArgs struct {
	URL     string            `json:"url" jsonschema:"absolute http or https URL"`
	Method  string            `json:"method,omitempty" jsonschema:"GET, POST, PUT, DELETE or PATCH; defaults to GET"`
	Headers map[string]string `json:"headers,omitempty" jsonschema:"request headers"`
	Body    string            `json:"body,omitempty" jsonschema:"request body"`
}

type httpResult struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body"`
	Truncated   bool   `json:"truncated,omitempty"`
}

func httpRequest(c *config) tool.Tool {
	return tool.Func("http_request", "Make an HTTP request and return the response body",
		func(ctx context.Context, args httpArgs) (httpResult, error) {
			if err := c.checkURL(args.URL); err != nil {
				return httpResult{}, &tool.Error{Kind: tool.KindInvalidInput, Err: err}
			}
			method := strings.ToUpper(args.Method)
			if method == "" {
				method = http.MethodGet
			}

			var body io.Reader
			if args.Body != "" {
				body = strings.NewReader(args.Body)
			}
			req, err := http.NewRequestWithContext(ctx, method, args.URL, body)
			if err != nil {
				return httpResult{}, err
			}
			for k, v := range args.Headers {
				req.Header.Set(k, v)
			}

			resp, err := c.client.Do(req)
			if err != nil {
				return httpResult{}, err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
			if err != nil {
				return httpResult{}, err
			}
			res := httpResult{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type")}
			if int64(len(data)) > c.maxBodySize {
				data, res.Truncated = data[:c.maxBodySize], true
			}
			res.Body = string(data)
			return res, nil
		})
}

func (c *config) checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if len(c.allowedHosts) == 0 {
		return nil
	}
	host := u.Hostname()
	for _, h := range c.allowedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return nil
		}
	}
	return fmt.Errorf("host %q is not allowed", host)
}
