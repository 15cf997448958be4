// Package builtin provides ready-made tools for local agents: reading and
// listing files inside a workspace, searching file contents and making
// HTTP requests.
//
// All file tools are confined to a root directory:
//
//	registry := tool.NewRegistry().Add(builtin.Standard(builtin.WithRoot("."))...)
package builtin

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/spetersoncode/loom/tool"
)

// Option configures the built-in tools.
type Option func(*config)

type config struct {
	root         string
	maxFileSize  int64
	maxResults   int
	client       *http.Client
	allowedHosts []string
	maxBodySize  int64
}

// WithRoot confines file tools to dir. Default is the working directory.
func WithRoot(dir string) Option {
	return func(c *config) {
		c.root = dir
	}
}

// WithMaxFileSize bounds how much of a file read_file returns.
// Default is 1MB.
func WithMaxFileSize(n int64) Option {
	return func(c *config) {
		c.maxFileSize = n
	}
}

// WithMaxResults bounds the number of search matches. Default is 100.
func WithMaxResults(n int) Option {
	return func(c *config) {
		c.maxResults = n
	}
}

// WithHTTPClient sets the client used by http_request.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// WithAllowedHosts restricts http_request to the given hosts and their
// subdomains.
func WithAllowedHosts(hosts ...string) Option {
	return func(c *config) {
		c.allowedHosts = hosts
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		root:        ".",
		maxFileSize: 1 << 20,
		maxResults:  100,
		maxBodySize: 1 << 20,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// Standard returns read_file, list_directory, search_files and
// http_request.
func Standard(opts ...Option) []tool.Tool {
	c := newConfig(opts)
	return []tool.Tool{
		readFile(c),
		listDirectory(c),
		searchFiles(c),
		httpRequest(c),
	}
}

// Files returns only the read-only file tools.
func Files(opts ...Option) []tool.Tool {
	c := newConfig(opts)
	return []tool.Tool{readFile(c), listDirectory(c), searchFiles(c)}
}

// resolve maps a tool supplied path into the root, rejecting escapes.
func (c *config) resolve(path string) (string, error) {
	root := filepath.Clean(c.root)
	full := filepath.Join(root, filepath.Clean("/"+path))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside %q", path, root)
	}
	return full, nil
}
