package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/loom/tool"
)

func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.go"), []byte("package sub\n\nfunc Two() {}\n"), 0o644))
	return dir
}

func run(t *testing.T, tl tool.Tool, input string, out any) error {
	t.Helper()
	raw, err := tl.Execute(context.Background(), json.RawMessage(input), tool.Context{})
	if err != nil {
		return err
	}
	require.NoError(t, json.Unmarshal(raw, out))
	return nil
}

func TestReadFile(t *testing.T) {
	c := newConfig([]Option{WithRoot(workspace(t))})

	t.Run("whole file", func(t *testing.T) {
		var res readFileResult
		require.NoError(t, run(t, readFile(c), `{"path":"a.txt"}`, &res))
		assert.Equal(t, "one\ntwo\nthree", res.Content)
		assert.False(t, res.Truncated)
	})

	t.Run("line range", func(t *testing.T) {
		var res readFileResult
		require.NoError(t, run(t, readFile(c), `{"path":"a.txt","start_line":2,"end_line":2}`, &res))
		assert.Equal(t, "two", res.Content)
	})

	t.Run("escape is rejected", func(t *testing.T) {
		var res readFileResult
		err := run(t, readFile(c), `{"path":"../../etc/passwd"}`, &res)
		assert.Error(t, err)
	})

	t.Run("truncated at limit", func(t *testing.T) {
		small := newConfig([]Option{WithRoot(c.root), WithMaxFileSize(5)})
		var res readFileResult
		require.NoError(t, run(t, readFile(small), `{"path":"a.txt"}`, &res))
		assert.Equal(t, "one", res.Content)
		assert.True(t, res.Truncated)
	})
}

func TestListDirectory(t *testing.T) {
	c := newConfig([]Option{WithRoot(workspace(t))})

	var flat listDirResult
	require.NoError(t, run(t, listDirectory(c), `{}`, &flat))
	assert.Equal(t, 2, flat.Count)

	var deep listDirResult
	require.NoError(t, run(t, listDirectory(c), `{"recursive":true}`, &deep))
	paths := make([]string, 0, deep.Count)
	for _, e := range deep.Entries {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub", "sub/b.go"}, paths)
}

func TestSearchFiles(t *testing.T) {
	c := newConfig([]Option{WithRoot(workspace(t))})

	var res searchResult
	require.NoError(t, run(t, searchFiles(c), `{"pattern":"[Tt]wo","file_pattern":"*.go"}`, &res))
	require.Equal(t, 1, res.Count)
	assert.Equal(t, searchMatch{File: "sub/b.go", Line: 3, Content: "func Two() {}"}, res.Matches[0])

	err := run(t, searchFiles(c), `{"pattern":"("}`, &res)
	assert.True(t, tool.IsKind(err, tool.KindInvalidInput))
}

func TestHTTPRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(r.Method + " ok"))
	}))
	defer srv.Close()

	c := newConfig(nil)
	var res httpResult
	require.NoError(t, run(t, httpRequest(c), `{"url":"`+srv.URL+`","method":"post"}`, &res))
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, "POST ok", res.Body)

	restricted := newConfig([]Option{WithAllowedHosts("example.com")})
	err := run(t, httpRequest(restricted), `{"url":"`+srv.URL+`"}`, &res)
	assert.True(t, tool.IsKind(err, tool.KindInvalidInput))
}

func TestStandardRegisters(t *testing.T) {
	r := tool.NewRegistry().Add(Standard()...)
	assert.Equal(t, []string{"read_file", "list_directory", "search_files", "http_request"}, r.Names())
}
