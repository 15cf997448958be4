package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spetersoncode/loom/tool"
)

type readFileArgs struct {
	Path      string `json:"path" jsonschema:"path of the file, relative to the workspace root"`
	StartLine int    `json:"start_line,omitempty" jsonschema:"1-based first line to return"`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"1-based last line to return, inclusive"`
}

type readFileResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

func readFile(c *config) tool.Tool {
	return tool.Func("read_file", "Read a text file from the workspace",
		func(ctx context.Context, args readFileArgs) (readFileResult, error) {
			path, err := c.resolve(args.Path)
			if err != nil {
				return readFileResult{}, err
			}
			f, err := os.Open(path)
			if err != nil {
				return readFileResult{}, err
			}
			defer f.Close()

			content, truncated, err := readLines(f, args.StartLine, args.EndLine, c.maxFileSize)
			if err != nil {
				return readFileResult{}, err
			}
			return readFileResult{Path: args.Path, Content: content, Truncated: truncated}, nil
		})
}

// readLines returns lines start..end (1-based, inclusive; 0 means open) and
// stops once limit bytes were collected.
func readLines(r io.Reader, start, end int, limit int64) (string, bool, error) {
	if start < 1 {
		start = 1
	}
	if end != 0 && end < start {
		return "", false, fmt.Errorf("end_line (%d) must be >= start_line (%d)", end, start)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	var b strings.Builder
	n := 0
	for scanner.Scan() {
		n++
		if n < start {
			continue
		}
		if end > 0 && n > end {
			break
		}
		line := scanner.Text()
		if int64(b.Len()+len(line)+1) > limit {
			return b.String(), true, nil
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return "", false, err
	}
	if n < start && n > 0 {
		return "", false, fmt.Errorf("start_line %d is beyond file length (%d lines)", start, n)
	}
	return b.String(), false, nil
}

type listDirArgs struct {
	Path      string `json:"path,omitempty" jsonschema:"directory to list, relative to the workspace root"`
	Recursive bool   `json:"recursive,omitempty" jsonschema:"include subdirectories"`
}

type dirEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

type listDirResult struct {
	Path    string     `json:"path"`
	Count   int        `json:"count"`
	Entries []dirEntry `json:"entries"`
}

func listDirectory(c *config) tool.Tool {
	return tool.Func("list_directory", "List the entries of a workspace directory",
		func(ctx context.Context, args listDirArgs) (listDirResult, error) {
			dir, err := c.resolve(args.Path)
			if err != nil {
				return listDirResult{}, err
			}

			entries := []dirEntry{}
			walk := func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if path == dir {
					return nil
				}
				rel, _ := filepath.Rel(dir, path)
				e := dirEntry{Path: filepath.ToSlash(rel), IsDir: d.IsDir()}
				if info, err := d.Info(); err == nil && !d.IsDir() {
					e.Size = info.Size()
				}
				entries = append(entries, e)
				if d.IsDir() && !args.Recursive {
					return filepath.SkipDir
				}
				return nil
			}
			if err := filepath.WalkDir(dir, walk); err != nil {
				return listDirResult{}, err
			}
			return listDirResult{Path: args.Path, Count: len(entries), Entries: entries}, nil
		})
}

type searchArgs struct {
	Pattern     string `json:"pattern" jsonschema:"regular expression to search for"`
	Path        string `json:"path,omitempty" jsonschema:"directory to search, relative to the workspace root"`
	FilePattern string `json:"file_pattern,omitempty" jsonschema:"glob on file names, e.g. *.go"`
}

type searchMatch struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Content string `json:"content"`
}

type searchResult struct {
	Pattern   string        `json:"pattern"`
	Count     int           `json:"count"`
	Truncated bool          `json:"truncated,omitempty"`
	Matches   []searchMatch `json:"matches"`
}

func searchFiles(c *config) tool.Tool {
	return tool.Func("search_files", "Search workspace files for lines matching a regular expression",
		func(ctx context.Context, args searchArgs) (searchResult, error) {
			re, err := regexp.Compile(args.Pattern)
			if err != nil {
				return searchResult{}, &tool.Error{Kind: tool.KindInvalidInput, Err: err}
			}
			dir, err := c.resolve(args.Path)
			if err != nil {
				return searchResult{}, err
			}

			res := searchResult{Pattern: args.Pattern, Matches: []searchMatch{}}
			err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				if args.FilePattern != "" {
					if ok, _ := filepath.Match(args.FilePattern, d.Name()); !ok {
						return nil
					}
				}
				rel, _ := filepath.Rel(dir, path)
				if searchFile(path, filepath.ToSlash(rel), re, &res, c.maxResults) {
					res.Truncated = true
					return filepath.SkipAll
				}
				return nil
			})
			if err != nil {
				return searchResult{}, err
			}
			res.Count = len(res.Matches)
			return res, nil
		})
}

// searchFile appends matches from one file and reports whether the result
// limit was reached.
func searchFile(path, rel string, re *regexp.Regexp, res *searchResult, limit int) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if !re.MatchString(text) {
			continue
		}
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		res.Matches = append(res.Matches, searchMatch{File: rel, Line: line, Content: strings.TrimSpace(text)})
		if len(res.Matches) >= limit {
			return true
		}
	}
	return false
}
