package core

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// defaultIgnores is the fixed ignore set for file_ls and file_grep:
// version-control metadata, common build outputs, editor/OS cruft.
var defaultIgnores = []string{
	".git", ".svn", ".hg",
	"node_modules", "dist", "build", "target", "__pycache__",
	"*.pyc", "*.swp", ".DS_Store", ".idea", ".vscode",
}

// ignoreMatcher matches names against the default set plus caller globs.
type ignoreMatcher struct {
	patterns []string
}

func newIgnoreMatcher(extra []string) *ignoreMatcher {
	patterns := make([]string, 0, len(defaultIgnores)+len(extra))
	patterns = append(patterns, defaultIgnores...)
	patterns = append(patterns, extra...)
	return &ignoreMatcher{patterns: patterns}
}

func (m *ignoreMatcher) ignored(name string) bool {
	for _, p := range m.patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// List renders a directory tree under path. Directories sort before files,
// lexicographically within each group. Output is capped at MaxListFiles
// files; directories do not count toward the cap.
func (s *Suite) List(ctx context.Context, path string, ignore []string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	dir, err := s.roots.Resolve(ctx, path)
	if err != nil {
		return "", err
	}

	logging.FilesDebug("file_ls: path=%s ignore=%v", dir, ignore)

	if info, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("directory not found: %s", path)
		}
		return "", fmt.Errorf("failed to stat directory: %w", err)
	} else if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", path)
	}

	w := &treeWalker{ctx: ctx, ignores: newIgnoreMatcher(ignore)}
	if err := w.walk(dir, 0); err != nil {
		return "", err
	}

	if w.total == 0 && len(w.lines) == 0 {
		return "Directory is empty", nil
	}

	var b strings.Builder
	b.WriteString(strings.Join(w.lines, "\n"))
	if w.total > w.shown {
		fmt.Fprintf(&b, "\n(showing first %d of %d, use more specific path to see more)", w.shown, w.total)
	}
	fmt.Fprintf(&b, "\n\nFound %d files", w.total)
	return b.String(), nil
}

type treeWalker struct {
	ctx     context.Context
	ignores *ignoreMatcher
	lines   []string
	shown   int
	total   int
}

func (w *treeWalker) walk(dir string, depth int) error {
	if err := w.ctx.Err(); err != nil {
		return fmt.Errorf("listing timed out: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Unreadable subdirectories are skipped, not fatal.
		if depth > 0 {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	indent := strings.Repeat("  ", depth)
	for _, entry := range entries {
		name := entry.Name()
		if w.ignores.ignored(name) {
			continue
		}
		if entry.IsDir() {
			if w.shown < MaxListFiles {
				w.lines = append(w.lines, indent+name+"/")
			}
			if err := w.walk(filepath.Join(dir, name), depth+1); err != nil {
				return err
			}
			continue
		}
		w.total++
		if w.shown < MaxListFiles {
			w.lines = append(w.lines, indent+name)
			w.shown++
		}
	}
	return nil
}

// MatchGlob reports whether the relative path rel matches pattern.
// Patterns may use "**" to cross directory boundaries; plain patterns
// without a separator match the base name.
func MatchGlob(pattern, rel string) bool {
	rel = filepath.ToSlash(rel)
	if !strings.Contains(pattern, "**") {
		if strings.Contains(pattern, "/") {
			ok, _ := filepath.Match(pattern, rel)
			return ok
		}
		ok, _ := filepath.Match(pattern, filepath.Base(rel))
		return ok
	}

	parts := strings.SplitN(pattern, "**", 2)
	prefix := strings.TrimSuffix(parts[0], "/")
	suffix := strings.TrimPrefix(parts[1], "/")

	if prefix != "" && rel != prefix && !strings.HasPrefix(rel, prefix+"/") {
		return false
	}
	if suffix == "" {
		return true
	}
	if strings.Contains(suffix, "/") {
		segs := strings.Count(suffix, "/") + 1
		relSegs := strings.Split(rel, "/")
		if len(relSegs) < segs {
			return false
		}
		tail := strings.Join(relSegs[len(relSegs)-segs:], "/")
		ok, _ := filepath.Match(suffix, tail)
		return ok
	}
	ok, _ := filepath.Match(suffix, filepath.Base(rel))
	return ok
}

// Glob returns files under path matching pattern, newest modification time
// first, capped at maxResults.
func (s *Suite) Glob(ctx context.Context, pattern, path string, maxResults int) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	if maxResults <= 0 {
		maxResults = MaxListFiles
	}

	dir, err := s.roots.Resolve(ctx, path)
	if err != nil {
		return "", err
	}

	logging.FilesDebug("glob: pattern=%s base=%s", pattern, dir)

	type hit struct {
		rel   string
		mtime time.Time
	}
	var hits []hit
	ignores := newIgnoreMatcher(nil)

	err = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("glob timed out: %w", cerr)
		}
		if d.IsDir() {
			if p != dir && ignores.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, rerr := filepath.Rel(dir, p)
		if rerr != nil || !MatchGlob(pattern, rel) {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		hits = append(hits, hit{rel: rel, mtime: info.ModTime()})
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(hits) == 0 {
		return "No files found", nil
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].mtime.After(hits[j].mtime) })

	total := len(hits)
	if total > maxResults {
		hits = hits[:maxResults]
	}

	var b strings.Builder
	for _, h := range hits {
		b.WriteString(h.rel)
		b.WriteByte('\n')
	}
	out := strings.TrimSuffix(b.String(), "\n")
	if total > maxResults {
		out += fmt.Sprintf("\n(showing first %d of %d matches)", maxResults, total)
	}
	return out, nil
}

// Grep searches file contents under path with a regular expression.
// Results group by file, newest modification time first; each match line
// is truncated to MaxGrepLineChars characters.
func (s *Suite) Grep(ctx context.Context, pattern, path, include string, caseInsensitive bool, maxResults int) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if pattern == "" {
		return "", fmt.Errorf("pattern is required")
	}
	if maxResults <= 0 {
		maxResults = MaxGrepResults
	}
	if caseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid regex pattern: %w", err)
	}

	dir, err := s.roots.Resolve(ctx, path)
	if err != nil {
		return "", err
	}

	logging.FilesDebug("grep: pattern=%s base=%s include=%s", pattern, dir, include)

	type match struct {
		line int
		text string
	}
	type fileHits struct {
		rel     string
		mtime   time.Time
		matches []match
	}

	var files []*fileHits
	totalMatches := 0
	truncated := false
	ignores := newIgnoreMatcher(nil)

	err = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("grep timed out: %w", cerr)
		}
		if d.IsDir() {
			if p != dir && ignores.ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if truncated {
			return filepath.SkipAll
		}
		rel, rerr := filepath.Rel(dir, p)
		if rerr != nil {
			return nil
		}
		if ignores.ignored(d.Name()) {
			return nil
		}
		if include != "" && !MatchGlob(include, rel) {
			return nil
		}

		f, oerr := os.Open(p)
		if oerr != nil {
			return nil
		}
		defer f.Close()

		var fh *fileHits
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if lineNo == 1 && isBinary([]byte(line)) {
				return nil
			}
			if !re.MatchString(line) {
				continue
			}
			if fh == nil {
				info, ierr := d.Info()
				if ierr != nil {
					return nil
				}
				fh = &fileHits{rel: rel, mtime: info.ModTime()}
				files = append(files, fh)
			}
			fh.matches = append(fh.matches, match{line: lineNo, text: tools.TruncateLine(line, MaxGrepLineChars)})
			totalMatches++
			if totalMatches >= maxResults {
				truncated = true
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if totalMatches == 0 {
		return "No matches found", nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })

	var b strings.Builder
	for i, fh := range files {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s:\n", fh.rel)
		for _, m := range fh.matches {
			fmt.Fprintf(&b, "%d| %s\n", m.line, m.text)
		}
	}
	out := strings.TrimSuffix(b.String(), "\n")
	if truncated {
		out += fmt.Sprintf("\n(showing first %d matches)", maxResults)
	}
	return out, nil
}
