package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"toolgate/internal/logging"
)

// Read returns a line-numbered rendering of a file. offset is the 0-based
// index of the first line to include; limit is the number of lines. Each
// line is truncated to MaxLineChars characters after the number column.
func (s *Suite) Read(ctx context.Context, path string, offset, limit int) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	full, err := s.roots.Resolve(ctx, path)
	if err != nil {
		return "", err
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = MaxReadLines
	}

	logging.FilesDebug("file_read: path=%s offset=%d limit=%d", full, offset, limit)

	content, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("read timed out: %w", err)
	}
	if isBinary(content) {
		return "", fmt.Errorf("cannot read binary file: %s", path)
	}
	if len(content) == 0 {
		return "", nil
	}

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	if offset >= len(lines) {
		return "", nil
	}
	end := offset + limit
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := offset; i < end; i++ {
		line := lines[i]
		if len(line) > MaxLineChars {
			line = line[:MaxLineChars]
		}
		fmt.Fprintf(&b, "%5d| %s\n", i+1, line)
	}
	return strings.TrimSuffix(b.String(), "\n"), nil
}

// Write stores content verbatim at path, creating intermediate directories
// as needed, and returns a rendering with the byte count.
func (s *Suite) Write(ctx context.Context, path, content string) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	full, err := s.roots.Resolve(ctx, path)
	if err != nil {
		return "", err
	}

	logging.FilesDebug("file_write: path=%s size=%d", full, len(content))

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	logging.Files("file_write completed: %s (%d bytes)", full, len(content))
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
}

// Edit performs an exact-substring replacement in a file using a
// backup-then-replace pattern: the file is copied to a sibling backup
// first, the replacement result is written, and on any failure the backup
// is restored. The backup is removed on success.
func (s *Suite) Edit(ctx context.Context, path, oldString, newString string, replaceAll bool) (string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if oldString == newString {
		return "", fmt.Errorf("oldString and newString are identical")
	}
	if oldString == "" {
		return "", fmt.Errorf("oldString must not be empty")
	}

	full, err := s.roots.Resolve(ctx, path)
	if err != nil {
		return "", err
	}

	logging.FilesDebug("file_edit: path=%s old_len=%d new_len=%d all=%v", full, len(oldString), len(newString), replaceAll)

	content, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	text := string(content)
	if !strings.Contains(text, oldString) {
		return "", fmt.Errorf("String not found in file")
	}

	backup := full + ".bak"
	if err := copyFile(full, backup); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}

	var replaced string
	var count int
	if replaceAll {
		count = strings.Count(text, oldString)
		replaced = strings.ReplaceAll(text, oldString, newString)
	} else {
		count = 1
		replaced = strings.Replace(text, oldString, newString, 1)
	}

	if err := os.WriteFile(full, []byte(replaced), 0644); err != nil {
		// Restore is unconditional; the original content must survive a
		// failed write.
		if rerr := copyFile(backup, full); rerr != nil {
			logging.Get(logging.CategoryFiles).Error("backup restore failed for %s: %v", full, rerr)
		}
		_ = os.Remove(backup)
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Remove(backup); err != nil {
		logging.Get(logging.CategoryFiles).Warn("could not remove backup %s: %v", backup, err)
	}

	logging.Files("file_edit completed: %s (%d replacements)", full, count)
	return fmt.Sprintf("Replaced %d occurrence(s) in %s", count, path), nil
}

// copyFile copies src to dst, truncating dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
