// Package workspace resolves the filesystem root that file and command
// tools operate under for one RPC call. The optional Execution-Id request
// header selects a per-execution subdirectory; without it every call shares
// the default root.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ctxKey struct{}

// WithExecutionID returns a context carrying the execution id for the
// duration of one RPC call. An empty id is not stored.
func WithExecutionID(ctx context.Context, id string) context.Context {
	id = sanitizeID(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// ExecutionID extracts the execution id from ctx, or "".
func ExecutionID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// sanitizeID strips path-traversal characters so a hostile header cannot
// escape the workspace base.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.ReplaceAll(id, "/", "")
	id = strings.ReplaceAll(id, "\\", "")
	id = strings.ReplaceAll(id, "..", "")
	return id
}

// Resolver maps request contexts to workspace roots.
type Resolver struct {
	base string
}

// NewResolver creates a resolver over the given base directory.
func NewResolver(base string) *Resolver {
	return &Resolver{base: base}
}

// Base returns the default workspace root.
func (r *Resolver) Base() string {
	return r.base
}

// Root returns the workspace root for ctx: base/<execution-id> when the
// context carries an id, the base itself otherwise.
func (r *Resolver) Root(ctx context.Context) string {
	if id := ExecutionID(ctx); id != "" {
		return filepath.Join(r.base, id)
	}
	return r.base
}

// EnsureRoot returns the workspace root for ctx, creating it if needed.
func (r *Resolver) EnsureRoot(ctx context.Context) (string, error) {
	root := r.Root(ctx)
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace root %s: %w", root, err)
	}
	return root, nil
}

// Resolve joins a tool-supplied path onto the workspace root for ctx,
// creating the root if needed. Absolute paths are used as-is.
func (r *Resolver) Resolve(ctx context.Context, path string) (string, error) {
	root, err := r.EnsureRoot(ctx)
	if err != nil {
		return "", err
	}
	if path == "" || path == "." {
		return root, nil
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Join(root, path), nil
}
