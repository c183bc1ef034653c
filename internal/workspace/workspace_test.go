package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestExecutionIDRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if ExecutionID(ctx) != "" {
		t.Error("empty context should carry no id")
	}

	ctx = WithExecutionID(ctx, "exec-42")
	if got := ExecutionID(ctx); got != "exec-42" {
		t.Errorf("ExecutionID = %q", got)
	}
}

func TestWithExecutionIDSanitizes(t *testing.T) {
	t.Parallel()

	ctx := WithExecutionID(context.Background(), "../../etc")
	if got := ExecutionID(ctx); got != "etc" {
		t.Errorf("sanitized id = %q", got)
	}

	ctx = WithExecutionID(context.Background(), "  ")
	if ExecutionID(ctx) != "" {
		t.Error("blank id should not be stored")
	}
}

func TestRootSelection(t *testing.T) {
	t.Parallel()

	r := NewResolver("/app/workspace")
	if got := r.Root(context.Background()); got != "/app/workspace" {
		t.Errorf("default root = %q", got)
	}

	ctx := WithExecutionID(context.Background(), "abc")
	if got := r.Root(ctx); got != filepath.Join("/app/workspace", "abc") {
		t.Errorf("scoped root = %q", got)
	}
}

func TestEnsureRootCreates(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "ws")
	r := NewResolver(base)

	ctx := WithExecutionID(context.Background(), "run1")
	root, err := r.EnsureRoot(ctx)
	if err != nil {
		t.Fatalf("EnsureRoot: %v", err)
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "ws")
	r := NewResolver(base)
	ctx := context.Background()

	got, err := r.Resolve(ctx, "a/b.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != filepath.Join(base, "a/b.txt") {
		t.Errorf("Resolve = %q", got)
	}

	got, err = r.Resolve(ctx, ".")
	if err != nil {
		t.Fatalf("Resolve .: %v", err)
	}
	if got != base {
		t.Errorf("Resolve . = %q", got)
	}

	abs := filepath.Join(t.TempDir(), "x.txt")
	got, err = r.Resolve(ctx, abs)
	if err != nil {
		t.Fatalf("Resolve abs: %v", err)
	}
	if got != abs {
		t.Errorf("Resolve abs = %q", got)
	}
}
