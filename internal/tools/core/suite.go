package core

import (
	"bytes"
	"context"
	"time"

	"toolgate/internal/workspace"
)

// Rendering limits for the file suite.
const (
	// MaxReadLines is the default number of lines file_read returns.
	MaxReadLines = 2000

	// MaxLineChars is the per-line truncation width for file_read.
	MaxLineChars = 2000

	// MaxGrepLineChars is the per-match truncation width for file_grep.
	MaxGrepLineChars = 200

	// MaxListFiles caps file_ls output.
	MaxListFiles = 100

	// MaxGrepResults is the default match cap for file_grep.
	MaxGrepResults = 100

	// binarySniffLen is how many leading bytes are inspected for NUL when
	// deciding whether a file is binary.
	binarySniffLen = 8192
)

// Suite implements the file tools over a workspace resolver. Every
// operation is bounded by opTimeout.
type Suite struct {
	roots     *workspace.Resolver
	opTimeout time.Duration
}

// NewSuite creates a file tool suite resolving paths under roots.
// A zero opTimeout disables the per-operation deadline.
func NewSuite(roots *workspace.Resolver, opTimeout time.Duration) *Suite {
	return &Suite{roots: roots, opTimeout: opTimeout}
}

// opContext derives the bounded context every file operation runs under.
func (s *Suite) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// isBinary reports whether content looks like binary data, by NUL-byte
// inspection of the leading bytes.
func isBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}
