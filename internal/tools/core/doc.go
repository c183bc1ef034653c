// Package core provides the gateway's native file tool suite.
//
// All operations resolve their path arguments against the request's
// workspace root and return textual renderings; operational failures come
// back as "Error: ..." text, never as protocol errors.
//
// Tools:
//   - file_read: Read file contents with line numbering
//   - file_write: Write content to a file
//   - file_edit: Replace a string in a file (backup-then-replace)
//   - file_ls: Render a directory tree
//   - file_grep: Search file contents with regex
//
// Glob matching is exported for reuse but not registered as its own tool.
package core
