// Package mcp implements the child-provider aggregator: it spawns each
// configured MCP server over stdio, discovers its tools, re-exports them
// under a per-child namespace, routes calls back to the owning child, and
// supervises children with bounded, backoff-limited restarts.
package mcp

import (
	"context"
	"encoding/json"
	"time"
)

// ChildStatus is the connection state of one child provider.
type ChildStatus string

const (
	StatusStarting     ChildStatus = "starting"
	StatusConnected    ChildStatus = "connected"
	StatusFailed       ChildStatus = "failed"
	StatusDisconnected ChildStatus = "disconnected"
)

// ChildConfig is the launch spec for one child provider.
type ChildConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ServersFile is the on-disk child-provider configuration.
type ServersFile struct {
	Servers map[string]ChildConfig `json:"servers"`
}

// ToolDescriptor is a tool as declared by a child over tools/list.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ChildInfo is a point-in-time snapshot of a child's supervision state.
type ChildInfo struct {
	Name          string
	Status        ChildStatus
	ToolCount     int
	RestartCount  int
	LastRestartAt time.Time
}

// rpcClient is the transport a child is driven through. The stdio
// implementation is the production one; tests substitute fakes.
type rpcClient interface {
	// Initialize performs the MCP handshake and verifies responsiveness.
	Initialize(ctx context.Context) error

	// ListTools retrieves the child's declared tools.
	ListTools(ctx context.Context) ([]ToolDescriptor, error)

	// CallTool invokes a tool and returns its textual result.
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)

	// Close tears the transport down.
	Close()

	// Done is closed when the transport has terminated, however that
	// happened.
	Done() <-chan struct{}
}

// Supervision parameters.
const (
	// maxRestarts caps restart attempts per child.
	maxRestarts = 3

	// restartBackoffUnit is multiplied by the attempt number for the
	// linear backoff.
	restartBackoffUnit = 5 * time.Second

	// restartCounterReset zeroes the attempt counter when the previous
	// restart is more than this old, so one crash in a long-lived child is
	// not penalized for ancient failures.
	restartCounterReset = 60 * time.Second
)
