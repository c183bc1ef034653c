package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"toolgate/internal/logging"
)

// protocolVersion is the MCP revision spoken to children.
const protocolVersion = "2024-11-05"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// stdioClient drives one child process over line-delimited JSON-RPC on its
// stdio. The reader loop dispatches responses to pending calls; stderr is
// drained into the mcp log.
type stdioClient struct {
	mu sync.Mutex

	name  string
	cmd   *exec.Cmd
	stdin io.WriteCloser

	pending map[int]chan *rpcResponse
	nextID  int
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

// startClient spawns the child and begins the reader loops. The MCP
// handshake is a separate Initialize step.
func startClient(name string, spec ChildConfig) (*stdioClient, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("empty command for child %s", name)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Command, err)
	}

	c := &stdioClient{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[int]chan *rpcResponse),
		nextID:  1,
		done:    make(chan struct{}),
	}

	c.wg.Add(2)
	go c.readStderr(stderr)
	go c.readStdout(stdout)

	return c, nil
}

// readStderr drains the child's stderr into the log.
func (c *stdioClient) readStderr(r io.Reader) {
	defer c.wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logging.MCPDebug("[%s stderr] %s", c.name, scanner.Text())
	}
}

// readStdout reads JSON-RPC messages and dispatches responses. When the
// stream ends the transport is finished and done is closed.
func (c *stdioClient) readStdout(r io.Reader) {
	defer c.wg.Done()
	defer c.teardown()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.Get(logging.CategoryMCP).Warn("[%s] unparseable line from child: %v", c.name, err)
			continue
		}
		if resp.ID == 0 {
			// Notification or server-initiated request; ignored.
			logging.MCPDebug("[%s] notification: %s", c.name, string(line))
			continue
		}

		c.mu.Lock()
		ch, exists := c.pending[resp.ID]
		if exists {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if exists {
			ch <- &resp
		} else {
			logging.Get(logging.CategoryMCP).Warn("[%s] response for unknown id %d", c.name, resp.ID)
		}
	}
}

// teardown releases everything after the transport ends.
func (c *stdioClient) teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	stdin := c.stdin
	c.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	go func() {
		_ = c.cmd.Wait()
		close(c.done)
	}()
}

// Close tears the transport down and waits briefly for the reader loops.
func (c *stdioClient) Close() {
	c.teardown()

	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		logging.Get(logging.CategoryMCP).Warn("[%s] timeout waiting for stdio reader shutdown", c.name)
	}
}

// Done reports transport termination.
func (c *stdioClient) Done() <-chan struct{} {
	return c.done
}

// call sends a request and waits for its response.
func (c *stdioClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	id := c.nextID
	c.nextID++
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to write to child stdin: %w", err)
	}
	c.mu.Unlock()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, fmt.Errorf("transport closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("child error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// notify sends a request that expects no response.
func (c *stdioClient) notify(method string, params any) {
	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	_, _ = c.stdin.Write(append(data, '\n'))
}

// Initialize performs the MCP handshake.
func (c *stdioClient) Initialize(ctx context.Context) error {
	_, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    "toolgate",
			"version": "1.0.0",
		},
	})
	if err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	c.notify("notifications/initialized", nil)
	return nil
}

// ListTools retrieves the child's declared tools.
func (c *stdioClient) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	result, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var parsed struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return parsed.Tools, nil
}

// CallTool invokes a tool on the child and flattens the MCP content blocks
// into text.
func (c *stdioClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", err
	}

	var parsed struct {
		Content []struct {
			Type string          `json:"type"`
			Text string          `json:"text"`
			Data json.RawMessage `json:"data"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		// A child may answer with a bare result; pass it through.
		return string(result), nil
	}

	var parts []string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		} else if len(block.Data) > 0 {
			parts = append(parts, string(block.Data))
		}
	}
	text := strings.Join(parts, "\n")
	if parsed.IsError {
		return "", fmt.Errorf("%s", text)
	}
	return text, nil
}

var _ rpcClient = (*stdioClient)(nil)
