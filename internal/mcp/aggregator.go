package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// spawnFunc starts a transport for one child. Swapped out by tests.
type spawnFunc func(name string, spec ChildConfig) (rpcClient, error)

// child is the supervision record for one configured provider.
type child struct {
	name string
	spec ChildConfig

	mu            sync.Mutex
	status        ChildStatus
	client        rpcClient
	tools         []ToolDescriptor
	restartCount  int
	lastRestartAt time.Time
}

func (c *child) setStatus(s ChildStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = s
}

func (c *child) getStatus() ChildStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *child) currentClient() rpcClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// nextRestartDelay advances the restart bookkeeping: the counter resets
// when the previous restart is old enough, then increments. The second
// return is false once the cap is exhausted.
func (c *child) nextRestartDelay(now time.Time) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastRestartAt.IsZero() && now.Sub(c.lastRestartAt) > restartCounterReset {
		c.restartCount = 0
	}
	c.restartCount++
	if c.restartCount > maxRestarts {
		return 0, false
	}
	c.lastRestartAt = now
	return time.Duration(c.restartCount) * restartBackoffUnit, true
}

// Aggregator owns the child-provider table.
type Aggregator struct {
	mu       sync.RWMutex
	children map[string]*child

	spawn   spawnFunc
	stopped chan struct{}
	wg      sync.WaitGroup

	onChange func()
}

// SetOnChange installs a callback fired whenever the aggregated tool table
// may have changed (child connected, reconnected, or removed).
func (a *Aggregator) SetOnChange(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

func (a *Aggregator) notifyChange() {
	a.mu.RLock()
	fn := a.onChange
	a.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// NewAggregator creates an aggregator over the given launch specs.
func NewAggregator(specs map[string]ChildConfig) *Aggregator {
	a := &Aggregator{
		children: make(map[string]*child, len(specs)),
		spawn: func(name string, spec ChildConfig) (rpcClient, error) {
			return startClient(name, spec)
		},
		stopped: make(chan struct{}),
	}
	for name, spec := range specs {
		a.children[name] = &child{name: name, spec: spec, status: StatusStarting}
	}
	return a
}

// StartAll launches every configured child concurrently. A child that
// fails to come up is marked failed and skipped; the others proceed.
// The returned error is only informational (the first startup failure).
func (a *Aggregator) StartAll(ctx context.Context) error {
	a.mu.RLock()
	children := make([]*child, 0, len(a.children))
	for _, c := range a.children {
		children = append(children, c)
	}
	a.mu.RUnlock()

	// A plain group: one child's failure must not cancel the others'
	// handshakes.
	var g errgroup.Group
	for _, c := range children {
		c := c
		g.Go(func() error {
			if err := a.startChild(ctx, c); err != nil {
				logging.Get(logging.CategoryMCP).Warn("Child %s failed to start: %v", c.name, err)
				c.setStatus(StatusFailed)
				return err
			}
			return nil
		})
	}
	err := g.Wait()
	logging.MCP("Aggregator started: %d/%d children connected", a.connectedCount(), len(children))
	return err
}

// startChild spawns one child, performs the handshake, pulls its tool
// list, and hands it to the supervisor.
func (a *Aggregator) startChild(ctx context.Context, c *child) error {
	c.setStatus(StatusStarting)

	client, err := a.spawn(c.name, c.spec)
	if err != nil {
		return err
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := client.Initialize(handshakeCtx); err != nil {
		client.Close()
		return err
	}
	descriptors, err := client.ListTools(handshakeCtx)
	if err != nil {
		client.Close()
		return err
	}

	c.mu.Lock()
	c.client = client
	c.tools = descriptors
	c.status = StatusConnected
	c.mu.Unlock()

	logging.MCP("Child %s connected with %d tools", c.name, len(descriptors))

	a.wg.Add(1)
	go a.supervise(c, client)
	a.notifyChange()
	return nil
}

// Reload applies a fresh set of launch specs: children that disappeared
// are stopped and removed, new ones are added and started. Existing
// children keep running untouched.
func (a *Aggregator) Reload(ctx context.Context, specs map[string]ChildConfig) {
	a.mu.Lock()
	var removed []*child
	for name, c := range a.children {
		if _, ok := specs[name]; !ok {
			removed = append(removed, c)
			delete(a.children, name)
		}
	}
	var added []*child
	for name, spec := range specs {
		if _, ok := a.children[name]; !ok {
			c := &child{name: name, spec: spec, status: StatusStarting}
			a.children[name] = c
			added = append(added, c)
		}
	}
	a.mu.Unlock()

	for _, c := range removed {
		logging.MCP("Child %s removed from config; stopping", c.name)
		if client := c.currentClient(); client != nil {
			client.Close()
		}
		c.setStatus(StatusDisconnected)
	}
	for _, c := range added {
		if err := a.startChild(ctx, c); err != nil {
			logging.Get(logging.CategoryMCP).Warn("Child %s failed to start: %v", c.name, err)
			c.setStatus(StatusFailed)
		}
	}
	if len(removed) > 0 {
		a.notifyChange()
	}
}

// supervise watches one transport and drives the bounded restart loop
// after it closes.
func (a *Aggregator) supervise(c *child, client rpcClient) {
	defer a.wg.Done()

	select {
	case <-client.Done():
	case <-a.stopped:
		return
	}

	c.setStatus(StatusDisconnected)
	logging.MCP("Child %s disconnected", c.name)

	for {
		delay, ok := c.nextRestartDelay(time.Now())
		if !ok {
			logging.Get(logging.CategoryMCP).Error("Child %s exhausted %d restarts; giving up", c.name, maxRestarts)
			c.setStatus(StatusFailed)
			return
		}

		logging.MCP("Restarting child %s in %s", c.name, delay)
		select {
		case <-time.After(delay):
		case <-a.stopped:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.startChild(ctx, c)
		cancel()
		if err == nil {
			// startChild handed off to a fresh supervisor.
			return
		}
		logging.Get(logging.CategoryMCP).Warn("Restart of child %s failed: %v", c.name, err)
	}
}

// Stop shuts every child down.
func (a *Aggregator) Stop() {
	close(a.stopped)

	a.mu.RLock()
	children := make([]*child, 0, len(a.children))
	for _, c := range a.children {
		children = append(children, c)
	}
	a.mu.RUnlock()

	for _, c := range children {
		if client := c.currentClient(); client != nil {
			client.Close()
		}
		c.setStatus(StatusDisconnected)
	}
	a.wg.Wait()
}

// connectedCount returns how many children are currently connected.
func (a *Aggregator) connectedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	n := 0
	for _, c := range a.children {
		if c.getStatus() == StatusConnected {
			n++
		}
	}
	return n
}

// Children returns supervision snapshots, sorted by name.
func (a *Aggregator) Children() []ChildInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ChildInfo, 0, len(a.children))
	for _, c := range a.children {
		c.mu.Lock()
		out = append(out, ChildInfo{
			Name:          c.name,
			Status:        c.status,
			ToolCount:     len(c.tools),
			RestartCount:  c.restartCount,
			LastRestartAt: c.lastRestartAt,
		})
		c.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NamespacedName builds the exposed name for a child tool.
func NamespacedName(childName, toolName string) string {
	return childName + ":" + toolName
}

// SplitName splits an exposed name at the first colon.
func SplitName(namespaced string) (childName, toolName string, ok bool) {
	i := strings.IndexByte(namespaced, ':')
	if i <= 0 || i == len(namespaced)-1 {
		return "", "", false
	}
	return namespaced[:i], namespaced[i+1:], true
}

// Tools returns the aggregated tool table: every connected child's tools,
// renamed under the child's namespace, descriptions prefixed, schemas
// translated into the host representation, and execution routed back to
// the owning child.
func (a *Aggregator) Tools() []*tools.Tool {
	a.mu.RLock()
	children := make([]*child, 0, len(a.children))
	for _, c := range a.children {
		children = append(children, c)
	}
	a.mu.RUnlock()

	var out []*tools.Tool
	for _, c := range children {
		c.mu.Lock()
		status := c.status
		descriptors := c.tools
		name := c.name
		c.mu.Unlock()
		if status != StatusConnected {
			continue
		}
		for _, d := range descriptors {
			namespaced := NamespacedName(name, d.Name)
			out = append(out, &tools.Tool{
				Name:        namespaced,
				Description: fmt.Sprintf("[%s] %s", name, d.Description),
				Source:      tools.SourceChild,
				Schema:      TranslateSchema(d.InputSchema),
				Execute: func(ctx context.Context, args map[string]any) (string, error) {
					return a.CallTool(ctx, namespaced, args), nil
				},
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CallTool routes a namespaced call to the owning child. Every failure is
// textual so the client sees one unified response shape.
func (a *Aggregator) CallTool(ctx context.Context, namespaced string, args map[string]any) string {
	childName, toolName, ok := SplitName(namespaced)
	if !ok {
		return fmt.Sprintf("Error: invalid child tool name: %s", namespaced)
	}

	a.mu.RLock()
	c := a.children[childName]
	a.mu.RUnlock()
	if c == nil {
		return fmt.Sprintf("Error: unknown child provider: %s", childName)
	}

	c.mu.Lock()
	status := c.status
	client := c.client
	c.mu.Unlock()

	if status != StatusConnected || client == nil {
		return fmt.Sprintf("Error: child provider %s is not connected (status: %s)", childName, status)
	}

	result, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		return fmt.Sprintf("Error calling %s:%s: %v", childName, toolName, err)
	}
	return result
}
