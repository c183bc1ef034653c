// Package dispatch registers the gateway's tool table (native shell and
// file tools gated by the allow-list, plus the aggregator's namespaced
// child tools) onto the MCP server, and translates incoming calls into
// registry executions. All real work lives in the shell, core and mcp
// packages; the dispatcher is a thin lookup layer.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"toolgate/internal/logging"
	"toolgate/internal/mcp"
	"toolgate/internal/tools"
	"toolgate/internal/tools/core"
	"toolgate/internal/tools/shell"
)

// Dispatcher owns the flat tool namespace.
type Dispatcher struct {
	server   *mcpserver.MCPServer
	registry *tools.Registry
	agg      *mcp.Aggregator
	allowed  map[string]bool

	mu         sync.Mutex
	childTools map[string]bool
}

// New creates a dispatcher. allowed gates native tool registration; nil
// means all native tools.
func New(server *mcpserver.MCPServer, registry *tools.Registry, agg *mcp.Aggregator, allowed map[string]bool) *Dispatcher {
	return &Dispatcher{
		server:     server,
		registry:   registry,
		agg:        agg,
		allowed:    allowed,
		childTools: make(map[string]bool),
	}
}

// RegisterNative registers the eight native tools, filtered by the
// allow-list, on both the registry and the MCP server.
func (d *Dispatcher) RegisterNative(executor *shell.Executor, files *core.Suite) error {
	if err := shell.RegisterAll(d.registry, executor, d.allowed); err != nil {
		return err
	}
	if err := core.RegisterAll(d.registry, files, d.allowed); err != nil {
		return err
	}
	for _, tool := range d.registry.All() {
		d.addToServer(tool)
	}
	logging.Tools("Registered %d native tools", d.registry.Count())
	return nil
}

// StartChildSync waits the settle interval, performs the initial child
// tool sync, and then re-syncs whenever the aggregator reports a change.
// It returns immediately; syncing happens in the background.
func (d *Dispatcher) StartChildSync(ctx context.Context, settle time.Duration) {
	go func() {
		select {
		case <-time.After(settle):
		case <-ctx.Done():
			return
		}
		d.SyncChildTools()
		d.agg.SetOnChange(d.SyncChildTools)
		// A child may have flapped between the first sync and the
		// callback installation.
		d.SyncChildTools()
	}()
}

// SyncChildTools reconciles the registry and MCP server against the
// aggregator's current tool table. Native and child names can never
// collide: child names always carry a colon, native names never do.
func (d *Dispatcher) SyncChildTools() {
	current := d.agg.Tools()

	d.mu.Lock()
	defer d.mu.Unlock()

	seen := make(map[string]bool, len(current))
	added := 0
	for _, tool := range current {
		seen[tool.Name] = true
		if d.childTools[tool.Name] {
			continue
		}
		if err := d.registry.Register(tool); err != nil {
			logging.Get(logging.CategoryTools).Warn("Cannot register child tool %s: %v", tool.Name, err)
			continue
		}
		d.addToServer(tool)
		d.childTools[tool.Name] = true
		added++
	}

	var stale []string
	for name := range d.childTools {
		if !seen[name] {
			stale = append(stale, name)
			delete(d.childTools, name)
			d.registry.Unregister(name)
		}
	}
	if len(stale) > 0 {
		d.server.DeleteTools(stale...)
	}
	if added > 0 || len(stale) > 0 {
		logging.Tools("Child tool sync: +%d -%d (total %d)", added, len(stale), d.registry.Count())
	}
}

// addToServer exposes one registry tool over the MCP server.
func (d *Dispatcher) addToServer(tool *tools.Tool) {
	d.server.AddTool(toMCPTool(tool), d.handler(tool.Name))
}

// handler adapts a registry execution to the transport's result shape.
// Operational failures arrive as ordinary text from the tool itself;
// only unknown tools and schema violations become structured errors.
func (d *Dispatcher) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		if args == nil {
			args = map[string]any{}
		}

		out, err := d.registry.Execute(ctx, name, args)
		if err != nil {
			return mcpgo.NewToolResultError(err.Error()), nil
		}
		return mcpgo.NewToolResultText(out), nil
	}
}

// toMCPTool converts the host schema representation into the transport's
// tool declaration.
func toMCPTool(tool *tools.Tool) mcpgo.Tool {
	required := tool.Schema.Required
	if required == nil {
		required = []string{}
	}
	return mcpgo.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: mcpgo.ToolInputSchema{
			Type:       "object",
			Properties: schemaProperties(tool.Schema),
			Required:   required,
		},
	}
}

// schemaProperties renders each property as a plain JSON-schema map.
// Properties with no type ("any") stay untyped.
func schemaProperties(schema tools.ToolSchema) map[string]any {
	props := make(map[string]any, len(schema.Properties))
	for name, prop := range schema.Properties {
		data, err := json.Marshal(prop)
		if err != nil {
			props[name] = map[string]any{}
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil || m == nil {
			m = map[string]any{}
		}
		props[name] = m
	}
	return props
}
