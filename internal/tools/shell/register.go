package shell

import (
	"context"

	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// Tools returns the executor's native tool definitions.
func Tools(e *Executor) []*tools.Tool {
	return []*tools.Tool{
		ExecuteCommandTool(e),
		CheckProcessTool(e),
		SendInputTool(e),
	}
}

// RegisterAll registers the shell tools with the given registry, skipping
// names the allow-list (when non-nil) does not contain.
func RegisterAll(registry *tools.Registry, e *Executor, allowed map[string]bool) error {
	for _, tool := range Tools(e) {
		if allowed != nil && !allowed[tool.Name] {
			logging.ToolsDebug("Skipping %s (not in allow-list)", tool.Name)
			continue
		}
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteCommandTool returns the execute_command tool.
func ExecuteCommandTool(e *Executor) *tools.Tool {
	return &tools.Tool{
		Name: "execute_command",
		Description: "Execute a shell command in the workspace. Returns synchronously when the command " +
			"finishes before the inactivity timeout; otherwise returns a process id to poll with " +
			"check_process. The shell's stdin stays open for send_input.",
		Source: tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			command := tools.StringArg(args, "command")
			rationale := tools.StringArg(args, "rationale")
			budget := tools.IntArg(args, "inactivityTimeout", e.DefaultInactivitySec())
			return e.ExecuteCommand(ctx, command, rationale, budget), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"command", "rationale"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "Shell command to execute",
				},
				"rationale": {
					Type:        "string",
					Description: "One sentence explaining why this command is being run",
				},
				"inactivityTimeout": {
					Type:        "integer",
					Description: "Seconds of no output before the call backgrounds (0-600, default 20; 0 backgrounds immediately)",
					Default:     20,
				},
			},
		},
	}
}

// CheckProcessTool returns the check_process tool.
func CheckProcessTool(e *Executor) *tools.Tool {
	return &tools.Tool{
		Name: "check_process",
		Description: "Poll a process started by execute_command. Returns the final result for completed " +
			"processes, or waits briefly for progress and reports current output.",
		Source: tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			id := tools.StringArg(args, "processId")
			rationale := tools.StringArg(args, "rationale")
			return e.CheckProcess(ctx, id, rationale), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"processId", "rationale"},
			Properties: map[string]tools.Property{
				"processId": {
					Type:        "string",
					Description: "Process id returned by execute_command",
				},
				"rationale": {
					Type:        "string",
					Description: "One sentence explaining why this process is being checked",
				},
			},
		},
	}
}

// SendInputTool returns the send_input tool.
func SendInputTool(e *Executor) *tools.Tool {
	return &tools.Tool{
		Name: "send_input",
		Description: "Write to the stdin of a process started by execute_command. A newline is appended " +
			"unless autoNewline is false.",
		Source: tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			id := tools.StringArg(args, "processId")
			input := tools.StringArg(args, "input")
			rationale := tools.StringArg(args, "rationale")
			autoNewline := tools.BoolArg(args, "autoNewline", true)
			return e.SendInput(ctx, id, input, rationale, autoNewline), nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"processId", "input", "rationale"},
			Properties: map[string]tools.Property{
				"processId": {
					Type:        "string",
					Description: "Process id returned by execute_command",
				},
				"input": {
					Type:        "string",
					Description: "Data to write to the process's stdin",
				},
				"rationale": {
					Type:        "string",
					Description: "One sentence explaining why input is being sent",
				},
				"autoNewline": {
					Type:        "boolean",
					Description: "Append a trailing newline when missing (default true)",
					Default:     true,
				},
			},
		},
	}
}
