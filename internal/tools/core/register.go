package core

import (
	"context"
	"fmt"

	"toolgate/internal/logging"
	"toolgate/internal/tools"
)

// Tools returns the file suite's native tool definitions.
func Tools(s *Suite) []*tools.Tool {
	return []*tools.Tool{
		ReadTool(s),
		WriteTool(s),
		EditTool(s),
		ListTool(s),
		GrepTool(s),
	}
}

// RegisterAll registers the file tools with the given registry, skipping
// names the allow-list (when non-nil) does not contain.
func RegisterAll(registry *tools.Registry, s *Suite, allowed map[string]bool) error {
	for _, tool := range Tools(s) {
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

// errText renders an operational failure as the textual response shape
// every tool shares.
func errText(err error) string {
	return fmt.Sprintf("Error: %v", err)
}

// ReadTool returns the file_read tool.
func ReadTool(s *Suite) *tools.Tool {
	return &tools.Tool{
		Name:        "file_read",
		Description: "Read a file from the workspace with line numbers. Lines longer than 2000 characters are truncated.",
		Source:      tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path := tools.StringArg(args, "filePath")
			offset := tools.IntArg(args, "offset", 0)
			limit := tools.IntArg(args, "limit", MaxReadLines)
			out, err := s.Read(ctx, path, offset, limit)
			if err != nil {
				return errText(err), nil
			}
			return out, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"filePath", "rationale"},
			Properties: map[string]tools.Property{
				"filePath": {
					Type:        "string",
					Description: "Path to the file, relative to the workspace root",
				},
				"rationale": {
					Type:        "string",
					Description: "One sentence explaining why this file is being read",
				},
				"offset": {
					Type:        "integer",
					Description: "Line offset to start reading from (0-based, default 0)",
					Default:     0,
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of lines to read (default 2000)",
					Default:     MaxReadLines,
				},
			},
		},
	}
}

// WriteTool returns the file_write tool.
func WriteTool(s *Suite) *tools.Tool {
	return &tools.Tool{
		Name:        "file_write",
		Description: "Write content to a file in the workspace, creating parent directories as needed. Read the file first before overwriting it.",
		Source:      tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path := tools.StringArg(args, "filePath")
			content := tools.StringArg(args, "content")
			out, err := s.Write(ctx, path, content)
			if err != nil {
				return errText(err), nil
			}
			return out, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"filePath", "content", "rationale"},
			Properties: map[string]tools.Property{
				"filePath": {
					Type:        "string",
					Description: "Path to the file, relative to the workspace root",
				},
				"content": {
					Type:        "string",
					Description: "Content to write verbatim",
				},
				"rationale": {
					Type:        "string",
					Description: "One sentence explaining why this file is being written",
				},
			},
		},
	}
}

// EditTool returns the file_edit tool.
func EditTool(s *Suite) *tools.Tool {
	return &tools.Tool{
		Name:        "file_edit",
		Description: "Replace an exact string in a file. Fails when the string is absent; set replaceAll to change every occurrence.",
		Source:      tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path := tools.StringArg(args, "filePath")
			oldString := tools.StringArg(args, "oldString")
			newString := tools.StringArg(args, "newString")
			replaceAll := tools.BoolArg(args, "replaceAll", false)
			out, err := s.Edit(ctx, path, oldString, newString, replaceAll)
			if err != nil {
				return errText(err), nil
			}
			return out, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"filePath", "oldString", "newString", "rationale"},
			Properties: map[string]tools.Property{
				"filePath": {
					Type:        "string",
					Description: "Path to the file, relative to the workspace root",
				},
				"oldString": {
					Type:        "string",
					Description: "Exact text to find",
				},
				"newString": {
					Type:        "string",
					Description: "Replacement text",
				},
				"rationale": {
					Type:        "string",
					Description: "One sentence explaining why this edit is being made",
				},
				"replaceAll": {
					Type:        "boolean",
					Description: "Replace every occurrence instead of the first (default false)",
					Default:     false,
				},
			},
		},
	}
}

// ListTool returns the file_ls tool.
func ListTool(s *Suite) *tools.Tool {
	return &tools.Tool{
		Name:        "file_ls",
		Description: "Render a directory tree under a workspace path. Version-control metadata, build outputs and editor cruft are ignored by default.",
		Source:      tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			path := tools.StringArg(args, "path")
			if path == "" {
				path = "."
			}
			ignore := tools.StringSliceArg(args, "ignore")
			out, err := s.List(ctx, path, ignore)
			if err != nil {
				return errText(err), nil
			}
			return out, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"rationale"},
			Properties: map[string]tools.Property{
				"rationale": {
					Type:        "string",
					Description: "One sentence explaining why this listing is needed",
				},
				"path": {
					Type:        "string",
					Description: "Directory to list, relative to the workspace root (default \".\")",
					Default:     ".",
				},
				"ignore": {
					Type:        "array",
					Description: "Additional glob patterns to ignore",
					Items:       &tools.Property{Type: "string"},
				},
			},
		},
	}
}

// GrepTool returns the file_grep tool.
func GrepTool(s *Suite) *tools.Tool {
	return &tools.Tool{
		Name:        "file_grep",
		Description: "Search file contents under a workspace path with a regular expression. Results group by file, newest first.",
		Source:      tools.SourceNative,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			pattern := tools.StringArg(args, "pattern")
			path := tools.StringArg(args, "path")
			if path == "" {
				path = "."
			}
			include := tools.StringArg(args, "include")
			caseInsensitive := tools.BoolArg(args, "caseInsensitive", false)
			maxResults := tools.IntArg(args, "maxResults", MaxGrepResults)
			out, err := s.Grep(ctx, pattern, path, include, caseInsensitive, maxResults)
			if err != nil {
				return errText(err), nil
			}
			return out, nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"pattern", "rationale"},
			Properties: map[string]tools.Property{
				"pattern": {
					Type:        "string",
					Description: "Regular expression to search for",
				},
				"rationale": {
					Type:        "string",
					Description: "One sentence explaining why this search is needed",
				},
				"path": {
					Type:        "string",
					Description: "Directory to search, relative to the workspace root (default \".\")",
					Default:     ".",
				},
				"include": {
					Type:        "string",
					Description: "Glob filter on file paths (e.g. \"*.go\", \"src/**/*.ts\")",
				},
				"caseInsensitive": {
					Type:        "boolean",
					Description: "Case-insensitive matching (default false)",
					Default:     false,
				},
				"maxResults": {
					Type:        "integer",
					Description: "Maximum number of matches (default 100)",
					Default:     MaxGrepResults,
				},
			},
		},
	}
}
