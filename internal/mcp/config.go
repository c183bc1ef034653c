package mcp

import (
	"encoding/json"
	"fmt"
	"os"

	"toolgate/internal/logging"
)

// LoadConfig reads the child-provider launch specs from path. A missing
// file is the normal empty case, not an error.
func LoadConfig(path string) (map[string]ChildConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.MCP("No child-provider config at %s", path)
			return map[string]ChildConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read child config %s: %w", path, err)
	}

	var file ServersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse child config %s: %w", path, err)
	}

	out := make(map[string]ChildConfig, len(file.Servers))
	for name, spec := range file.Servers {
		if name == "" || spec.Command == "" {
			logging.Get(logging.CategoryMCP).Warn("Skipping child with empty name or command in %s", path)
			continue
		}
		out[name] = spec
	}
	return out, nil
}
