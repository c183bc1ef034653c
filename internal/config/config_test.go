package config

import (
	"testing"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Port != 8745 {
		t.Errorf("Port = %d", c.Port)
	}
	if c.WorkspaceRoot != "/app/workspace" {
		t.Errorf("WorkspaceRoot = %q", c.WorkspaceRoot)
	}
	if c.DefaultInactivitySec != 20 || c.MaxTimeoutSec != 600 {
		t.Errorf("timeouts = %d/%d", c.DefaultInactivitySec, c.MaxTimeoutSec)
	}
	if c.AllowedTools != nil {
		t.Error("AllowedTools should default to nil (all)")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TOOLGATE_PORT", "9100")
	t.Setenv("TOOLGATE_TOKEN", "sekrit")
	t.Setenv("ALLOWED_TOOLS", "execute_command, file_read ,")
	t.Setenv("TOOLGATE_DEBUG", "true")

	c := Default()
	c.ApplyEnv()

	if c.Port != 9100 {
		t.Errorf("Port = %d", c.Port)
	}
	if c.Token != "sekrit" {
		t.Errorf("Token = %q", c.Token)
	}
	if !c.Debug {
		t.Error("Debug should be true")
	}
	want := []string{"execute_command", "file_read"}
	if len(c.AllowedTools) != len(want) {
		t.Fatalf("AllowedTools = %v", c.AllowedTools)
	}
	for i, name := range want {
		if c.AllowedTools[i] != name {
			t.Errorf("AllowedTools[%d] = %q, want %q", i, c.AllowedTools[i], name)
		}
	}
}

func TestApplyEnvBadPort(t *testing.T) {
	t.Setenv("TOOLGATE_PORT", "not-a-port")
	c := Default()
	c.ApplyEnv()
	if c.Port != 8745 {
		t.Errorf("malformed port should keep default, got %d", c.Port)
	}
}

func TestParseAllowedToolsEmpty(t *testing.T) {
	if ParseAllowedTools("") != nil {
		t.Error("empty value should be nil")
	}
	if ParseAllowedTools(" , ,") != nil {
		t.Error("whitespace-only value should be nil")
	}
}

func TestAllowedToolSet(t *testing.T) {
	c := Default()
	if c.AllowedToolSet() != nil {
		t.Error("nil list should give nil set")
	}
	c.AllowedTools = []string{"file_read"}
	set := c.AllowedToolSet()
	if !set["file_read"] || set["file_write"] {
		t.Errorf("set = %v", set)
	}
}

func TestEnsureToken(t *testing.T) {
	c := Default()
	if !c.EnsureToken() {
		t.Error("expected token generation")
	}
	if len(c.Token) != 32 {
		t.Errorf("token length = %d, want 32 hex chars", len(c.Token))
	}
	tok := c.Token
	if c.EnsureToken() {
		t.Error("second call must not regenerate")
	}
	if c.Token != tok {
		t.Error("token changed")
	}
}
