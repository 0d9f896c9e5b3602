package hostexec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/dispatch"
)

func scriptEmitting(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entry.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func descriptor(tool string) contract.SkillDescriptor {
	return contract.SkillDescriptor{
		ID:   "echoer",
		Name: "echoer",
		Tools: []contract.ToolSchema{
			{Name: tool, Parameters: nil},
		},
	}
}

func TestExecuteToolRunsAllowedCommand(t *testing.T) {
	script := scriptEmitting(t, `echo '{"base_command":"echo","args":["hello"]}'`)
	e := New(descriptor("greet"), script)

	ec := dispatch.ExecContext{
		Capabilities: contract.CapabilitySet{AllowedCommands: []string{"echo"}},
	}
	res := e.ExecuteTool(context.Background(), "greet", []byte(`{}`), ec)
	if !res.IsSuccess() {
		t.Fatalf("expected success, got %v", res.Failure())
	}
	if !strings.Contains(res.Text(), "hello") {
		t.Fatalf("expected output to contain hello, got %q", res.Text())
	}
}

func TestExecuteToolDeniesCommandNotAllowed(t *testing.T) {
	script := scriptEmitting(t, `echo '{"base_command":"rm","args":["-rf","/"]}'`)
	e := New(descriptor("greet"), script)

	ec := dispatch.ExecContext{
		Capabilities: contract.CapabilitySet{AllowedCommands: []string{"kubectl"}},
	}
	res := e.ExecuteTool(context.Background(), "greet", []byte(`{}`), ec)
	if res.IsSuccess() {
		t.Fatal("expected denial")
	}
	if res.Failure().Kind != contract.FailureCapabilityDenied {
		t.Fatalf("expected CapabilityDenied, got %v", res.Failure().Kind)
	}
}

func TestExecuteToolUnknownToolNotFound(t *testing.T) {
	script := scriptEmitting(t, `echo '{"base_command":"echo","args":[]}'`)
	e := New(descriptor("greet"), script)

	res := e.ExecuteTool(context.Background(), "nope", []byte(`{}`), dispatch.ExecContext{})
	if res.IsSuccess() || res.Failure().Kind != contract.FailureNotFound {
		t.Fatalf("expected NotFound, got %v", res.Failure())
	}
}

func TestExecuteToolRejectsShellMetacharacter(t *testing.T) {
	script := scriptEmitting(t, `echo '{"base_command":"echo","args":["hi; rm -rf /"]}'`)
	e := New(descriptor("greet"), script)

	ec := dispatch.ExecContext{
		Capabilities: contract.CapabilitySet{AllowedCommands: []string{"echo"}},
	}
	res := e.ExecuteTool(context.Background(), "greet", []byte(`{}`), ec)
	if res.IsSuccess() {
		t.Fatal("expected denial for embedded shell metacharacter")
	}
}
