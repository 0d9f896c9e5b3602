package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/initializ/skillforge/internal/auditlog"
	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/credential"
	"github.com/initializ/skillforge/internal/manifest"
)

const translateScript = `#!/bin/sh
read -r line
echo '{"base_command":"echo","args":["hi"],"stdin":""}'
`

func writeExecutable(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func testManager(t *testing.T, entryScript string, maxConcurrent int) *Manager {
	t.Helper()
	dir := t.TempDir()

	manifestYAML := `
version: "1"
skills:
  greeter:
    source: "` + entryScript + `"
    runtime: native
    description: "says hi"
    instances:
      default:
        capabilities:
          allowed_commands: ["echo"]
          max_concurrent_requests: ` + itoa(maxConcurrent) + `
`
	m, err := manifest.Parse(filepath.Join(dir, "manifest.yaml"), []byte(manifestYAML))
	if err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}

	toolsJSON := `[{"name":"greet","parameters":[]}]`
	if err := os.WriteFile(entryScript+".tools.json", []byte(toolsJSON), 0o644); err != nil {
		t.Fatalf("writing tool manifest: %v", err)
	}

	resolver := manifest.NewResolver(m, map[string]string{}, nil)

	backend := credential.NewEncryptedFileBackend(filepath.Join(dir, "secrets.enc"), func() (string, error) {
		return "pw", nil
	})
	store := credential.New(backend, nil)

	audit := auditlog.NewAuditLogger(os.Stderr)

	return NewManager(ManagerConfig{
		Resolver:    resolver,
		Credentials: store,
		Audit:       audit,
	})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func TestOpenAndExecuteToolSuccess(t *testing.T) {
	dir := t.TempDir()
	script := writeExecutable(t, dir, "entry.sh", translateScript)
	mgr := testManager(t, script, 2)

	sess, f := mgr.Open(context.Background(), "greeter", contract.DefaultInstanceId)
	if f != nil {
		t.Fatalf("open failed: %v", f)
	}

	tools := sess.ListTools()
	if len(tools) != 1 || tools[0].Name != "greet" {
		t.Fatalf("expected one tool named greet, got %+v", tools)
	}

	res := sess.ExecuteTool(context.Background(), "greet", json.RawMessage(`{}`))
	if !res.IsSuccess() {
		t.Fatalf("expected success, got %v", res.Failure())
	}
}

func TestExecuteToolUnknownToolIsNotFound(t *testing.T) {
	dir := t.TempDir()
	script := writeExecutable(t, dir, "entry.sh", translateScript)
	mgr := testManager(t, script, 2)

	sess, f := mgr.Open(context.Background(), "greeter", contract.DefaultInstanceId)
	if f != nil {
		t.Fatalf("open failed: %v", f)
	}

	res := sess.ExecuteTool(context.Background(), "missing", json.RawMessage(`{}`))
	if res.IsSuccess() || res.Failure().Kind != contract.FailureNotFound {
		t.Fatalf("expected NotFound, got %v", res.Failure())
	}
}

func TestExecuteToolPastBacklogIsRateLimited(t *testing.T) {
	dir := t.TempDir()
	script := writeExecutable(t, dir, "entry.sh", translateScript)
	mgr := testManager(t, script, 1)

	sess, f := mgr.Open(context.Background(), "greeter", contract.DefaultInstanceId)
	if f != nil {
		t.Fatalf("open failed: %v", f)
	}

	g := mgr.gateFor("greeter", contract.DefaultInstanceId, contract.CapabilitySet{MaxConcurrentRequests: 1})
	for i := 0; i < g.backlog; i++ {
		g.mu.Lock()
		g.queued++
		g.mu.Unlock()
	}

	res := sess.ExecuteTool(context.Background(), "greet", json.RawMessage(`{}`))
	if res.IsSuccess() || res.Failure().Kind != contract.FailureRateLimited {
		t.Fatalf("expected RateLimited, got %v", res.Failure())
	}
}

func TestOpenUnknownSkillIsNotFound(t *testing.T) {
	dir := t.TempDir()
	script := writeExecutable(t, dir, "entry.sh", translateScript)
	mgr := testManager(t, script, 2)

	_, f := mgr.Open(context.Background(), "missing-skill", contract.DefaultInstanceId)
	if f == nil || f.Kind != contract.FailureNotFound {
		t.Fatalf("expected NotFound, got %v", f)
	}
}
