// Package hostexec implements the Host-Command Executor (§4.5.2): the
// skill body is a script that translates a tool call into a constrained
// spawn request, which this package validates against the skill's static
// allow-list before forking. Adapted from forge-cli/tools/exec.go's
// SkillCommandExecutor, split into a translate phase and a validated spawn
// phase per the protocol described in the specification.
package hostexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/initializ/skillforge/internal/capability"
	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/dispatch"
)

// DefaultTimeout bounds a host-command tool call absent an explicit deadline.
const DefaultTimeout = 120 * time.Second

// KillGrace is the window between SIGTERM and SIGKILL on cancellation.
const KillGrace = 5 * time.Second

// MaxOutputBytes caps captured stdout/stderr per call.
const MaxOutputBytes = 1 << 20 // 1 MiB

// spawnRequest is what the skill's entry script emits on the translate
// call: the concrete command line it wants the core to run on its behalf.
type spawnRequest struct {
	BaseCommand string   `json:"base_command"`
	Args        []string `json:"args"`
	Stdin       string   `json:"stdin"`
}

// Executor drives a host-command skill: the entry script is invoked once to
// translate a tool call into a spawnRequest, then (after capability
// validation) the requested base command is actually forked.
type Executor struct {
	Descriptor  contract.SkillDescriptor
	EntryScript string
}

func New(descriptor contract.SkillDescriptor, entryScript string) *Executor {
	return &Executor{Descriptor: descriptor, EntryScript: entryScript}
}

func (e *Executor) GetMetadata() contract.SkillDescriptor { return e.Descriptor }

func (e *Executor) ListTools() []contract.ToolSchema { return e.Descriptor.Tools }

func (e *Executor) ValidateConfig(config map[string]string) *contract.Failure {
	return nil
}

func (e *Executor) Close(ctx context.Context) error { return nil }

func (e *Executor) ExecuteTool(ctx context.Context, toolName string, argumentsJSON []byte, ec dispatch.ExecContext) contract.ToolResult {
	tool, ok := e.Descriptor.Tool(toolName)
	if !ok {
		return contract.FailureResult(contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("tool %q not declared by this skill", toolName)))
	}

	var args map[string]json.RawMessage
	if len(argumentsJSON) > 0 {
		if err := json.Unmarshal(argumentsJSON, &args); err != nil {
			return contract.FailureResult(contract.NewFailure(contract.FailureBadRequest, "arguments must be a json object"))
		}
	}
	if f := contract.ValidateArguments(tool, args); f != nil {
		return contract.FailureResult(f)
	}

	deadlineCtx, cancel := withDeadline(ctx)
	defer cancel()

	req, f := e.translate(deadlineCtx, tool.Name, argumentsJSON, ec)
	if f != nil {
		return contract.FailureResult(f)
	}

	if violation := capability.HostCommandCheck(ec.Capabilities.AllowedCommands, req.BaseCommand, req.Args); violation != nil {
		return contract.FailureResult(contract.NewFailure(contract.FailureCapabilityDenied, violation.Error()))
	}

	return e.spawn(deadlineCtx, req, ec)
}

// translate invokes the entry script once, passing the tool call as a JSON
// envelope on stdin, and expects a single-line JSON spawnRequest on stdout.
func (e *Executor) translate(ctx context.Context, toolName string, argumentsJSON []byte, ec dispatch.ExecContext) (*spawnRequest, *contract.Failure) {
	envelope, err := json.Marshal(struct {
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
	}{Tool: toolName, Arguments: argumentsJSON})
	if err != nil {
		return nil, contract.Wrap(contract.FailureInternal, "marshalling tool call envelope", err)
	}

	cmd := exec.CommandContext(ctx, e.EntryScript, "translate")
	cmd.Stdin = bytes.NewReader(envelope)
	cmd.Env = capability.HostEnvironment(ec.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, contract.Wrap(contract.FailureInternal, "translate phase: "+firstLine(stderr.String()), err)
	}

	var req spawnRequest
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &req); err != nil {
		return nil, contract.Wrap(contract.FailureInternal, "malformed spawn request from skill", err)
	}
	if req.BaseCommand == "" {
		return nil, contract.NewFailure(contract.FailureInternal, "skill translate phase returned no base_command")
	}
	return &req, nil
}

func (e *Executor) spawn(ctx context.Context, req *spawnRequest, ec dispatch.ExecContext) contract.ToolResult {
	cmd := exec.Command(req.BaseCommand, req.Args...)
	cmd.Env = capability.HostEnvironment(ec.Env)
	if req.Stdin != "" {
		cmd.Stdin = bytes.NewReader([]byte(req.Stdin))
	}

	stdout := &capBuffer{limit: MaxOutputBytes}
	stderr := &capBuffer{limit: MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return contract.FailureResult(contract.NewFailure(contract.FailureInternal, "starting command: "+err.Error()))
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return resultFromExit(err, stdout.String(), stderr.String())
	case <-ctx.Done():
		terminate(cmd, done)
		if ctx.Err() == context.DeadlineExceeded {
			return contract.FailureResult(contract.NewFailure(contract.FailureTimeout, "host command exceeded deadline"))
		}
		return contract.FailureResult(contract.NewFailure(contract.FailureCapabilityDenied, "cancelled"))
	}
}

func terminate(cmd *exec.Cmd, done chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
		return
	case <-time.After(KillGrace):
		_ = cmd.Process.Kill()
		<-done
	}
}

func resultFromExit(err error, stdout, stderr string) contract.ToolResult {
	if err == nil {
		return contract.Success(stdout, nil)
	}
	var tail string
	if stderr != "" {
		tail = stderr
	} else {
		tail = err.Error()
	}
	return contract.FailureResult(contract.NewFailure(contract.FailureServiceUnavailable, "command failed: "+firstLine(tail)))
}

func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultTimeout)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

type capBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *capBuffer) Write(p []byte) (int, error) {
	remaining := c.limit - c.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		c.buf.Write(p[:remaining])
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *capBuffer) String() string { return c.buf.String() }

var _ io.Writer = (*capBuffer)(nil)
