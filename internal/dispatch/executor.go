// Package dispatch defines the Executor contract (C5): a capability set of
// four operations with a variant per runtime backend, and drives whichever
// backend a skill's runtime_kind selects.
package dispatch

import (
	"context"

	"github.com/initializ/skillforge/internal/capability"
	"github.com/initializ/skillforge/internal/contract"
)

// CredentialAccessor resolves a single declared credential key by name. The
// executor never sees the full credential map, only this closure — see
// internal/credential.Store.Accessor.
type CredentialAccessor func(key string) (string, *contract.Failure)

// ExecContext carries everything an Executor needs to run one tool call,
// independent of which backend is selected.
type ExecContext struct {
	Config       map[string]string
	Env          map[string]string
	Capabilities contract.CapabilitySet
	Credential   CredentialAccessor
	Egress       *capability.Egress
	Deadline     context.Context // derived from the caller's context plus the per-call deadline
}

// Executor is the unified contract every runtime backend satisfies.
type Executor interface {
	GetMetadata() contract.SkillDescriptor
	ListTools() []contract.ToolSchema
	ExecuteTool(ctx context.Context, toolName string, argumentsJSON []byte, ec ExecContext) contract.ToolResult
	ValidateConfig(config map[string]string) *contract.Failure
	// Close releases any resources held across calls. The wasm executor
	// closes its shared runtime; the host-command and container executors
	// hold nothing between calls (each container call creates its own
	// container, left in place when rm=false), so their Close is a no-op.
	Close(ctx context.Context) error
}

// Factory builds the Executor for one compiled artifact plus its descriptor.
type Factory func(descriptor contract.SkillDescriptor, artifact *contract.CompileArtifact) (Executor, error)
