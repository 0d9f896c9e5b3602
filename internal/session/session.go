// Package session implements the Skill Session (C6): the public call
// surface binding a resolved (skill, instance) pair to its Executor,
// capability, credential, and cancellation context. Concurrency and
// lifecycle patterns are adapted from forge-core/scheduler's
// mutex-guarded state maps and duration-tracked audit emission.
package session

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/initializ/skillforge/internal/auditlog"
	"github.com/initializ/skillforge/internal/capability"
	"github.com/initializ/skillforge/internal/compilecache"
	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/credential"
	"github.com/initializ/skillforge/internal/dispatch"
	"github.com/initializ/skillforge/internal/dispatch/containerexec"
	"github.com/initializ/skillforge/internal/dispatch/hostexec"
	"github.com/initializ/skillforge/internal/dispatch/wasmexec"
	"github.com/initializ/skillforge/internal/manifest"
)

// DefaultBacklogMultiplier bounds the queue depth beyond max_concurrent_requests
// before a request fails fast with RateLimited.
const DefaultBacklogMultiplier = 4

// ManagerConfig wires every dependency a Manager needs. Resolver and
// Credentials are required; a nil Cache, Enforcer or Audit is replaced by a
// default (new cache, new enforcer, audit log on stderr). ContainerClient
// is nil when no docker daemon is available, which disables
// container-runtime skills only.
type ManagerConfig struct {
	Resolver        *manifest.Resolver
	Cache           *compilecache.Cache
	Credentials     *credential.Store
	Enforcer        *capability.Enforcer
	Audit           *auditlog.AuditLogger
	ContainerClient containerexec.Client
	SigningKey      ed25519.PrivateKey
	SignerKeyID     string
}

// Manager owns every long-lived Executor and concurrency gate, one per
// (skill, instance) pair. It is the process-wide entry point; Open begins
// one logical call's scope.
type Manager struct {
	resolver    *manifest.Resolver
	cache       *compilecache.Cache
	credentials *credential.Store
	enforcer    *capability.Enforcer
	audit       *auditlog.AuditLogger
	container   containerexec.Client

	mu        sync.Mutex
	executors map[string]dispatch.Executor
	gates     map[string]*gate
}

func NewManager(cfg ManagerConfig) *Manager {
	cache := cfg.Cache
	if cache == nil {
		cache = compilecache.New()
	}
	cache.RegisterBuilder(contract.RuntimeWasm, &compilecache.WasmBuilder{SigningKey: cfg.SigningKey, KeyID: cfg.SignerKeyID})
	cache.RegisterBuilder(contract.RuntimeHostCommand, &compilecache.HostCommandBuilder{SigningKey: cfg.SigningKey, KeyID: cfg.SignerKeyID})
	if cfg.ContainerClient != nil {
		// Only a Client that also exposes EnsureImage (the real docker-backed
		// implementation) can resolve images at build time; a bare fake used
		// in tests still dispatches tool calls, just without a pull step.
		resolver, _ := cfg.ContainerClient.(compilecache.ContainerImageResolver)
		cache.RegisterBuilder(contract.RuntimeContainer, &compilecache.ContainerBuilder{Resolver: resolver})
	}

	audit := cfg.Audit
	if audit == nil {
		audit = auditlog.NewAuditLogger(os.Stderr)
	}
	enforcer := cfg.Enforcer
	if enforcer == nil {
		enforcer = capability.NewEnforcer()
	}

	return &Manager{
		resolver:    cfg.Resolver,
		cache:       cache,
		credentials: cfg.Credentials,
		enforcer:    enforcer,
		audit:       audit,
		container:   cfg.ContainerClient,
		executors:   make(map[string]dispatch.Executor),
		gates:       make(map[string]*gate),
	}
}

func key(skill contract.SkillId, instance contract.InstanceId) string {
	return string(skill) + "|" + string(instance)
}

// Open resolves a (skill, instance) pair and obtains its Executor,
// instantiating (and compiling, if the cache misses) on first use. This
// corresponds to steps 1-2-5 of spec.md §4.6: the resolution itself never
// triggers variable expansion, so Open succeeds even when an instance
// references an unset variable — matching the "list_tools must succeed"
// testable property.
func (m *Manager) Open(ctx context.Context, skill contract.SkillId, instance contract.InstanceId) (*Session, *contract.Failure) {
	ri, f := m.resolver.Resolve(skill, instance)
	if f != nil {
		return nil, f
	}

	exec, f := m.getExecutor(ctx, ri)
	if f != nil {
		return nil, f
	}

	return &Session{mgr: m, ri: ri, executor: exec}, nil
}

func (m *Manager) getExecutor(ctx context.Context, ri *manifest.ResolvedInstance) (dispatch.Executor, *contract.Failure) {
	k := key(ri.SkillID, ri.InstanceID)

	m.mu.Lock()
	if e, ok := m.executors[k]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	artifact, f := m.cache.GetOrBuild(ctx, ri.Source, ri.Runtime)
	if f != nil {
		return nil, f
	}

	descriptor := contract.SkillDescriptor{
		ID:               ri.SkillID,
		Name:             string(ri.SkillID),
		Description:      ri.Description,
		RuntimeKind:      ri.Runtime,
		Source:           ri.Source,
		Tools:            artifact.Tools,
		RequiredServices: ri.Services,
		ContentHash:      artifact.ContentHash,
	}

	var exec dispatch.Executor
	switch ri.Runtime {
	case contract.RuntimeWasm:
		w, err := wasmexec.New(ctx, wasmexec.Config{Descriptor: descriptor, Module: artifact.Blob})
		if err != nil {
			return nil, contract.Wrap(contract.FailureCompileError, "instantiating wasm executor", err)
		}
		exec = w
	case contract.RuntimeHostCommand:
		exec = hostexec.New(descriptor, artifact.BlobPath)
	case contract.RuntimeContainer:
		if m.container == nil {
			return nil, contract.NewFailure(contract.FailureServiceUnavailable, "no container runtime client configured")
		}
		exec = containerexec.New(descriptor, artifact.BlobPath, m.container)
	default:
		return nil, contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("unsupported runtime kind %q", ri.Runtime))
	}

	m.mu.Lock()
	if e, ok := m.executors[k]; ok {
		m.mu.Unlock()
		_ = exec.Close(ctx)
		return e, nil
	}
	m.executors[k] = exec
	m.mu.Unlock()
	return exec, nil
}

func (m *Manager) gateFor(skill contract.SkillId, instance contract.InstanceId, caps contract.CapabilitySet) *gate {
	k := key(skill, instance)
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[k]
	if !ok {
		limit := caps.EffectiveMaxConcurrentRequests()
		g = newGate(limit, limit*DefaultBacklogMultiplier)
		m.gates[k] = g
	}
	return g
}

// Close releases every cached executor. Intended for process shutdown.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	executors := m.executors
	m.executors = make(map[string]dispatch.Executor)
	m.mu.Unlock()
	for _, e := range executors {
		_ = e.Close(ctx)
	}
}

// Session is the scope of one list_tools / validate_config / execute_tool
// call, per spec.md §4.6.
type Session struct {
	mgr      *Manager
	ri       *manifest.ResolvedInstance
	executor dispatch.Executor
}

// GetMetadata returns the skill's descriptor, never triggering expansion.
func (s *Session) GetMetadata() contract.SkillDescriptor {
	return s.executor.GetMetadata()
}

// ListTools returns the declared tool schemas, never triggering expansion.
func (s *Session) ListTools() []contract.ToolSchema {
	return s.executor.ListTools()
}

// ValidateConfig checks a candidate config map against the executor's own
// validation (schema/shape checks distinct from variable expansion).
func (s *Session) ValidateConfig(config map[string]string) *contract.Failure {
	return s.executor.ValidateConfig(config)
}

// ExecuteTool runs the full C6 lifecycle (spec.md §4.6 steps 3-9): schema
// validation, concurrency admission, context construction including
// variable expansion, invocation, release, and audit emission.
func (s *Session) ExecuteTool(ctx context.Context, toolName string, argumentsJSON []byte) contract.ToolResult {
	start := time.Now()
	correlationID := auditlog.CorrelationIDFromContext(ctx)

	tool, ok := s.executor.GetMetadata().Tool(toolName)
	if !ok {
		return s.finish(ctx, toolName, correlationID, start, nil, contract.FailureResult(contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("tool %q not declared by this skill", toolName))))
	}

	var args map[string]json.RawMessage
	if len(argumentsJSON) > 0 {
		if err := json.Unmarshal(argumentsJSON, &args); err != nil {
			return s.finish(ctx, toolName, correlationID, start, nil, contract.FailureResult(contract.NewFailure(contract.FailureBadRequest, "arguments must be a json object")))
		}
	}
	if f := contract.ValidateArguments(tool, args); f != nil {
		return s.finish(ctx, toolName, correlationID, start, nil, contract.FailureResult(f))
	}

	g := s.mgr.gateFor(s.ri.SkillID, s.ri.InstanceID, s.ri.Capabilities)
	if denied := g.Acquire(ctx); denied != nil {
		return s.finish(ctx, toolName, correlationID, start, nil, contract.FailureResult(denied))
	}
	defer g.Release()

	cfg, f := s.ri.Materialize()
	if f != nil {
		return s.finish(ctx, toolName, correlationID, start, nil, contract.FailureResult(f))
	}

	ec := dispatch.ExecContext{
		Config:       cfg.Config,
		Env:          cfg.Env,
		Capabilities: cfg.Capabilities,
		Credential:   s.mgr.credentials.Accessor(s.ri.SkillID, s.ri.InstanceID, s.ri.DeclaredKeys()),
		Egress:       s.mgr.enforcer.NewEgressTransport(cfg.Capabilities),
		Deadline:     ctx,
	}

	result := s.executor.ExecuteTool(ctx, toolName, argumentsJSON, ec)
	return s.finish(ctx, toolName, correlationID, start, &cfg, result)
}

// finish emits the structured execution record (spec.md §4.6 step 9) and
// returns result unchanged, so every ExecuteTool exit path audits exactly
// once regardless of where it returns.
func (s *Session) finish(ctx context.Context, toolName, correlationID string, start time.Time, cfg *contract.InstanceConfig, result contract.ToolResult) contract.ToolResult {
	outcome := "success"
	var capDenial bool
	var deadlineExceeded bool
	if !result.IsSuccess() {
		f := result.Failure()
		outcome = string(f.Kind)
		capDenial = f.Kind == contract.FailureCapabilityDenied
		deadlineExceeded = f.Kind == contract.FailureTimeout
	}

	s.mgr.audit.Emit(auditlog.AuditEvent{
		Event:         auditlog.EventToolExecComplete,
		CorrelationID: correlationID,
		Fields: map[string]any{
			"skill":              string(s.ri.SkillID),
			"instance":           string(s.ri.InstanceID),
			"tool":               toolName,
			"duration_ms":        time.Since(start).Milliseconds(),
			"outcome_kind":       outcome,
			"capability_denials": capDenial,
			"deadline_exceeded":  deadlineExceeded,
		},
	})
	return result
}
