// Package wasmexec implements the Wasm Executor (§4.5.1): a fresh
// wazero-hosted module instance is brought up per call, arguments are
// marshalled across the boundary as JSON, and the instance is torn down on
// any non-Completed terminal state so linear memory is never reused across
// calls. Configuration follows the NewX(cfg)-with-defaults shape used
// throughout forge-core/runtime.
package wasmexec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/initializ/skillforge/internal/capability"
	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/dispatch"
)

// callState mirrors the per-call state machine: Loaded -> Instantiated ->
// Running -> {Completed, Failed, Timeout, OutOfMemory}. Any non-Completed
// terminal state discards the instance.
type callState int

const (
	stateLoaded callState = iota
	stateInstantiated
	stateRunning
	stateCompleted
	stateFailed
	stateTimeout
	stateOutOfMemory
)

// guestEnvelope is the JSON shape a guest export returns: a tagged
// Success|Failure union identical in meaning to contract.ToolResult's wire
// format, decoded on this side of the boundary.
type guestEnvelope struct {
	OutputText     string            `json:"output_text,omitempty"`
	StructuredData json.RawMessage   `json:"structured_data,omitempty"`
	Failure        *contract.Failure `json:"failure,omitempty"`
}

// Config configures an Executor for one compiled wasm component.
type Config struct {
	Descriptor  contract.SkillDescriptor
	Module      []byte // compiled component bytes (contract.CompileArtifact.Blob)
	MemoryPages uint32
	CallTimeout time.Duration
	CancelGrace time.Duration
}

// Executor drives one wasm-backed skill. The wazero runtime and compiled
// module are shared across calls; the module instance is not.
type Executor struct {
	descriptor  contract.SkillDescriptor
	runtime     wazero.Runtime
	compiled    wazero.CompiledModule
	callTimeout time.Duration
	cancelGrace time.Duration
}

// New compiles the module once; instantiation happens per call in
// ExecuteTool.
func New(ctx context.Context, cfg Config) (*Executor, error) {
	pages := cfg.MemoryPages
	if pages == 0 {
		pages = capability.DefaultMemoryPages
	}
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = capability.DefaultWasmTimeout
	}
	grace := cfg.CancelGrace
	if grace == 0 {
		grace = capability.DefaultCancelGrace
	}

	runtimeCfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(pages)
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiating wasi: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, cfg.Module)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("compiling wasm module: %w", err)
	}

	return &Executor{
		descriptor:  cfg.Descriptor,
		runtime:     rt,
		compiled:    compiled,
		callTimeout: timeout,
		cancelGrace: grace,
	}, nil
}

func (e *Executor) GetMetadata() contract.SkillDescriptor { return e.descriptor }

func (e *Executor) ListTools() []contract.ToolSchema { return e.descriptor.Tools }

func (e *Executor) ValidateConfig(config map[string]string) *contract.Failure {
	return nil
}

func (e *Executor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// ExecuteTool instantiates a fresh module, validates arguments against the
// declared schema before crossing the boundary, invokes the guest export
// named after the tool, and discards the instance on any exit path.
func (e *Executor) ExecuteTool(ctx context.Context, toolName string, argumentsJSON []byte, ec dispatch.ExecContext) contract.ToolResult {
	tool, ok := e.descriptor.Tool(toolName)
	if !ok {
		return contract.FailureResult(contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("tool %q not declared by this skill", toolName)))
	}

	var args map[string]json.RawMessage
	if len(argumentsJSON) > 0 {
		if err := json.Unmarshal(argumentsJSON, &args); err != nil {
			return contract.FailureResult(contract.NewFailure(contract.FailureBadRequest, "arguments must be a JSON object"))
		}
	}
	if f := contract.ValidateArguments(tool, args); f != nil {
		return contract.FailureResult(f)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	fsConfig := wazero.NewFSConfig()
	for _, p := range capability.Preopens(ec.Capabilities.AllowedPaths, "") {
		fsConfig = fsConfig.WithDirMount(p.HostPath, p.GuestPath)
	}
	modCfg := wazero.NewModuleConfig().WithFSConfig(fsConfig)

	mod, err := e.runtime.InstantiateModule(callCtx, e.compiled, modCfg)
	if err != nil {
		return contract.FailureResult(contract.Wrap(contract.FailureInternal, "instantiating guest module", err))
	}
	defer mod.Close(context.Background())

	fn := mod.ExportedFunction(toolName)
	if fn == nil {
		return contract.FailureResult(contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("guest does not export tool %q", toolName)))
	}

	ptr, length, werr := writeEnvelope(callCtx, mod, argumentsJSON)
	if werr != nil {
		return contract.FailureResult(contract.Wrap(contract.FailureInternal, "writing call envelope to guest memory", werr))
	}

	results, callErr := fn.Call(callCtx, ptr, length)
	if callErr != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return contract.FailureResult(contract.NewFailure(contract.FailureTimeout, "wasm call exceeded deadline"))
		}
		return contract.FailureResult(contract.Wrap(contract.FailureInternal, "guest trap: "+callErr.Error(), callErr))
	}
	if len(results) != 2 {
		return contract.FailureResult(contract.NewFailure(contract.FailureInternal, "malformed tool response: expected (ptr, len) pair"))
	}

	respBytes, rerr := readMemory(mod.Memory(), uint32(results[0]), uint32(results[1]))
	if rerr != nil {
		return contract.FailureResult(contract.Wrap(contract.FailureInternal, "reading guest response", rerr))
	}

	var env guestEnvelope
	if err := json.Unmarshal(respBytes, &env); err != nil {
		return contract.FailureResult(contract.NewFailure(contract.FailureInternal, "malformed tool response"))
	}
	if env.Failure != nil {
		return contract.FailureResult(env.Failure)
	}
	return contract.Success(env.OutputText, env.StructuredData)
}

func writeEnvelope(ctx context.Context, mod api.Module, argumentsJSON []byte) (uint64, uint64, error) {
	alloc := mod.ExportedFunction("allocate")
	if alloc == nil {
		return 0, 0, fmt.Errorf("guest does not export an allocate function")
	}
	res, err := alloc.Call(ctx, uint64(len(argumentsJSON)))
	if err != nil {
		return 0, 0, err
	}
	ptr := uint32(res[0])
	if !mod.Memory().Write(ptr, argumentsJSON) {
		return 0, 0, fmt.Errorf("writing %d bytes at guest offset %d out of range", len(argumentsJSON), ptr)
	}
	return uint64(ptr), uint64(len(argumentsJSON)), nil
}

func readMemory(mem api.Memory, ptr, length uint32) ([]byte, error) {
	data, ok := mem.Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("reading %d bytes at guest offset %d out of range", length, ptr)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
