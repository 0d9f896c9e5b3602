package compilecache

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/trust"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"

// loadToolManifest reads the optional tool schema sidecar next to a
// skill's source, implementing spec.md §4.4's "metadata record capturing
// the tool list that was emitted by the source". A directory source looks
// for tools.json inside it; a single-file source (a prebuilt component
// blob or host script) looks for a sibling <file>.tools.json. Absence is
// not an error — a skill declaring no tools is just one execute_tool away
// from always failing NotFound, which is a manifest authoring mistake, not
// a build failure.
func loadToolManifest(source string) ([]contract.ToolSchema, *contract.Failure) {
	path := source + ".tools.json"
	if info, err := os.Stat(source); err == nil && info.IsDir() {
		path = filepath.Join(source, "tools.json")
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, contract.Wrap(contract.FailureCompileError, "reading tool manifest "+path, err)
	}
	var tools []contract.ToolSchema
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, contract.Wrap(contract.FailureCompileError, "parsing tool manifest "+path, err)
	}
	return tools, nil
}

// WasmBuilder validates a source that is already a prebuilt WebAssembly
// Component blob. Compiling a script/source tree into a component is
// delegated to an external toolchain per spec.md §4.4 — that toolchain is
// an out-of-core collaborator and is not invoked from this package; a
// caller integrating one would wrap this Builder to run it first.
type WasmBuilder struct {
	SigningKey ed25519.PrivateKey
	KeyID      string
}

func (w *WasmBuilder) Build(ctx context.Context, source, contentHash string) (*contract.CompileArtifact, *contract.Failure) {
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, contract.Wrap(contract.FailureCompileError, fmt.Sprintf("reading wasm source %s", source), err)
	}
	if len(data) < 4 || string(data[:4]) != string(wasmMagic) {
		return nil, contract.NewFailure(contract.FailureCompileError, "source is not a valid WebAssembly binary (missing \\0asm magic)")
	}
	tools, f := loadToolManifest(source)
	if f != nil {
		return nil, f
	}
	artifact := &contract.CompileArtifact{
		ContentHash:      contentHash,
		RuntimeKind:      contract.RuntimeWasm,
		ToolchainVersion: ToolchainVersion,
		Blob:             data,
		BlobPath:         source,
		Tools:            tools,
	}
	signArtifact(artifact, w.SigningKey, w.KeyID)
	return artifact, nil
}

// HostCommandBuilder validates that a host-command skill's entry script
// exists and produces a descriptor artifact — no binary is built, per
// spec.md §4.4.
type HostCommandBuilder struct {
	SigningKey ed25519.PrivateKey
	KeyID      string
}

func (b *HostCommandBuilder) Build(ctx context.Context, source, contentHash string) (*contract.CompileArtifact, *contract.Failure) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, contract.Wrap(contract.FailureCompileError, fmt.Sprintf("entry script %s not found", source), err)
	}
	if info.IsDir() {
		return nil, contract.NewFailure(contract.FailureCompileError, fmt.Sprintf("host-command source %s must be a file, not a directory", source))
	}
	tools, f := loadToolManifest(source)
	if f != nil {
		return nil, f
	}
	artifact := &contract.CompileArtifact{
		ContentHash:      contentHash,
		RuntimeKind:      contract.RuntimeHostCommand,
		ToolchainVersion: ToolchainVersion,
		BlobPath:         source,
		Tools:            tools,
	}
	signArtifact(artifact, b.SigningKey, b.KeyID)
	return artifact, nil
}

// ContainerImageResolver confirms a container image reference is present,
// pulling it if necessary. Implemented by internal/dispatch/containerexec
// (kept out of this package so compilecache never imports the docker
// client directly).
type ContainerImageResolver interface {
	EnsureImage(ctx context.Context, image string) error
}

// ContainerBuilder confirms a container image referenced by a
// docker:<image>[:tag] source locator is present, pulling it if necessary;
// no binary is produced, per spec.md §4.4.
type ContainerBuilder struct {
	Resolver ContainerImageResolver
}

func (b *ContainerBuilder) Build(ctx context.Context, source, contentHash string) (*contract.CompileArtifact, *contract.Failure) {
	image := strings.TrimPrefix(source, "docker:")
	if b.Resolver != nil {
		if err := b.Resolver.EnsureImage(ctx, image); err != nil {
			return nil, contract.Wrap(contract.FailureCompileError, fmt.Sprintf("image %s not available", image), err)
		}
	}
	tools, f := loadToolManifest(source)
	if f != nil {
		return nil, f
	}
	return &contract.CompileArtifact{
		ContentHash:      contentHash,
		RuntimeKind:      contract.RuntimeContainer,
		ToolchainVersion: ToolchainVersion,
		BlobPath:         image,
		Tools:            tools,
	}, nil
}

func signArtifact(a *contract.CompileArtifact, key ed25519.PrivateKey, keyID string) {
	if len(key) == 0 {
		return
	}
	content := []byte(a.Key())
	if a.Blob != nil {
		content = a.Blob
	}
	sig, err := trust.Sign(content, key)
	if err != nil {
		return
	}
	a.Signature = fmt.Sprintf("%x", sig)
	a.SignedBy = keyID
}
