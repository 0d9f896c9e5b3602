package compilecache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/initializ/skillforge/internal/contract"
)

// ToolchainVersion is embedded in every cache key so a core upgrade that
// changes how artifacts are produced never serves a stale pre-upgrade
// artifact.
const ToolchainVersion = "skillforge-core/1"

// Builder prepares a source tree into a CompileArtifact for one runtime
// kind. Implementations are registered per RuntimeKind; see builders.go for
// the wasm, host-command and container builders this package provides. The
// container builder pulls images through a ContainerImageResolver, which
// internal/dispatch/containerexec implements, so this package never imports
// the docker client.
type Builder interface {
	Build(ctx context.Context, source string, contentHash string) (*contract.CompileArtifact, *contract.Failure)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context, source, contentHash string) (*contract.CompileArtifact, *contract.Failure)

func (f BuilderFunc) Build(ctx context.Context, source, contentHash string) (*contract.CompileArtifact, *contract.Failure) {
	return f(ctx, source, contentHash)
}

// Cache is the content-addressed compile cache. At most one build per
// cache key is ever in flight; concurrent callers for the same key share
// the in-flight build's result.
type Cache struct {
	mu        sync.RWMutex
	artifacts map[string]*contract.CompileArtifact
	group     singleflight.Group
	builders  map[contract.RuntimeKind]Builder
}

// New constructs an empty Cache.
func New() *Cache {
	return &Cache{
		artifacts: make(map[string]*contract.CompileArtifact),
		builders:  make(map[contract.RuntimeKind]Builder),
	}
}

// RegisterBuilder installs the Builder used for a given runtime kind.
func (c *Cache) RegisterBuilder(kind contract.RuntimeKind, b Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builders[kind] = b
}

func cacheKey(contentHash string, kind contract.RuntimeKind) string {
	return contentHash + "|" + string(kind) + "|" + ToolchainVersion
}

// GetOrBuild returns the cached artifact for (source, runtime), rebuilding
// if the source's content hash has drifted since the cached entry, or if
// nothing is cached yet. Concurrent calls for the same key observe exactly
// one underlying build.
func (c *Cache) GetOrBuild(ctx context.Context, source string, runtime contract.RuntimeKind) (*contract.CompileArtifact, *contract.Failure) {
	hash, err := ContentHash(source)
	if err != nil {
		return nil, contract.Wrap(contract.FailureCompileError, "computing content hash", err)
	}
	key := cacheKey(hash, runtime)

	c.mu.RLock()
	if a, ok := c.artifacts[key]; ok {
		c.mu.RUnlock()
		return a, nil
	}
	c.mu.RUnlock()

	c.mu.RLock()
	builder, ok := c.builders[runtime]
	c.mu.RUnlock()
	if !ok {
		return nil, contract.NewFailure(contract.FailureCompileError, "no builder registered for runtime kind "+string(runtime))
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		artifact, f := builder.Build(ctx, source, hash)
		if f != nil {
			return nil, f
		}
		c.mu.Lock()
		c.artifacts[key] = artifact
		c.mu.Unlock()
		return artifact, nil
	})
	if err != nil {
		if f, ok := err.(*contract.Failure); ok {
			return nil, f
		}
		return nil, contract.Wrap(contract.FailureCompileError, "build failed", err)
	}
	return v.(*contract.CompileArtifact), nil
}

// Purge evicts every cached artifact whose content hash matches the
// currently-computed hash of source (i.e. every artifact ever built for
// this exact source tree, across runtime kinds).
func (c *Cache) Purge(source string) error {
	hash, err := ContentHash(source)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, a := range c.artifacts {
		if a.ContentHash == hash {
			delete(c.artifacts, key)
		}
	}
	return nil
}

// PurgeAll evicts every cached artifact.
func (c *Cache) PurgeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts = make(map[string]*contract.CompileArtifact)
}

// Len reports the number of cached artifacts, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.artifacts)
}
