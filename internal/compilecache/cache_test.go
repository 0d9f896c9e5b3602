package compilecache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/initializ/skillforge/internal/contract"
)

type countingBuilder struct {
	calls int64
	delay chan struct{}
}

func (b *countingBuilder) Build(ctx context.Context, source, contentHash string) (*contract.CompileArtifact, *contract.Failure) {
	atomic.AddInt64(&b.calls, 1)
	if b.delay != nil {
		<-b.delay
	}
	return &contract.CompileArtifact{ContentHash: contentHash, RuntimeKind: contract.RuntimeHostCommand, ToolchainVersion: ToolchainVersion}, nil
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "entry.sh")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestGetOrBuildSingleFlight(t *testing.T) {
	source := writeSource(t, "#!/bin/sh\necho hi\n")
	builder := &countingBuilder{delay: make(chan struct{})}
	c := New()
	c.RegisterBuilder(contract.RuntimeHostCommand, builder)

	const n = 10
	var wg sync.WaitGroup
	results := make([]*contract.CompileArtifact, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, f := c.GetOrBuild(context.Background(), source, contract.RuntimeHostCommand)
			if f != nil {
				t.Errorf("build %d failed: %v", i, f)
				return
			}
			results[i] = a
		}(i)
	}
	close(builder.delay)
	wg.Wait()

	if atomic.LoadInt64(&builder.calls) != 1 {
		t.Fatalf("expected exactly one build, got %d", builder.calls)
	}
	for i, r := range results {
		if r == nil || r != results[0] {
			t.Fatalf("result %d did not share the single build's artifact", i)
		}
	}
}

// Scenario 6: cache hit after source edit.
func TestRebuildsAfterSourceEdit(t *testing.T) {
	source := writeSource(t, "version-1")
	builder := &countingBuilder{}
	c := New()
	c.RegisterBuilder(contract.RuntimeHostCommand, builder)

	a1, f := c.GetOrBuild(context.Background(), source, contract.RuntimeHostCommand)
	if f != nil {
		t.Fatalf("first build: %v", f)
	}

	a1again, f := c.GetOrBuild(context.Background(), source, contract.RuntimeHostCommand)
	if f != nil {
		t.Fatalf("cache hit: %v", f)
	}
	if a1again != a1 {
		t.Fatal("expected cache hit to return the same artifact without rebuilding")
	}
	if atomic.LoadInt64(&builder.calls) != 1 {
		t.Fatalf("expected 1 build before edit, got %d", builder.calls)
	}

	if err := os.WriteFile(source, []byte("version-2"), 0644); err != nil {
		t.Fatalf("edit source: %v", err)
	}

	a2, f := c.GetOrBuild(context.Background(), source, contract.RuntimeHostCommand)
	if f != nil {
		t.Fatalf("rebuild: %v", f)
	}
	if a2.ContentHash == a1.ContentHash {
		t.Fatal("expected content hash to change after edit")
	}
	if atomic.LoadInt64(&builder.calls) != 2 {
		t.Fatalf("expected 2 builds total after edit, got %d", builder.calls)
	}
	if c.Len() != 2 {
		t.Fatalf("expected both artifacts retained in cache, got %d", c.Len())
	}
}

func TestPurgeAll(t *testing.T) {
	source := writeSource(t, "content")
	builder := &countingBuilder{}
	c := New()
	c.RegisterBuilder(contract.RuntimeHostCommand, builder)
	c.GetOrBuild(context.Background(), source, contract.RuntimeHostCommand) //nolint:errcheck
	if c.Len() != 1 {
		t.Fatalf("expected 1 cached artifact, got %d", c.Len())
	}
	c.PurgeAll()
	if c.Len() != 0 {
		t.Fatalf("expected 0 after purge, got %d", c.Len())
	}
}

func TestContentHashDeterministic(t *testing.T) {
	source := writeSource(t, "same content")
	h1, err := ContentHash(source)
	if err != nil {
		t.Fatalf("hash 1: %v", err)
	}
	h2, err := ContentHash(source)
	if err != nil {
		t.Fatalf("hash 2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected deterministic hash, got %q vs %q", h1, h2)
	}
}
