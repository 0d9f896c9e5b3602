package manifest

import (
	"testing"

	"github.com/initializ/skillforge/internal/contract"
)

const sampleManifest = `
version: "1"
defaults:
  capabilities:
    network_access: false
    max_concurrent_requests: 10
skills:
  github:
    source: ./skills/github
    runtime: wasm
    instances:
      default:
        env:
          GITHUB_TOKEN: "${GITHUB_TOKEN}"
  aws:
    source: ./skills/aws
    runtime: wasm
    instances:
      default:
        config:
          region: "${AWS_REGION:-us-east-1}"
`

func parseSample(t *testing.T) *Manifest {
	t.Helper()
	m, err := Parse("/tmp/forge.yaml", []byte(sampleManifest))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return m
}

// Scenario 1: variable expansion — required, unset. Resolving must succeed
// (list_tools doesn't need expansion); materializing must fail.
func TestRequiredVariableExpansionDeferred(t *testing.T) {
	m := parseSample(t)
	r := NewResolver(m, map[string]string{}, nil)

	ri, f := r.Resolve("github", "default")
	if f != nil {
		t.Fatalf("resolve should succeed without expansion: %v", f)
	}

	_, f = ri.Materialize()
	if f == nil || f.Kind != contract.FailureConfigError {
		t.Fatalf("expected ConfigError on materialize, got %v", f)
	}
}

// Scenario 2: variable expansion — default.
func TestDefaultVariableExpansion(t *testing.T) {
	m := parseSample(t)
	r := NewResolver(m, map[string]string{}, nil)

	ri, f := r.Resolve("aws", "default")
	if f != nil {
		t.Fatalf("resolve: %v", f)
	}
	cfg, f := ri.Materialize()
	if f != nil {
		t.Fatalf("materialize: %v", f)
	}
	if cfg.Config["region"] != "us-east-1" {
		t.Fatalf("region = %q, want us-east-1", cfg.Config["region"])
	}
}

func TestResolveTwiceYieldsEqualSnapshots(t *testing.T) {
	m := parseSample(t)
	r := NewResolver(m, map[string]string{"AWS_REGION": "eu-west-1"}, nil)

	ri1, _ := r.Resolve("aws", "default")
	cfg1, f := ri1.Materialize()
	if f != nil {
		t.Fatalf("materialize 1: %v", f)
	}
	ri2, _ := r.Resolve("aws", "default")
	cfg2, f := ri2.Materialize()
	if f != nil {
		t.Fatalf("materialize 2: %v", f)
	}
	if cfg1.Config["region"] != cfg2.Config["region"] {
		t.Fatalf("expected equal snapshots, got %q vs %q", cfg1.Config["region"], cfg2.Config["region"])
	}
}

func TestUnknownSkillNotFound(t *testing.T) {
	m := parseSample(t)
	r := NewResolver(m, nil, nil)
	if _, f := r.Resolve("does-not-exist", "default"); f == nil || f.Kind != contract.FailureNotFound {
		t.Fatalf("expected NotFound, got %v", f)
	}
}

func TestExpanderCycleDetected(t *testing.T) {
	e := NewExpander(map[string]string{"A": "${B}", "B": "${A}"})
	if _, err := e.Expand("${A}"); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestExpanderRequiredMessage(t *testing.T) {
	e := NewExpander(map[string]string{})
	_, err := e.Expand("${TOKEN:?must set TOKEN}")
	f, ok := err.(*contract.Failure)
	if !ok || f.Message != "must set TOKEN" {
		t.Fatalf("expected custom required message, got %v", err)
	}
}

func TestManifestRejectsBadVersion(t *testing.T) {
	_, err := Parse("/tmp/forge.yaml", []byte("version: \"2\"\nskills: {}\n"))
	if err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestManifestRejectsPrivilegedContainerArgs(t *testing.T) {
	// Scenario 5 is enforced by the capability package at resolution time,
	// not by the manifest parser itself — parsing only needs to preserve
	// the declared extra_args so the enforcer can see and reject them.
	data := `
version: "1"
skills:
  deploy:
    source: ./skills/deploy
    runtime: container
    container:
      extra_args: ["--privileged"]
`
	m, err := Parse("/tmp/forge.yaml", []byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	sk := m.Skills["deploy"]
	if sk.Container == nil || len(sk.Container.ExtraArgs) != 1 || sk.Container.ExtraArgs[0] != "--privileged" {
		t.Fatalf("expected extra_args to round-trip, got %+v", sk.Container)
	}

	r := NewResolver(m, map[string]string{}, nil)
	if _, f := r.Resolve("deploy", "default"); f == nil || f.Kind != contract.FailureConfigError {
		t.Fatalf("expected ConfigError from resolve, got %v", f)
	}
}
