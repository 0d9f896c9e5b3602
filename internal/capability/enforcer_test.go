package capability

import (
	"net/http"
	"testing"

	"github.com/initializ/skillforge/internal/contract"
)

// Scenario 4: capability denial (host). Skill allow-list {kubectl}, call
// base_command="rm".
func TestHostCommandDeniedWhenNotInAllowList(t *testing.T) {
	e := NewEnforcer()
	caps := contract.CapabilitySet{AllowedCommands: []string{"kubectl"}}
	f := e.CheckHostCommand(caps, "rm", []string{"-rf", "/"})
	if f == nil || f.Kind != contract.FailureCapabilityDenied {
		t.Fatalf("expected CapabilityDenied, got %v", f)
	}
}

func TestHostCommandAllowedWhenListed(t *testing.T) {
	e := NewEnforcer()
	caps := contract.CapabilitySet{AllowedCommands: []string{"kubectl"}}
	if f := e.CheckHostCommand(caps, "kubectl", []string{"get", "pods"}); f != nil {
		t.Fatalf("expected no denial, got %v", f)
	}
}

func TestHostCommandRejectsShellMetacharacters(t *testing.T) {
	e := NewEnforcer()
	caps := contract.CapabilitySet{AllowedCommands: []string{"kubectl"}}
	if f := e.CheckHostCommand(caps, "kubectl", []string{"get pods; rm -rf /"}); f == nil {
		t.Fatal("expected denial for embedded shell metacharacter")
	}
}

// Scenario 5: capability denial (container). extra_args=["--privileged"].
func TestContainerPrivilegedRejected(t *testing.T) {
	e := NewEnforcer()
	caps := contract.CapabilitySet{Container: &contract.ContainerCapabilities{ExtraArgs: []string{"--privileged"}}}
	f := e.CheckContainer(caps)
	if f == nil || f.Kind != contract.FailureConfigError {
		t.Fatalf("expected ConfigError, got %v", f)
	}
}

func TestContainerDockerSocketMountRejected(t *testing.T) {
	v := ValidateContainerArgs([]string{"-v/var/run/docker.sock:/var/run/docker.sock"})
	if v == nil {
		t.Fatal("expected docker socket mount to be rejected")
	}
}

func TestContainerHostRootMountRejected(t *testing.T) {
	v := ValidateContainerArgs([]string{"-v/:/host"})
	if v == nil {
		t.Fatal("expected host root mount to be rejected")
	}
}

func TestContainerHostNetworkPermittedWhenExplicit(t *testing.T) {
	e := NewEnforcer()
	caps := contract.CapabilitySet{Container: &contract.ContainerCapabilities{NetworkMode: "host"}}
	if f := e.CheckContainer(caps); f != nil {
		t.Fatalf("explicit network=host should be permitted, got %v", f)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestNetworkAccessFalseDeniesEgress(t *testing.T) {
	// Loopback is always allowed, so the request targets a non-loopback
	// host; the base transport answers 200 for anything that gets through.
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})

	egress := NewEgress(base, false, nil)
	client := &http.Client{Transport: egress}

	_, err := client.Get("http://api.example.com/")
	if err == nil {
		t.Fatal("expected egress to be blocked when network_access=false")
	}
}

func TestNetworkAllowlistWildcard(t *testing.T) {
	egress := NewEgress(http.DefaultTransport, true, []string{"*.github.com"})
	req, _ := http.NewRequest(http.MethodGet, "https://api.github.com/", nil)
	if !egress.isAllowed("api.github.com") {
		t.Fatal("expected api.github.com to match *.github.com wildcard")
	}
	_ = req
	if egress.isAllowed("evil.example.com") {
		t.Fatal("expected non-allowlisted host to be denied")
	}
}
