package capability

import (
	"fmt"

	"github.com/initializ/skillforge/internal/contract"
)

// Enforcer translates a resolved CapabilitySet into backend-specific
// enforcement decisions. It is pure with respect to policy: it never
// widens what the CapabilitySet grants.
type Enforcer struct{}

// NewEnforcer constructs an Enforcer. It carries no state — every decision
// is a pure function of the CapabilitySet and backend-specific arguments
// passed in.
func NewEnforcer() *Enforcer { return &Enforcer{} }

// CheckWasm produces the preopen list for a wasm session: the allowed
// paths plus the session temp directory. It returns no failure and no
// resource limits.
func (e *Enforcer) CheckWasm(caps contract.CapabilitySet, sessionTempDir string) []Preopen {
	return Preopens(caps.AllowedPaths, sessionTempDir)
}

// CheckHostCommand validates a proposed (base_command, argv) invocation
// against the capability set's command allow-list.
func (e *Enforcer) CheckHostCommand(caps contract.CapabilitySet, baseCommand string, argv []string) *contract.Failure {
	if v := HostCommandCheck(caps.AllowedCommands, baseCommand, argv); v != nil {
		return contract.NewFailure(contract.FailureCapabilityDenied, v.Reason).WithDetails(map[string]any{"arg": v.Arg})
	}
	return nil
}

// CheckContainer validates the container block's extra args and network
// mode before any container is created.
func (e *Enforcer) CheckContainer(caps contract.CapabilitySet) *contract.Failure {
	if caps.Container == nil {
		return nil
	}
	if v := ValidateContainerArgs(caps.Container.ExtraArgs); v != nil {
		return contract.NewFailure(contract.FailureConfigError, v.Reason).WithDetails(map[string]any{"arg": v.Arg})
	}
	if !NetworkModeAllowed(caps.Container.NetworkMode) {
		return contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("unrecognized network mode %q", caps.Container.NetworkMode))
	}
	return nil
}

// CheckNetwork reports whether network_access permits any egress at all;
// the actual per-domain decision is made by Egress.RoundTrip at request
// time, once an http.Client wraps this enforcer's Egress transport.
func (e *Enforcer) CheckNetwork(caps contract.CapabilitySet) *contract.Failure {
	if !caps.NetworkAccess {
		return contract.NewFailure(contract.FailureCapabilityDenied, "network access denied for this instance")
	}
	return nil
}

// NewEgressTransport builds the egress-enforcing http.RoundTripper for an
// instance. The session places it on dispatch.ExecContext.Egress; none of
// the three executors currently reads that field.
func (e *Enforcer) NewEgressTransport(caps contract.CapabilitySet) *Egress {
	return NewEgress(nil, caps.NetworkAccess, caps.AllowedDomains)
}
