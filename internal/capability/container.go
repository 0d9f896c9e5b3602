package capability

import (
	"os"
	"regexp"
	"strings"
)

// InContainer reports whether the current process is itself running
// inside a container (KUBERNETES_SERVICE_HOST set, or /.dockerenv
// present). The container executor does not consult it.
func InContainer() bool {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// disallowedContainerArgs are container-runtime flags that always widen
// the sandbox beyond what a CapabilitySet may grant, regardless of
// instance configuration.
var disallowedContainerArgs = []string{
	"--privileged",
	"--pid=host",
	"--ipc=host",
	"--cap-add=all",
	"-v=/:/",
	"--volume=/:/",
}

// ValidateContainerArgs rejects forbidden host-mount and privilege flags
// before a container is ever created. The manifest resolver calls it at
// resolution time, and the container executor calls it again before
// creating a container, so a forbidden flag never reaches a launch.
func ValidateContainerArgs(extraArgs []string) *ContainerViolation {
	for _, arg := range extraArgs {
		lower := strings.ToLower(arg)
		for _, forbidden := range disallowedContainerArgs {
			if lower == forbidden || strings.HasPrefix(lower, forbidden) {
				return &ContainerViolation{Arg: arg, Reason: forbidden + " forbidden"}
			}
		}
		if isHostRootMount(lower) {
			return &ContainerViolation{Arg: arg, Reason: "mounting host root forbidden"}
		}
		if strings.Contains(lower, "docker.sock") {
			return &ContainerViolation{Arg: arg, Reason: "mounting the host container socket forbidden"}
		}
	}
	return nil
}

// ContainerViolation describes why a requested container argument was
// rejected before the container was created.
type ContainerViolation struct {
	Arg    string
	Reason string
}

func (v *ContainerViolation) Error() string {
	return v.Reason
}

var hostRootMountPattern = regexp.MustCompile(`^(-v|--volume|--mount)[= ]?.*\bsource=?/(\s|:|$)|^(-v|--volume)[= ]?/:`)

func isHostRootMount(lower string) bool {
	if !strings.HasPrefix(lower, "-v") && !strings.HasPrefix(lower, "--volume") && !strings.HasPrefix(lower, "--mount") {
		return false
	}
	return hostRootMountPattern.MatchString(lower) || strings.Contains(lower, ":/:") || strings.HasSuffix(lower, ":/")
}

// NetworkModeAllowed reports whether the requested container network mode
// is one of the recognized values. "host" is permitted only because the
// instance explicitly requested it — the enforcer never infers it.
func NetworkModeAllowed(mode string) bool {
	switch mode {
	case "", "none", "bridge", "host":
		return true
	default:
		return false
	}
}
