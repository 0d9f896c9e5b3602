package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/initializ/skillforge/internal/capability"
	"github.com/initializ/skillforge/internal/contract"
)

// ResolvedInstance holds an instance's raw, not-yet-expanded config/env
// templates plus its already-merged capability set. list_tools and
// validate_config's schema check need only the descriptor, so expansion is
// deferred until Materialize is called — matching the rule that listing a
// skill's tools must succeed even when a referenced variable is unset.
type ResolvedInstance struct {
	SkillID      contract.SkillId
	InstanceID   contract.InstanceId
	Source       string
	Runtime      contract.RuntimeKind
	Ref          string
	Container    *contract.ContainerCapabilities
	Services     []contract.ServiceRequirement
	Description  string
	rawConfig    map[string]string
	rawEnv       map[string]string
	Capabilities contract.CapabilitySet
	expander     *Expander
}

// Resolver materializes InstanceConfig values from a parsed Manifest and an
// ambient environment (process env plus optional dotenv overlay).
type Resolver struct {
	manifest *Manifest
	osEnv    map[string]string
	dotEnv   map[string]string
}

// NewResolver builds a Resolver. dotEnv may be nil.
func NewResolver(m *Manifest, osEnv, dotEnv map[string]string) *Resolver {
	if osEnv == nil {
		osEnv = envToMap(os.Environ())
	}
	if dotEnv == nil {
		dotEnv = map[string]string{}
	}
	return &Resolver{manifest: m, osEnv: osEnv, dotEnv: dotEnv}
}

func envToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			m[kv[:idx]] = kv[idx+1:]
		}
	}
	return m
}

// Resolve looks up the skill/instance pair and produces a ResolvedInstance.
// It never partially applies an instance: any structural error (unknown
// skill/instance, bad source locator) fails atomically before anything is
// returned.
func (r *Resolver) Resolve(skillID contract.SkillId, instanceID contract.InstanceId) (*ResolvedInstance, *contract.Failure) {
	sk, ok := r.manifest.Skills[string(skillID)]
	if !ok {
		return nil, contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("skill %q not declared in manifest", skillID))
	}
	if instanceID == "" {
		instanceID = contract.DefaultInstanceId
	}

	var inst InstanceBlock
	if len(sk.Instances) > 0 {
		found, ok := sk.Instances[string(instanceID)]
		if !ok {
			return nil, contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("instance %q not declared for skill %q", instanceID, skillID))
		}
		inst = found
	}

	if err := validateSource(sk); err != nil {
		return nil, err
	}

	caps := r.manifest.Defaults.Capabilities.Merge(inst.Capabilities)

	for _, cc := range []*contract.ContainerCapabilities{sk.Container, caps.Container} {
		if cc == nil {
			continue
		}
		if v := capability.ValidateContainerArgs(cc.ExtraArgs); v != nil {
			return nil, contract.NewFailure(contract.FailureConfigError, v.Reason).WithDetails(map[string]any{"arg": v.Arg})
		}
	}

	source := sk.Source
	if strings.HasPrefix(source, "./") || strings.HasPrefix(source, "../") {
		source = filepath.Join(r.manifest.dir, source)
	}

	cfgVars := map[string]string{}
	for k, v := range inst.Config {
		cfgVars[k] = v
	}
	merged := map[string]string{}
	for k, v := range r.osEnv {
		merged[k] = v
	}
	for k, v := range r.dotEnv {
		merged[k] = v
	}
	for k, v := range cfgVars {
		merged[k] = v
	}
	expander := NewExpander(merged)

	return &ResolvedInstance{
		SkillID:      skillID,
		InstanceID:   instanceID,
		Source:       source,
		Runtime:      sk.Runtime,
		Ref:          sk.Ref,
		Container:    sk.Container,
		Services:     sk.Services,
		Description:  coalesce(inst.Description, sk.Description),
		rawConfig:    inst.Config,
		rawEnv:       inst.Env,
		Capabilities: caps,
		expander:     expander,
	}, nil
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// validateSource checks the locator grammar from spec.md §4.2: relative
// paths, absolute paths, docker:<image>[:tag] (requiring Container
// runtime), and git-shaped locators (requiring a ref — fetch/pin is
// intentionally unimplemented, see DESIGN.md's Open Question resolution).
func validateSource(sk SkillBlock) *contract.Failure {
	src := sk.Source
	switch {
	case strings.HasPrefix(src, "./") || strings.HasPrefix(src, "../") || strings.HasPrefix(src, "/"):
		return nil
	case strings.HasPrefix(src, "docker:"):
		if sk.Runtime != contract.RuntimeContainer {
			return contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("source %q requires runtime=container", src))
		}
		return nil
	case strings.Contains(src, "://") || strings.HasPrefix(src, "git@"):
		if sk.Ref == "" {
			return contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("remote source %q requires a pinned \"ref\"", src))
		}
		return contract.NewFailure(contract.FailureConfigError, "git source fetch not implemented")
	default:
		return contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("source %q is not a recognized locator", src))
	}
}

// Materialize performs ${VAR} expansion over config/env and returns the
// effective InstanceConfig. This is where a missing required variable
// surfaces as ConfigError — deliberately not performed by Resolve itself,
// so list_tools/validate_config-against-schema can succeed even when an
// instance references an unset variable that only a particular tool call
// would need.
func (ri *ResolvedInstance) Materialize() (contract.InstanceConfig, *contract.Failure) {
	cfg, err := ri.expander.ExpandMap(ri.rawConfig)
	if err != nil {
		return contract.InstanceConfig{}, err.(*contract.Failure)
	}
	env, err := ri.expander.ExpandMap(ri.rawEnv)
	if err != nil {
		return contract.InstanceConfig{}, err.(*contract.Failure)
	}
	return contract.InstanceConfig{
		SkillID:      ri.SkillID,
		InstanceID:   ri.InstanceID,
		Config:       cfg,
		Env:          env,
		Capabilities: ri.Capabilities,
		Description:  ri.Description,
	}, nil
}

// DeclaredKeys returns the set of config/env keys this instance declares,
// for the credential accessor's declared-key gate (C1's Accessor refuses
// any key outside this set).
func (ri *ResolvedInstance) DeclaredKeys() map[string]bool {
	out := map[string]bool{}
	for k := range ri.rawConfig {
		out[k] = true
	}
	for k := range ri.rawEnv {
		out[k] = true
	}
	return out
}
