// Package manifest implements the Manifest & Instance Resolver (C2): it
// parses the declarative skill manifest, expands ${VAR} references in
// config/env values, interprets source locators, and materializes the
// effective InstanceConfig for a (skill, instance) pair.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/initializ/skillforge/internal/contract"
)

// Manifest is the top-level declarative document: version, global defaults,
// and a set of skill declarations.
type Manifest struct {
	Version  string                `yaml:"version"`
	Defaults CapabilitiesBlock     `yaml:"defaults"`
	Skills   map[string]SkillBlock `yaml:"skills"`

	// dir is the directory the manifest file was loaded from; relative
	// source locators resolve against it. Not part of the wire format.
	dir string
}

// CapabilitiesBlock wraps a CapabilitySet so manifest YAML can nest it
// under a "capabilities" key without the field name colliding with the
// parent block's own fields.
type CapabilitiesBlock struct {
	Capabilities contract.CapabilitySet `yaml:"capabilities"`
}

// SkillBlock is one `[skills.<id>]` declaration.
type SkillBlock struct {
	Source          string                         `yaml:"source"`
	Runtime         contract.RuntimeKind           `yaml:"runtime"`
	Description     string                         `yaml:"description"`
	DefaultInstance string                         `yaml:"default_instance"`
	Ref             string                         `yaml:"ref"`
	Container       *contract.ContainerCapabilities `yaml:"container"`
	Services        []contract.ServiceRequirement  `yaml:"services"`
	Instances       map[string]InstanceBlock       `yaml:"instances"`
}

// InstanceBlock is one `[skills.<id>.instances.<name>]` declaration.
type InstanceBlock struct {
	Description  string                 `yaml:"description"`
	Config       map[string]string      `yaml:"config"`
	Env          map[string]string      `yaml:"env"`
	Capabilities contract.CapabilitySet `yaml:"capabilities"`
}

// SupportedVersion is the only manifest schema version this resolver
// understands.
const SupportedVersion = "1"

// Parse decodes manifest YAML read from path. dir (the manifest's own
// directory) is retained for relative source-locator resolution.
func Parse(path string, data []byte) (*Manifest, error) {
	var raw struct {
		Version  string                `yaml:"version"`
		Defaults struct {
			Capabilities contract.CapabilitySet `yaml:"capabilities"`
		} `yaml:"defaults"`
		Skills map[string]SkillBlock `yaml:"skills"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &contract.Failure{Kind: contract.FailureConfigError, Message: fmt.Sprintf("manifest %s: invalid syntax: %v", path, err), Cause: err}
	}
	if raw.Version != SupportedVersion {
		return nil, contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("manifest %s: unsupported version %q (want %q)", path, raw.Version, SupportedVersion))
	}
	m := &Manifest{
		Version:  raw.Version,
		Defaults: CapabilitiesBlock{Capabilities: raw.Defaults.Capabilities},
		Skills:   raw.Skills,
		dir:      filepath.Dir(path),
	}
	for id, sk := range m.Skills {
		if sk.Source == "" {
			return nil, contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("manifest %s: skill %q missing required field \"source\"", path, id))
		}
		if sk.Runtime == "" {
			sk.Runtime = contract.RuntimeWasm
		}
		if !sk.Runtime.Valid() {
			return nil, contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("manifest %s: skill %q has unknown runtime %q", path, id, sk.Runtime))
		}
		if sk.DefaultInstance == "" {
			sk.DefaultInstance = string(contract.DefaultInstanceId)
		}
		m.Skills[id] = sk
	}
	return m, nil
}

// LoadFile reads and parses a manifest from disk.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, contract.Wrap(contract.FailureConfigError, fmt.Sprintf("reading manifest %s", path), err)
	}
	return Parse(path, data)
}

// SkillIDs returns every declared skill ID, sorted.
func (m *Manifest) SkillIDs() []contract.SkillId {
	ids := make([]contract.SkillId, 0, len(m.Skills))
	for id := range m.Skills {
		ids = append(ids, contract.SkillId(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InstanceIDs returns the named instances declared for a skill, plus the
// implicit default if none are declared.
func (m *Manifest) InstanceIDs(skillID contract.SkillId) []contract.InstanceId {
	sk, ok := m.Skills[string(skillID)]
	if !ok || len(sk.Instances) == 0 {
		return []contract.InstanceId{contract.DefaultInstanceId}
	}
	ids := make([]contract.InstanceId, 0, len(sk.Instances))
	for name := range sk.Instances {
		ids = append(ids, contract.InstanceId(name))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
