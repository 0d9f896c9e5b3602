// Package contract defines the data model shared across every component of
// the skill execution core: skill/tool descriptors, instance configuration,
// capability sets, compile artifacts, and the tagged-union result types that
// cross the dispatch boundary.
package contract

import "encoding/json"

// SkillId is a stable string identifier, unique per installation.
type SkillId string

// InstanceId scopes one configuration of a skill. "default" is implicit
// when a skill declares no named instances.
type InstanceId string

const DefaultInstanceId InstanceId = "default"

// RuntimeKind selects which of the three backends executes a skill.
type RuntimeKind string

const (
	RuntimeWasm        RuntimeKind = "wasm"
	RuntimeHostCommand RuntimeKind = "native"
	RuntimeContainer   RuntimeKind = "container"
)

func (k RuntimeKind) Valid() bool {
	switch k {
	case RuntimeWasm, RuntimeHostCommand, RuntimeContainer:
		return true
	default:
		return false
	}
}

// ParameterKind is the type tag of a tool parameter.
type ParameterKind string

const (
	KindString  ParameterKind = "string"
	KindNumber  ParameterKind = "number"
	KindBoolean ParameterKind = "boolean"
	KindJSON    ParameterKind = "json"
	KindArray   ParameterKind = "array"
)

// ParameterSchema describes one named parameter of a tool.
type ParameterSchema struct {
	Name      string          `json:"name"`
	Kind      ParameterKind   `json:"kind"`
	Required  bool            `json:"required"`
	Default   json.RawMessage `json:"default,omitempty"`
	Enum      []string        `json:"enum,omitempty"`
	Pattern   string          `json:"pattern,omitempty"`
	Min       *float64        `json:"min,omitempty"`
	Max       *float64        `json:"max,omitempty"`
	MinLength *int            `json:"min_length,omitempty"`
	MaxLength *int            `json:"max_length,omitempty"`
}

// ToolSchema is the contract for one named operation a skill exposes.
type ToolSchema struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  []ParameterSchema `json:"parameters"`
}

// Parameter looks up a parameter by name, or reports ok=false.
func (t ToolSchema) Parameter(name string) (ParameterSchema, bool) {
	for _, p := range t.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSchema{}, false
}

// ServiceRequirement is an informational declaration of an external
// dependency a skill expects the serving collaborator to satisfy.
type ServiceRequirement struct {
	Name        string `json:"name"`
	Optional    bool   `json:"optional"`
	DefaultPort int    `json:"default_port,omitempty"`
	Description string `json:"description,omitempty"`
}

// ServiceStatus is the collaborator-observed state of a required service.
type ServiceStatus struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	Running bool   `json:"running"`
}

// SkillDescriptor is immutable once a skill is loaded.
type SkillDescriptor struct {
	ID               SkillId              `json:"id"`
	Name             string               `json:"name"`
	Version          string               `json:"version"`
	Description      string               `json:"description"`
	Author           string               `json:"author,omitempty"`
	RuntimeKind      RuntimeKind          `json:"runtime_kind"`
	Source           string               `json:"source"`
	Tools            []ToolSchema         `json:"tools"`
	RequiredServices []ServiceRequirement `json:"required_services,omitempty"`
	ContentHash      string               `json:"content_hash"`
}

// Tool looks up a declared tool by name.
func (d SkillDescriptor) Tool(name string) (ToolSchema, bool) {
	for _, t := range d.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolSchema{}, false
}

// ContainerCapabilities narrows container-runtime behavior. These fields
// compose with CapabilitySet but never widen it.
type ContainerCapabilities struct {
	MemoryBytes  int64    `yaml:"memory_bytes,omitempty" json:"memory_bytes,omitempty"`
	CPUs         float64  `yaml:"cpus,omitempty" json:"cpus,omitempty"`
	User         string   `yaml:"user,omitempty" json:"user,omitempty"`
	ReadOnlyRoot bool     `yaml:"read_only_root,omitempty" json:"read_only_root,omitempty"`
	NetworkMode  string   `yaml:"network_mode,omitempty" json:"network_mode,omitempty"` // none|bridge|host
	ExtraArgs    []string `yaml:"extra_args,omitempty" json:"extra_args,omitempty"`
	Image        string   `yaml:"image,omitempty" json:"image,omitempty"`
	RemoveOnExit *bool    `yaml:"rm,omitempty" json:"rm,omitempty"`
}

// CapabilitySet is the full set of permissions granted to an instance.
// The zero value grants nothing: network access is disabled, no paths are
// visible, and concurrency defaults to a conservative cap.
type CapabilitySet struct {
	NetworkAccess         bool                   `yaml:"network_access" json:"network_access"`
	AllowedPaths          []string               `yaml:"allowed_paths,omitempty" json:"allowed_paths,omitempty"`
	MaxConcurrentRequests int                    `yaml:"max_concurrent_requests,omitempty" json:"max_concurrent_requests,omitempty"`
	AllowedCommands       []string               `yaml:"allowed_commands,omitempty" json:"allowed_commands,omitempty"`
	AllowedDomains        []string               `yaml:"allowed_domains,omitempty" json:"allowed_domains,omitempty"`
	Container             *ContainerCapabilities `yaml:"container,omitempty" json:"container,omitempty"`
}

// DefaultMaxConcurrentRequests is applied when a CapabilitySet leaves the
// field at its zero value.
const DefaultMaxConcurrentRequests = 10

// EffectiveMaxConcurrentRequests returns the configured limit, or the
// default if unset.
func (c CapabilitySet) EffectiveMaxConcurrentRequests() int {
	if c.MaxConcurrentRequests <= 0 {
		return DefaultMaxConcurrentRequests
	}
	return c.MaxConcurrentRequests
}

// Merge overlays instance-level overrides onto defaults. Per-field
// replacement, no deep merge of slices: any non-zero field on the instance
// replaces the corresponding default field outright.
func (defaults CapabilitySet) Merge(instance CapabilitySet) CapabilitySet {
	out := defaults
	out.NetworkAccess = instance.NetworkAccess || defaults.NetworkAccess
	if instance.AllowedPaths != nil {
		out.AllowedPaths = instance.AllowedPaths
	}
	if instance.MaxConcurrentRequests != 0 {
		out.MaxConcurrentRequests = instance.MaxConcurrentRequests
	}
	if instance.AllowedCommands != nil {
		out.AllowedCommands = instance.AllowedCommands
	}
	if instance.AllowedDomains != nil {
		out.AllowedDomains = instance.AllowedDomains
	}
	if instance.Container != nil {
		out.Container = instance.Container
	}
	return out
}

// InstanceConfig is materialized per resolve() call from the manifest and
// ambient environment. It is mutable by the operator, never by the skill.
type InstanceConfig struct {
	SkillID      SkillId                  `json:"skill_id"`
	InstanceID   InstanceId               `json:"instance_id"`
	Config       map[string]string        `json:"config,omitempty"`
	Env          map[string]string        `json:"env,omitempty"`
	Capabilities CapabilitySet            `json:"capabilities"`
	Services     map[string]ServiceStatus `json:"services,omitempty"`
	Description  string                   `json:"description,omitempty"`
}

// CompileArtifact is the content-addressed output of preparing a skill's
// source tree for a specific backend.
type CompileArtifact struct {
	ContentHash      string       `json:"content_hash"`
	RuntimeKind      RuntimeKind  `json:"runtime_kind"`
	ToolchainVersion string       `json:"toolchain_version"`
	Blob             []byte       `json:"-"`
	BlobPath         string       `json:"blob_path,omitempty"`
	Tools            []ToolSchema `json:"tools"`
	Signature        string       `json:"signature,omitempty"`
	SignedBy         string       `json:"signed_by,omitempty"`
}

// Key uniquely identifies a cache entry.
func (a CompileArtifact) Key() string {
	return a.ContentHash + "|" + string(a.RuntimeKind) + "|" + a.ToolchainVersion
}
