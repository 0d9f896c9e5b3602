// Package containerexec implements the Container Executor (§4.5.3): builds
// a container-runtime invocation from the declarative container block plus
// the enforced capability set, runs one tool call as a single exec inside a
// container created for that call, and collects stdout/stderr. Adapted from
// Aureuma-si/agents/shared/docker/client.go's Client type, narrowed to the
// operations this executor needs (create/start/exec/remove, plus image
// pull/inspect).
package containerexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/initializ/skillforge/internal/capability"
	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/dispatch"
)

// MaxOutputBytes caps captured stdout/stderr per call, mirroring hostexec.
const MaxOutputBytes = 1 << 20

// KillGrace bounds the forced ContainerRemove that ExecuteTool issues after
// each call (unless rm=false).
const KillGrace = 5 * time.Second

// Client is the narrow docker API surface this package depends on, so
// tests can substitute a fake without a running daemon.
type Client interface {
	ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerExec(ctx context.Context, id string, cmd []string, env []string, stdout, stderr io.Writer) (int, error)
	ContainerRemove(ctx context.Context, id string, force bool) error
	ImagePull(ctx context.Context, image string) error
	ImageExists(ctx context.Context, image string) (bool, error)
}

// dockerClient is the default Client backed by a real daemon connection.
type dockerClient struct {
	api *dockerclient.Client
}

// NewDockerClient wires a Client against the local daemon via the standard
// DOCKER_HOST/DOCKER_TLS_VERIFY environment, with API version negotiation.
func NewDockerClient() (Client, error) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker daemon: %w", err)
	}
	return &dockerClient{api: cli}, nil
}

func (c *dockerClient) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	resp, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *dockerClient) ContainerStart(ctx context.Context, id string) error {
	return c.api.ContainerStart(ctx, id, container.StartOptions{})
}

func (c *dockerClient) ContainerExec(ctx context.Context, id string, cmd []string, env []string, stdout, stderr io.Writer) (int, error) {
	execResp, err := c.api.ContainerExecCreate(ctx, id, types.ExecConfig{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
		Env:          env,
	})
	if err != nil {
		return 0, err
	}
	attach, err := c.api.ContainerExecAttach(ctx, execResp.ID, types.ExecStartCheck{})
	if err != nil {
		return 0, err
	}
	defer attach.Close()
	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil {
		return 0, err
	}
	inspect, err := c.api.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return 0, err
	}
	return inspect.ExitCode, nil
}

func (c *dockerClient) ContainerRemove(ctx context.Context, id string, force bool) error {
	return c.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force, RemoveVolumes: true})
}

func (c *dockerClient) ImagePull(ctx context.Context, image string) error {
	rc, err := c.api.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (c *dockerClient) ImageExists(ctx context.Context, image string) (bool, error) {
	_, _, err := c.api.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return true, nil
	}
	if dockerclient.IsErrNotFound(err) {
		return false, nil
	}
	return false, err
}

// EnsureImage implements compilecache.ContainerImageResolver: pull the
// image if it is not already present locally.
func (c *dockerClient) EnsureImage(ctx context.Context, image string) error {
	exists, err := c.ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return c.ImagePull(ctx, image)
}

// Executor drives one container-backed skill.
type Executor struct {
	Descriptor contract.SkillDescriptor
	Image      string
	Client     Client
}

func New(descriptor contract.SkillDescriptor, image string, client Client) *Executor {
	return &Executor{Descriptor: descriptor, Image: image, Client: client}
}

func (e *Executor) GetMetadata() contract.SkillDescriptor { return e.Descriptor }

func (e *Executor) ListTools() []contract.ToolSchema { return e.Descriptor.Tools }

func (e *Executor) ValidateConfig(config map[string]string) *contract.Failure { return nil }

func (e *Executor) Close(ctx context.Context) error { return nil }

// ExecuteTool runs one tool call as a fresh, short-lived container: create,
// start, exec the tool's entrypoint with the call envelope on argv, collect
// output, then remove (unless the container block set rm=false).
func (e *Executor) ExecuteTool(ctx context.Context, toolName string, argumentsJSON []byte, ec dispatch.ExecContext) contract.ToolResult {
	tool, ok := e.Descriptor.Tool(toolName)
	if !ok {
		return contract.FailureResult(contract.NewFailure(contract.FailureNotFound, fmt.Sprintf("tool %q not declared by this skill", toolName)))
	}

	var args map[string]json.RawMessage
	if len(argumentsJSON) > 0 {
		if err := json.Unmarshal(argumentsJSON, &args); err != nil {
			return contract.FailureResult(contract.NewFailure(contract.FailureBadRequest, "arguments must be a json object"))
		}
	}
	if f := contract.ValidateArguments(tool, args); f != nil {
		return contract.FailureResult(f)
	}

	cc := ec.Capabilities.Container
	if cc != nil {
		if v := capability.ValidateContainerArgs(cc.ExtraArgs); v != nil {
			return contract.FailureResult(contract.NewFailure(contract.FailureConfigError, v.Error()))
		}
		if !capability.NetworkModeAllowed(cc.NetworkMode) {
			return contract.FailureResult(contract.NewFailure(contract.FailureConfigError, fmt.Sprintf("network mode %q not permitted", cc.NetworkMode)))
		}
	}

	envelope, err := json.Marshal(struct {
		Tool      string          `json:"tool"`
		Arguments json.RawMessage `json:"arguments"`
	}{Tool: tool.Name, Arguments: argumentsJSON})
	if err != nil {
		return contract.FailureResult(contract.Wrap(contract.FailureInternal, "marshalling tool call envelope", err))
	}

	cfg := &container.Config{
		Image: e.Image,
		Cmd:   []string{"run", string(envelope)},
		Env:   envMapToSlice(ec.Env),
	}
	hostCfg := &container.HostConfig{}
	if cc != nil {
		if cc.MemoryBytes > 0 {
			hostCfg.Resources.Memory = cc.MemoryBytes
		}
		if cc.ReadOnlyRoot {
			hostCfg.ReadonlyRootfs = true
		}
		if cc.NetworkMode != "" {
			hostCfg.NetworkMode = dockerNetworkMode(cc.NetworkMode)
		}
		cfg.User = cc.User
	}

	id, err := e.Client.ContainerCreate(ctx, cfg, hostCfg, "")
	if err != nil {
		return contract.FailureResult(contract.Wrap(contract.FailureInternal, "creating container", err))
	}

	removeOnExit := cc == nil || cc.RemoveOnExit == nil || *cc.RemoveOnExit
	defer func() {
		if removeOnExit {
			removeCtx, cancel := context.WithTimeout(context.Background(), KillGrace)
			defer cancel()
			_ = e.Client.ContainerRemove(removeCtx, id, true)
		}
	}()

	if err := e.Client.ContainerStart(ctx, id); err != nil {
		return contract.FailureResult(contract.Wrap(contract.FailureInternal, "starting container", err))
	}

	var stdout, stderr bytes.Buffer
	exitCode, err := e.Client.ContainerExec(ctx, id, cfg.Cmd, cfg.Env, &capWriter{w: &stdout, limit: MaxOutputBytes}, &capWriter{w: &stderr, limit: MaxOutputBytes})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return contract.FailureResult(contract.NewFailure(contract.FailureTimeout, "container call exceeded deadline"))
		}
		return contract.FailureResult(contract.Wrap(contract.FailureInternal, "container exec failed", err))
	}
	if exitCode != 0 {
		tail := strings.TrimSpace(stderr.String())
		if tail == "" {
			tail = fmt.Sprintf("exit code %d", exitCode)
		}
		return contract.FailureResult(contract.NewFailure(contract.FailureServiceUnavailable, "container command failed: "+firstLine(tail)))
	}
	return contract.Success(stdout.String(), nil)
}

func envMapToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func dockerNetworkMode(mode string) container.NetworkMode {
	return container.NetworkMode(mode)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

type capWriter struct {
	w     io.Writer
	limit int
	n     int
}

func (c *capWriter) Write(p []byte) (int, error) {
	if c.n >= c.limit {
		return len(p), nil
	}
	remaining := c.limit - c.n
	if len(p) > remaining {
		c.w.Write(p[:remaining]) //nolint:errcheck
		c.n = c.limit
		return len(p), nil
	}
	n, err := c.w.Write(p)
	c.n += n
	return len(p), err
}
