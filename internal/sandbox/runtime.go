package sandbox

import (
	"context"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// Runtime is the narrow subset of the Docker Engine API this package needs
// (§6.2: create, start, inspect, stop, wait, plus image pull for the
// not-found retry). Defined as its own interface, rather than depending on
// the full client.APIClient directly, so unit tests can fake it without a
// running daemon — matching the donor codebase's own practice of depending
// on small first-party interfaces instead of the raw SDK client type.
type Runtime interface {
	ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error)
	ContainerStart(ctx context.Context, id string) error
	ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error)
	ContainerStop(ctx context.Context, id string, timeoutSecs int) error
	ContainerWait(ctx context.Context, id string) (<-chan container.WaitResponse, <-chan error)
	ImagePull(ctx context.Context, ref string) (io.ReadCloser, error)
}

// DockerRuntime adapts a real Docker Engine API client to Runtime.
type DockerRuntime struct {
	cli client.APIClient
}

// NewDockerRuntime wraps cli (typically from client.NewClientWithOpts) as a
// Runtime.
func NewDockerRuntime(cli client.APIClient) *DockerRuntime {
	return &DockerRuntime{cli: cli}
}

func (r *DockerRuntime) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	return resp.ID, err
}

func (r *DockerRuntime) ContainerStart(ctx context.Context, id string) error {
	return r.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (r *DockerRuntime) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	return r.cli.ContainerInspect(ctx, id)
}

func (r *DockerRuntime) ContainerStop(ctx context.Context, id string, timeoutSecs int) error {
	return r.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeoutSecs})
}

func (r *DockerRuntime) ContainerWait(ctx context.Context, id string) (<-chan container.WaitResponse, <-chan error) {
	return r.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
}

func (r *DockerRuntime) ImagePull(ctx context.Context, ref string) (io.ReadCloser, error) {
	return r.cli.ImagePull(ctx, ref, image.PullOptions{})
}
