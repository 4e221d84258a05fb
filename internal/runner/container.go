package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// ContainerRuntime executes stage commands inside Docker containers.
// Used by pipelines that pin a build image instead of relying on the
// host toolchain.
type ContainerRuntime struct {
	client *client.Client
}

// ContainerHandle represents a running container.
type ContainerHandle struct {
	client      *client.Client
	containerID string
}

// NewContainerRuntime creates a new Docker-based runtime.
func NewContainerRuntime() (*ContainerRuntime, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &ContainerRuntime{client: cli}, nil
}

// Start implements Runtime.Start using Docker containers. The run
// workspace is bind-mounted as the container's working directory.
func (d *ContainerRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("container runtime requires an image")
	}

	// Check if the image exists locally first to save time.
	_, err := d.client.ImageInspect(ctx, opts.Image)
	if err != nil {
		reader, err := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", opts.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	const workdir = "/workspace"

	containerConfig := &container.Config{
		Image:      opts.Image,
		Cmd:        []string{"sh", "-c", opts.Command},
		Env:        envList(opts.Env),
		WorkingDir: workdir,
		Tty:        true,
	}
	hostConfig := &container.HostConfig{
		Binds: []string{opts.Dir + ":" + workdir},
	}

	containerResponse, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, containerResponse.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &ContainerHandle{
		client:      d.client,
		containerID: containerResponse.ID,
	}, nil
}

func (h *ContainerHandle) Wait(ctx context.Context) (ExitResult, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return ExitResult{ExitCode: -1, Error: err}, err
	case status := <-statusCh:
		if status.Error != nil {
			return ExitResult{
				ExitCode: int(status.StatusCode),
				Error:    fmt.Errorf("%s", status.Error.Message),
			}, nil
		}
		return ExitResult{ExitCode: int(status.StatusCode)}, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *ContainerHandle) Stop(ctx context.Context) error {
	timeOut := 5
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeOut})
}

func (h *ContainerHandle) StreamLogs(ctx context.Context) (io.ReadCloser, error) {
	return h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
}

func envList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
