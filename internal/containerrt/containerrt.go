// Package containerrt is the thin operation set the orchestrator drives
// against the host container engine: build image, create+attach container,
// start/stop/kill/remove, list statuses, read logs, create/delete a bridge
// network.
package containerrt

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/mauriceyap/diorama/internal/logging"
)

// Action is a container lifecycle operation the orchestrator may request.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionKill    Action = "kill"
	ActionRestart Action = "restart"
	ActionPause   Action = "pause"
	ActionUnpause Action = "unpause"
	ActionRemove  Action = "remove"
)

// LogLine is one parsed line of a container's stdout/stderr stream.
type LogLine struct {
	Timestamp string
	Message   string
}

// Adapter wraps a docker engine client with the operations the simulation
// orchestrator needs.
type Adapter struct {
	cli *client.Client
}

// New builds an Adapter from the ambient docker environment (DOCKER_HOST
// etc.), negotiating the API version with the daemon.
func New() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// BuildImage builds from a build context directory containing a Dockerfile,
// tagging the result.
func (a *Adapter) BuildImage(ctx context.Context, contextDir, tag string) error {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("packing build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := a.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("building image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	// Drain the build log; a failed step surfaces as an errorDetail object
	// in the stream rather than a non-2xx response.
	return drainBuildLog(resp.Body)
}

func drainBuildLog(r io.Reader) error {
	dec := bufio.NewScanner(r)
	dec.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lastErr error
	for dec.Scan() {
		line := dec.Text()
		if strings.Contains(line, `"errorDetail"`) {
			lastErr = fmt.Errorf("docker build step failed: %s", line)
		}
	}
	return lastErr
}

// nodeMaxFilesUlimit is the nofile ulimit applied to every node container;
// simulated nodes can open many sockets across a large topology.
const nodeMaxFilesUlimit int64 = 1048576

// CreateContainerOpts collects the parameters for CreateContainer.
type CreateContainerOpts struct {
	ImageTag    string
	Name        string
	Launch      []string
	Args        []string
	IPAddress   string
	UDPPort     int
	NetworkName string
}

// CreateContainer creates (but does not start) a container attached to the
// named bridge network at a static IPv4, with a single UDP port published.
func (a *Adapter) CreateContainer(ctx context.Context, opts CreateContainerOpts) (string, error) {
	cmd := append(append([]string{}, opts.Launch...), opts.Args...)

	exposed, bindings, err := nat.ParsePortSpecs([]string{fmt.Sprintf("%d:%d/udp", opts.UDPPort, opts.UDPPort)})
	if err != nil {
		return "", fmt.Errorf("parsing udp port spec: %w", err)
	}

	ccfg := &container.Config{
		Image:        opts.ImageTag,
		Cmd:          cmd,
		ExposedPorts: exposed,
	}
	hcfg := &container.HostConfig{
		PortBindings: bindings,
		Resources: container.Resources{
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Hard: nodeMaxFilesUlimit, Soft: nodeMaxFilesUlimit},
			},
		},
	}
	ncfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			opts.NetworkName: {
				IPAMConfig: &network.EndpointIPAMConfig{
					IPv4Address: opts.IPAddress,
				},
			},
		},
	}

	resp, err := a.cli.ContainerCreate(ctx, ccfg, hcfg, ncfg, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("creating container %s: %w", opts.Name, err)
	}
	return resp.ID, nil
}

// ActionContainer forwards a lifecycle action to the named container;
// NotFound is a silent no-op, since cleanup must be idempotent.
func (a *Adapter) ActionContainer(ctx context.Context, name string, action Action) error {
	var err error
	switch action {
	case ActionStart:
		err = a.cli.ContainerStart(ctx, name, types.ContainerStartOptions{})
	case ActionStop:
		err = a.cli.ContainerStop(ctx, name, container.StopOptions{})
	case ActionKill:
		err = a.cli.ContainerKill(ctx, name, "SIGKILL")
	case ActionRestart:
		err = a.cli.ContainerRestart(ctx, name, container.StopOptions{})
	case ActionPause:
		err = a.cli.ContainerPause(ctx, name)
	case ActionUnpause:
		err = a.cli.ContainerUnpause(ctx, name)
	case ActionRemove:
		err = a.cli.ContainerRemove(ctx, name, types.ContainerRemoveOptions{Force: true})
	default:
		return fmt.Errorf("unsupported container action: %s", action)
	}
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// GetContainerStatuses bulk-queries container state by name. Names absent
// from the engine's response have no entry; callers surface those as
// "missing".
func (a *Adapter) GetContainerStatuses(ctx context.Context, names []string) (map[string]string, error) {
	f := filters.NewArgs()
	for _, n := range names {
		f.Add("name", n)
	}
	containers, err := a.cli.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("listing container statuses: %w", err)
	}

	out := make(map[string]string)
	for _, c := range containers {
		for _, n := range c.Names {
			clean := strings.TrimPrefix(n, "/")
			for _, want := range names {
				if clean == want {
					out[want] = c.State
				}
			}
		}
	}
	return out, nil
}

// StreamContainerLogs streams a tail of stdout/stderr, optionally from a
// given point in time.
func (a *Adapter) StreamContainerLogs(ctx context.Context, name string, since string) (io.ReadCloser, error) {
	opts := types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
	}
	if since != "" {
		opts.Since = since
	}
	rc, err := a.cli.ContainerLogs(ctx, name, opts)
	if client.IsErrNotFound(err) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("streaming logs for %s: %w", name, err)
	}
	return rc, nil
}

// ParseLog splits a raw log blob at newlines; each line is "timestamp SP
// message".
func ParseLog(raw []byte) []LogLine {
	var out []LogLine
	lines := strings.Split(string(raw), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		if len(parts) != 2 {
			out = append(out, LogLine{Message: line})
			continue
		}
		out = append(out, LogLine{Timestamp: parts[0], Message: parts[1]})
	}
	return out
}

// CreateNetwork creates a bridge network with the given subnet, with no
// external egress (internal=true).
func (a *Adapter) CreateNetwork(ctx context.Context, name, subnet string) error {
	_, err := a.cli.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver:   "bridge",
		Internal: true,
		IPAM: &network.IPAM{
			Config: []network.IPAMConfig{{Subnet: subnet}},
		},
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("creating network %s: %w", name, err)
	}
	return nil
}

// RemoveNetwork removes a bridge network; NotFound is a silent no-op.
func (a *Adapter) RemoveNetwork(ctx context.Context, name string) error {
	err := a.cli.NetworkRemove(ctx, name)
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// RemoveContainers idempotently force-removes each name concurrently,
// aggregating any non-NotFound errors.
func (a *Adapter) RemoveContainers(ctx context.Context, names []string) error {
	var (
		mu   sync.Mutex
		merr *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	ratelimit := make(chan struct{}, 16)
	for _, n := range names {
		n := n
		g.Go(func() error {
			ratelimit <- struct{}{}
			defer func() { <-ratelimit }()
			err := a.cli.ContainerRemove(gctx, n, types.ContainerRemoveOptions{Force: true})
			if err != nil && !client.IsErrNotFound(err) {
				logging.S().Errorw("failed removing container", "name", n, "error", err)
				mu.Lock()
				merr = multierror.Append(merr, fmt.Errorf("removing container %s: %w", n, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return merr.ErrorOrNil()
}

// RemoveImages idempotently removes each image tag.
func (a *Adapter) RemoveImages(ctx context.Context, tags []string) error {
	var merr *multierror.Error
	for _, tag := range tags {
		_, err := a.cli.ImageRemove(ctx, tag, types.ImageRemoveOptions{Force: true})
		if err != nil && !client.IsErrNotFound(err) {
			merr = multierror.Append(merr, fmt.Errorf("removing image %s: %w", tag, err))
		}
	}
	return merr.ErrorOrNil()
}
