package orchestrator

import (
	"context"
	"errors"
	"io"

	"github.com/mauriceyap/diorama/internal/containerrt"
)

// fakeRuntime is a containerRuntime double: it records every call it
// receives and lets a test fail one named method on demand, without a live
// docker engine.
type fakeRuntime struct {
	failMethod string
	failErr    error

	createNetworkCalls   []string
	removeNetworkCalls   []string
	removeContainerCalls [][]string
	removeImageCalls     [][]string
	createContainerCalls []string
	buildImageCalls      []string
}

func (f *fakeRuntime) maybeFail(method string) error {
	if f.failMethod == method {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New(method + " failed")
	}
	return nil
}

func (f *fakeRuntime) BuildImage(ctx context.Context, contextDir, tag string) error {
	f.buildImageCalls = append(f.buildImageCalls, tag)
	return f.maybeFail("BuildImage")
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, opts containerrt.CreateContainerOpts) (string, error) {
	f.createContainerCalls = append(f.createContainerCalls, opts.Name)
	return opts.Name, f.maybeFail("CreateContainer")
}

func (f *fakeRuntime) ActionContainer(ctx context.Context, name string, action containerrt.Action) error {
	return f.maybeFail("ActionContainer")
}

func (f *fakeRuntime) GetContainerStatuses(ctx context.Context, names []string) (map[string]string, error) {
	if err := f.maybeFail("GetContainerStatuses"); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = "running"
	}
	return out, nil
}

func (f *fakeRuntime) StreamContainerLogs(ctx context.Context, name string, since string) (io.ReadCloser, error) {
	return nil, f.maybeFail("StreamContainerLogs")
}

func (f *fakeRuntime) CreateNetwork(ctx context.Context, name, subnet string) error {
	f.createNetworkCalls = append(f.createNetworkCalls, name)
	return f.maybeFail("CreateNetwork")
}

func (f *fakeRuntime) RemoveNetwork(ctx context.Context, name string) error {
	f.removeNetworkCalls = append(f.removeNetworkCalls, name)
	return f.maybeFail("RemoveNetwork")
}

func (f *fakeRuntime) RemoveContainers(ctx context.Context, names []string) error {
	f.removeContainerCalls = append(f.removeContainerCalls, names)
	return f.maybeFail("RemoveContainers")
}

func (f *fakeRuntime) RemoveImages(ctx context.Context, tags []string) error {
	f.removeImageCalls = append(f.removeImageCalls, tags)
	return f.maybeFail("RemoveImages")
}
