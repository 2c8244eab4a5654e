package sandbox

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

// fakeRuntime is a hand-written stand-in for Runtime, recording calls the
// way the donor's machine/lifecycle_test.go fakes record calls against
// fakeWireGuard/fakeStore.
type fakeRuntime struct {
	createErr  error
	startErr   error
	inspectErr error
	stopErr    error
	pullErr    error

	inspectResp container.InspectResponse

	creates int
	starts  int
	stops   int
	pulls   int
}

func (f *fakeRuntime) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, name string) (string, error) {
	f.creates++
	if f.createErr != nil {
		err := f.createErr
		f.createErr = nil // only fail the first attempt, so the pull-retry path can succeed
		return "", err
	}
	return "container-id", nil
}

func (f *fakeRuntime) ContainerStart(ctx context.Context, id string) error {
	f.starts++
	return f.startErr
}

func (f *fakeRuntime) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	return f.inspectResp, f.inspectErr
}

func (f *fakeRuntime) ContainerStop(ctx context.Context, id string, timeoutSecs int) error {
	f.stops++
	return f.stopErr
}

func (f *fakeRuntime) ContainerWait(ctx context.Context, id string) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	statusCh <- container.WaitResponse{}
	return statusCh, make(chan error)
}

func (f *fakeRuntime) ImagePull(ctx context.Context, ref string) (io.ReadCloser, error) {
	f.pulls++
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	return io.NopCloser(strings.NewReader("")), nil
}

func withBridgeIP(ip string) container.InspectResponse {
	resp := container.InspectResponse{}
	resp.NetworkSettings = &container.NetworkSettings{
		Networks: map[string]*network.EndpointSettings{
			"bridge": {IPAddress: ip},
		},
	}
	return resp
}

func TestCreateDemoLaunchStartsContainerWithoutVpnInfo(t *testing.T) {
	rt := &fakeRuntime{}
	h, err := Create(context.Background(), rt, nil, CreateParams{Image: "ctf/demo:latest"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rt.creates != 1 || rt.starts != 1 {
		t.Fatalf("creates=%d starts=%d, want 1,1", rt.creates, rt.starts)
	}
	if h.vpnInfo != nil {
		t.Fatalf("demo launch should not attach vpnInfo")
	}
	if h.ID() != "container-id" {
		t.Fatalf("ID() = %q", h.ID())
	}
}

func TestCreatePullsOnNotFoundThenRetries(t *testing.T) {
	rt := &fakeRuntime{createErr: errdefs.ErrNotFound}
	h, err := Create(context.Background(), rt, nil, CreateParams{Image: "ctf/demo:latest"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rt.pulls != 1 {
		t.Fatalf("pulls = %d, want 1", rt.pulls)
	}
	if rt.creates != 2 {
		t.Fatalf("creates = %d, want 2 (initial + retry)", rt.creates)
	}
	if h.ID() != "container-id" {
		t.Fatalf("ID() = %q", h.ID())
	}
}

// The guest-launch path (Slot set) additionally drives DummyLink.AddAddr and
// natrule.Install, both privileged subprocess calls (ip addr, iptables), and
// is not exercised here so this suite never shells out. netcfg's and
// natrule's own tests cover only the address counter and the iptables
// argument vector, not those subprocess calls.

func TestBridgeAddressReturnsInspectedIP(t *testing.T) {
	rt := &fakeRuntime{inspectResp: withBridgeIP("172.17.0.5")}
	ip, err := bridgeAddress(context.Background(), rt, "container-id")
	if err != nil {
		t.Fatalf("bridgeAddress: %v", err)
	}
	if ip != "172.17.0.5" {
		t.Fatalf("bridgeAddress = %q, want 172.17.0.5", ip)
	}
}

func TestBridgeAddressErrorsWithNoNetworkSettings(t *testing.T) {
	rt := &fakeRuntime{inspectResp: container.InspectResponse{}}
	_, err := bridgeAddress(context.Background(), rt, "container-id")
	if err == nil {
		t.Fatalf("expected error for container with no network settings")
	}
}

func TestShutdownToleratesNotFound(t *testing.T) {
	rt := &fakeRuntime{stopErr: errdefs.ErrNotFound}
	h := &Handle{docker: rt, id: "container-id", state: stateRunning}

	if err := h.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown should tolerate not-found, got %v", err)
	}
	if h.state != stateShutdown {
		t.Fatalf("state = %v, want stateShutdown", h.state)
	}
}

func TestShutdownPanicsOnOtherStopError(t *testing.T) {
	rt := &fakeRuntime{stopErr: errors.New("docker daemon unreachable")}
	h := &Handle{docker: rt, id: "container-id", state: stateRunning}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on non-not-found stop error")
		}
	}()
	h.Shutdown(context.Background())
}

func TestIDPanicsWhenNotRunning(t *testing.T) {
	h := &Handle{state: stateShutdown}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic calling ID() on a non-running handle")
		}
	}()
	h.ID()
}
