// Package sandbox implements the Container Handle (component D): creating,
// starting, and tearing down a single container with the fixed resource
// caps this daemon always applies, wiring the dummy-link address and NAT
// rule a guest launch needs along the way.
//
// Grounded on the donor's infra/docker helpers (CreateAndStart,
// StopAndRemove, pull-on-not-found retry) for Docker API idiom; exact
// limits and ordering come from the original implementation's container.rs.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"

	"challd/internal/fatal"
	"challd/internal/natrule"
	"challd/internal/netcfg"
)

const (
	memoryLimitBytes = 100 * 1024 * 1024 // 100 MiB, both RSS and swap
	nanoCPUs         = 2 * 100_000_000   // 0.2 cores
	pidsLimit        = 150
	createStopSecs   = 10
	shutdownStop     = 15 * time.Minute
)

// VpnInfo is attached to a Running handle created for a guest launch.
type VpnInfo struct {
	Slot     uint8
	BridgeIP string
}

type state int

const (
	stateUnstarted state = iota
	stateRunning
	stateShutdown
)

// Handle wraps a single container's lifecycle. A Running handle that is
// never Shutdown is a bug — a finalizer panics to surface the leak.
type Handle struct {
	docker Runtime
	dummy  *netcfg.DummyLink

	id      string
	vpnInfo *VpnInfo
	state   state
}

// CreateParams bundles the inputs to Create.
type CreateParams struct {
	Image string
	Slot  *uint8 // nil for a demo launch
	Ports []PortMapping
}

// Create provisions and starts a container per §4.D. When slot is set it
// installs the sandbox-facing /32 before creating the container, and the
// DNAT rule after the container has started and its bridge IP is known.
func Create(ctx context.Context, docker Runtime, dummy *netcfg.DummyLink, p CreateParams) (*Handle, error) {
	hostIP := "0.0.0.0"
	if p.Slot != nil {
		hostIP = fmt.Sprintf("10.4.2.%d", *p.Slot)
		if err := dummy.AddAddr(ctx, hostIP+"/32"); err != nil {
			return nil, fmt.Errorf("install sandbox address: %w", err)
		}
	}

	exposed, portMap := bindings(p.Ports, hostIP)

	hostCfg := &container.HostConfig{
		AutoRemove:   true,
		PortBindings: portMap,
		Resources: container.Resources{
			Memory:     memoryLimitBytes,
			MemorySwap: memoryLimitBytes,
			NanoCPUs:   nanoCPUs,
			PidsLimit:  int64Ptr(pidsLimit),
		},
	}
	if gvisorRuntime {
		hostCfg.Runtime = "runsc"
	}
	stopTimeout := createStopSecs
	cfg := &container.Config{
		Image:        p.Image,
		ExposedPorts: exposed,
		StopTimeout:  &stopTimeout,
	}

	id, err := createAndStart(ctx, docker, p.Image, cfg, hostCfg)
	if err != nil {
		return nil, err
	}

	h := &Handle{docker: docker, dummy: dummy, id: id, state: stateRunning}

	if p.Slot != nil {
		bridgeIP, err := bridgeAddress(ctx, docker, id)
		if err != nil {
			fatal.Panic("inspect container bridge address", err)
		}
		if err := natrule.Install(ctx, *p.Slot, bridgeIP); err != nil {
			fatal.Panic("install NAT rule", err)
		}
		h.vpnInfo = &VpnInfo{Slot: *p.Slot, BridgeIP: bridgeIP}
	}

	runtime.SetFinalizer(h, func(h *Handle) {
		if h.state == stateRunning {
			fatal.Panic("container handle finalized while still running", fmt.Errorf("id=%s", h.id))
		}
	})

	return h, nil
}

// ID returns the container identifier. Only valid while Running.
func (h *Handle) ID() string {
	fatal.Assert(h.state == stateRunning, "sandbox: ID() called on a non-running handle")
	return h.id
}

// ExitSignal returns a channel closed when the container is reported
// not-running by the runtime, via a long-poll on ContainerWait.
func (h *Handle) ExitSignal(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		statusCh, errCh := h.docker.ContainerWait(ctx, h.id)
		select {
		case <-statusCh:
		case <-errCh:
		case <-ctx.Done():
		}
	}()
	return done
}

// Shutdown stops the container (tolerating "already gone"), then tears
// down the NAT rule and sandbox /32 if one was attached. After Shutdown
// returns the handle is in the Shutdown state.
func (h *Handle) Shutdown(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownStop)
	defer cancel()

	err := h.docker.ContainerStop(stopCtx, h.id, int(shutdownStop.Seconds()))
	if err != nil {
		if errdefs.IsNotFound(err) {
			tag := "demo"
			if h.vpnInfo != nil {
				tag = fmt.Sprintf("slot %d", h.vpnInfo.Slot)
			}
			slog.Warn("container was stopped early", "container", h.id, "session", tag)
		} else {
			fatal.Panic("stop container", err)
		}
	}

	if h.vpnInfo != nil {
		if err := natrule.Remove(ctx, h.vpnInfo.Slot, h.vpnInfo.BridgeIP); err != nil {
			fatal.Panic("remove NAT rule", err)
		}
		if err := h.dummy.DelAddr(ctx, fmt.Sprintf("10.4.2.%d/32", h.vpnInfo.Slot)); err != nil {
			fatal.Panic("remove sandbox address", err)
		}
	}

	h.state = stateShutdown
	h.id = ""
	return nil
}

func createAndStart(ctx context.Context, docker Runtime, img string, cfg *container.Config, hostCfg *container.HostConfig) (string, error) {
	id, err := docker.ContainerCreate(ctx, cfg, hostCfg, "")
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return "", fmt.Errorf("create container: %w", err)
		}
		if err := pullImage(ctx, docker, img); err != nil {
			return "", err
		}
		id, err = docker.ContainerCreate(ctx, cfg, hostCfg, "")
		if err != nil {
			return "", fmt.Errorf("create container after pull: %w", err)
		}
	}

	if err := docker.ContainerStart(ctx, id); err != nil {
		return "", fmt.Errorf("start container: %w", err)
	}
	return id, nil
}

func pullImage(ctx context.Context, docker Runtime, img string) error {
	slog.Info("pulling image", "image", img)
	rc, err := docker.ImagePull(ctx, img)
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %s: read response: %w", img, err)
	}
	return nil
}

// bridgeAddress inspects id and returns its IP on the default bridge
// network. Only the "bridge" network is ever consulted — see SPEC_FULL §9's
// open question on this exact limitation.
func bridgeAddress(ctx context.Context, docker Runtime, id string) (string, error) {
	info, err := docker.ContainerInspect(ctx, id)
	if err != nil {
		return "", fmt.Errorf("inspect container %s: %w", id, err)
	}
	if info.NetworkSettings == nil {
		return "", fmt.Errorf("container %s has no network settings", id)
	}
	bridge, ok := info.NetworkSettings.Networks["bridge"]
	if !ok || bridge.IPAddress == "" {
		return "", fmt.Errorf("container %s is not attached to the default bridge network", id)
	}
	return bridge.IPAddress, nil
}

func int64Ptr(v int64) *int64 { return &v }

// gvisorRuntime is set by the daemon's config at startup; declared here as
// a package variable rather than threaded through CreateParams because it
// is a process-wide feature flag, not a per-launch choice.
var gvisorRuntime bool

// SetGVisorRuntime toggles whether newly created containers request the
// stronger runsc sandbox runtime.
func SetGVisorRuntime(enabled bool) {
	gvisorRuntime = enabled
}
