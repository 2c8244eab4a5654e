// Package daemon implements the Request Server (component G): it binds the
// local request socket, parses one launch request per connection, and
// dispatches to the Session Supervisor, following the ordering guarantees
// of §5 (peer-added -> container-running -> NAT-installed -> response-sent)
// by straight-line sequencing rather than any lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"

	"challd/internal/alloc"
	"challd/internal/config"
	"challd/internal/fatal"
	"challd/internal/netcfg"
	"challd/internal/sandbox"
	"challd/internal/session"
	"challd/internal/tunnel"
)

// Daemon owns the shared A/B/C resources and dispatches each accepted
// connection to a launch handler.
type Daemon struct {
	cfg    config.Config
	docker sandbox.Runtime
	dummy  *netcfg.DummyLink
	tun    *tunnel.Tunnel
	slots  *alloc.Allocator
	group  session.Group
}

// New builds a Daemon over the already-provisioned shared resources: the
// dummy link and tunnel device must already be up (component B/C startup),
// and docker must be reachable.
func New(cfg config.Config, docker sandbox.Runtime, dummy *netcfg.DummyLink, tun *tunnel.Tunnel, slots *alloc.Allocator) *Daemon {
	return &Daemon{cfg: cfg, docker: docker, dummy: dummy, tun: tun, slots: slots}
}

// ListenAndServe binds the request socket, applies its permissions, and
// accepts connections until ctx is cancelled (SIGINT/SIGTERM, §6.4), then
// drains every in-flight session before returning.
func (d *Daemon) ListenAndServe(ctx context.Context) error {
	ln, err := bind(ctx, d.cfg.SocketPath, d.cfg.Features.ChallGroup)
	if err != nil {
		return err
	}
	defer os.Remove(d.cfg.SocketPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("accept failed", "err", err)
			continue
		}
		go d.handleConn(ctx, conn)
	}

	slog.Info("shutdown: draining sessions")
	d.group.Wait()
	slog.Info("shutdown: all sessions torn down")
	return nil
}

// bind creates the request socket and, per §6.1, sets its owner/group and
// mode via privileged subprocesses (chown/chmod), not os.Chown/os.Chmod —
// the same subprocess-suspension-point treatment the spec gives ip/iptables.
func bind(ctx context.Context, path string, challGroup bool) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix %s: %w", path, err)
	}

	if challGroup {
		if err := run(ctx, "chown", "root:challd", path); err != nil {
			ln.Close()
			return nil, err
		}
	}
	if err := run(ctx, "chmod", "720", path); err != nil {
		ln.Close()
		return nil, err
	}
	return ln, nil
}

func run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return nil
}

// handleConn parses the one request this connection carries and dispatches
// it. A parse failure is answered directly; a well-formed request is
// handed to the mode-specific launch path.
func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	req, err := readRequest(conn)
	if err != nil {
		var pErr *protocolError
		status := StatusMalformedRequest
		if errors.As(err, &pErr) {
			status = pErr.status
		}
		slog.Warn("rejected request", "err", err)
		respondAsync(conn, status, "")
		return
	}

	switch req.Mode {
	case ModeGuest:
		d.launchGuest(ctx, conn, req)
	case ModeDemo:
		d.launchDemo(ctx, conn, req)
	}
}

// launchGuest takes an address slot, adds a WireGuard peer, creates the
// container (which itself installs the sandbox /32 and NAT rule once the
// container's bridge IP is known), and starts the supervisor — in that
// order, matching §5's ordering guarantee.
func (d *Daemon) launchGuest(ctx context.Context, conn net.Conn, req request) {
	slot, ok := d.slots.Take()
	if !ok {
		respondAsync(conn, StatusBusy, "")
		return
	}

	clientCfg, peerPub, err := d.tun.AddPeer(ctx, slot)
	if err != nil {
		fatal.Panic("add wireguard peer", err)
	}

	handle, err := sandbox.Create(ctx, d.docker, d.dummy, sandbox.CreateParams{
		Image: req.Image,
		Slot:  &slot,
		Ports: req.Ports,
	})
	if err != nil {
		fatal.Panic("create guest container", err)
	}

	session.StartGuest(ctx, &d.group, handle, d.tun, peerPub, d.slots, slot, req.Image)
	slog.Info("guest session launched", "slot", slot, "guest_code", req.GuestCode)

	respondAsync(conn, StatusOK, clientCfg.Serialize())
}

// launchDemo creates an unrestricted-address container with no VPN peer
// and no address slot.
func (d *Daemon) launchDemo(ctx context.Context, conn net.Conn, req request) {
	handle, err := sandbox.Create(ctx, d.docker, nil, sandbox.CreateParams{
		Image: req.Image,
		Ports: req.Ports,
	})
	if err != nil {
		fatal.Panic("create demo container", err)
	}

	session.StartDemo(ctx, &d.group, handle, req.Image)
	slog.Info("demo session launched", "image", req.Image)

	respondAsync(conn, StatusOK, "")
}

// respondAsync writes the response in its own goroutine, closing conn
// afterward, so the daemon never blocks on a slow or absent reader (§4.G).
func respondAsync(conn net.Conn, status Status, body string) {
	go func() {
		defer conn.Close()
		if err := writeResponse(conn, status, body); err != nil {
			slog.Warn("write response failed", "err", err)
		}
	}()
}
