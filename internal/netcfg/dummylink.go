// Package netcfg manages the dummy link (component B): a kernel "dummy"
// interface created once at daemon startup to host per-session /32
// addresses on the sandbox-facing subnet. Creation, address add/remove, and
// teardown are all privileged subprocess invocations (ip link/ip addr), not
// a netlink-library call — §5 of the spec enumerates "ip" as a subprocess
// suspension point, and the original implementation shells out to it.
package netcfg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"

	"challd/internal/fatal"
)

const ifaceName = "eth42"

// DummyLink owns the eth42 kernel interface for the process lifetime.
type DummyLink struct {
	outstanding atomic.Int32
	closed      atomic.Bool
}

// Create brings up the dummy interface. Fatal on failure — the daemon
// cannot safely continue without its network namespace in place, so the
// caller is expected to treat a non-nil error as a startup-abort condition.
func Create(ctx context.Context) (*DummyLink, error) {
	if err := run(ctx, "ip", "link", "add", ifaceName, "type", "dummy"); err != nil {
		return nil, fmt.Errorf("create dummy link %s: %w", ifaceName, err)
	}
	if err := run(ctx, "ip", "link", "set", "dev", ifaceName, "up"); err != nil {
		return nil, fmt.Errorf("bring up dummy link %s: %w", ifaceName, err)
	}
	return &DummyLink{}, nil
}

// AddAddr installs cidr (e.g. "10.4.2.3/32") on the dummy link.
func (d *DummyLink) AddAddr(ctx context.Context, cidr string) error {
	if err := run(ctx, "ip", "addr", "add", cidr, "dev", ifaceName); err != nil {
		return fmt.Errorf("add address %s on %s: %w", cidr, ifaceName, err)
	}
	d.outstanding.Add(1)
	return nil
}

// DelAddr removes cidr from the dummy link. Must be called exactly once per
// successful AddAddr.
func (d *DummyLink) DelAddr(ctx context.Context, cidr string) error {
	if err := run(ctx, "ip", "addr", "del", cidr, "dev", ifaceName); err != nil {
		return fmt.Errorf("delete address %s on %s: %w", cidr, ifaceName, err)
	}
	d.outstanding.Add(-1)
	return nil
}

// Close deletes the dummy interface. Panics if any per-session address is
// still outstanding — that would leak a kernel address, and is caught here
// rather than silently dropped.
func (d *DummyLink) Close(ctx context.Context) error {
	d.closed.Store(true)
	n := d.outstanding.Load()
	fatal.Assert(n == 0, fmt.Sprintf("netcfg: dummy link closed with %d outstanding addresses", n))
	if err := run(ctx, "ip", "link", "delete", ifaceName, "type", "dummy"); err != nil {
		return fmt.Errorf("delete dummy link %s: %w", ifaceName, err)
	}
	return nil
}

func run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %s: %w", name, strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return nil
}
