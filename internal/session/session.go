// Package session implements the Session Supervisor (component F): the
// goroutine that joins a Container Handle's lifetime, a wall-clock TTL, and
// process-wide shutdown into a single teardown decision, then runs that
// session's cleanup chain exactly once.
package session

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"challd/internal/alloc"
	"challd/internal/sandbox"
	"challd/internal/trace"
	"challd/internal/tunnel"
)

// TTLs per §4.F. Guest sessions carry a VPN peer and address slot; demo
// sessions expose the container directly and live longer since they are
// used for unattended operator demonstrations.
const (
	GuestTTL = 4 * time.Hour
	DemoTTL  = 6 * time.Hour
)

// cleanupTimeout bounds the detached context the teardown chain runs under,
// deliberately not the (possibly already-cancelled) outer shutdown context.
const cleanupTimeout = 15 * time.Minute

// StartGuest launches a tracked supervisor goroutine for a guest session.
// Teardown order on whichever of TTL/cancel/exit fires first: RemovePeer,
// then container.Shutdown, then the address slot is released.
func StartGuest(ctx context.Context, group *Group, handle *sandbox.Handle, tun *tunnel.Tunnel, peerPub wgtypes.Key, slots *alloc.Allocator, slot uint8, image string) {
	cleanup := func(cctx context.Context) {
		if err := tun.RemovePeer(cctx, peerPub); err != nil {
			slog.Warn("remove peer during teardown", "slot", slot, "err", err)
		}
		if err := handle.Shutdown(cctx); err != nil {
			slog.Warn("container shutdown during teardown", "slot", slot, "err", err)
		}
		slots.Release(slot)
	}
	run(ctx, group, GuestTTL, handle, cleanup, attribute.String("mode", "guest"), attribute.Int("slot", int(slot)), attribute.String("image", image))
}

// StartDemo launches a tracked supervisor goroutine for a demo session.
// Teardown is container.Shutdown only — no peer, no slot.
func StartDemo(ctx context.Context, group *Group, handle *sandbox.Handle, image string) {
	cleanup := func(cctx context.Context) {
		if err := handle.Shutdown(cctx); err != nil {
			slog.Warn("container shutdown during teardown", "err", err)
		}
	}
	run(ctx, group, DemoTTL, handle, cleanup, attribute.String("mode", "demo"), attribute.String("image", image))
}

// run is the one place the select from §4.F / §9 lives: TTL, outer
// cancellation, and container exit are structurally symmetric inputs, and
// whichever fires first is the only one that matters. Cleanup always runs
// afterward, outside the select, so it can never itself be cancelled by the
// same signal that triggered it.
func run(ctx context.Context, group *Group, ttl time.Duration, handle *sandbox.Handle, cleanup func(context.Context), attrs ...attribute.KeyValue) {
	group.Go(func() {
		spanCtx, span := trace.Start(ctx, "session.launch", attrs...)
		defer span.End()

		timer := time.NewTimer(ttl)
		defer timer.Stop()
		exit := handle.ExitSignal(spanCtx)

		select {
		case <-timer.C:
			slog.Info("session ttl expired")
		case <-ctx.Done():
			slog.Info("session cancelled by shutdown")
		case <-exit:
			slog.Info("container exited early")
		}

		cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		cleanup(cleanupCtx)
	})
}
