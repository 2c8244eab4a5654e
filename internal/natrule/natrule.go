// Package natrule installs and removes the DNAT rule (component E) that
// rewrites a peer's traffic to the sentinel address 10.4.2.0 onto the
// target container's bridge IP. Invoked as privileged iptables subprocesses,
// matching §5's enumeration of suspension points and the original
// implementation's literal behavior.
package natrule

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const (
	wgInterface     = "wg42"
	sentinelAddr    = "10.4.2.0"
	vpnSubnetFormat = "10.4.1.%d/32"
)

// Install appends a PREROUTING DNAT rule rewriting traffic from the peer's
// VPN /32 (10.4.1.<slot>/32) bound for the sentinel address onto bridgeIP.
func Install(ctx context.Context, slot uint8, bridgeIP string) error {
	return run(ctx, args("-A", slot, bridgeIP))
}

// Remove deletes the exact rule Install added. The argument vector is built
// from the same helper as Install so install/remove can never drift out of
// byte-for-byte symmetry — a mismatch would make the delete a no-op and
// leak the rule.
func Remove(ctx context.Context, slot uint8, bridgeIP string) error {
	return run(ctx, args("-D", slot, bridgeIP))
}

func args(verb string, slot uint8, bridgeIP string) []string {
	return []string{
		"-t", "nat", verb, "PREROUTING",
		"-i", wgInterface,
		"-s", fmt.Sprintf(vpnSubnetFormat, slot),
		"-d", sentinelAddr,
		"-j", "DNAT",
		"--to-destination", bridgeIP,
	}
}

func run(ctx context.Context, argv []string) error {
	out, err := exec.CommandContext(ctx, "iptables", argv...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("iptables %s: %s: %w", strings.Join(argv, " "), strings.TrimSpace(string(out)), err)
	}
	return nil
}

// SuffixFor is a small formatting helper shared with callers that need the
// same "10.4.1.<slot>/32" string without shelling out (e.g. logging).
func SuffixFor(slot uint8) string {
	return fmt.Sprintf(vpnSubnetFormat, slot)
}
