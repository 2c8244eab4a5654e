package tunnel

import "fmt"

// Serialize renders c as WireGuard INI client configuration text, matching
// the exact field order of the original implementation's wg_config.rs.
func (c ClientConfig) Serialize() string {
	return fmt.Sprintf(
		"[Interface]\nAddress = %s\nPrivateKey = %s\n\n[Peer]\nPublicKey = %s\nEndpoint = %s\nAllowedIPs = %s",
		c.Address, c.PrivateKey, c.ServerKey, c.Endpoint, c.AllowedIPs,
	)
}
