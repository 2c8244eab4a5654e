// Package tunnel owns the process-wide WireGuard device (component C):
// device creation, peer add/remove, and the stable server public key.
// Grounded on the donor's infra/wireguard/kernel package (wgctrl +
// netlink), generalized from ployz's mesh-peer model to this spec's
// single-/32-per-peer VPN addressing.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/wgctrl"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/vishvananda/netlink"
)

const (
	deviceName = "wg42"
	vpnSubnet  = "10.4.1.0/24"
)

// Tunnel owns the wg42 kernel device for the process lifetime.
type Tunnel struct {
	mu       sync.Mutex
	port     int
	endpoint string
	privKey  wgtypes.Key
	pubKey   wgtypes.Key
}

// ClientConfig is the WireGuard client-side configuration handed back to
// the caller of AddPeer, serialized in config.go.
type ClientConfig struct {
	Address    string // e.g. "10.4.1.3/32"
	PrivateKey string // base64
	ServerKey  string // base64, the server's stable public key
	Endpoint   string // "<host>:<port>"
	AllowedIPs string // always "10.4.2.0/32" — see SPEC_FULL §4.C
}

// BringUp creates the wg42 device, generates a fresh server keypair, binds
// port, and installs the base interface address 10.4.1.0/24 with zero
// peers. Fatal on failure: the caller should treat any error here as an
// unrecoverable startup condition.
func BringUp(ctx context.Context, port int, endpoint string) (*Tunnel, error) {
	privKey, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}

	link, err := ensureLink(deviceName)
	if err != nil {
		return nil, err
	}

	client, err := wgctrl.New()
	if err != nil {
		return nil, fmt.Errorf("open wgctrl client: %w", err)
	}
	defer client.Close()

	cfg := wgtypes.Config{
		PrivateKey:   &privKey,
		ListenPort:   &port,
		ReplacePeers: true,
	}
	if err := client.ConfigureDevice(deviceName, cfg); err != nil {
		return nil, fmt.Errorf("configure wireguard device %s: %w", deviceName, err)
	}

	prefix := netip.MustParsePrefix(vpnSubnet)
	addr := &netlink.Addr{IPNet: prefixToIPNet(prefix)}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return nil, fmt.Errorf("assign %s on %s: %w", vpnSubnet, deviceName, err)
	}
	if link.Attrs().Flags&unix.IFF_UP == 0 {
		if err := netlink.LinkSetUp(link); err != nil {
			return nil, fmt.Errorf("bring up %s: %w", deviceName, err)
		}
	}

	return &Tunnel{
		port:     port,
		endpoint: endpoint,
		privKey:  privKey,
		pubKey:   privKey.PublicKey(),
	}, nil
}

// PublicKey returns the server's stable base64 public key.
func (t *Tunnel) PublicKey() wgtypes.Key {
	return t.pubKey
}

// AddPeer generates a peer keypair, registers it on the device with
// allowed-ips 10.4.1.<slot>/32, and returns the client config plus the
// peer's public key (needed later by RemovePeer).
func (t *Tunnel) AddPeer(ctx context.Context, slot uint8) (ClientConfig, wgtypes.Key, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	peerPriv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return ClientConfig{}, wgtypes.Key{}, fmt.Errorf("generate peer key: %w", err)
	}
	peerPub := peerPriv.PublicKey()

	addr := fmt.Sprintf("10.4.1.%d", slot)
	allowed := net.IPNet{IP: net.ParseIP(addr).To4(), Mask: net.CIDRMask(32, 32)}

	client, err := wgctrl.New()
	if err != nil {
		return ClientConfig{}, wgtypes.Key{}, fmt.Errorf("open wgctrl client: %w", err)
	}
	defer client.Close()

	peerCfg := wgtypes.PeerConfig{
		PublicKey:         peerPub,
		ReplaceAllowedIPs: true,
		AllowedIPs:        []net.IPNet{allowed},
	}
	if err := client.ConfigureDevice(deviceName, wgtypes.Config{Peers: []wgtypes.PeerConfig{peerCfg}}); err != nil {
		return ClientConfig{}, wgtypes.Key{}, fmt.Errorf("add peer to %s: %w", deviceName, err)
	}

	cfg := ClientConfig{
		Address:    fmt.Sprintf("%s/32", addr),
		PrivateKey: peerPriv.String(),
		ServerKey:  t.pubKey.String(),
		Endpoint:   fmt.Sprintf("%s:%d", t.endpoint, t.port),
		AllowedIPs: "10.4.2.0/32",
	}
	return cfg, peerPub, nil
}

// RemovePeer removes pub from the device. Idempotent in effect — removing
// an unknown peer is logged by the caller, not treated as fatal here.
func (t *Tunnel) RemovePeer(ctx context.Context, pub wgtypes.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	client, err := wgctrl.New()
	if err != nil {
		return fmt.Errorf("open wgctrl client: %w", err)
	}
	defer client.Close()

	peerCfg := wgtypes.PeerConfig{PublicKey: pub, Remove: true}
	if err := client.ConfigureDevice(deviceName, wgtypes.Config{Peers: []wgtypes.PeerConfig{peerCfg}}); err != nil {
		return fmt.Errorf("remove peer from %s: %w", deviceName, err)
	}
	return nil
}

func ensureLink(iface string) (netlink.Link, error) {
	link, err := netlink.LinkByName(iface)
	if err == nil {
		return link, nil
	}
	if _, ok := err.(netlink.LinkNotFoundError); !ok {
		return nil, fmt.Errorf("find wireguard interface %q: %w", iface, err)
	}

	newLink := &netlink.GenericLink{LinkAttrs: netlink.LinkAttrs{Name: iface}, LinkType: "wireguard"}
	if err := netlink.LinkAdd(newLink); err != nil {
		return nil, fmt.Errorf("create wireguard interface %q: %w", iface, err)
	}
	return netlink.LinkByName(iface)
}

func prefixToIPNet(p netip.Prefix) *net.IPNet {
	return &net.IPNet{IP: p.Addr().AsSlice(), Mask: net.CIDRMask(p.Bits(), 32)}
}
