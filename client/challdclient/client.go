// Package challdclient is the front-end client role of §6.3: a small
// package a hypothetical archive service would import to ask challd to
// launch a guest or demo session over its local Unix socket. Grounded on
// the original implementation's challd.rs client, translated from its
// async Tokio framing into a synchronous net.Conn call with the same
// request/response byte layout.
package challdclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// PortType is the transport protocol of a published port.
type PortType uint8

const (
	TCP PortType = 0
	UDP PortType = 1
)

// PortMapping is one published-port entry: from_port is the container-side
// port, to_port is the host-side port it is published on.
type PortMapping struct {
	FromPort uint16
	ToPort   uint16
	Type     PortType
}

const (
	modeGuest = 0
	modeDemo  = 1

	statusOK = 0
)

// StatusError is returned when challd answers with any non-OK status byte.
// A real archive service maps this to an HTTP 500, per §6.3 — that mapping
// is outside this package's scope.
type StatusError struct {
	Status uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("challd: response status %d", e.Status)
}

// StartGuest asks challd to launch a guest session, returning the
// WireGuard client configuration text on success.
func StartGuest(ctx context.Context, socketPath string, guestCode uint32, image string, ports []PortMapping) (string, error) {
	return start(ctx, socketPath, modeGuest, guestCode, image, ports)
}

// StartDemo asks challd to launch a demo session. The returned string is
// always empty on success — demo mode has no VPN config to hand back.
func StartDemo(ctx context.Context, socketPath string, image string, ports []PortMapping) (string, error) {
	return start(ctx, socketPath, modeDemo, 0, image, ports)
}

func start(ctx context.Context, socketPath string, mode uint8, guestCode uint32, image string, ports []PortMapping) (string, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("dial challd socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	if err := writeRequest(conn, mode, guestCode, image, ports); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	var status [1]byte
	if _, err := io.ReadFull(conn, status[:]); err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	if status[0] != statusOK {
		return "", &StatusError{Status: status[0]}
	}
	if mode != modeGuest {
		return "", nil
	}

	var length uint16
	if err := binary.Read(conn, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("read config length: %w", err)
	}
	cfg := make([]byte, length)
	if _, err := io.ReadFull(conn, cfg); err != nil {
		return "", fmt.Errorf("read config body: %w", err)
	}
	return string(cfg), nil
}

func writeRequest(w io.Writer, mode uint8, guestCode uint32, image string, ports []PortMapping) error {
	var buf bytes.Buffer
	buf.WriteByte(mode)
	if mode == modeGuest {
		if err := binary.Write(&buf, binary.LittleEndian, guestCode); err != nil {
			return err
		}
	}
	buf.WriteByte(byte(len(image)))
	buf.WriteString(image)
	buf.WriteByte(byte(len(ports)))
	for _, p := range ports {
		binary.Write(&buf, binary.LittleEndian, p.FromPort)
		binary.Write(&buf, binary.LittleEndian, p.ToPort)
		buf.WriteByte(byte(p.Type))
	}
	_, err := w.Write(buf.Bytes())
	return err
}
