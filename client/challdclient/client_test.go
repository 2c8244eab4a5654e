package challdclient

import (
	"context"
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
)

// serveOnce accepts exactly one connection on path and answers it with the
// given raw response bytes, after draining whatever request was sent.
func serveOnce(t *testing.T, path string, response []byte) {
	t.Helper()
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write(response)
	}()
}

func TestStartDemoReturnsEmptyStringOnOK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socket")
	serveOnce(t, path, []byte{statusOK})

	cfg, err := StartDemo(context.Background(), path, "ctf/demo:latest", nil)
	if err != nil {
		t.Fatalf("StartDemo: %v", err)
	}
	if cfg != "" {
		t.Fatalf("cfg = %q, want empty", cfg)
	}
}

func TestStartGuestParsesConfigBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socket")
	body := "[Interface]\nAddress = 10.4.1.2/32"
	var resp []byte
	resp = append(resp, statusOK)
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(body)))
	resp = append(resp, lenBuf...)
	resp = append(resp, []byte(body)...)
	serveOnce(t, path, resp)

	cfg, err := StartGuest(context.Background(), path, 42, "ctf/chall:latest", []PortMapping{{FromPort: 1337, ToPort: 30001, Type: TCP}})
	if err != nil {
		t.Fatalf("StartGuest: %v", err)
	}
	if cfg != body {
		t.Fatalf("cfg = %q, want %q", cfg, body)
	}
}

func TestStartGuestReturnsStatusErrorOnBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socket")
	serveOnce(t, path, []byte{3}) // RESULT_BUSY

	_, err := StartGuest(context.Background(), path, 1, "ctf/chall:latest", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	statusErr, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("err = %v (%T), want *StatusError", err, err)
	}
	if statusErr.Status != 3 {
		t.Fatalf("Status = %d, want 3", statusErr.Status)
	}
}

func TestStartDemoDialErrorOnMissingSocket(t *testing.T) {
	_, err := StartDemo(context.Background(), filepath.Join(t.TempDir(), "no-such-socket"), "img", nil)
	if err == nil {
		t.Fatal("expected a dial error")
	}
}
