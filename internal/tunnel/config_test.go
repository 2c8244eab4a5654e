package tunnel

import (
	"strings"
	"testing"
)

func TestSerializeMatchesExpectedLayout(t *testing.T) {
	cfg := ClientConfig{
		Address:    "10.4.1.1/32",
		PrivateKey: "privkeybase64",
		ServerKey:  "pubkeybase64",
		Endpoint:   "example.com:51820",
		AllowedIPs: "10.4.2.0/32",
	}

	got := cfg.Serialize()
	want := "[Interface]\n" +
		"Address = 10.4.1.1/32\n" +
		"PrivateKey = privkeybase64\n" +
		"\n" +
		"[Peer]\n" +
		"PublicKey = pubkeybase64\n" +
		"Endpoint = example.com:51820\n" +
		"AllowedIPs = 10.4.2.0/32"

	if got != want {
		t.Fatalf("Serialize() =\n%q\nwant\n%q", got, want)
	}
}

// TestSerializeParsesAsValidConfig exercises the round-trip property from
// §8: the emitted text must parse as a config with Address in 10.4.1.0/24,
// AllowedIPs = 10.4.2.0/32, and the stable server public key.
func TestSerializeParsesAsValidConfig(t *testing.T) {
	cfg := ClientConfig{
		Address:    "10.4.1.4/32",
		PrivateKey: "priv",
		ServerKey:  "serverpub",
		Endpoint:   "host:51820",
		AllowedIPs: "10.4.2.0/32",
	}
	text := cfg.Serialize()

	sections := parseINI(text)
	if sections["Interface"]["Address"] != "10.4.1.4/32" {
		t.Fatalf("Address = %q", sections["Interface"]["Address"])
	}
	if !strings.HasPrefix(sections["Interface"]["Address"], "10.4.1.") {
		t.Fatalf("Address not in 10.4.1.0/24: %q", sections["Interface"]["Address"])
	}
	if sections["Peer"]["AllowedIPs"] != "10.4.2.0/32" {
		t.Fatalf("AllowedIPs = %q, want 10.4.2.0/32", sections["Peer"]["AllowedIPs"])
	}
	if sections["Peer"]["PublicKey"] != "serverpub" {
		t.Fatalf("PublicKey = %q, want serverpub", sections["Peer"]["PublicKey"])
	}
}

// parseINI is a tiny test-only INI reader, just enough to assert on the
// fields this package's output actually contains.
func parseINI(text string) map[string]map[string]string {
	out := map[string]map[string]string{}
	var section string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			out[section] = map[string]string{}
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		out[section][strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return out
}
