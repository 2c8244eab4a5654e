package sandbox

import (
	"fmt"

	"github.com/docker/go-connections/nat"
)

// PortType is the transport protocol of a published port, matching the
// wire protocol's single byte (0 = TCP, 1 = UDP).
type PortType uint8

const (
	TCP PortType = 0
	UDP PortType = 1
)

func (t PortType) proto() string {
	if t == UDP {
		return "udp"
	}
	return "tcp"
}

// PortMapping is one published-port entry from the launch request.
type PortMapping struct {
	FromPort uint16
	ToPort   uint16
	Type     PortType
}

// bindings builds the exposed-port set and host port-binding map for a
// container create call. hostIP is "10.4.2.<slot>" for a guest launch or
// "0.0.0.0" for a demo launch (§4.D step 2).
func bindings(mappings []PortMapping, hostIP string) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet, len(mappings))
	portMap := make(nat.PortMap, len(mappings))

	for _, m := range mappings {
		containerPort := nat.Port(fmt.Sprintf("%d/%s", m.FromPort, m.Type.proto()))
		exposed[containerPort] = struct{}{}
		portMap[containerPort] = []nat.PortBinding{{
			HostIP:   hostIP,
			HostPort: fmt.Sprintf("%d", m.ToPort),
		}}
	}
	return exposed, portMap
}
