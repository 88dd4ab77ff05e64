package packet

import "strconv"

// PortNum is the application-type discriminator carried in a decoded Data
// payload. Values match the mesh firmware's port number registry.
type PortNum uint32

const (
	PortUnknown      PortNum = 0
	PortTextMessage  PortNum = 1
	PortPosition     PortNum = 3
	PortNodeInfo     PortNum = 4
	PortRouting      PortNum = 5
	PortTelemetry    PortNum = 67
	PortTraceroute   PortNum = 70
	PortNeighborInfo PortNum = 71
)

// String returns the registry name for known ports and a numeric form for
// the rest, for logs and the status surface.
func (p PortNum) String() string {
	switch p {
	case PortTextMessage:
		return "TEXT_MESSAGE_APP"
	case PortPosition:
		return "POSITION_APP"
	case PortNodeInfo:
		return "NODEINFO_APP"
	case PortRouting:
		return "ROUTING_APP"
	case PortTelemetry:
		return "TELEMETRY_APP"
	case PortTraceroute:
		return "TRACEROUTE_APP"
	case PortNeighborInfo:
		return "NEIGHBORINFO_APP"
	default:
		return "PORT_" + strconv.FormatUint(uint64(p), 10)
	}
}
