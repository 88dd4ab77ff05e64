package packet

import (
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// PayloadKind tags the decoded payload union.
type PayloadKind uint8

const (
	KindText PayloadKind = iota + 1
	KindPosition
	KindNodeInfo
	KindRouting
	KindTelemetry
	KindTraceroute
	KindNeighborInfo
	// KindUnknown carries the raw bytes of an unrecognized port.
	KindUnknown
	// KindDecodeError carries the raw bytes of a known port whose payload
	// failed to parse.
	KindDecodeError
)

// String names the kind for logs and counters.
func (k PayloadKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPosition:
		return "position"
	case KindNodeInfo:
		return "nodeinfo"
	case KindRouting:
		return "routing"
	case KindTelemetry:
		return "telemetry"
	case KindTraceroute:
		return "traceroute"
	case KindNeighborInfo:
		return "neighborinfo"
	case KindUnknown:
		return "unknown"
	case KindDecodeError:
		return "decode_error"
	default:
		return "invalid"
	}
}

// Payload is the decoded per-port payload. Kind selects which field is set;
// Raw is populated only for KindUnknown and KindDecodeError.
type Payload struct {
	Kind PayloadKind

	Text         string
	Position     *Position
	User         *User
	Routing      *Routing
	Telemetry    *Telemetry
	Traceroute   *RouteDiscovery
	NeighborInfo *NeighborInfo
	Raw          []byte
}

// DecodePayload interprets payload bytes according to the port number.
// It never returns an error: an unrecognized port passes the bytes through
// as KindUnknown, and a malformed payload for a known port comes back as
// KindDecodeError so the pipeline can count it and move on.
func DecodePayload(portnum PortNum, b []byte) Payload {
	switch portnum {
	case PortTextMessage:
		if !utf8.Valid(b) {
			return Payload{Kind: KindDecodeError, Raw: b}
		}
		return Payload{Kind: KindText, Text: string(b)}
	case PortPosition:
		pos, err := decodePosition(b)
		if err != nil {
			return Payload{Kind: KindDecodeError, Raw: b}
		}
		return Payload{Kind: KindPosition, Position: pos}
	case PortNodeInfo:
		user, err := decodeUser(b)
		if err != nil {
			return Payload{Kind: KindDecodeError, Raw: b}
		}
		return Payload{Kind: KindNodeInfo, User: user}
	case PortRouting:
		r, err := decodeRouting(b)
		if err != nil {
			return Payload{Kind: KindDecodeError, Raw: b}
		}
		return Payload{Kind: KindRouting, Routing: r}
	case PortTelemetry:
		tel, err := decodeTelemetry(b)
		if err != nil {
			return Payload{Kind: KindDecodeError, Raw: b}
		}
		return Payload{Kind: KindTelemetry, Telemetry: tel}
	case PortTraceroute:
		rd, err := decodeRouteDiscovery(b)
		if err != nil {
			return Payload{Kind: KindDecodeError, Raw: b}
		}
		return Payload{Kind: KindTraceroute, Traceroute: rd}
	case PortNeighborInfo:
		ni, err := decodeNeighborInfo(b)
		if err != nil {
			return Payload{Kind: KindDecodeError, Raw: b}
		}
		return Payload{Kind: KindNeighborInfo, NeighborInfo: ni}
	default:
		return Payload{Kind: KindUnknown, Raw: b}
	}
}

// User is the NODEINFO payload: the broadcast identity of a node.
type User struct {
	ID        string
	LongName  string
	ShortName string
	Macaddr   []byte
	HwModel   uint32
}

func decodeUser(b []byte) (*User, error) {
	u := &User{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: user tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: user id: %w", protowire.ParseError(n))
			}
			b = b[n:]
			u.ID = s
		case num == 2 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: user long_name: %w", protowire.ParseError(n))
			}
			b = b[n:]
			u.LongName = s
		case num == 3 && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: user short_name: %w", protowire.ParseError(n))
			}
			b = b[n:]
			u.ShortName = s
		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: user macaddr: %w", protowire.ParseError(n))
			}
			b = b[n:]
			u.Macaddr = raw
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: user hw_model: %w", protowire.ParseError(n))
			}
			b = b[n:]
			u.HwModel = uint32(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: user field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return u, nil
}

// DeviceMetrics are per-device health readings. Pointer fields track wire
// presence: nil means the radio did not report the value.
type DeviceMetrics struct {
	BatteryLevel       *uint32
	Voltage            *float32
	ChannelUtilization *float32
	AirUtilTx          *float32
	UptimeSeconds      *uint32
}

// EnvironmentMetrics are attached-sensor readings.
type EnvironmentMetrics struct {
	Temperature        *float32
	RelativeHumidity   *float32
	BarometricPressure *float32
	GasResistance      *float32
	Voltage            *float32
	Current            *float32
}

// PowerMetrics are the INA-style channel voltage/current readings.
type PowerMetrics struct {
	Ch1Voltage *float32
	Ch1Current *float32
	Ch2Voltage *float32
	Ch2Current *float32
	Ch3Voltage *float32
	Ch3Current *float32
}

// Telemetry is the TELEMETRY payload. At most one metrics arm is set.
type Telemetry struct {
	Time        uint32
	Device      *DeviceMetrics
	Environment *EnvironmentMetrics
	Power       *PowerMetrics
}

// PowerSummary distills power metrics into the two persisted node fields:
// channel-1 voltage, and channel-2 voltage scaled by 100 standing in for a
// battery percentage. The scaling is a unit hack inherited from the fielded
// sensors, not a percentage computation; keep it until the hardware changes.
func (t *Telemetry) PowerSummary() (voltage, batteryPercent *float64) {
	if t == nil || t.Power == nil {
		return nil, nil
	}
	if t.Power.Ch1Voltage != nil {
		v := float64(*t.Power.Ch1Voltage)
		voltage = &v
	}
	if t.Power.Ch2Voltage != nil {
		p := float64(*t.Power.Ch2Voltage) * 100
		batteryPercent = &p
	}
	return voltage, batteryPercent
}

func decodeTelemetry(b []byte) (*Telemetry, error) {
	t := &Telemetry{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: telemetry tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: telemetry time: %w", protowire.ParseError(n))
			}
			b = b[n:]
			t.Time = v
		case num == 2 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: device_metrics: %w", protowire.ParseError(n))
			}
			b = b[n:]
			dm, err := decodeDeviceMetrics(raw)
			if err != nil {
				return nil, err
			}
			t.Device = dm
		case num == 3 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: environment_metrics: %w", protowire.ParseError(n))
			}
			b = b[n:]
			em, err := decodeEnvironmentMetrics(raw)
			if err != nil {
				return nil, err
			}
			t.Environment = em
		case num == 5 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: power_metrics: %w", protowire.ParseError(n))
			}
			b = b[n:]
			pm, err := decodePowerMetrics(raw)
			if err != nil {
				return nil, err
			}
			t.Power = pm
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: telemetry field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return t, nil
}

func decodeDeviceMetrics(b []byte) (*DeviceMetrics, error) {
	dm := &DeviceMetrics{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: device metrics tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: battery_level: %w", protowire.ParseError(n))
			}
			b = b[n:]
			u := uint32(v)
			dm.BatteryLevel = &u
		case num == 2 && typ == protowire.Fixed32Type:
			f, rest, err := consumeFloat(b, "voltage")
			if err != nil {
				return nil, err
			}
			b = rest
			dm.Voltage = f
		case num == 3 && typ == protowire.Fixed32Type:
			f, rest, err := consumeFloat(b, "channel_utilization")
			if err != nil {
				return nil, err
			}
			b = rest
			dm.ChannelUtilization = f
		case num == 4 && typ == protowire.Fixed32Type:
			f, rest, err := consumeFloat(b, "air_util_tx")
			if err != nil {
				return nil, err
			}
			b = rest
			dm.AirUtilTx = f
		case num == 5 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: uptime_seconds: %w", protowire.ParseError(n))
			}
			b = b[n:]
			u := uint32(v)
			dm.UptimeSeconds = &u
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: device metrics field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return dm, nil
}

func decodeEnvironmentMetrics(b []byte) (*EnvironmentMetrics, error) {
	em := &EnvironmentMetrics{}
	targets := map[protowire.Number]**float32{
		1: &em.Temperature,
		2: &em.RelativeHumidity,
		3: &em.BarometricPressure,
		4: &em.GasResistance,
		5: &em.Voltage,
		6: &em.Current,
	}
	return em, decodeFloatFields(b, "environment metrics", targets)
}

func decodePowerMetrics(b []byte) (*PowerMetrics, error) {
	pm := &PowerMetrics{}
	targets := map[protowire.Number]**float32{
		1: &pm.Ch1Voltage,
		2: &pm.Ch1Current,
		3: &pm.Ch2Voltage,
		4: &pm.Ch2Current,
		5: &pm.Ch3Voltage,
		6: &pm.Ch3Current,
	}
	return pm, decodeFloatFields(b, "power metrics", targets)
}

// decodeFloatFields handles messages that are entirely optional floats,
// which covers both metrics blocks above.
func decodeFloatFields(b []byte, what string, targets map[protowire.Number]**float32) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("packet: %s tag: %w", what, protowire.ParseError(n))
		}
		b = b[n:]
		if dst, ok := targets[num]; ok && typ == protowire.Fixed32Type {
			f, rest, err := consumeFloat(b, what)
			if err != nil {
				return err
			}
			b = rest
			*dst = f
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return fmt.Errorf("packet: %s field %d: %w", what, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func consumeFloat(b []byte, what string) (*float32, []byte, error) {
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("packet: %s: %w", what, protowire.ParseError(n))
	}
	f := math.Float32frombits(v)
	return &f, b[n:], nil
}

// RoutingError mirrors the firmware's Routing.Error reason codes.
type RoutingError uint32

// Routing is the ROUTING payload: a route request, a route reply, or an
// error reason. At most one arm is set.
type Routing struct {
	RouteRequest *RouteDiscovery
	RouteReply   *RouteDiscovery
	ErrorReason  *RoutingError
}

func decodeRouting(b []byte) (*Routing, error) {
	r := &Routing{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: routing tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case (num == 1 || num == 2) && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: routing discovery: %w", protowire.ParseError(n))
			}
			b = b[n:]
			rd, err := decodeRouteDiscovery(raw)
			if err != nil {
				return nil, err
			}
			if num == 1 {
				r.RouteRequest = rd
			} else {
				r.RouteReply = rd
			}
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: routing error_reason: %w", protowire.ParseError(n))
			}
			b = b[n:]
			reason := RoutingError(v)
			r.ErrorReason = &reason
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: routing field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

// RouteDiscovery is the TRACEROUTE payload: the node ids a packet visited.
type RouteDiscovery struct {
	Route []uint32
}

func decodeRouteDiscovery(b []byte) (*RouteDiscovery, error) {
	rd := &RouteDiscovery{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: route discovery tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			// Packed repeated fixed32.
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: route (packed): %w", protowire.ParseError(n))
			}
			b = b[n:]
			for len(raw) > 0 {
				v, n := protowire.ConsumeFixed32(raw)
				if n < 0 {
					return nil, fmt.Errorf("packet: route element: %w", protowire.ParseError(n))
				}
				raw = raw[n:]
				rd.Route = append(rd.Route, v)
			}
		case num == 1 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: route: %w", protowire.ParseError(n))
			}
			b = b[n:]
			rd.Route = append(rd.Route, v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: route discovery field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return rd, nil
}

// Neighbor is one entry in a NEIGHBORINFO payload.
type Neighbor struct {
	NodeID uint32
	SNR    float32
}

// NeighborInfo is the NEIGHBORINFO payload: what a node hears directly.
type NeighborInfo struct {
	NodeID                    uint32
	LastSentByID              uint32
	NodeBroadcastIntervalSecs uint32
	Neighbors                 []Neighbor
}

func decodeNeighborInfo(b []byte) (*NeighborInfo, error) {
	ni := &NeighborInfo{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: neighbor info tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: neighbor info node_id: %w", protowire.ParseError(n))
			}
			b = b[n:]
			ni.NodeID = uint32(v)
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: last_sent_by_id: %w", protowire.ParseError(n))
			}
			b = b[n:]
			ni.LastSentByID = uint32(v)
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: broadcast interval: %w", protowire.ParseError(n))
			}
			b = b[n:]
			ni.NodeBroadcastIntervalSecs = uint32(v)
		case num == 4 && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: neighbor: %w", protowire.ParseError(n))
			}
			b = b[n:]
			nb, err := decodeNeighbor(raw)
			if err != nil {
				return nil, err
			}
			ni.Neighbors = append(ni.Neighbors, nb)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: neighbor info field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return ni, nil
}

func decodeNeighbor(b []byte) (Neighbor, error) {
	var nb Neighbor
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nb, fmt.Errorf("packet: neighbor tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nb, fmt.Errorf("packet: neighbor node_id: %w", protowire.ParseError(n))
			}
			b = b[n:]
			nb.NodeID = uint32(v)
		case num == 2 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nb, fmt.Errorf("packet: neighbor snr: %w", protowire.ParseError(n))
			}
			b = b[n:]
			nb.SNR = math.Float32frombits(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nb, fmt.Errorf("packet: neighbor field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return nb, nil
}
