package packet

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// compassRose is the 16-wind rose, clockwise from north.
var compassRose = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Position is the POSITION payload. Raw fixed-point fields are kept as
// transmitted; the derived accessors apply the scaling rules.
type Position struct {
	LatitudeI     int32  // degrees * 1e7
	LongitudeI    int32  // degrees * 1e7
	Altitude      int32  // meters above MSL
	Time          uint32 // GPS wall clock, unix seconds
	PDOP          uint32
	HDOP          uint32
	VDOP          uint32
	GroundSpeed   uint32 // mm/s
	GroundTrack   uint32 // degrees * 1e5
	SatsInView    uint32
	PrecisionBits uint32
}

// Coordinates returns the position in degrees. A raw (0,0) pair means the
// radio has no fix, not the Gulf of Guinea, so ok is false.
func (p *Position) Coordinates() (lat, lon float64, ok bool) {
	if p.LatitudeI == 0 && p.LongitudeI == 0 {
		return 0, 0, false
	}
	return float64(p.LatitudeI) / 1e7, float64(p.LongitudeI) / 1e7, true
}

// GroundSpeedConverted is ground speed in the three display units.
type GroundSpeedConverted struct {
	MS  float64
	KMH float64
	MPH float64
}

// Speed converts the raw mm/s reading. ok is false when the radio reported
// no movement (zero), matching the wire default.
func (p *Position) Speed() (GroundSpeedConverted, bool) {
	if p.GroundSpeed == 0 {
		return GroundSpeedConverted{}, false
	}
	ms := float64(p.GroundSpeed) / 1000.0
	kmh := ms * 3.6
	return GroundSpeedConverted{MS: ms, KMH: kmh, MPH: kmh * 0.621371}, true
}

// Heading is a course over ground with its compass bucket.
type Heading struct {
	Degrees float64
	Compass string
}

// Heading decodes the fixed-point ground track. The half-bucket offset of
// 11.25 degrees centers each of the 16 buckets on its cardinal direction.
func (p *Position) Heading() (Heading, bool) {
	if p.GroundTrack == 0 {
		return Heading{}, false
	}
	deg := float64(p.GroundTrack) / 1e5
	idx := int((deg+11.25)/22.5) % 16
	return Heading{Degrees: deg, Compass: compassRose[idx]}, true
}

func decodePosition(b []byte) (*Position, error) {
	p := &Position{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("packet: position tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: latitude_i: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.LatitudeI = int32(v)
		case num == 2 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: longitude_i: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.LongitudeI = int32(v)
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: altitude: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.Altitude = int32(v)
		case num == 4 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: position time: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.Time = v
		case num == 11 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: pdop: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.PDOP = uint32(v)
		case num == 12 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: hdop: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.HDOP = uint32(v)
		case num == 13 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: vdop: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.VDOP = uint32(v)
		case num == 15 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: ground_speed: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.GroundSpeed = uint32(v)
		case num == 16 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: ground_track: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.GroundTrack = uint32(v)
		case num == 19 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: sats_in_view: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.SatsInView = uint32(v)
		case num == 23 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("packet: precision_bits: %w", protowire.ParseError(n))
			}
			b = b[n:]
			p.PrecisionBits = uint32(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("packet: position field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, nil
}
