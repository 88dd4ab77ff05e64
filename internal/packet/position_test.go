package packet

import (
	"math"
	"testing"

	"bb-mesh-service/internal/packet/packettest"
)

func TestPosition_Coordinates(t *testing.T) {
	raw := packettest.Position(377749000, -1224194000, 0, 0)
	p := DecodePayload(PortPosition, raw)
	if p.Kind != KindPosition {
		t.Fatalf("Kind = %v, want KindPosition", p.Kind)
	}

	lat, lon, ok := p.Position.Coordinates()
	if !ok {
		t.Fatal("Coordinates should be present")
	}
	if math.Abs(lat-37.7749) > 1e-6 {
		t.Errorf("lat = %v, want 37.7749", lat)
	}
	if math.Abs(lon-(-122.4194)) > 1e-6 {
		t.Errorf("lon = %v, want -122.4194", lon)
	}
}

func TestPosition_ZeroZeroIsAbsent(t *testing.T) {
	raw := packettest.Position(0, 0, 0, 0)
	p := DecodePayload(PortPosition, raw)
	if _, _, ok := p.Position.Coordinates(); ok {
		t.Error("raw (0,0) must be treated as no fix, not the equator")
	}
}

func TestPosition_Speed(t *testing.T) {
	// 5000 mm/s = 5 m/s = 18 km/h.
	raw := packettest.Position(10, 10, 5000, 0)
	p := DecodePayload(PortPosition, raw)

	speed, ok := p.Position.Speed()
	if !ok {
		t.Fatal("Speed should be present")
	}
	if math.Abs(speed.MS-5.0) > 1e-9 {
		t.Errorf("MS = %v, want 5.0", speed.MS)
	}
	if math.Abs(speed.KMH-18.0) > 1e-9 {
		t.Errorf("KMH = %v, want 18.0", speed.KMH)
	}
	if math.Abs(speed.MPH-18.0*0.621371) > 1e-9 {
		t.Errorf("MPH = %v, want %v", speed.MPH, 18.0*0.621371)
	}

	still := &Position{}
	if _, ok := still.Speed(); ok {
		t.Error("zero ground speed should report absent")
	}
}

func TestPosition_HeadingCompassBuckets(t *testing.T) {
	cases := []struct {
		track   uint32 // degrees * 1e5
		compass string
	}{
		{100000, "N"},     // 1°
		{2500000, "NNE"},  // 25°
		{4500000, "NE"},   // 45°
		{9000000, "E"},    // 90°
		{18000000, "S"},   // 180°
		{27000000, "W"},   // 270°
		{34900000, "N"},   // 349° wraps to north
		{33700000, "NNW"}, // 337°
	}
	for _, tc := range cases {
		p := &Position{GroundTrack: tc.track}
		h, ok := p.Heading()
		if !ok {
			t.Fatalf("track %d: Heading should be present", tc.track)
		}
		if h.Compass != tc.compass {
			t.Errorf("track %d°: compass = %q, want %q", tc.track/100000, h.Compass, tc.compass)
		}
	}

	p := &Position{}
	if _, ok := p.Heading(); ok {
		t.Error("zero ground track should report absent")
	}
}
