// Package domain defines the persisted per-node state.
package domain

import "time"

// UpdateKind selects which last-seen timestamp an upsert refreshes.
type UpdateKind string

const (
	// UpdateBattery stamps LastSeenBattery (power telemetry accepted).
	UpdateBattery UpdateKind = "battery"
	// UpdateLocation stamps LastSeenLocation (position accepted).
	UpdateLocation UpdateKind = "location"
	// UpdateGeneric stamps LastSeen (anything else, e.g. nodeinfo).
	UpdateGeneric UpdateKind = "generic"
)

// NodeRecord is the durable state for one mesh node. Pointer fields encode
// presence: nil means the value has never been observed. A field, once set,
// is only ever replaced by a newer observed value, never cleared.
type NodeRecord struct {
	NodeID                  uint32
	Shortname               *string
	Longname                *string
	Latitude                *float64
	Longitude               *float64
	LastKnownVoltage        *float64
	LastKnownBatteryPercent *float64
	LastSeenBattery         *time.Time
	LastSeenLocation        *time.Time
	LastSeen                *time.Time
}

// Clone returns a deep copy so callers can hand records across goroutines
// without sharing pointers into the cache.
func (r *NodeRecord) Clone() *NodeRecord {
	if r == nil {
		return nil
	}
	c := &NodeRecord{NodeID: r.NodeID}
	c.Shortname = cloneString(r.Shortname)
	c.Longname = cloneString(r.Longname)
	c.Latitude = cloneFloat(r.Latitude)
	c.Longitude = cloneFloat(r.Longitude)
	c.LastKnownVoltage = cloneFloat(r.LastKnownVoltage)
	c.LastKnownBatteryPercent = cloneFloat(r.LastKnownBatteryPercent)
	c.LastSeenBattery = cloneTime(r.LastSeenBattery)
	c.LastSeenLocation = cloneTime(r.LastSeenLocation)
	c.LastSeen = cloneTime(r.LastSeen)
	return c
}

// NodeUpdate is a partial set of observed fields to merge into a record.
// Nil fields are "not observed" and never erase existing values.
type NodeUpdate struct {
	Shortname      *string
	Longname       *string
	Latitude       *float64
	Longitude      *float64
	Voltage        *float64
	BatteryPercent *float64
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
