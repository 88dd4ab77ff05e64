// Package filter decides which senders are in-scope for persistence based on
// the shortname each node broadcasts.
package filter

import (
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"bb-mesh-service/internal/packet"
)

// DefaultPattern admits the fleet's own nodes (shortnames like BB07).
const DefaultPattern = `BB[0-9][0-9]`

// Stats summarizes the filter's view of the mesh for the status surface.
type Stats struct {
	TotalNodes    int `json:"total_nodes"`
	AdmittedNodes int `json:"admitted_nodes"`
	BlockedNodes  int `json:"blocked_nodes"`
}

// NodeFilter maintains the shortname map and the derived admitted set.
// Safe for concurrent use; the status surface reads it while the pipeline
// writes.
//
// The filter deliberately fails open: when it cannot evaluate a packet it
// reports "process it" so a filter bug degrades to extra data, never to
// silently dropped data.
type NodeFilter struct {
	pattern *regexp.Regexp
	log     *slog.Logger

	mu         sync.RWMutex
	shortnames map[uint32]string
	admitted   map[uint32]struct{}
}

// New compiles the shortname pattern (substring match, like the admission
// rules operators write) and returns an empty filter.
func New(pattern string, log *slog.Logger) (*NodeFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("filter: compile pattern %q: %w", pattern, err)
	}
	return &NodeFilter{
		pattern:    re,
		log:        log,
		shortnames: make(map[uint32]string),
		admitted:   make(map[uint32]struct{}),
	}, nil
}

// UpdateShortname records the latest shortname for a node and re-derives its
// admission. Returns the new admission state. A node leaves the admitted set
// only here, when a later NODEINFO renames it to a non-matching value.
func (f *NodeFilter) UpdateShortname(nodeID uint32, shortname string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shortnames[nodeID] = shortname
	if f.pattern.MatchString(shortname) {
		f.admitted[nodeID] = struct{}{}
		f.log.Info("node admitted", "node", fmt.Sprintf("%x", nodeID), "shortname", shortname)
		return true
	}
	if _, was := f.admitted[nodeID]; was {
		f.log.Info("node admission revoked", "node", fmt.Sprintf("%x", nodeID), "shortname", shortname)
	}
	delete(f.admitted, nodeID)
	return false
}

// IsAdmitted reports whether the node's current shortname matches the pattern.
func (f *NodeFilter) IsAdmitted(nodeID uint32) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.admitted[nodeID]
	return ok
}

// Shortname returns the last-known shortname, or "unknown".
func (f *NodeFilter) Shortname(nodeID uint32) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.shortnames[nodeID]; ok {
		return s
	}
	return "unknown"
}

// ShouldProcess decides whether a packet proceeds through the pipeline.
// NODEINFO always passes because it is the only source of shortname
// learning; encrypted packets always pass so admission can be re-checked on
// the recovered plaintext. A nil or variant-less packet cannot be evaluated
// and fails open.
func (f *NodeFilter) ShouldProcess(pkt *packet.MeshPacket) bool {
	if pkt == nil {
		return true
	}
	switch pkt.Variant {
	case packet.VariantDecoded:
		if pkt.Decoded != nil && pkt.Decoded.Portnum == packet.PortNodeInfo {
			return true
		}
		return f.IsAdmitted(pkt.From)
	case packet.VariantEncrypted:
		return true
	default:
		return false
	}
}

// ShouldProcessDecrypted re-checks admission for a packet that has just been
// decrypted, keyed on the sender id from the plaintext envelope header.
func (f *NodeFilter) ShouldProcessDecrypted(fromNode uint32) bool {
	return f.IsAdmitted(fromNode)
}

// Stats returns node counts for the status surface.
func (f *NodeFilter) Stats() Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Stats{
		TotalNodes:    len(f.shortnames),
		AdmittedNodes: len(f.admitted),
		BlockedNodes:  len(f.shortnames) - len(f.admitted),
	}
}
