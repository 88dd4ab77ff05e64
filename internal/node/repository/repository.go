// Package repository persists node records keyed by node id.
package repository

import (
	"context"

	"bb-mesh-service/internal/node/domain"
)

// Repository is the durable store behind the node cache. The cache treats it
// as eventually-visible key/value storage and stays correct when it fails.
type Repository interface {
	// GetByID returns the record for nodeID, or nil if not found.
	// It returns an error only for database failures, not for missing rows.
	GetByID(ctx context.Context, nodeID uint32) (*domain.NodeRecord, error)
	// ListAll returns every stored record, for cache preload at startup.
	ListAll(ctx context.Context) ([]*domain.NodeRecord, error)
	// Upsert writes the full record, inserting or overwriting by node id.
	Upsert(ctx context.Context, rec *domain.NodeRecord) error
}
