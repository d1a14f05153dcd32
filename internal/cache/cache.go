// Package cache stores derived results grouped under per-entity namespaces so
// that a write to one entity invalidates only that entity's entries.
package cache

import (
	"context"
	"fmt"
)

// Cache stores byte values under a namespace and field.
// Delete drops a whole namespace.
type Cache interface {
	Get(ctx context.Context, namespace, field string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, field string, value []byte) error
	Delete(ctx context.Context, namespace string) error
	Close() error
}

// ContentNamespace returns the namespace holding results derived from one content item.
func ContentNamespace(contentID int64) string {
	return fmt.Sprintf("content:%d", contentID)
}

// Stats contains cache performance statistics.
type Stats struct {
	Namespaces    int     `json:"namespaces"`
	MaxNamespaces int     `json:"max_namespaces"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hit_rate"`
}
