// Package store provides the persistence backends for outline nodes: an
// in-memory store, Postgres, Firestore, and a read-through document cache
// that can wrap any of them. Every backend implements outline.NodeStore.
package store

import (
	"github.com/outlinehq/go-outline-editor/outline"
)

var (
	_ outline.NodeStore = (*MemoryStore)(nil)
	_ outline.NodeStore = (*PostgresStore)(nil)
	_ outline.NodeStore = (*FirestoreStore)(nil)
	_ outline.NodeStore = (*CachedStore)(nil)
)
