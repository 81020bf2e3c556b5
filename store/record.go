// Package store persists command records to two independent stores: a
// relational store (authoritative) and a redis document store. The dual
// writer runs both writes concurrently and reports per-store outcomes; the
// fallback reader consults the document store only when the relational
// store has no row.
package store

import "context"

// Record is one persisted entity document. Table partitions the keyspace
// per entity type (payments, accounts, notifications, settlements).
type Record struct {
	Table string         `json:"table"`
	ID    string         `json:"id"`
	Data  map[string]any `json:"data"`
}

// Filter matches records whose document has a string field with the given
// value. The zero Filter matches everything.
type Filter struct {
	Field string
	Value string
}

// Writer persists records.
type Writer interface {
	Put(ctx context.Context, rec Record) error
}

// Reader looks up records by id. The boolean result distinguishes a miss
// from an error.
type Reader interface {
	Get(ctx context.Context, table, id string) (Record, bool, error)
}

// Store combines reads and writes.
type Store interface {
	Writer
	Reader
}
