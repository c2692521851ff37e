// Package storage provides database abstractions.
package storage

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batcher is implemented by DBs that can group several writes into one
// atomic commit. Callers that need a multi-key transactional update (e.g.
// the enrollment store's two-record add) should type-assert for it and
// fall back to individual writes when a backend doesn't support it.
type Batcher interface {
	NewBatch() Batch
}

// Batch accumulates Put/Delete operations for an atomic Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}
