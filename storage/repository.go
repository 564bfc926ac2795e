// Package storage provides the storage abstraction layer for sealed
// credential records.
//
// Records are addressed by (namespace, recordType, recordID). A namespace
// groups everything kept for one auth server origin.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when no record was ever written to a namespace.
	ErrNamespaceNotFound = errors.New("namespace not found")
)

// BatchTx provides Put and Delete within an atomic transaction.
// The namespace is scoped to the batch, so methods don't require it.
// Delete inside a batch ignores records that do not exist.
type BatchTx interface {
	Put(recordType string, recordID string, envelope *Envelope) error
	Delete(recordType string, recordID string) error
}

// Repository defines the interface for sealed record storage.
type Repository interface {
	Put(ctx context.Context, namespace string, recordType string, recordID string, envelope *Envelope) error
	Get(ctx context.Context, namespace string, recordType string, recordID string) (*Envelope, error)
	Delete(ctx context.Context, namespace string, recordType string, recordID string) error
	Batch(ctx context.Context, namespace string, fn func(tx BatchTx) error) error
}

// IsNotFound reports whether err means the record or its namespace is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrNamespaceNotFound)
}
