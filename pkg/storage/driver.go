// Package storage defines the transcript archive: finished exchanges and
// the drivers that persist them.
package storage

import (
	"context"
)

// Driver defines the interface for persisting and retrieving exchanges in a
// storage backend.
type Driver interface {
	// SaveExchange stores an exchange. Saving an exchange whose ID already
	// exists is a no-op.
	SaveExchange(ctx context.Context, ex *Exchange) error

	// GetExchange retrieves an exchange by its ID.
	GetExchange(ctx context.Context, id string) (*Exchange, error)

	// ListExchanges returns exchanges matching the query, most recent first.
	ListExchanges(ctx context.Context, query ExchangeQuery) ([]*Exchange, error)

	// Close closes the store and releases any resources.
	Close() error
}

// ExchangeQuery filters ListExchanges. Zero values match everything.
type ExchangeQuery struct {
	Model   string
	Outcome string
	Limit   int
	Offset  int
}
