// Package inmemory provides a map-backed storage driver, used when no
// database is configured and in tests.
package inmemory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/papercomputeco/parley/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of exchanges
	mu sync.RWMutex

	// exchanges is keyed by exchange ID
	exchanges map[string]*storage.Exchange
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		exchanges: make(map[string]*storage.Exchange),
	}
}

// SaveExchange stores a copy of the exchange. Existing IDs are left alone.
func (d *Driver) SaveExchange(_ context.Context, ex *storage.Exchange) error {
	if ex == nil {
		return storage.ErrNilExchange
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.exchanges[ex.ID]; ok {
		return nil
	}

	stored := *ex
	stored.Messages = slices.Clone(ex.Messages)
	d.exchanges[ex.ID] = &stored
	return nil
}

// GetExchange retrieves an exchange by its ID.
func (d *Driver) GetExchange(_ context.Context, id string) (*storage.Exchange, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ex, ok := d.exchanges[id]
	if !ok {
		return nil, storage.ErrNotFound{ID: id}
	}

	out := *ex
	return &out, nil
}

// ListExchanges returns matching exchanges, most recent first.
func (d *Driver) ListExchanges(_ context.Context, query storage.ExchangeQuery) ([]*storage.Exchange, error) {
	d.mu.RLock()
	matched := make([]*storage.Exchange, 0, len(d.exchanges))
	for _, ex := range d.exchanges {
		if query.Matches(ex) {
			out := *ex
			matched = append(matched, &out)
		}
	}
	d.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *storage.Exchange) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if query.Offset > 0 {
		if query.Offset >= len(matched) {
			return []*storage.Exchange{}, nil
		}
		matched = matched[query.Offset:]
	}
	if query.Limit > 0 && query.Limit < len(matched) {
		matched = matched[:query.Limit]
	}

	return matched, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}
