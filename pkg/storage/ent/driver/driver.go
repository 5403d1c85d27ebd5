// Package entdriver implements storage.Driver on top of an ent SQL driver.
package entdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	entsql "entgo.io/ent/dialect/sql"
	entschema "entgo.io/ent/dialect/sql/schema"

	"github.com/papercomputeco/parley/pkg/storage"
)

var exchangeColumns = []string{
	"id",
	"session_id",
	"model",
	"outcome",
	"messages",
	"response",
	"started_at",
	"completed_at",
}

// EntDriver provides storage operations over an ent SQL driver.
// It is database-agnostic and can be embedded by specific drivers.
type EntDriver struct {
	Driver *entsql.Driver
}

// New runs the schema migration on drv and returns a driver for it.
func New(ctx context.Context, drv *entsql.Driver) (*EntDriver, error) {
	tables, err := Tables()
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	migrate, err := entschema.NewMigrate(drv)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration: %w", err)
	}

	// Append-only: new tables, columns and indexes are created, nothing is dropped.
	if err := migrate.Create(ctx, tables...); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &EntDriver{Driver: drv}, nil
}

// SaveExchange stores an exchange. If the ID already exists, this is a no-op.
func (ed *EntDriver) SaveExchange(ctx context.Context, ex *storage.Exchange) error {
	if ex == nil {
		return storage.ErrNilExchange
	}

	messages, err := json.Marshal(ex.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query, args := entsql.Dialect(ed.Driver.Dialect()).
		Insert(ExchangesTable).
		Columns(exchangeColumns...).
		Values(
			ex.ID, ex.SessionID, ex.Model, ex.Outcome, messages, ex.Response,
			ex.StartedAt.UTC(), ex.CompletedAt.UTC(),
		).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.DoNothing(),
		).
		Query()

	if err := ed.Driver.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("could not execute exchange creation: %w", err)
	}

	return nil
}

// GetExchange retrieves an exchange by its ID.
func (ed *EntDriver) GetExchange(ctx context.Context, id string) (*storage.Exchange, error) {
	selector := ed.selectExchanges().
		Where(entsql.EQ("id", id)).
		Limit(1)

	exchanges, err := ed.query(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}
	if len(exchanges) == 0 {
		return nil, storage.ErrNotFound{ID: id}
	}

	return exchanges[0], nil
}

// ListExchanges returns matching exchanges, most recent first.
func (ed *EntDriver) ListExchanges(ctx context.Context, q storage.ExchangeQuery) ([]*storage.Exchange, error) {
	selector := ed.selectExchanges()
	if q.Model != "" {
		selector.Where(entsql.EQ("model", q.Model))
	}
	if q.Outcome != "" {
		selector.Where(entsql.EQ("outcome", q.Outcome))
	}

	selector.OrderBy(entsql.Desc("started_at"), entsql.Asc("id"))

	// SQLite rejects an OFFSET without a LIMIT.
	limit := math.MaxInt32
	if q.Limit > 0 {
		limit = q.Limit
	}
	selector.Limit(limit)
	if q.Offset > 0 {
		selector.Offset(q.Offset)
	}

	exchanges, err := ed.query(ctx, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	return exchanges, nil
}

// Truncate deletes every archived exchange.
func (ed *EntDriver) Truncate(ctx context.Context) error {
	query, args := entsql.Dialect(ed.Driver.Dialect()).
		Delete(ExchangesTable).
		Query()
	return ed.Driver.Exec(ctx, query, args, nil)
}

// Close closes the database connection.
func (ed *EntDriver) Close() error {
	return ed.Driver.Close()
}

func (ed *EntDriver) selectExchanges() *entsql.Selector {
	return entsql.Dialect(ed.Driver.Dialect()).
		Select(exchangeColumns...).
		From(entsql.Table(ExchangesTable))
}

func (ed *EntDriver) query(ctx context.Context, selector *entsql.Selector) ([]*storage.Exchange, error) {
	query, args := selector.Query()

	var rows entsql.Rows
	if err := ed.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	exchanges := []*storage.Exchange{}
	for rows.Next() {
		ex, err := scanExchange(&rows)
		if err != nil {
			return nil, err
		}
		exchanges = append(exchanges, ex)
	}

	return exchanges, rows.Err()
}

func scanExchange(rows *entsql.Rows) (*storage.Exchange, error) {
	var (
		ex       storage.Exchange
		messages []byte
	)

	err := rows.Scan(
		&ex.ID, &ex.SessionID, &ex.Model, &ex.Outcome,
		&messages, &ex.Response, &ex.StartedAt, &ex.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan exchange: %w", err)
	}

	if err := json.Unmarshal(messages, &ex.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &ex, nil
}

var _ storage.Driver = (*EntDriver)(nil)
