// Package query is the thin read-side facade: per-id lookups, paginated
// table listings, and the aggregate's event history. It never writes and
// adds no caching; reads go straight to the relational store.
package query

import (
	"context"

	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/event"
	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/store"
)

// defaultPageSize bounds listings when the caller gives no limit.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// RecordSource is the read surface the facade needs from the record store.
type RecordSource interface {
	Get(ctx context.Context, table, id string) (store.Record, bool, error)
	List(ctx context.Context, table string, filter store.Filter, offset, limit int) ([]store.Record, int64, error)
}

// Page selects one slice of a listing.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Pagination describes the returned slice and the total result count.
type Pagination struct {
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
	Total  int64 `json:"total"`
}

// RecordPage is one page of records plus its pagination envelope.
type RecordPage struct {
	Results    []store.Record `json:"results"`
	Pagination Pagination     `json:"pagination"`
}

// Service answers read queries.
type Service struct {
	records RecordSource
	events  event.Store
	log     *logger.Logger
}

// NewService creates the read facade over the record and event stores.
func NewService(records RecordSource, events event.Store, log *logger.Logger) *Service {
	return &Service{
		records: records,
		events:  events,
		log:     log.WithComponent("query"),
	}
}

// Record returns one record by table and id.
func (s *Service) Record(ctx context.Context, table, id string) (store.Record, error) {
	rec, found, err := s.records.Get(ctx, table, id)
	if err != nil {
		return store.Record{}, err
	}
	if !found {
		return store.Record{}, apperrors.NotFound(table, id)
	}
	return rec, nil
}

// Records returns one filtered page of a table's records.
func (s *Service) Records(ctx context.Context, table string, filter store.Filter, page Page) (RecordPage, error) {
	page = clamp(page)
	results, total, err := s.records.List(ctx, table, filter, page.Offset, page.Limit)
	if err != nil {
		return RecordPage{}, err
	}
	return RecordPage{
		Results:    results,
		Pagination: Pagination{Offset: page.Offset, Limit: page.Limit, Total: total},
	}, nil
}

// EventsForAggregate returns the aggregate's events in append order.
func (s *Service) EventsForAggregate(ctx context.Context, aggregateID string) ([]event.Event, error) {
	return s.events.EventsForAggregate(ctx, aggregateID)
}

func clamp(page Page) Page {
	if page.Offset < 0 {
		page.Offset = 0
	}
	if page.Limit <= 0 {
		page.Limit = defaultPageSize
	}
	if page.Limit > maxPageSize {
		page.Limit = maxPageSize
	}
	return page
}
