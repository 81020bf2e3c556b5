package query

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"

	"github.com/flowmint/txfabric/database"
	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/event"
	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/store"
)

func newTestService(t *testing.T) (*Service, *store.GormStore, *event.MemoryStore) {
	t.Helper()
	log := logger.NewDefault("test")

	cfg := database.Config{Enabled: true, DSN: ":memory:", MaxRetries: 1, LogLevel: "silent"}
	db, err := database.New(cfg, log, sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	records := store.NewGormStore(db)
	if err := records.Migrate(); err != nil {
		t.Fatalf("migrating records: %v", err)
	}

	events := event.NewMemoryStore()
	return NewService(records, events, log), records, events
}

func seedPayments(t *testing.T, records *store.GormStore, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		status := "pending"
		if i%2 == 0 {
			status = "completed"
		}
		rec := store.Record{
			Table: "payments",
			ID:    fmt.Sprintf("pay-%03d", i),
			Data:  map[string]any{"payment_id": fmt.Sprintf("pay-%03d", i), "status": status},
		}
		if err := records.Put(context.Background(), rec); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
}

func TestService_Record(t *testing.T) {
	s, records, _ := newTestService(t)
	seedPayments(t, records, 1)

	rec, err := s.Record(context.Background(), "payments", "pay-000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Data["status"] != "completed" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestService_Record_NotFound(t *testing.T) {
	s, _, _ := newTestService(t)

	_, err := s.Record(context.Background(), "payments", "missing")
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestService_Records_Pagination(t *testing.T) {
	s, records, _ := newTestService(t)
	seedPayments(t, records, 7)

	page, err := s.Records(context.Background(), "payments", store.Filter{}, Page{Offset: 0, Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Results) != 3 || page.Pagination.Total != 7 {
		t.Fatalf("expected 3 of 7, got %d of %d", len(page.Results), page.Pagination.Total)
	}
	if page.Results[0].ID != "pay-000" {
		t.Errorf("expected ordering by record id, got %s first", page.Results[0].ID)
	}

	last, err := s.Records(context.Background(), "payments", store.Filter{}, Page{Offset: 6, Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(last.Results) != 1 {
		t.Errorf("expected the final partial page, got %d results", len(last.Results))
	}
}

func TestService_Records_Filter(t *testing.T) {
	s, records, _ := newTestService(t)
	seedPayments(t, records, 6)

	page, err := s.Records(context.Background(), "payments",
		store.Filter{Field: "status", Value: "completed"}, Page{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Pagination.Total != 3 {
		t.Fatalf("expected 3 completed payments, got %d", page.Pagination.Total)
	}
	for _, rec := range page.Results {
		if rec.Data["status"] != "completed" {
			t.Errorf("filter leaked record %+v", rec)
		}
	}
}

func TestService_Records_ClampsPage(t *testing.T) {
	s, records, _ := newTestService(t)
	seedPayments(t, records, 2)

	page, err := s.Records(context.Background(), "payments", store.Filter{}, Page{Offset: -5, Limit: 100000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Pagination.Offset != 0 || page.Pagination.Limit != maxPageSize {
		t.Errorf("expected clamped page, got %+v", page.Pagination)
	}
}

func TestService_EventsForAggregate(t *testing.T) {
	s, _, events := newTestService(t)

	stamper := event.NewStamper(nil, nil)
	for i := 0; i < 3; i++ {
		e := stamper.Stamp("payment.created", "agg-1", nil, nil)
		if err := events.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.EventsForAggregate(context.Background(), "agg-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 events, got %d", len(got))
	}
}
