package store

import (
	"context"
	"sync"

	apperrors "github.com/flowmint/txfabric/errors"
	"github.com/flowmint/txfabric/logger"
)

// NamedWriter is a writer that identifies itself in write reports.
type NamedWriter interface {
	Writer
	Name() string
}

// NamedReader is a reader that identifies itself in logs.
type NamedReader interface {
	Reader
	Name() string
}

// WriteOptions controls the dual-write failure policy.
type WriteOptions struct {
	// RequireAll fails the write when either store fails. When false, a
	// single-store failure is reported but does not fail the call.
	RequireAll bool
}

// StoreOutcome is the per-store result of a dual write.
type StoreOutcome struct {
	Store string `json:"store"`
	OK    bool   `json:"ok"`
	Err   error  `json:"-"`
}

// WriteReport describes what each store did. Partial success is explicit,
// never collapsed into a boolean.
type WriteReport struct {
	Outcomes []StoreOutcome `json:"outcomes"`
}

// AllSucceeded reports whether every store accepted the write.
func (r WriteReport) AllSucceeded() bool {
	for _, o := range r.Outcomes {
		if !o.OK {
			return false
		}
	}
	return len(r.Outcomes) > 0
}

// AnySucceeded reports whether at least one store accepted the write.
func (r WriteReport) AnySucceeded() bool {
	for _, o := range r.Outcomes {
		if o.OK {
			return true
		}
	}
	return false
}

// FirstError returns the first store failure, or nil.
func (r WriteReport) FirstError() error {
	for _, o := range r.Outcomes {
		if !o.OK {
			return o.Err
		}
	}
	return nil
}

// DualWriter writes every record to both stores concurrently and waits for
// both before reporting.
type DualWriter struct {
	primary   NamedWriter
	secondary NamedWriter
	log       *logger.Logger
}

// NewDualWriter creates a dual writer over the two record stores.
func NewDualWriter(primary, secondary NamedWriter, log *logger.Logger) *DualWriter {
	return &DualWriter{
		primary:   primary,
		secondary: secondary,
		log:       log.WithComponent("dual_writer"),
	}
}

// WriteAll writes the record to both stores and returns the per-store
// report. The returned error is non-nil when the policy considers the
// write failed: always when both stores fail, and on any failure when
// opts.RequireAll is set. A tolerated single-store failure is logged.
func (w *DualWriter) WriteAll(ctx context.Context, rec Record, opts WriteOptions) (WriteReport, error) {
	writers := []NamedWriter{w.primary, w.secondary}
	outcomes := make([]StoreOutcome, len(writers))

	var wg sync.WaitGroup
	for i, writer := range writers {
		wg.Add(1)
		go func(i int, writer NamedWriter) {
			defer wg.Done()
			err := writer.Put(ctx, rec)
			outcomes[i] = StoreOutcome{Store: writer.Name(), OK: err == nil, Err: err}
		}(i, writer)
	}
	wg.Wait()

	report := WriteReport{Outcomes: outcomes}

	for _, o := range outcomes {
		if !o.OK {
			w.log.Warn("Store write failed", logger.Fields(
				logger.FieldStore, o.Store,
				logger.FieldError, o.Err.Error(),
				"table", rec.Table,
				"record_id", rec.ID,
			))
		}
	}

	switch {
	case !report.AnySucceeded():
		return report, apperrors.StoreWrite("all", report.FirstError())
	case opts.RequireAll && !report.AllSucceeded():
		failed := failedStores(report)
		return report, apperrors.StoreWrite(failed, report.FirstError())
	}
	return report, nil
}

func failedStores(report WriteReport) string {
	for _, o := range report.Outcomes {
		if !o.OK {
			return o.Store
		}
	}
	return ""
}

// FallbackReader reads from the primary store first and consults the
// fallback only when the primary has no row. Results are never merged.
type FallbackReader struct {
	primary  NamedReader
	fallback NamedReader
	log      *logger.Logger
}

// NewFallbackReader creates a reader with primary-then-fallback semantics.
func NewFallbackReader(primary, fallback NamedReader, log *logger.Logger) *FallbackReader {
	return &FallbackReader{
		primary:  primary,
		fallback: fallback,
		log:      log.WithComponent("fallback_reader"),
	}
}

// FindByID returns the record from the primary store, or from the fallback
// when the primary has no row. A primary error falls through to the
// fallback so one degraded store does not block reads.
func (r *FallbackReader) FindByID(ctx context.Context, table, id string) (Record, bool, error) {
	rec, found, err := r.primary.Get(ctx, table, id)
	if err == nil && found {
		return rec, true, nil
	}
	if err != nil {
		r.log.Warn("Primary store read failed, trying fallback", logger.Fields(
			logger.FieldStore, r.primary.Name(),
			logger.FieldError, err.Error(),
			"table", table,
			"record_id", id,
		))
	}

	rec, found, fbErr := r.fallback.Get(ctx, table, id)
	if fbErr != nil {
		if err != nil {
			return Record{}, false, err
		}
		return Record{}, false, fbErr
	}
	return rec, found, nil
}
