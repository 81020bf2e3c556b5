package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowmint/txfabric/database"
)

// eventRow is the persisted shape of an event. The auto-increment sequence
// preserves append order across aggregates; rows are never updated or deleted.
type eventRow struct {
	Sequence    int64     `gorm:"primaryKey;autoIncrement"`
	EventID     string    `gorm:"size:64;uniqueIndex;not null"`
	Kind        string    `gorm:"size:128;index;not null"`
	AggregateID string    `gorm:"size:64;index;not null"`
	Timestamp   time.Time `gorm:"not null"`
	Data        string    `gorm:"type:text"`
	Metadata    string    `gorm:"type:text"`
}

func (eventRow) TableName() string { return "events" }

// GormStore persists events through the shared database wrapper.
type GormStore struct {
	db *database.DB
}

// NewGormStore creates an event store over the given database.
func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the events table.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&eventRow{})
}

// Append durably records the event.
func (s *GormStore) Append(ctx context.Context, e Event) error {
	row, err := toRow(e)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("append event %s: %w", e.ID, err)
	}
	return nil
}

// EventsForAggregate returns the aggregate's events ordered by sequence.
func (s *GormStore) EventsForAggregate(ctx context.Context, aggregateID string) ([]Event, error) {
	var rows []eventRow
	err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("sequence asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load events for aggregate %s: %w", aggregateID, err)
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		e, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func toRow(e Event) (*eventRow, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal event metadata: %w", err)
	}
	return &eventRow{
		EventID:     e.ID,
		Kind:        e.Kind,
		AggregateID: e.AggregateID,
		Timestamp:   e.Timestamp,
		Data:        string(data),
		Metadata:    string(metadata),
	}, nil
}

func fromRow(row eventRow) (Event, error) {
	e := Event{
		ID:          row.EventID,
		Kind:        row.Kind,
		AggregateID: row.AggregateID,
		Timestamp:   row.Timestamp,
	}
	if row.Data != "" && row.Data != "null" {
		if err := json.Unmarshal([]byte(row.Data), &e.Data); err != nil {
			return Event{}, fmt.Errorf("unmarshal event %s data: %w", row.EventID, err)
		}
	}
	if row.Metadata != "" && row.Metadata != "null" {
		if err := json.Unmarshal([]byte(row.Metadata), &e.Metadata); err != nil {
			return Event{}, fmt.Errorf("unmarshal event %s metadata: %w", row.EventID, err)
		}
	}
	return e, nil
}
