package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flowmint/txfabric/database"
)

// recordRow is the persisted shape of a record. Rows are keyed by
// (table, record id) and upserted on repeat writes.
type recordRow struct {
	Table     string    `gorm:"column:table_name;primaryKey;size:64"`
	RecordID  string    `gorm:"column:record_id;primaryKey;size:64"`
	Data      string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (recordRow) TableName() string { return "records" }

// GormStore is the relational record store.
type GormStore struct {
	db   *database.DB
	name string
}

// NewGormStore creates a relational record store over the given database.
func NewGormStore(db *database.DB) *GormStore {
	return &GormStore{db: db, name: "relational"}
}

// Name identifies the store in write reports and logs.
func (s *GormStore) Name() string { return s.name }

// Migrate creates the records table.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&recordRow{})
}

// Put upserts the record.
func (s *GormStore) Put(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("marshal record %s/%s: %w", rec.Table, rec.ID, err)
	}

	row := recordRow{Table: rec.Table, RecordID: rec.ID, Data: string(data)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "table_name"}, {Name: "record_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put record %s/%s: %w", rec.Table, rec.ID, err)
	}
	return nil
}

// Get looks up a record by table and id.
func (s *GormStore) Get(ctx context.Context, table, id string) (Record, bool, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("table_name = ? AND record_id = ?", table, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get record %s/%s: %w", table, id, err)
	}

	rec := Record{Table: table, ID: id}
	if row.Data != "" && row.Data != "null" {
		if err := json.Unmarshal([]byte(row.Data), &rec.Data); err != nil {
			return Record{}, false, fmt.Errorf("unmarshal record %s/%s: %w", table, id, err)
		}
	}
	return rec, true, nil
}

// List returns one page of a table's records ordered by record id, plus the
// table's total row count. An optional filter matches records whose JSON
// document contains the given string field with the given value.
func (s *GormStore) List(ctx context.Context, table string, filter Filter, offset, limit int) ([]Record, int64, error) {
	base := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&recordRow{}).Where("table_name = ?", table)
		if filter.Field != "" {
			q = q.Where("data LIKE ?", "%"+fmt.Sprintf("%q:%q", filter.Field, filter.Value)+"%")
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count records %s: %w", table, err)
	}

	var rows []recordRow
	err := base().Order("record_id asc").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list records %s: %w", table, err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{Table: table, ID: row.RecordID}
		if row.Data != "" && row.Data != "null" {
			if err := json.Unmarshal([]byte(row.Data), &rec.Data); err != nil {
				return nil, 0, fmt.Errorf("unmarshal record %s/%s: %w", table, row.RecordID, err)
			}
		}
		records = append(records, rec)
	}
	return records, total, nil
}
