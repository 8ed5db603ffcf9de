package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/meli-sales-relay/pkg/db/models"
	"gorm.io/gorm"
)

// GormStore is the SQL-backed ledger used when a database driver is selected.
// Rows are only ever inserted; there is no update or delete path.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore binds the ledger to a database connection.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection required")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Append(ctx context.Context, record Record) error {
	row := models.SaleRecord{
		Timestamp: record.Timestamp,
		SellerID:  record.SellerID,
		Gross:     record.Gross,
		Net:       record.Net,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) ListRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	var rows []models.SaleRecord
	err := s.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", from, to).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, Record{
			Timestamp: row.Timestamp,
			SellerID:  row.SellerID,
			Gross:     row.Gross,
			Net:       row.Net,
		})
	}
	return records, nil
}
