package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/meli-sales-relay/pkg/db/models"
	"gorm.io/gorm"
)

// GormStore is the SQL-backed queue used when a database driver is selected
// instead of the JSON file baseline. FIFO order is the (enqueued_at, id) sort.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore binds the queue to a database connection.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection required")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Enqueue(ctx context.Context, entry Entry) error {
	row := models.QueueEntry{
		SellerID:   entry.SellerID,
		OrderID:    entry.OrderID,
		EnqueuedAt: entry.EnqueuedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) Peek(ctx context.Context) (*Entry, error) {
	var row models.QueueEntry
	err := s.db.WithContext(ctx).
		Order("enqueued_at ASC, id ASC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entryFromRow(row), nil
}

func (s *GormStore) Dequeue(ctx context.Context) (*Entry, error) {
	var head *Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.QueueEntry
		err := tx.Order("enqueued_at ASC, id ASC").First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&models.QueueEntry{}, row.ID).Error; err != nil {
			return err
		}
		head = entryFromRow(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return head, nil
}

func (s *GormStore) Len(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.QueueEntry{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func entryFromRow(row models.QueueEntry) *Entry {
	return &Entry{
		SellerID:   row.SellerID,
		OrderID:    row.OrderID,
		EnqueuedAt: row.EnqueuedAt,
	}
}
