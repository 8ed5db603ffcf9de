package models

import "time"

// QueueEntry is one pending order reference awaiting settlement. Rows are
// consumed in strict enqueue order.
type QueueEntry struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	SellerID   int64     `gorm:"column:seller_id;not null"`
	OrderID    int64     `gorm:"column:order_id;not null;uniqueIndex"`
	EnqueuedAt time.Time `gorm:"column:enqueued_at;not null;index"`
}

func (QueueEntry) TableName() string { return "queue_entries" }
