package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleRecord is an immutable settled-sale row. The ledger is append-only; no
// row is ever updated or deleted.
type SaleRecord struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement"`
	Timestamp time.Time       `gorm:"column:timestamp;not null;index"`
	SellerID  int64           `gorm:"column:seller_id;not null"`
	Gross     decimal.Decimal `gorm:"column:gross;type:numeric(14,2);not null"`
	Net       decimal.Decimal `gorm:"column:net;type:numeric(14,2);not null"`
}

func (SaleRecord) TableName() string { return "sale_records" }
