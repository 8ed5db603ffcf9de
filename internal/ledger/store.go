package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one settled sale. Records are immutable once appended; the ledger
// is the source of truth for all reporting.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	SellerID  int64           `json:"seller_id"`
	Gross     decimal.Decimal `json:"gross"`
	Net       decimal.Decimal `json:"net"`
}

// Store is the append-only sales ledger. ListRange returns records with
// from <= timestamp < to, oldest first.
type Store interface {
	Append(ctx context.Context, record Record) error
	ListRange(ctx context.Context, from, to time.Time) ([]Record, error)
}
