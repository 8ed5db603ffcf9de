package reports

import (
	"github.com/angelmondragon/meli-sales-relay/internal/ledger"
	"github.com/angelmondragon/meli-sales-relay/internal/notify"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Aggregate folds a ledger window into report totals. Cost is the spread
// between gross and net; the percentage is zero when gross is zero.
func Aggregate(records []ledger.Record) notify.ReportTotals {
	totals := notify.ReportTotals{
		Units:   len(records),
		Gross:   decimal.Zero,
		Net:     decimal.Zero,
		Cost:    decimal.Zero,
		CostPct: decimal.Zero,
	}
	for _, record := range records {
		totals.Gross = totals.Gross.Add(record.Gross)
		totals.Net = totals.Net.Add(record.Net)
	}
	totals.Cost = totals.Gross.Sub(totals.Net)
	if totals.Gross.IsPositive() {
		totals.CostPct = totals.Cost.Div(totals.Gross).Mul(hundred)
	}
	return totals
}
