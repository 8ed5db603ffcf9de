package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/meli-sales-relay/internal/ledger"
	"github.com/angelmondragon/meli-sales-relay/internal/notify"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

// MonthlyJob sends the consolidated month summary, but only when it runs on
// the last calendar day of the month. Every other day it is a no-op.
type MonthlyJob struct {
	logg     *logger.Logger
	ledger   ledger.Store
	notifier Notifier
	now      func() time.Time
}

// NewMonthlyJob builds the monthly report job.
func NewMonthlyJob(logg *logger.Logger, store ledger.Store, notifier Notifier) (*MonthlyJob, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	return &MonthlyJob{logg: logg, ledger: store, notifier: notifier, now: time.Now}, nil
}

// Name identifies the job in logs and metrics.
func (j *MonthlyJob) Name() string { return "monthly-report" }

// Run produces the month aggregate on the month's last day.
func (j *MonthlyJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	if now.AddDate(0, 0, 1).Day() != 1 {
		j.logg.Debug(ctx, "not the last day of the month, monthly report skipped")
		return nil
	}

	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	records, err := j.ledger.ListRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("list ledger records: %w", err)
	}
	if len(records) == 0 {
		j.logg.Info(ctx, "no sales this month, report suppressed")
		return nil
	}

	totals := Aggregate(records)
	message := notify.MonthlyReportMessage(now, totals)
	if err := j.notifier.Send(ctx, message); err != nil {
		return fmt.Errorf("send monthly report: %w", err)
	}
	j.logg.Info(ctx, fmt.Sprintf("monthly report sent covering %d sales", totals.Units))
	return nil
}
