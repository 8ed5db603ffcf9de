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

// Notifier delivers a rendered report to the broadcast recipients.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// DailyJob aggregates the preceding 24 hours of ledger records and sends the
// daily summary. An empty window sends nothing.
type DailyJob struct {
	logg     *logger.Logger
	ledger   ledger.Store
	notifier Notifier
	now      func() time.Time
}

// NewDailyJob builds the daily report job.
func NewDailyJob(logg *logger.Logger, store ledger.Store, notifier Notifier) (*DailyJob, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if store == nil {
		return nil, errors.New("ledger store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	return &DailyJob{logg: logg, ledger: store, notifier: notifier, now: time.Now}, nil
}

// Name identifies the job in logs and metrics.
func (j *DailyJob) Name() string { return "daily-report" }

// Run produces and sends the daily aggregate.
func (j *DailyJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	from := now.Add(-24 * time.Hour)

	records, err := j.ledger.ListRange(ctx, from, now)
	if err != nil {
		return fmt.Errorf("list ledger records: %w", err)
	}
	if len(records) == 0 {
		j.logg.Info(ctx, "no sales in the daily window, report suppressed")
		return nil
	}

	totals := Aggregate(records)
	message := notify.DailyReportMessage(now, totals)
	if err := j.notifier.Send(ctx, message); err != nil {
		return fmt.Errorf("send daily report: %w", err)
	}
	j.logg.Info(ctx, fmt.Sprintf("daily report sent covering %d sales", totals.Units))
	return nil
}
