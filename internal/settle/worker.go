package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/meli-sales-relay/internal/ledger"
	"github.com/angelmondragon/meli-sales-relay/internal/meli"
	"github.com/angelmondragon/meli-sales-relay/internal/notify"
	"github.com/angelmondragon/meli-sales-relay/internal/processed"
	"github.com/angelmondragon/meli-sales-relay/internal/queue"
	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	pkgerrors "github.com/angelmondragon/meli-sales-relay/pkg/errors"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
	"github.com/angelmondragon/meli-sales-relay/pkg/metrics"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	skipReasonDuplicate        = "duplicate"
	skipReasonMissingTimestamp = "missing_timestamp"
	skipReasonPreCutoff        = "pre_cutoff"
)

// MarketClient is the slice of the marketplace API the worker consumes.
type MarketClient interface {
	GetOrder(ctx context.Context, accessToken string, orderID int64) (*meli.Order, error)
	GetShipmentCosts(ctx context.Context, accessToken string, shipmentID int64) (*meli.ShipmentCosts, error)
}

// TokenResolver yields a valid bearer token for a managed seller.
type TokenResolver interface {
	AccessToken(ctx context.Context, sellerID int64) (string, error)
}

// Notifier delivers operator-facing messages. SendDebug targets the fixed
// diagnostic recipient only.
type Notifier interface {
	Send(ctx context.Context, text string) error
	SendDebug(ctx context.Context, text string) error
}

// WorkerParams configure the settlement worker.
type WorkerParams struct {
	Logger    *logger.Logger
	Queue     queue.Store
	Ledger    ledger.Store
	Processed *processed.Set
	Tokens    TokenResolver
	Market    MarketClient
	Notifier  Notifier
	Sellers   config.SellersConfig
	Metrics   *metrics.SettlementMetrics
	Settings  config.SettlementConfig
	Cutoff    time.Time
}

// Worker drains the command queue: it waits for entries to mature, claims
// them exactly once, fetches order detail with bounded retry, computes the
// net value, appends the ledger record, and pushes the sale notification.
// One entry's failure never stops the loop.
type Worker struct {
	logg      *logger.Logger
	queue     queue.Store
	ledger    ledger.Store
	processed *processed.Set
	tokens    TokenResolver
	market    MarketClient
	notifier  Notifier
	sellers   config.SellersConfig
	metrics   *metrics.SettlementMetrics

	maturationWindow time.Duration
	pollInterval     time.Duration
	fetchAttempts    int
	fetchRetryDelay  time.Duration
	cutoff           time.Time
	now              func() time.Time
}

// NewWorker builds a settlement worker.
func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue store is required")
	}
	if params.Ledger == nil {
		return nil, errors.New("ledger store is required")
	}
	if params.Processed == nil {
		return nil, errors.New("processed set is required")
	}
	if params.Tokens == nil {
		return nil, errors.New("token resolver is required")
	}
	if params.Market == nil {
		return nil, errors.New("market client is required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if params.Cutoff.IsZero() {
		return nil, errors.New("cutoff timestamp is required")
	}

	settings := params.Settings
	if settings.MaturationWindow <= 0 {
		settings.MaturationWindow = 5 * time.Minute
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 30 * time.Second
	}
	if settings.FetchAttempts <= 0 {
		settings.FetchAttempts = 3
	}
	if settings.FetchRetryDelay <= 0 {
		settings.FetchRetryDelay = 15 * time.Second
	}

	return &Worker{
		logg:             params.Logger,
		queue:            params.Queue,
		ledger:           params.Ledger,
		processed:        params.Processed,
		tokens:           params.Tokens,
		market:           params.Market,
		notifier:         params.Notifier,
		sellers:          params.Sellers,
		metrics:          params.Metrics,
		maturationWindow: settings.MaturationWindow,
		pollInterval:     settings.PollInterval,
		fetchAttempts:    settings.FetchAttempts,
		fetchRetryDelay:  settings.FetchRetryDelay,
		cutoff:           params.Cutoff,
		now:              time.Now,
	}, nil
}

// Run polls the queue until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	w.logg.Info(ctx, fmt.Sprintf("settlement worker started (cutoff %s)", w.cutoff.UTC().Format(time.RFC3339)))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logg.Info(ctx, "settlement worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain settles every mature entry before going back to sleep. Only an empty
// queue or an immature head waits out the poll interval; a backlog is worked
// through in one pass.
func (w *Worker) drain(ctx context.Context) {
	for w.runCycle(ctx) {
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// runCycle processes at most one queue entry and reports whether it dequeued
// one. The head blocks entries behind it until it matures; windows are
// identical so age order is preserved.
func (w *Worker) runCycle(ctx context.Context) bool {
	w.observeQueueDepth(ctx)

	head, err := w.queue.Peek(ctx)
	if err != nil {
		w.logg.Error(ctx, "queue peek failed", err)
		return false
	}
	if head == nil {
		return false
	}

	age := w.now().Sub(head.EnqueuedAt)
	if age < w.maturationWindow {
		logCtx := w.logg.WithOrderID(ctx, head.OrderID)
		w.logg.Debug(logCtx, fmt.Sprintf("head entry not yet mature (age %s)", age.Truncate(time.Second)))
		return false
	}

	entry, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.logg.Error(ctx, "queue dequeue failed", err)
		return false
	}
	if entry == nil {
		return false
	}

	// The entry is committed from here on: it never returns to the queue,
	// even if processing fails.
	logCtx := w.logg.WithSellerID(ctx, entry.SellerID)
	logCtx = w.logg.WithOrderID(logCtx, entry.OrderID)

	start := w.now()
	if err := w.processEntry(logCtx, *entry); err != nil {
		w.metrics.IncFailed()
		w.logg.Error(logCtx, "settlement failed", err)
		w.alertDebug(logCtx, *entry, err)
		return true
	}
	w.metrics.ObserveDuration(w.now().Sub(start))
	return true
}

func (w *Worker) processEntry(ctx context.Context, entry queue.Entry) error {
	if !w.processed.Claim(entry.OrderID) {
		w.metrics.IncSkipped(skipReasonDuplicate)
		w.logg.Info(ctx, "order already settled, skipping")
		return nil
	}

	accessToken, err := w.tokens.AccessToken(ctx, entry.SellerID)
	if err != nil {
		return fmt.Errorf("resolve access token: %w", err)
	}

	order, err := w.fetchOrder(ctx, accessToken, entry.OrderID)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}

	if order.DateCreated.IsZero() {
		w.metrics.IncSkipped(skipReasonMissingTimestamp)
		w.logg.Warn(ctx, "order has no creation timestamp, skipping")
		return nil
	}
	if order.DateCreated.Before(w.cutoff) {
		w.metrics.IncSkipped(skipReasonPreCutoff)
		w.logg.Info(ctx, "order predates startup cutoff, skipping")
		return nil
	}

	shippingCost := w.shippingCost(ctx, accessToken, entry.SellerID, order)
	settlement := Compute(order, shippingCost)

	record := ledger.Record{
		Timestamp: w.now().UTC(),
		SellerID:  entry.SellerID,
		Gross:     settlement.Gross,
		Net:       settlement.Net,
	}
	if err := w.ledger.Append(ctx, record); err != nil {
		return fmt.Errorf("append ledger record: %w", err)
	}

	w.metrics.IncSettled()
	w.logg.Info(ctx, fmt.Sprintf("sale settled: gross %s net %s", settlement.Gross.StringFixed(2), settlement.Net.StringFixed(2)))

	message := notify.SaleMessage(notify.SaleMessageInput{
		SellerNickname: w.sellers.Nickname(entry.SellerID),
		SellerEmoji:    w.sellers.Emoji(entry.SellerID),
		Order:          order,
		OrderID:        entry.OrderID,
		Settlement: notify.SettlementLines{
			Gross:        settlement.Gross,
			FeeTotal:     settlement.FeeTotal,
			ShippingCost: settlement.ShippingCost,
			Tax:          settlement.Tax,
			Net:          settlement.Net,
		},
	})
	if err := w.notifier.Send(ctx, message); err != nil {
		// Delivery is fire-and-forget; a notification failure must not undo
		// an already-recorded settlement.
		w.logg.Error(ctx, "sale notification delivery failed", err)
	}
	return nil
}

// fetchOrder retries only the not-found class: a freshly paid order may not
// be visible upstream yet. Any other failure aborts on the first attempt.
func (w *Worker) fetchOrder(ctx context.Context, accessToken string, orderID int64) (*meli.Order, error) {
	var order *meli.Order
	backoff := retry.WithMaxRetries(uint64(w.fetchAttempts-1), retry.NewConstant(w.fetchRetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, err := w.market.GetOrder(ctx, accessToken, orderID)
		if err != nil {
			if pkgerrors.IsNotFound(err) {
				w.metrics.IncFetchRetry()
				w.logg.Warn(ctx, "order not yet visible, will retry")
				return retry.RetryableError(err)
			}
			return err
		}
		order = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// shippingCost resolves the seller's share of the shipment cost. A failed
// lookup degrades to zero rather than aborting the settlement, matching the
// marketplace's habit of exposing costs late.
func (w *Worker) shippingCost(ctx context.Context, accessToken string, sellerID int64, order *meli.Order) decimal.Decimal {
	if order.Shipping.ID == 0 {
		return decimal.Zero
	}
	costs, err := w.market.GetShipmentCosts(ctx, accessToken, order.Shipping.ID)
	if err != nil {
		w.logg.Warn(ctx, fmt.Sprintf("shipment cost lookup failed, assuming zero: %v", err))
		return decimal.Zero
	}
	return ShippingCostForSeller(costs, sellerID)
}

func (w *Worker) alertDebug(ctx context.Context, entry queue.Entry, procErr error) {
	message := notify.DebugMessage(entry.SellerID, entry.OrderID, pkgerrors.Dump(procErr))
	if err := w.notifier.SendDebug(ctx, message); err != nil {
		w.logg.Error(ctx, "debug alert delivery failed", err)
	}
}

func (w *Worker) observeQueueDepth(ctx context.Context) {
	depth, err := w.queue.Len(ctx)
	if err != nil {
		return
	}
	w.metrics.SetQueueDepth(depth)
}
