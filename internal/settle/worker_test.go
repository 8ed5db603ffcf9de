package settle

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/angelmondragon/meli-sales-relay/internal/ledger"
	"github.com/angelmondragon/meli-sales-relay/internal/meli"
	"github.com/angelmondragon/meli-sales-relay/internal/processed"
	"github.com/angelmondragon/meli-sales-relay/internal/queue"
	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	pkgerrors "github.com/angelmondragon/meli-sales-relay/pkg/errors"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
	"github.com/shopspring/decimal"
)

type fakeMarket struct {
	orderCalls    int
	orderErrs     []error
	order         *meli.Order
	shipmentCalls int
	shipmentErr   error
	costs         *meli.ShipmentCosts
}

func (f *fakeMarket) GetOrder(ctx context.Context, accessToken string, orderID int64) (*meli.Order, error) {
	f.orderCalls++
	if len(f.orderErrs) > 0 {
		err := f.orderErrs[0]
		f.orderErrs = f.orderErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.order, nil
}

func (f *fakeMarket) GetShipmentCosts(ctx context.Context, accessToken string, shipmentID int64) (*meli.ShipmentCosts, error) {
	f.shipmentCalls++
	if f.shipmentErr != nil {
		return nil, f.shipmentErr
	}
	return f.costs, nil
}

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) AccessToken(ctx context.Context, sellerID int64) (string, error) {
	return f.token, f.err
}

type fakeNotifier struct {
	sent      []string
	sentDebug []string
	sendErr   error
}

func (f *fakeNotifier) Send(ctx context.Context, text string) error {
	f.sent = append(f.sent, text)
	return f.sendErr
}

func (f *fakeNotifier) SendDebug(ctx context.Context, text string) error {
	f.sentDebug = append(f.sentDebug, text)
	return nil
}

type workerFixture struct {
	worker   *Worker
	queue    queue.Store
	ledger   ledger.Store
	set      *processed.Set
	market   *fakeMarket
	notifier *fakeNotifier
}

func testOrder(created time.Time) *meli.Order {
	return &meli.Order{
		ID:          2000010001,
		DateCreated: created,
		TotalAmount: decimal.RequireFromString("100.00"),
		OrderItems: []meli.OrderItem{
			{
				Item:    meli.ItemInfo{ID: "MLB123", Title: "Fone Bluetooth"},
				SaleFee: decimal.RequireFromString("10.00"),
			},
		},
		Buyer:    meli.Buyer{FirstName: "Ana", LastName: "Souza"},
		Shipping: meli.Shipping{ID: 42, LogisticType: "fulfillment"},
	}
}

func newWorkerFixture(t *testing.T, market *fakeMarket, tokens TokenResolver, cutoff time.Time) *workerFixture {
	t.Helper()

	dir := t.TempDir()
	queueStore, err := queue.NewFileStore(filepath.Join(dir, "queue.json"))
	if err != nil {
		t.Fatalf("new queue store: %v", err)
	}
	ledgerStore, err := ledger.NewFileStore(filepath.Join(dir, "ledger.json"))
	if err != nil {
		t.Fatalf("new ledger store: %v", err)
	}

	set := processed.NewSet()
	notifier := &fakeNotifier{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	worker, err := NewWorker(WorkerParams{
		Logger:    logg,
		Queue:     queueStore,
		Ledger:    ledgerStore,
		Processed: set,
		Tokens:    tokens,
		Market:    market,
		Notifier:  notifier,
		Sellers:   config.SellersConfig{},
		Settings: config.SettlementConfig{
			MaturationWindow: 5 * time.Minute,
			PollInterval:     time.Second,
			FetchAttempts:    3,
			FetchRetryDelay:  time.Millisecond,
		},
		Cutoff: cutoff,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	return &workerFixture{
		worker:   worker,
		queue:    queueStore,
		ledger:   ledgerStore,
		set:      set,
		market:   market,
		notifier: notifier,
	}
}

func enqueue(t *testing.T, store queue.Store, orderID int64, age time.Duration) {
	t.Helper()
	err := store.Enqueue(context.Background(), queue.Entry{
		SellerID:   5001,
		OrderID:    orderID,
		EnqueuedAt: time.Now().Add(-age),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func queueLen(t *testing.T, store queue.Store) int {
	t.Helper()
	n, err := store.Len(context.Background())
	if err != nil {
		t.Fatalf("queue len: %v", err)
	}
	return n
}

func TestRunCycleLeavesImmatureHeadQueued(t *testing.T) {
	market := &fakeMarket{order: testOrder(time.Now())}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, time.Minute)

	fix.worker.runCycle(context.Background())

	if n := queueLen(t, fix.queue); n != 1 {
		t.Fatalf("immature head should remain queued, len=%d", n)
	}
	if market.orderCalls != 0 {
		t.Fatalf("no order fetch expected, got %d", market.orderCalls)
	}
}

func TestRunCycleSettlesMatureEntry(t *testing.T) {
	market := &fakeMarket{
		order: testOrder(time.Now()),
		costs: &meli.ShipmentCosts{
			Senders: []meli.ShipmentSender{{UserID: 5001, Cost: decimal.RequireFromString("5.00")}},
		},
	}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)

	fix.worker.runCycle(context.Background())

	if n := queueLen(t, fix.queue); n != 0 {
		t.Fatalf("entry should be dequeued, len=%d", n)
	}
	if !fix.set.Contains(2000010001) {
		t.Fatal("order should be marked processed")
	}

	records, err := fix.ledger.ListRange(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(records))
	}
	if records[0].SellerID != 5001 {
		t.Fatalf("unexpected seller %d", records[0].SellerID)
	}
	if got := records[0].Net.StringFixed(2); got != "77.85" {
		t.Fatalf("expected net 77.85, got %s", got)
	}

	if len(fix.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(fix.notifier.sent))
	}
	if len(fix.notifier.sentDebug) != 0 {
		t.Fatalf("no debug alert expected, got %v", fix.notifier.sentDebug)
	}
}

func TestDrainSettlesBacklogInOnePass(t *testing.T) {
	market := &fakeMarket{order: testOrder(time.Now())}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, 12*time.Minute)
	enqueue(t, fix.queue, 2000010002, 11*time.Minute)
	enqueue(t, fix.queue, 2000010003, 10*time.Minute)

	fix.worker.drain(context.Background())

	if n := queueLen(t, fix.queue); n != 0 {
		t.Fatalf("a mature backlog must empty in one pass, len=%d", n)
	}
	records, err := fix.ledger.ListRange(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 ledger records, got %d", len(records))
	}
	if len(fix.notifier.sent) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(fix.notifier.sent))
	}
}

func TestDrainStopsAtImmatureHead(t *testing.T) {
	market := &fakeMarket{order: testOrder(time.Now())}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)
	enqueue(t, fix.queue, 2000010002, time.Minute)

	fix.worker.drain(context.Background())

	if n := queueLen(t, fix.queue); n != 1 {
		t.Fatalf("immature entry must stay queued, len=%d", n)
	}
	if len(fix.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(fix.notifier.sent))
	}
	head, err := fix.queue.Peek(context.Background())
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if head == nil || head.OrderID != 2000010002 {
		t.Fatalf("expected the young entry at the head, got %+v", head)
	}
}

func TestRunCycleSkipsAlreadyProcessedOrder(t *testing.T) {
	market := &fakeMarket{order: testOrder(time.Now())}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	fix.set.Claim(2000010001)
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)

	fix.worker.runCycle(context.Background())

	if n := queueLen(t, fix.queue); n != 0 {
		t.Fatalf("duplicate should still be dequeued, len=%d", n)
	}
	if market.orderCalls != 0 {
		t.Fatalf("duplicate must not reach the marketplace, calls=%d", market.orderCalls)
	}
	if len(fix.notifier.sent) != 0 {
		t.Fatalf("no notification expected, got %d", len(fix.notifier.sent))
	}
}

func TestRunCycleDiscardsPreCutoffOrder(t *testing.T) {
	cutoff := time.Now()
	market := &fakeMarket{order: testOrder(cutoff.Add(-time.Hour))}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, cutoff)
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)

	fix.worker.runCycle(context.Background())

	records, err := fix.ledger.ListRange(context.Background(), cutoff.Add(-24*time.Hour), cutoff.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("pre-cutoff order must not be recorded, got %d records", len(records))
	}
	if len(fix.notifier.sent) != 0 {
		t.Fatal("pre-cutoff order must not be announced")
	}
	if len(fix.notifier.sentDebug) != 0 {
		t.Fatal("silent discard must not raise a debug alert")
	}
}

func TestRunCycleRetriesNotFoundThenSucceeds(t *testing.T) {
	notFound := pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	market := &fakeMarket{
		order:     testOrder(time.Now()),
		orderErrs: []error{notFound, notFound, nil},
	}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)

	fix.worker.runCycle(context.Background())

	if market.orderCalls != 3 {
		t.Fatalf("expected 3 fetch attempts, got %d", market.orderCalls)
	}
	if len(fix.notifier.sent) != 1 {
		t.Fatalf("expected a notification after retry success, got %d", len(fix.notifier.sent))
	}
}

func TestRunCycleExhaustsRetriesAndAlerts(t *testing.T) {
	notFound := pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	market := &fakeMarket{
		order:     testOrder(time.Now()),
		orderErrs: []error{notFound, notFound, notFound},
	}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)

	fix.worker.runCycle(context.Background())

	if market.orderCalls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", market.orderCalls)
	}
	if n := queueLen(t, fix.queue); n != 0 {
		t.Fatalf("failed entry must not return to the queue, len=%d", n)
	}
	if len(fix.notifier.sentDebug) != 1 {
		t.Fatalf("expected 1 debug alert, got %d", len(fix.notifier.sentDebug))
	}
	if len(fix.notifier.sent) != 0 {
		t.Fatal("no sale notification expected on failure")
	}
}

func TestRunCycleAbortsOnNonRetryableFetchError(t *testing.T) {
	market := &fakeMarket{
		order:     testOrder(time.Now()),
		orderErrs: []error{pkgerrors.New(pkgerrors.CodeDependency, "marketplace unavailable")},
	}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)

	fix.worker.runCycle(context.Background())

	if market.orderCalls != 1 {
		t.Fatalf("non-retryable error must stop on first attempt, calls=%d", market.orderCalls)
	}
	if len(fix.notifier.sentDebug) != 1 {
		t.Fatalf("expected 1 debug alert, got %d", len(fix.notifier.sentDebug))
	}
}

func TestRunCycleTokenFailureRaisesDebugAlert(t *testing.T) {
	market := &fakeMarket{order: testOrder(time.Now())}
	fix := newWorkerFixture(t, market, &fakeTokens{err: errors.New("refresh rejected")}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)

	fix.worker.runCycle(context.Background())

	if market.orderCalls != 0 {
		t.Fatalf("no fetch expected without a token, calls=%d", market.orderCalls)
	}
	if len(fix.notifier.sentDebug) != 1 {
		t.Fatalf("expected 1 debug alert, got %d", len(fix.notifier.sentDebug))
	}
}

func TestRunCycleShipmentCostFailureDegradesToZero(t *testing.T) {
	market := &fakeMarket{
		order:       testOrder(time.Now()),
		shipmentErr: pkgerrors.New(pkgerrors.CodeDependency, "costs unavailable"),
	}
	fix := newWorkerFixture(t, market, &fakeTokens{token: "tok"}, time.Now().Add(-time.Hour))
	enqueue(t, fix.queue, 2000010001, 10*time.Minute)

	fix.worker.runCycle(context.Background())

	records, err := fix.ledger.ListRange(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("settlement should still be recorded, got %d records", len(records))
	}
	// 100 - 10 - 0 - 7.15
	if got := records[0].Net.StringFixed(2); got != "82.85" {
		t.Fatalf("expected net 82.85 with zero shipping, got %s", got)
	}
}
