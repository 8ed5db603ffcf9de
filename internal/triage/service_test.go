package triage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/meli-sales-relay/internal/meli"
	"github.com/angelmondragon/meli-sales-relay/internal/processed"
	"github.com/angelmondragon/meli-sales-relay/internal/queue"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

type fakeTokens struct {
	managed map[int64]bool
	token   string
	err     error
}

func (f *fakeTokens) Managed(sellerID int64) bool {
	return f.managed[sellerID]
}

func (f *fakeTokens) AccessToken(ctx context.Context, sellerID int64) (string, error) {
	return f.token, f.err
}

type fakePayments struct {
	calls   int
	payment *meli.Payment
	err     error
}

func (f *fakePayments) GetPayment(ctx context.Context, accessToken, resource string) (*meli.Payment, error) {
	f.calls++
	return f.payment, f.err
}

type memQueue struct {
	entries []queue.Entry
}

func (m *memQueue) Enqueue(ctx context.Context, entry queue.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memQueue) Peek(ctx context.Context) (*queue.Entry, error)    { return nil, nil }
func (m *memQueue) Dequeue(ctx context.Context) (*queue.Entry, error) { return nil, nil }
func (m *memQueue) Len(ctx context.Context) (int, error)              { return len(m.entries), nil }

func newService(t *testing.T, tokens *fakeTokens, payments *fakePayments, set *processed.Set, q queue.Store) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:    logger.New(logger.Options{ServiceName: "triage-test", Output: io.Discard}),
		Tokens:    tokens,
		Payments:  payments,
		Processed: set,
		Queue:     q,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func paymentsNotification() Notification {
	return Notification{Topic: TopicPayments, Resource: "/collections/8001", UserID: 5001}
}

func TestProcessEnqueuesApprovedPayment(t *testing.T) {
	tokens := &fakeTokens{managed: map[int64]bool{5001: true}, token: "tok"}
	payments := &fakePayments{payment: &meli.Payment{ID: 8001, Status: meli.PaymentStatusApproved, OrderID: 2000010001}}
	q := &memQueue{}
	svc := newService(t, tokens, payments, processed.NewSet(), q)

	if err := svc.Process(context.Background(), paymentsNotification()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(q.entries) != 1 {
		t.Fatalf("expected 1 enqueued entry, got %d", len(q.entries))
	}
	entry := q.entries[0]
	if entry.SellerID != 5001 || entry.OrderID != 2000010001 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.EnqueuedAt.IsZero() {
		t.Fatal("entry should carry the enqueue timestamp")
	}
}

func TestProcessIgnoresOtherTopics(t *testing.T) {
	payments := &fakePayments{}
	q := &memQueue{}
	svc := newService(t, &fakeTokens{}, payments, processed.NewSet(), q)

	err := svc.Process(context.Background(), Notification{Topic: "orders_v2", Resource: "/orders/1", UserID: 5001})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if payments.calls != 0 {
		t.Fatalf("non-payment topic must not fetch, calls=%d", payments.calls)
	}
	if len(q.entries) != 0 {
		t.Fatalf("nothing should be enqueued, got %d", len(q.entries))
	}
}

func TestProcessDropsUnmanagedSeller(t *testing.T) {
	payments := &fakePayments{}
	q := &memQueue{}
	svc := newService(t, &fakeTokens{managed: map[int64]bool{}}, payments, processed.NewSet(), q)

	if err := svc.Process(context.Background(), paymentsNotification()); err != nil {
		t.Fatalf("unmanaged seller must be dropped silently: %v", err)
	}
	if payments.calls != 0 {
		t.Fatalf("unmanaged seller must not fetch, calls=%d", payments.calls)
	}
}

func TestProcessDropsNonApprovedPayment(t *testing.T) {
	tokens := &fakeTokens{managed: map[int64]bool{5001: true}, token: "tok"}
	payments := &fakePayments{payment: &meli.Payment{ID: 8001, Status: "pending", OrderID: 2000010001}}
	q := &memQueue{}
	svc := newService(t, tokens, payments, processed.NewSet(), q)

	if err := svc.Process(context.Background(), paymentsNotification()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(q.entries) != 0 {
		t.Fatalf("non-approved payment must not be enqueued, got %d", len(q.entries))
	}
}

func TestProcessDropsPaymentWithoutOrder(t *testing.T) {
	tokens := &fakeTokens{managed: map[int64]bool{5001: true}, token: "tok"}
	payments := &fakePayments{payment: &meli.Payment{ID: 8001, Status: meli.PaymentStatusApproved}}
	q := &memQueue{}
	svc := newService(t, tokens, payments, processed.NewSet(), q)

	if err := svc.Process(context.Background(), paymentsNotification()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(q.entries) != 0 {
		t.Fatalf("payment without order must not be enqueued, got %d", len(q.entries))
	}
}

func TestProcessDropsAlreadySettledOrder(t *testing.T) {
	tokens := &fakeTokens{managed: map[int64]bool{5001: true}, token: "tok"}
	payments := &fakePayments{payment: &meli.Payment{ID: 8001, Status: meli.PaymentStatusApproved, OrderID: 2000010001}}
	set := processed.NewSet()
	set.Claim(2000010001)
	q := &memQueue{}
	svc := newService(t, tokens, payments, set, q)

	if err := svc.Process(context.Background(), paymentsNotification()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(q.entries) != 0 {
		t.Fatalf("settled order must not be re-enqueued, got %d", len(q.entries))
	}
}

func TestProcessDropsDuplicateDeliveryBeforeSettlement(t *testing.T) {
	tokens := &fakeTokens{managed: map[int64]bool{5001: true}, token: "tok"}
	payments := &fakePayments{payment: &meli.Payment{ID: 8001, Status: meli.PaymentStatusApproved, OrderID: 2000010001}}
	q := &memQueue{}
	svc := newService(t, tokens, payments, processed.NewSet(), q)

	// The marketplace redelivers the same notification while the first entry
	// is still maturing in the queue. The second delivery must be an ack with
	// no new queue entry.
	if err := svc.Process(context.Background(), paymentsNotification()); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.Process(context.Background(), paymentsNotification()); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if len(q.entries) != 1 {
		t.Fatalf("expected 1 enqueued entry after duplicate delivery, got %d", len(q.entries))
	}
}

func TestProcessReturnsFetchErrorForLogging(t *testing.T) {
	tokens := &fakeTokens{managed: map[int64]bool{5001: true}, token: "tok"}
	payments := &fakePayments{err: errors.New("upstream unavailable")}
	q := &memQueue{}
	svc := newService(t, tokens, payments, processed.NewSet(), q)

	if err := svc.Process(context.Background(), paymentsNotification()); err == nil {
		t.Fatal("expected error for observability")
	}
	if len(q.entries) != 0 {
		t.Fatalf("failed triage must not enqueue, got %d", len(q.entries))
	}
}
