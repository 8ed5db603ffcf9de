package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/meli-sales-relay/internal/meli"
	"github.com/angelmondragon/meli-sales-relay/internal/processed"
	"github.com/angelmondragon/meli-sales-relay/internal/queue"
	"github.com/angelmondragon/meli-sales-relay/pkg/logger"
)

// TopicPayments is the only webhook topic that feeds the settlement queue.
const TopicPayments = "payments"

// Notification is the decoded webhook payload.
type Notification struct {
	Topic    string `json:"topic"`
	Resource string `json:"resource"`
	UserID   int64  `json:"user_id"`
}

// PaymentFetcher resolves a webhook resource path to its payment detail.
type PaymentFetcher interface {
	GetPayment(ctx context.Context, accessToken, resource string) (*meli.Payment, error)
}

// Tokens resolves bearer tokens for managed sellers.
type Tokens interface {
	Managed(sellerID int64) bool
	AccessToken(ctx context.Context, sellerID int64) (string, error)
}

// ServiceParams configure the triage service.
type ServiceParams struct {
	Logger    *logger.Logger
	Tokens    Tokens
	Payments  PaymentFetcher
	Processed *processed.Set
	Queue     queue.Store
}

// Service filters inbound webhook notifications down to approved, not yet
// settled orders and enqueues them. Every outcome is an ack to the upstream;
// dropped notifications only leave a log line.
type Service struct {
	logg      *logger.Logger
	tokens    Tokens
	payments  PaymentFetcher
	processed *processed.Set
	queue     queue.Store
	now       func() time.Time
}

// NewService builds a triage service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Tokens == nil {
		return nil, errors.New("token source is required")
	}
	if params.Payments == nil {
		return nil, errors.New("payment fetcher is required")
	}
	if params.Processed == nil {
		return nil, errors.New("processed set is required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue store is required")
	}
	return &Service{
		logg:      params.Logger,
		tokens:    params.Tokens,
		payments:  params.Payments,
		processed: params.Processed,
		queue:     params.Queue,
		now:       time.Now,
	}, nil
}

// Process triages one notification. The returned error is for logging only;
// callers acknowledge the webhook regardless.
func (s *Service) Process(ctx context.Context, notification Notification) error {
	if notification.Topic != TopicPayments {
		s.logg.Debug(ctx, fmt.Sprintf("ignoring webhook topic %q", notification.Topic))
		return nil
	}

	ctx = s.logg.WithSellerID(ctx, notification.UserID)
	if !s.tokens.Managed(notification.UserID) {
		s.logg.Info(ctx, "payment notification for unmanaged seller, dropping")
		return nil
	}

	accessToken, err := s.tokens.AccessToken(ctx, notification.UserID)
	if err != nil {
		return fmt.Errorf("resolve access token: %w", err)
	}

	payment, err := s.payments.GetPayment(ctx, accessToken, notification.Resource)
	if err != nil {
		return fmt.Errorf("fetch payment %q: %w", notification.Resource, err)
	}

	if payment.Status != meli.PaymentStatusApproved {
		s.logg.Info(ctx, fmt.Sprintf("payment status %q is not approved, dropping", payment.Status))
		return nil
	}
	if payment.OrderID == 0 {
		s.logg.Info(ctx, "approved payment carries no order reference, dropping")
		return nil
	}

	ctx = s.logg.WithOrderID(ctx, payment.OrderID)
	if !s.processed.Accept(payment.OrderID) {
		s.logg.Info(ctx, "order already accepted for settlement, dropping notification")
		return nil
	}

	entry := queue.Entry{
		SellerID:   notification.UserID,
		OrderID:    payment.OrderID,
		EnqueuedAt: s.now().UTC(),
	}
	if err := s.queue.Enqueue(ctx, entry); err != nil {
		return fmt.Errorf("enqueue order: %w", err)
	}
	s.logg.Info(ctx, "approved payment enqueued for settlement")
	return nil
}
