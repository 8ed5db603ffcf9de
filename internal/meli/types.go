package meli

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenGrant is the marketplace response to a refresh-token exchange.
type TokenGrant struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Payment is the subset of the payment resource the triage path inspects.
type Payment struct {
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	OrderID int64  `json:"order_id"`
}

// PaymentStatusApproved is the only payment status that triggers settlement.
const PaymentStatusApproved = "approved"

// Order is the order-detail payload used by settlement.
type Order struct {
	ID          int64           `json:"id"`
	DateCreated time.Time       `json:"date_created"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderItems  []OrderItem     `json:"order_items"`
	Payments    []OrderPayment  `json:"payments"`
	Buyer       Buyer           `json:"buyer"`
	Shipping    Shipping        `json:"shipping"`
}

type OrderItem struct {
	Item     ItemInfo        `json:"item"`
	Quantity int             `json:"quantity"`
	SaleFee  decimal.Decimal `json:"sale_fee"`
}

type ItemInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// OrderPayment carries the itemized fee components attached to a payment.
type OrderPayment struct {
	FeeDetails []FeeDetail `json:"fee_details"`
}

type FeeDetail struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type Buyer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Nickname  string `json:"nickname"`
}

type Shipping struct {
	ID           int64  `json:"id"`
	LogisticType string `json:"logistic_type"`
}

// ShipmentCosts is the cost breakdown for one shipment.
type ShipmentCosts struct {
	Senders []ShipmentSender `json:"senders"`
}

// ShipmentSender is one party charged for part of the shipment.
type ShipmentSender struct {
	UserID int64           `json:"user_id"`
	Cost   decimal.Decimal `json:"cost"`
}
