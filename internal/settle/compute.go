package settle

import (
	"github.com/angelmondragon/meli-sales-relay/internal/meli"
	"github.com/shopspring/decimal"
)

// taxRate is the fixed tax share applied to the gross amount (7.15%).
var taxRate = decimal.RequireFromString("0.0715")

// FeeLine is one labeled deduction in the marketplace fee breakdown.
type FeeLine struct {
	Label  string
	Amount decimal.Decimal
}

// Settlement is the derived net-revenue figure for one order. It is computed,
// never stored; only gross and net reach the ledger.
type Settlement struct {
	Gross        decimal.Decimal
	FeeTotal     decimal.Decimal
	FeeBreakdown []FeeLine
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Net          decimal.Decimal
}

// Compute derives the settlement for an order:
//
//	net = gross − marketplace fees − shipping cost − gross × 7.15%
//
// The fee total prefers the itemized fee components attached to the order's
// payments; only when no payment carries any does it fall back to summing the
// per-item sale fees.
func Compute(order *meli.Order, shippingCost decimal.Decimal) Settlement {
	gross := order.TotalAmount
	feeTotal, breakdown := feeComponents(order)
	tax := gross.Mul(taxRate)
	net := gross.Sub(feeTotal).Sub(shippingCost).Sub(tax)

	return Settlement{
		Gross:        gross,
		FeeTotal:     feeTotal,
		FeeBreakdown: breakdown,
		ShippingCost: shippingCost,
		Tax:          tax,
		Net:          net,
	}
}

func feeComponents(order *meli.Order) (decimal.Decimal, []FeeLine) {
	total := decimal.Zero
	var breakdown []FeeLine

	for _, payment := range order.Payments {
		for _, fee := range payment.FeeDetails {
			amount := fee.Amount.Abs()
			total = total.Add(amount)
			breakdown = append(breakdown, FeeLine{Label: fee.Type, Amount: amount})
		}
	}
	if len(breakdown) > 0 {
		return total, breakdown
	}

	for _, item := range order.OrderItems {
		total = total.Add(item.SaleFee)
	}
	if total.IsZero() {
		return total, nil
	}
	return total, []FeeLine{{Label: "sale_fee", Amount: total}}
}

// ShippingCostForSeller sums the shipment cost entries charged to the seller.
func ShippingCostForSeller(costs *meli.ShipmentCosts, sellerID int64) decimal.Decimal {
	total := decimal.Zero
	if costs == nil {
		return total
	}
	for _, sender := range costs.Senders {
		if sender.UserID == sellerID {
			total = total.Add(sender.Cost)
		}
	}
	return total
}
