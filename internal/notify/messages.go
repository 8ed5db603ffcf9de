package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/angelmondragon/meli-sales-relay/internal/meli"
	pkgerrors "github.com/angelmondragon/meli-sales-relay/pkg/errors"
	"github.com/shopspring/decimal"
)

const saleDateLayout = "02/01/2006 às 15:04"

var monthNames = map[time.Month]string{
	time.January:   "Janeiro",
	time.February:  "Fevereiro",
	time.March:     "Março",
	time.April:     "Abril",
	time.May:       "Maio",
	time.June:      "Junho",
	time.July:      "Julho",
	time.August:    "Agosto",
	time.September: "Setembro",
	time.October:   "Outubro",
	time.November:  "Novembro",
	time.December:  "Dezembro",
}

// SettlementLines carry the computed amounts rendered in a sale message.
type SettlementLines struct {
	Gross        decimal.Decimal
	FeeTotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Net          decimal.Decimal
}

// SaleMessageInput is everything a sale announcement needs. Order must not
// be nil.
type SaleMessageInput struct {
	SellerNickname string
	SellerEmoji    string
	Order          *meli.Order
	OrderID        int64
	Settlement     SettlementLines
}

// ReportTotals is an aggregate over a ledger window.
type ReportTotals struct {
	Units   int
	Gross   decimal.Decimal
	Net     decimal.Decimal
	Cost    decimal.Decimal
	CostPct decimal.Decimal
}

// SaleMessage renders the approved-sale announcement in Telegram HTML. The
// shipping line is omitted when the seller pays nothing for the shipment.
func SaleMessage(input SaleMessageInput) string {
	order := input.Order

	title, mlbID := "N/A", "N/A"
	if len(order.OrderItems) > 0 {
		item := order.OrderItems[0].Item
		if item.Title != "" {
			title = item.Title
		}
		if item.ID != "" {
			mlbID = item.ID
		}
	}

	shippingMode := "Mercado Envios (Empresa)"
	if order.Shipping.LogisticType == "fulfillment" {
		shippingMode = "Mercado Envios (FULL)"
	}

	var b strings.Builder
	b.WriteString("💰 <b>NOVA VENDA APROVADA</b> 💰\n\n")
	fmt.Fprintf(&b, "🏪 <b>Vendedor:</b> %s <b>%s</b>\n", input.SellerEmoji, html.EscapeString(input.SellerNickname))
	fmt.Fprintf(&b, "🗓️ <b>Data:</b> %s\n\n", order.DateCreated.Format(saleDateLayout))
	fmt.Fprintf(&b, "👤 <b>Comprador:</b> %s\n", html.EscapeString(buyerName(order.Buyer)))
	fmt.Fprintf(&b, "📦 <b>Produto:</b> %s\n", html.EscapeString(title))
	fmt.Fprintf(&b, "🆔 <b>MLB:</b> %s\n", html.EscapeString(mlbID))
	fmt.Fprintf(&b, "🧾 <b>ID Venda:</b> %d\n", input.OrderID)
	fmt.Fprintf(&b, "🚚 <b>Envio:</b> %s\n\n", shippingMode)
	fmt.Fprintf(&b, "💵 <b>Valor Total:</b> R$ %s\n", input.Settlement.Gross.StringFixed(2))
	fmt.Fprintf(&b, "💸 <b>Tarifa Total ML:</b> -R$ %s\n", input.Settlement.FeeTotal.StringFixed(2))
	if input.Settlement.ShippingCost.IsPositive() {
		fmt.Fprintf(&b, "🚛 <b>Custo de Envio:</b> -R$ %s\n", input.Settlement.ShippingCost.StringFixed(2))
	}
	fmt.Fprintf(&b, "📉 <b>Imposto (7,15%%):</b> -R$ %s\n", input.Settlement.Tax.StringFixed(2))
	fmt.Fprintf(&b, "✅ <b>Valor Líquido Final:</b> R$ %s", input.Settlement.Net.StringFixed(2))
	return b.String()
}

// DailyReportMessage renders the daily aggregate for the given reference day.
func DailyReportMessage(day time.Time, totals ReportTotals) string {
	var b strings.Builder
	b.WriteString("📊 <b>RELATÓRIO DIÁRIO DE VENDAS</b> 📊\n")
	fmt.Fprintf(&b, "<em>Data: %s</em>\n\n", day.Format("02/01/2006"))
	fmt.Fprintf(&b, "📦 <b>Unidades Vendidas:</b> %d\n\n", totals.Units)
	fmt.Fprintf(&b, "💵 <b>Faturamento Bruto:</b> R$ %s\n", totals.Gross.StringFixed(2))
	fmt.Fprintf(&b, "✅ <b>Faturamento Líquido:</b> R$ %s\n\n", totals.Net.StringFixed(2))
	fmt.Fprintf(&b, "📉 <b>Total de Custos (Tarifa+Imp):</b> R$ %s\n", totals.Cost.StringFixed(2))
	fmt.Fprintf(&b, "💡 <b>Percentual de Custo:</b> %s%%", totals.CostPct.StringFixed(2))
	return b.String()
}

// MonthlyReportMessage renders the consolidated month aggregate.
func MonthlyReportMessage(reference time.Time, totals ReportTotals) string {
	var b strings.Builder
	b.WriteString("🏆 <b>RELATÓRIO MENSAL CONSOLIDADO</b> 🏆\n")
	fmt.Fprintf(&b, "<em>Mês de Referência: %s de %d</em>\n\n", monthNames[reference.Month()], reference.Year())
	fmt.Fprintf(&b, "📦 <b>Total de Unidades Vendidas:</b> %d\n\n", totals.Units)
	fmt.Fprintf(&b, "💵 <b>Faturamento Bruto Total:</b> R$ %s\n", totals.Gross.StringFixed(2))
	fmt.Fprintf(&b, "✅ <b>Faturamento Líquido Total:</b> R$ %s\n\n", totals.Net.StringFixed(2))
	fmt.Fprintf(&b, "📉 <b>Total de Custos (Tarifa+Imp):</b> R$ %s\n", totals.Cost.StringFixed(2))
	fmt.Fprintf(&b, "💡 <b>Percentual de Custo Total:</b> %s%%", totals.CostPct.StringFixed(2))
	return b.String()
}

// DebugMessage renders the diagnostic alert sent when a dequeued entry fails.
func DebugMessage(sellerID, orderID int64, dump pkgerrors.ErrorDump) string {
	var b strings.Builder
	b.WriteString("🚨 <b>FALHA AO PROCESSAR VENDA</b> 🚨\n\n")
	fmt.Fprintf(&b, "🏪 <b>Vendedor:</b> %d\n", sellerID)
	fmt.Fprintf(&b, "🧾 <b>ID Venda:</b> %d\n\n", orderID)
	fmt.Fprintf(&b, "<pre>%s</pre>", html.EscapeString(dump.String()))
	return b.String()
}

func buyerName(buyer meli.Buyer) string {
	full := strings.TrimSpace(strings.TrimSpace(buyer.FirstName) + " " + strings.TrimSpace(buyer.LastName))
	if full != "" {
		return full
	}
	if buyer.Nickname != "" {
		return buyer.Nickname
	}
	return "N/A"
}
