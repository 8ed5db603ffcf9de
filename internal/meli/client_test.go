package meli

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/angelmondragon/meli-sales-relay/pkg/config"
	pkgerrors "github.com/angelmondragon/meli-sales-relay/pkg/errors"
	"github.com/shopspring/decimal"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(
		config.MarketplaceConfig{AppID: "app-id", AppSecret: "app-secret"},
		WithBaseURL("http://meli.test"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestRefreshTokenSendsGrantForm(t *testing.T) {
	var capturedURL, capturedBody string

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		capturedBody = string(bodyBytes)
		return jsonResponse(http.StatusOK, `{"access_token":"APP_USR-1","refresh_token":"TG-2","expires_in":21600}`), nil
	})

	grant, err := client.RefreshToken(context.Background(), "TG-1")
	if err != nil {
		t.Fatalf("refresh token: %v", err)
	}
	if capturedURL != "http://meli.test/oauth/token" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	for _, want := range []string{"grant_type=refresh_token", "client_id=app-id", "refresh_token=TG-1"} {
		if !strings.Contains(capturedBody, want) {
			t.Fatalf("form body missing %q: %s", want, capturedBody)
		}
	}
	if grant.AccessToken != "APP_USR-1" || grant.RefreshToken != "TG-2" || grant.ExpiresIn != 21600 {
		t.Fatalf("unexpected grant %+v", grant)
	}
}

func TestGetPaymentUsesResourcePathAndBearer(t *testing.T) {
	var capturedURL, capturedAuth string

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedAuth = req.Header.Get("Authorization")
		return jsonResponse(http.StatusOK, `{"id":555,"status":"approved","order_id":1001}`), nil
	})

	payment, err := client.GetPayment(context.Background(), "tok-1", "/collections/555")
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if capturedURL != "http://meli.test/collections/555" {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedAuth != "Bearer tok-1" {
		t.Fatalf("unexpected auth header %q", capturedAuth)
	}
	if payment.Status != PaymentStatusApproved || payment.OrderID != 1001 {
		t.Fatalf("unexpected payment %+v", payment)
	}
}

func TestGetOrderDecodesDetail(t *testing.T) {
	body := `{
		"id": 1001,
		"date_created": "2026-08-30T14:05:00.000-03:00",
		"total_amount": 100.00,
		"order_items": [{"item":{"id":"MLB123","title":"Molinete"},"quantity":1,"sale_fee":10.00}],
		"payments": [{"fee_details":[{"type":"meli_fee","amount":10.00}]}],
		"buyer": {"first_name":"Ana","last_name":"Silva","nickname":"ANA_S"},
		"shipping": {"id":777,"logistic_type":"fulfillment"}
	}`

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/orders/1001" {
			t.Fatalf("unexpected path %q", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, body), nil
	})

	order, err := client.GetOrder(context.Background(), "tok-1", 1001)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.ID != 1001 || order.Shipping.ID != 777 {
		t.Fatalf("unexpected order %+v", order)
	}
	if order.DateCreated.IsZero() {
		t.Fatalf("expected parsed creation date")
	}
	if !order.TotalAmount.Equal(decimalFromString(t, "100")) {
		t.Fatalf("unexpected total %s", order.TotalAmount)
	}
	if len(order.OrderItems) != 1 || order.OrderItems[0].Item.ID != "MLB123" {
		t.Fatalf("unexpected items %+v", order.OrderItems)
	}
	if len(order.Payments) != 1 || order.Payments[0].FeeDetails[0].Type != "meli_fee" {
		t.Fatalf("unexpected payments %+v", order.Payments)
	}
}

func TestGetOrderMapsNotFound(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"message":"order not found"}`), nil
	})

	_, err := client.GetOrder(context.Background(), "tok-1", 1001)
	if !pkgerrors.IsNotFound(err) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetOrderMapsServerErrorToDependency(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `upstream sad`), nil
	})

	_, err := client.GetOrder(context.Background(), "tok-1", 1001)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}
}

func TestGetShipmentCostsDecodesSenders(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/shipments/777/costs" {
			t.Fatalf("unexpected path %q", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"senders":[{"user_id":323091477,"cost":5.00},{"user_id":42,"cost":3.00}]}`), nil
	})

	costs, err := client.GetShipmentCosts(context.Background(), "tok-1", 777)
	if err != nil {
		t.Fatalf("get shipment costs: %v", err)
	}
	if len(costs.Senders) != 2 || costs.Senders[0].UserID != 323091477 {
		t.Fatalf("unexpected senders %+v", costs.Senders)
	}
}
