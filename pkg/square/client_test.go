package square

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
)

func TestEnsureIdempotencyKey(t *testing.T) {
	c := &Client{}
	// Provided key should be used verbatim.
	if got := c.ensureIdempotencyKey("pref", "custom-key"); got != "custom-key" {
		t.Fatalf("expected provided key, got %q", got)
	}
	// Empty key should be generated and include prefix.
	if got := c.ensureIdempotencyKey("prefix", ""); !strings.HasPrefix(got, "prefix-") {
		t.Fatalf("generated idempotency key %q missing prefix", got)
	}
}

func TestRedact(t *testing.T) {
	c := &Client{}
	out := c.redact("payment_token", "abc123")
	if out != "[REDACTED]" {
		t.Fatalf("expected redacted value, got %v", out)
	}
	// Non-sensitive keys should be preserved.
	if v := c.redact("status", "ok"); v != "ok" {
		t.Fatalf("unexpected redaction for safe key")
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	tests := []struct {
		status int
		code   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeForbidden},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusTooManyRequests, pkgerrors.CodeRateLimit},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusUnprocessableEntity, pkgerrors.CodeStateConflict},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tt := range tests {
		if got := domainCodeForStatus(tt.status); got != tt.code {
			t.Fatalf("status %d expected %s got %s", tt.status, tt.code, got)
		}
	}
}

func TestMapSquareError(t *testing.T) {
	c := &Client{}
	table := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			status:   http.StatusUnauthorized,
			payload:  `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`,
			wantCode: pkgerrors.CodeUnauthorized,
		},
		{
			name:     "idempotency key reused",
			status:   http.StatusConflict,
			payload:  `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`,
			wantCode: pkgerrors.CodeIdempotency,
		},
	}
	for _, tt := range table {
		err := sqcore.NewAPIError(tt.status, errors.New(tt.payload))
		mapped := c.mapSquareError(err, "operation")
		if mapped == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
		typed := pkgerrors.As(mapped)
		if typed == nil {
			t.Fatalf("%s: result is not pkgerror", tt.name)
		}
		if typed.Code() != tt.wantCode {
			t.Fatalf("%s: expected code %s, got %s", tt.name, tt.wantCode, typed.Code())
		}
	}
}

func TestExtractSquareErrors(t *testing.T) {
	c := &Client{}
	payload := `{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(payload))
	got := c.extractSquareErrors(apiErr)
	if len(got) != 1 {
		t.Fatalf("expected 1 error, got %d", len(got))
	}
	if got[0].GetCode() != sq.ErrorCodeBadRequest {
		t.Fatalf("unexpected error code %s", got[0].GetCode())
	}
}

func TestStateForStatus(t *testing.T) {
	cases := map[string]PaymentState{
		"COMPLETED": PaymentStatePaid,
		"completed": PaymentStatePaid,
		"APPROVED":  PaymentStatePending,
		"PENDING":   PaymentStatePending,
		"CANCELED":  PaymentStateFailed,
		"FAILED":    PaymentStateFailed,
		"":          PaymentStatePending,
	}
	for status, want := range cases {
		if got := StateForStatus(status); got != want {
			t.Fatalf("status %q expected %s got %s", status, want, got)
		}
	}
}

func TestPaymentAmount(t *testing.T) {
	if _, ok := PaymentAmount(nil); ok {
		t.Fatalf("nil payment has no amount")
	}
	amount := int64(50000)
	status := "COMPLETED"
	payment := &sq.Payment{
		Status:      &status,
		AmountMoney: &sq.Money{Amount: &amount},
	}
	got, ok := PaymentAmount(payment)
	if !ok || got != amount {
		t.Fatalf("expected %d got %d (%v)", amount, got, ok)
	}
	if PaymentStatus(payment) != "COMPLETED" {
		t.Fatalf("unexpected status %q", PaymentStatus(payment))
	}
	if got := PaymentCurrency(payment); got != "" {
		t.Fatalf("missing currency should be empty, got %q", got)
	}
	ccy := sq.Currency("inr")
	payment.AmountMoney.Currency = &ccy
	if got := PaymentCurrency(payment); got != "INR" {
		t.Fatalf("expected INR, got %q", got)
	}
}

func TestNewClientCredentials(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	cfg := config.SquareConfig{AccessToken: " token ", WebhookSecret: " whsec ", LocationID: "LOC", Env: "production"}

	c, err := NewClient(context.Background(), cfg, logg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.SigningSecret() != "whsec" || c.Environment() != "production" || c.LocationID() != "LOC" {
		t.Fatalf("unexpected client %q %q %q", c.SigningSecret(), c.Environment(), c.LocationID())
	}

	cfg.WebhookSecret = ""
	if _, err := NewClient(context.Background(), cfg, logg); !errors.Is(err, errWebhookSecretRequired) {
		t.Fatalf("expected missing secret error, got %v", err)
	}
	cfg.WebhookSecret, cfg.Env = "whsec", "staging"
	if _, err := NewClient(context.Background(), cfg, logg); !errors.Is(err, errInvalidSquareEnv) {
		t.Fatalf("expected invalid env error, got %v", err)
	}
	var nilClient *Client
	if nilClient.SigningSecret() != "" {
		t.Fatalf("nil client has no secret")
	}
}

func TestPaymentInputValidation(t *testing.T) {
	c := &Client{}
	_, err := c.CreatePayment(context.Background(), PaymentCreateParams{AmountMinor: 100, Currency: "INR"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing source, got %v", err)
	}
	_, err = c.GetPayment(context.Background(), "  ")
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing id, got %v", err)
	}
}

func TestPaymentCreateParamsRequest(t *testing.T) {
	req := PaymentCreateParams{
		AmountMinor:  1250,
		Currency:     "inr",
		LocationID:   "LOC",
		SourceID:     "cnon:card-nonce-ok",
		ReferenceID:  "order-1",
		Autocomplete: true,
	}.toSquareRequest("idem-1")

	if req.IdempotencyKey != "idem-1" || req.SourceID != "cnon:card-nonce-ok" {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.AmountMoney == nil || *req.AmountMoney.Amount != 1250 || string(*req.AmountMoney.Currency) != "INR" {
		t.Fatalf("unexpected amount money %+v", req.AmountMoney)
	}
	if req.Autocomplete == nil || !*req.Autocomplete {
		t.Fatalf("expected autocomplete flag")
	}
	if req.CustomerID != nil {
		t.Fatalf("empty customer id should be omitted")
	}
}
