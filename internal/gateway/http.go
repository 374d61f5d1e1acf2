package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/types"
)

const (
	ProviderHTTP              = config.GatewayProviderHTTP
	errorBodyReadLimit  int64 = 1024
	defaultHTTPTimeout        = 10 * time.Second
)

var errBaseURLRequired = errors.New("gateway base url is required")

// HTTPGateway talks to a REST payment gateway that issues UPI/QR payables
// and exposes their status by reference.
type HTTPGateway struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional HTTP gateway behavior.
type Option func(*HTTPGateway)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *HTTPGateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

func NewHTTPGateway(baseURL, apiKey string, timeout time.Duration, opts ...Option) (*HTTPGateway, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	g := &HTTPGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

func (g *HTTPGateway) Name() string { return ProviderHTTP }

type createPayableBody struct {
	OrderID   string `json:"order_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Payee     string `json:"payee"`
	Reference string `json:"reference,omitempty"`
}

type payableResponse struct {
	Reference string `json:"reference"`
	Handle    string `json:"payable"`
}

type statusResponse struct {
	Status   string           `json:"status"`
	Amount   *decimal.Decimal `json:"amount,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// CreatePayable posts the order and returns the issued reference. Amounts
// cross the wire as decimal strings in major units.
func (g *HTTPGateway) CreatePayable(ctx context.Context, req PayableRequest) (*Payable, error) {
	body := createPayableBody{
		OrderID:   req.OrderID.String(),
		Amount:    types.FormatMinorUnits(req.AmountMinor, req.Currency),
		Currency:  req.Currency,
		Payee:     req.PayeeReference,
		Reference: req.IdempotencyKey,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal payable request")
	}

	var out payableResponse
	if err := g.do(ctx, http.MethodPost, g.baseURL+"/payables", payload, req.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no reference")
	}
	return &Payable{ExternalReference: out.Reference, Handle: out.Handle}, nil
}

// LookupStatus reads the payable state. The reported amount stays a decimal
// because the gateway may omit its currency.
func (g *HTTPGateway) LookupStatus(ctx context.Context, externalReference string) (*StatusResult, error) {
	ref := strings.TrimSpace(externalReference)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external reference is required")
	}
	var out statusResponse
	if err := g.do(ctx, http.MethodGet, g.baseURL+"/payables/"+url.PathEscape(ref), nil, "", &out); err != nil {
		return nil, err
	}

	res := &StatusResult{Reason: out.Reason}
	switch strings.ToLower(strings.TrimSpace(out.Status)) {
	case "paid", "success", "completed":
		res.Status = StatusPaid
	case "failed", "declined", "cancelled", "canceled":
		res.Status = StatusFailed
	default:
		res.Status = StatusPending
	}
	res.Amount = out.Amount
	res.Currency = types.NormalizeCurrency(out.Currency, "")
	return res, nil
}

func (g *HTTPGateway) do(ctx context.Context, method, endpoint string, body []byte, idempotencyKey string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute gateway request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.New(codeForStatus(resp.StatusCode),
			fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gateway response")
	}
	return nil
}

func codeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case status == http.StatusConflict:
		return pkgerrors.CodeConflict
	case status == http.StatusTooManyRequests, status >= 500:
		return pkgerrors.CodeDependency
	default:
		return pkgerrors.CodeValidation
	}
}
