package gateway

import (
	"context"
	"errors"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/square"
)

const ProviderSquare = config.GatewayProviderSquare

type squarePayments interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
}

// SquareGateway settles orders as Square payments. The payer source token
// comes from the Square Web Payments SDK on the client.
type SquareGateway struct {
	client squarePayments
}

func NewSquareGateway(client squarePayments) (*SquareGateway, error) {
	if client == nil {
		return nil, errors.New("square client required")
	}
	return &SquareGateway{client: client}, nil
}

func (g *SquareGateway) Name() string { return ProviderSquare }

func (g *SquareGateway) CreatePayable(ctx context.Context, req PayableRequest) (*Payable, error) {
	if strings.TrimSpace(req.SourceToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source_token is required for square payments")
	}
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountMinor:    req.AmountMinor,
		Currency:       req.Currency,
		SourceID:       req.SourceToken,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.OrderID.String(),
		Note:           "payee " + req.PayeeReference,
		Autocomplete:   true,
	})
	if err != nil {
		return nil, err
	}
	id := ""
	if payment != nil && payment.GetID() != nil {
		id = *payment.GetID()
	}
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "square returned no payment id")
	}
	handle := id
	if receipt := payment.GetReceiptURL(); receipt != nil && *receipt != "" {
		handle = *receipt
	}
	return &Payable{ExternalReference: id, Handle: handle}, nil
}

func (g *SquareGateway) LookupStatus(ctx context.Context, externalReference string) (*StatusResult, error) {
	payment, err := g.client.GetPayment(ctx, externalReference)
	if err != nil {
		return nil, err
	}
	return StatusFromSquare(payment), nil
}

// StatusFromSquare maps a Square payment onto a gateway observation. It is
// shared with the payment.updated webhook.
func StatusFromSquare(payment *sq.Payment) *StatusResult {
	raw := square.PaymentStatus(payment)
	res := &StatusResult{}
	switch square.StateForStatus(raw) {
	case square.PaymentStatePaid:
		res.Status = StatusPaid
	case square.PaymentStateFailed:
		res.Status = StatusFailed
		res.Reason = strings.ToLower(raw)
	default:
		res.Status = StatusPending
	}
	if amount, ok := square.PaymentAmount(payment); ok {
		res.AmountMinor = &amount
	}
	res.Currency = square.PaymentCurrency(payment)
	return res
}
