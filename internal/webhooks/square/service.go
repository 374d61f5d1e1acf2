package squarewebhook

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/internal/gateway"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
)

type orderFinder interface {
	FindByExternalReference(ctx context.Context, provider, reference string) (*models.PaymentOrder, error)
}

type statusApplier interface {
	ApplyGatewayStatus(ctx context.Context, orderID uuid.UUID, result *gateway.StatusResult) (enums.OrderStatus, error)
}

type ServiceParams struct {
	Orders  orderFinder
	Applier statusApplier
	Logger  *logger.Logger
}

// Service applies Square payment notifications to supervised orders. It
// shares the resolution path with polling so whichever observes the final
// state first wins and the other becomes a no-op.
type Service struct {
	orders  orderFinder
	applier statusApplier
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Applier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "status applier required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{orders: params.Orders, applier: params.Applier, logg: params.Logger}, nil
}

type SquareWebhookEvent struct {
	EventID    string            `json:"event_id"`
	MerchantID string            `json:"merchant_id"`
	Type       string            `json:"type"`
	Data       SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *sq.Payment `json:"payment"`
}

// HandleEvent processes payment.created and payment.updated. Other event
// types, and payments that do not belong to a known order, are ignored.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	paymentID := strings.TrimSpace(event.Data.ID)
	if payment.GetID() != nil && *payment.GetID() != "" {
		paymentID = *payment.GetID()
	}
	if paymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	ctx = s.logg.WithField(ctx, "square_payment_id", paymentID)
	order, err := s.orders.FindByExternalReference(ctx, gateway.ProviderSquare, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Debug(ctx, "square payment does not match an order")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	result := gateway.StatusFromSquare(payment)
	if result.Status == gateway.StatusPending {
		return nil
	}
	status, err := s.applier.ApplyGatewayStatus(ctx, order.ID, result)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"observed": string(result.Status),
		"status":   string(status),
	}), "square webhook applied")
	return nil
}
