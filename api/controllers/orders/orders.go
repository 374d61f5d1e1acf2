package orders

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/api/middleware"
	"github.com/angelmondragon/creatorpage-backend/api/responses"
	"github.com/angelmondragon/creatorpage-backend/api/validators"
	"github.com/angelmondragon/creatorpage-backend/internal/dispatch"
	internalintents "github.com/angelmondragon/creatorpage-backend/internal/intents"
	internalorders "github.com/angelmondragon/creatorpage-backend/internal/orders"
	pkgauth "github.com/angelmondragon/creatorpage-backend/pkg/auth"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/types"
)

// Supervisor opens orders and controls their background confirmation.
type Supervisor interface {
	Open(ctx context.Context, input internalorders.OpenInput) (*models.PaymentOrder, error)
	Retry(ctx context.Context, orderID uuid.UUID, sourceToken string) (*models.PaymentOrder, error)
	Start(ctx context.Context, orderID uuid.UUID) bool
	Cancel(orderID uuid.UUID) bool
}

type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentOrder, error)
}

type IntentDispatcher interface {
	Dispatch(ctx context.Context, input dispatch.Input) (*dispatch.Result, error)
}

const (
	msgAwaiting  = "awaiting payment confirmation"
	msgConfirmed = "payment confirmed"
	msgFailed    = "payment failed"
	msgTimedOut  = "timed out, please retry"
)

type createOrderRequest struct {
	IntentID    *string `json:"intent_id,omitempty" validate:"omitempty,uuid"`
	Amount      string  `json:"amount,omitempty" validate:"required_without=IntentID,max=32"`
	Currency    string  `json:"currency,omitempty" validate:"omitempty,currency"`
	Payee       string  `json:"payee,omitempty" validate:"required_without=IntentID,max=255"`
	SourceToken string  `json:"source_token,omitempty" validate:"omitempty,max=512"`
}

type retryRequest struct {
	SourceToken string `json:"source_token,omitempty" validate:"omitempty,max=512"`
}

type orderResponse struct {
	OrderID           uuid.UUID         `json:"order_id"`
	IntentID          *uuid.UUID        `json:"intent_id,omitempty"`
	Status            enums.OrderStatus `json:"status"`
	Amount            string            `json:"amount"`
	Currency          string            `json:"currency"`
	AmountConfirmed   *string           `json:"amount_confirmed,omitempty"`
	ExternalReference *string           `json:"external_reference,omitempty"`
	PayableHandle     *string           `json:"payable_handle,omitempty"`
	FailureReason     *string           `json:"failure_reason,omitempty"`
	Message           string            `json:"message"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
}

type cancelResponse struct {
	OrderID   uuid.UUID         `json:"order_id"`
	Status    enums.OrderStatus `json:"status"`
	Cancelled bool              `json:"cancelled"`
}

// Create opens a payment order. With an intent id the order takes the
// intent's terms through the dispatcher; otherwise amount and payee come
// from the body.
func Create(sup Supervisor, dispatcher IntentDispatcher, defaultCurrency string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sup == nil || dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.ActorFromContext(r.Context())

		if req.IntentID != nil && strings.TrimSpace(*req.IntentID) != "" {
			order, err := openForIntent(r.Context(), dispatcher, uuid.MustParse(strings.TrimSpace(*req.IntentID)), actor, req.SourceToken)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusCreated, toResponse(order))
			return
		}

		currency := types.NormalizeCurrency(req.Currency, defaultCurrency)
		amount, err := types.ParseMinorUnits(req.Amount, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").
				WithDetails(map[string]string{"amount": err.Error()}))
			return
		}
		if amount == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"))
			return
		}

		order, err := sup.Open(r.Context(), internalorders.OpenInput{
			AmountMinor:    amount,
			Currency:       currency,
			PayeeReference: strings.TrimSpace(req.Payee),
			PayerActor:     actor.String(),
			SourceToken:    strings.TrimSpace(req.SourceToken),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toResponse(order))
	}
}

func openForIntent(ctx context.Context, dispatcher IntentDispatcher, intentID uuid.UUID, actor pkgauth.Actor, sourceToken string) (*models.PaymentOrder, error) {
	res, err := dispatcher.Dispatch(ctx, dispatch.Input{
		IntentID:    intentID,
		Actor:       actor,
		DeviceID:    middleware.DeviceIDFromContext(ctx),
		SourceToken: strings.TrimSpace(sourceToken),
	})
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case internalintents.OutcomeDispatch:
	case internalintents.OutcomeNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "intent not found")
	case internalintents.OutcomeExpired:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "intent expired").
			WithDetails(map[string]string{"outcome": string(res.Outcome)})
	default:
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "intent already consumed")
	}
	if res.Effect == nil || res.Effect.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent does not take a payment")
	}
	return res.Effect.Order, nil
}

// Status reports the order. A pending order that is not being supervised by
// this process is picked up again.
func Status(reader Reader, sup Supervisor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || sup == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := reader.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order.Status == enums.OrderStatusPendingConfirmation {
			sup.Start(r.Context(), order.ID)
		}
		responses.WriteSuccess(w, toResponse(order))
	}
}

// Cancel stops supervising the order. The order itself is left as is and
// will still resolve from a webhook or the sweep.
func Cancel(reader Reader, sup Supervisor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || sup == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := reader.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorize(order, middleware.ActorFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancelResponse{
			OrderID:   order.ID,
			Status:    order.Status,
			Cancelled: sup.Cancel(order.ID),
		})
	}
}

// Retry opens a replacement for an expired or failed order.
func Retry(reader Reader, sup Supervisor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || sup == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req retryRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		order, err := reader.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := authorize(order, middleware.ActorFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fresh, err := sup.Retry(r.Context(), order.ID, strings.TrimSpace(req.SourceToken))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toResponse(fresh))
	}
}

// authorize lets anyone holding the id act on orders placed anonymously or
// by a guest; a user's order is reserved to that user.
func authorize(order *models.PaymentOrder, caller pkgauth.Actor) error {
	payer, err := pkgauth.ParseActor(order.PayerActor)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "order payer unreadable")
	}
	if payer.IsAuthenticated() && !payer.Equal(caller) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	return id, nil
}

// StatusMessage is the user-facing line for an order status. Expiry is
// never reported as a failure.
func StatusMessage(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusPaid:
		return msgConfirmed
	case enums.OrderStatusFailed:
		return msgFailed
	case enums.OrderStatusExpired:
		return msgTimedOut
	default:
		return msgAwaiting
	}
}

func toResponse(order *models.PaymentOrder) orderResponse {
	resp := orderResponse{
		OrderID:           order.ID,
		IntentID:          order.IntentID,
		Status:            order.Status,
		Amount:            types.FormatMinorUnits(order.AmountMinor, order.Currency),
		Currency:          order.Currency,
		ExternalReference: order.ExternalReference,
		PayableHandle:     order.PayableHandle,
		FailureReason:     order.FailureReason,
		Message:           StatusMessage(order.Status),
		ResolvedAt:        order.ResolvedAt,
	}
	if order.AmountConfirmedMinor != nil {
		confirmed := types.FormatMinorUnits(*order.AmountConfirmedMinor, order.Currency)
		resp.AmountConfirmed = &confirmed
	}
	return resp
}
