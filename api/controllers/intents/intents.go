package intents

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
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/types"
)

type IntentCreator interface {
	CreateIntent(ctx context.Context, input internalintents.ResolveInput) (*internalintents.Resolution, error)
}

type IntentResumer interface {
	Resume(ctx context.Context, input internalintents.ResumeInput) (*internalintents.ResumeResult, error)
}

type IntentDispatcher interface {
	Dispatch(ctx context.Context, input dispatch.Input) (*dispatch.Result, error)
}

type createIntentRequest struct {
	ProfileID string  `json:"profile_id" validate:"required,uuid"`
	BlockID   *string `json:"block_id,omitempty" validate:"omitempty,uuid"`
	ProductID *string `json:"product_id,omitempty" validate:"omitempty,uuid"`
	CTAKind   string  `json:"cta_kind,omitempty" validate:"omitempty,cta_kind"`
}

type createIntentResponse struct {
	IntentID      uuid.UUID       `json:"intent_id"`
	RequiresLogin bool            `json:"requires_login"`
	FlowType      enums.CTAKind   `json:"flow_type"`
	Next          string          `json:"next"`
	ExpiresAt     time.Time       `json:"expires_at"`
	Effect        *effectResponse `json:"effect,omitempty"`
}

type resumeRequest struct {
	IntentID *string `json:"intent_id,omitempty" validate:"omitempty,uuid"`
}

type resumeResponse struct {
	IntentID    *uuid.UUID           `json:"intent_id,omitempty"`
	Instruction *instructionResponse `json:"instruction,omitempty"`
}

type instructionResponse struct {
	IntentID  uuid.UUID     `json:"intent_id"`
	FlowType  enums.CTAKind `json:"flow_type"`
	ProfileID uuid.UUID     `json:"profile_id"`
	BlockID   *uuid.UUID    `json:"block_id,omitempty"`
	ProductID *uuid.UUID    `json:"product_id,omitempty"`
	Amount    string        `json:"amount,omitempty"`
	Currency  string        `json:"currency,omitempty"`
	TargetURL *string       `json:"target_url,omitempty"`
}

type contactRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Message string `json:"message" validate:"required,max=4000"`
}

type dispatchRequest struct {
	Contact     *contactRequest `json:"contact,omitempty"`
	SourceToken string          `json:"source_token,omitempty" validate:"omitempty,max=512"`
}

type dispatchResponse struct {
	Effect *effectResponse `json:"effect,omitempty"`
}

type effectResponse struct {
	FlowType     enums.CTAKind      `json:"flow_type"`
	IntentStatus enums.IntentStatus `json:"intent_status"`
	TargetURL    *string            `json:"target_url,omitempty"`
	LeadID       *uuid.UUID         `json:"lead_id,omitempty"`
	Order        *orderSummary      `json:"order,omitempty"`
}

type orderSummary struct {
	OrderID           uuid.UUID         `json:"order_id"`
	Status            enums.OrderStatus `json:"status"`
	ExternalReference *string           `json:"external_reference,omitempty"`
	PayableHandle     *string           `json:"payable_handle,omitempty"`
	Amount            string            `json:"amount"`
	Currency          string            `json:"currency"`
}

// Create records a visitor action. Redirects need no follow-up, so they are
// dispatched in the same request and the response carries the target.
func Create(creator IntentCreator, dispatcher IntentDispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if creator == nil || dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent service unavailable"))
			return
		}

		var req createIntentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalintents.ResolveInput{
			ProfileID:     uuid.MustParse(req.ProfileID),
			BlockID:       parseOptionalUUID(req.BlockID),
			ProductID:     parseOptionalUUID(req.ProductID),
			RequestedKind: enums.CTAKind(req.CTAKind),
			Actor:         middleware.ActorFromContext(r.Context()),
			DeviceID:      middleware.DeviceIDFromContext(r.Context()),
		}
		res, err := creator.CreateIntent(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := createIntentResponse{
			IntentID:      res.Intent.ID,
			RequiresLogin: res.RequiresLogin,
			FlowType:      res.Intent.CTAKind,
			Next:          res.Next,
			ExpiresAt:     res.Intent.ExpiresAt,
		}
		if res.Intent.CTAKind == enums.CTAKindRedirect {
			dispatched, err := dispatcher.Dispatch(r.Context(), dispatch.Input{
				IntentID: res.Intent.ID,
				Actor:    input.Actor,
				DeviceID: input.DeviceID,
			})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			resp.Effect = toEffect(dispatched.Effect)
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}

// Resume continues the intent held for this device, or the one named in the
// body, after the visitor logged in.
func Resume(resumer IntentResumer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resumer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intent service unavailable"))
			return
		}

		var req resumeRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		res, err := resumer.Resume(r.Context(), internalintents.ResumeInput{
			Token:    parseOptionalUUID(req.IntentID),
			DeviceID: middleware.DeviceIDFromContext(r.Context()),
			Actor:    middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := resumeResponse{}
		if res.IntentID != uuid.Nil {
			id := res.IntentID
			resp.IntentID = &id
		}
		if inst := res.Instruction; inst != nil {
			resp.Instruction = &instructionResponse{
				IntentID:  inst.IntentID,
				FlowType:  inst.CTAKind,
				ProfileID: inst.ProfileID,
				BlockID:   inst.BlockID,
				ProductID: inst.ProductID,
				Currency:  inst.Currency,
				TargetURL: inst.TargetURL,
			}
			if inst.CTAKind == enums.CTAKindBuy {
				resp.Instruction.Amount = types.FormatMinorUnits(inst.AmountMinor, inst.Currency)
			}
		}
		responses.WriteOutcome(w, string(res.Outcome), resp)
	}
}

// Dispatch runs the flow of an intent exactly once.
func Dispatch(dispatcher IntentDispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatcher unavailable"))
			return
		}

		intentID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "intentId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid intent id"))
			return
		}

		var req dispatchRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		input := dispatch.Input{
			IntentID:    intentID,
			Actor:       middleware.ActorFromContext(r.Context()),
			DeviceID:    middleware.DeviceIDFromContext(r.Context()),
			SourceToken: strings.TrimSpace(req.SourceToken),
		}
		if c := req.Contact; c != nil {
			input.Contact = &dispatch.Contact{
				Name:    validators.SanitizeString(c.Name, 120),
				Email:   validators.SanitizeString(c.Email, 254),
				Phone:   validators.SanitizeString(c.Phone, 32),
				Message: validators.SanitizeString(c.Message, 4000),
			}
		}

		res, err := dispatcher.Dispatch(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteOutcome(w, string(res.Outcome), dispatchResponse{Effect: toEffect(res.Effect)})
	}
}

func toEffect(effect *dispatch.Effect) *effectResponse {
	if effect == nil {
		return nil
	}
	out := &effectResponse{
		FlowType:     effect.Kind,
		IntentStatus: effect.IntentStatus,
		TargetURL:    effect.TargetURL,
		LeadID:       effect.LeadID,
	}
	if o := effect.Order; o != nil {
		out.Order = &orderSummary{
			OrderID:           o.ID,
			Status:            o.Status,
			ExternalReference: o.ExternalReference,
			PayableHandle:     o.PayableHandle,
			Amount:            types.FormatMinorUnits(o.AmountMinor, o.Currency),
			Currency:          o.Currency,
		}
	}
	return out
}

func parseOptionalUUID(raw *string) *uuid.UUID {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*raw))
	if err != nil {
		return nil
	}
	return &id
}
