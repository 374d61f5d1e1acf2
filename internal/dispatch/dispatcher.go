package dispatch

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/internal/intents"
	"github.com/angelmondragon/creatorpage-backend/internal/orders"
	"github.com/angelmondragon/creatorpage-backend/pkg/auth"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type intentGate interface {
	Claim(ctx context.Context, intentID uuid.UUID, actor auth.Actor, deviceID string) (intents.Outcome, *models.Intent, error)
	CompleteTx(ctx context.Context, tx *gorm.DB, intentID uuid.UUID, orderID *uuid.UUID) (bool, error)
}

type orderOpener interface {
	Open(ctx context.Context, input orders.OpenInput) (*models.PaymentOrder, error)
}

// Contact is what a visitor leaves with an enquiry.
type Contact struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

type Input struct {
	IntentID    uuid.UUID
	Actor       auth.Actor
	DeviceID    string
	Contact     *Contact
	SourceToken string
}

// Effect is the terminal side effect of a dispatched intent.
type Effect struct {
	Kind         enums.CTAKind
	IntentStatus enums.IntentStatus
	TargetURL    *string
	LeadID       *uuid.UUID
	Order        *models.PaymentOrder
}

type Result struct {
	Outcome intents.Outcome
	Effect  *Effect
}

// Dispatcher executes the flow of a claimed intent exactly once.
type Dispatcher struct {
	intents intents.Repository
	gate    intentGate
	leads   LeadRepository
	orders  orderOpener
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
}

func NewDispatcher(intentRepo intents.Repository, gate intentGate, leads LeadRepository, opener orderOpener, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (*Dispatcher, error) {
	if intentRepo == nil {
		return nil, errors.New("intent repository required")
	}
	if gate == nil {
		return nil, errors.New("intent gate required")
	}
	if leads == nil {
		return nil, errors.New("lead repository required")
	}
	if opener == nil {
		return nil, errors.New("order opener required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	return &Dispatcher{
		intents: intentRepo,
		gate:    gate,
		leads:   leads,
		orders:  opener,
		tx:      tx,
		outbox:  outbox,
		logg:    logg,
	}, nil
}

// Dispatch claims the intent when needed and runs its flow.
func (d *Dispatcher) Dispatch(ctx context.Context, input Input) (*Result, error) {
	intent, err := d.intents.FindByID(ctx, input.IntentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Result{Outcome: intents.OutcomeNotFound}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load intent")
	}

	switch intent.Status {
	case enums.IntentStatusExpired:
		return &Result{Outcome: intents.OutcomeExpired}, nil
	case enums.IntentStatusCompleted, enums.IntentStatusAbandoned:
		return d.consumed(ctx, intent.ID, intent.CTAKind), nil
	}

	var contact *Contact
	if intent.CTAKind == enums.CTAKindEnquiry {
		contact, err = normalizeContact(input.Contact)
		if err != nil {
			return nil, err
		}
	}
	actor := effectiveActor(input.Actor, input.Contact)

	switch intent.Status {
	case enums.IntentStatusPending:
		outcome, claimed, err := d.gate.Claim(ctx, intent.ID, actor, input.DeviceID)
		if err != nil {
			return nil, err
		}
		if outcome != intents.OutcomeDispatch {
			return &Result{Outcome: outcome}, nil
		}
		intent = claimed
	case enums.IntentStatusResumed:
		if intent.Actor != actor.String() {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "intent was resumed by another actor").
				WithField("intent_id", intent.ID.String())
		}
	default:
		return d.consumed(ctx, intent.ID, intent.CTAKind), nil
	}

	var effect *Effect
	switch intent.CTAKind {
	case enums.CTAKindRedirect:
		effect, err = d.complete(ctx, intent)
		if effect != nil {
			effect.TargetURL = intent.TargetURL
		}
	case enums.CTAKindEnquiry:
		effect, err = d.recordLead(ctx, intent, contact)
	case enums.CTAKindBuy:
		effect, err = d.buy(ctx, intent, input.SourceToken)
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "intent kind %q cannot be dispatched", intent.CTAKind)
	}
	if err != nil {
		return nil, err
	}
	if effect == nil {
		return d.consumed(ctx, intent.ID, intent.CTAKind), nil
	}
	effect.Kind = intent.CTAKind

	if d.logg != nil {
		logCtx := d.logg.WithFields(d.logg.WithIntentID(ctx, intent.ID.String()), map[string]any{
			"cta_kind":      intent.CTAKind,
			"intent_status": effect.IntentStatus,
		})
		d.logg.Info(logCtx, "intent dispatched")
	}
	return &Result{Outcome: intents.OutcomeDispatch, Effect: effect}, nil
}

// consumed answers a replay on a finished intent. An enquiry replay carries
// the lead that was recorded the first time.
func (d *Dispatcher) consumed(ctx context.Context, intentID uuid.UUID, kind enums.CTAKind) *Result {
	res := &Result{Outcome: intents.OutcomeAlreadyConsumed}
	if kind != enums.CTAKindEnquiry {
		return res
	}
	lead, err := d.leads.FindByIntent(ctx, intentID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) && d.logg != nil {
			d.logg.Warn(d.logg.WithIntentID(ctx, intentID.String()), "load lead for replay failed: "+err.Error())
		}
		return res
	}
	res.Effect = &Effect{Kind: kind, IntentStatus: enums.IntentStatusCompleted, LeadID: &lead.ID}
	return res
}

// complete finishes an intent with no further side effect. A nil effect
// means another caller completed it first.
func (d *Dispatcher) complete(ctx context.Context, intent *models.Intent) (*Effect, error) {
	var ok bool
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		ok, err = d.gate.CompleteTx(ctx, tx, intent.ID, nil)
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete intent")
	}
	if !ok {
		return nil, nil
	}
	return &Effect{IntentStatus: enums.IntentStatusCompleted}, nil
}

var errLeadRace = errors.New("intent completed concurrently")

func (d *Dispatcher) recordLead(ctx context.Context, intent *models.Intent, contact *Contact) (*Effect, error) {
	lead := &models.Lead{
		ID:        uuid.New(),
		IntentID:  intent.ID,
		ProfileID: intent.ProfileID,
		BlockID:   intent.BlockID,
		ProductID: intent.ProductID,
		Actor:     intent.Actor,
		Name:      contact.Name,
		Email:     optional(contact.Email),
		Phone:     optional(contact.Phone),
		Message:   contact.Message,
	}
	err := d.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := d.gate.CompleteTx(ctx, tx, intent.ID, nil)
		if err != nil {
			return err
		}
		if !ok {
			return errLeadRace
		}
		if err := d.leads.WithTx(tx).Create(ctx, lead); err != nil {
			return err
		}
		return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLeadRecorded,
			AggregateType: enums.AggregateLead,
			AggregateID:   lead.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{ID: intent.Actor},
			Data: payloads.LeadRecordedEvent{
				LeadID:    lead.ID,
				IntentID:  intent.ID,
				ProfileID: intent.ProfileID,
				ProductID: intent.ProductID,
				Name:      lead.Name,
				Email:     lead.Email,
				Phone:     lead.Phone,
			},
			OccurredAt: time.Now().UTC(),
		})
	})
	if errors.Is(err, errLeadRace) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record lead")
	}
	return &Effect{IntentStatus: enums.IntentStatusCompleted, LeadID: &lead.ID}, nil
}

func (d *Dispatcher) buy(ctx context.Context, intent *models.Intent, sourceToken string) (*Effect, error) {
	if intent.AmountMinor == 0 {
		return d.complete(ctx, intent)
	}
	payee := ""
	if intent.PayeeReference != nil {
		payee = *intent.PayeeReference
	}
	order, err := d.orders.Open(ctx, orders.OpenInput{
		IntentID:       &intent.ID,
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency,
		PayeeReference: payee,
		PayerActor:     intent.Actor,
		SourceToken:    sourceToken,
	})
	if err != nil {
		return nil, err
	}
	return &Effect{IntentStatus: enums.IntentStatusResumed, Order: order}, nil
}

// effectiveActor turns an anonymous caller who left an email into a guest
// surrogate so the intent is bound to someone.
func effectiveActor(caller auth.Actor, contact *Contact) auth.Actor {
	if !caller.IsAnonymous() || contact == nil || strings.TrimSpace(contact.Email) == "" {
		return caller
	}
	guest, err := auth.GuestActor(contact.Email)
	if err != nil {
		return caller
	}
	return guest
}

func normalizeContact(c *Contact) (*Contact, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact is required for an enquiry")
	}
	out := &Contact{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.ToLower(strings.TrimSpace(c.Email)),
		Phone:   strings.TrimSpace(c.Phone),
		Message: strings.TrimSpace(c.Message),
	}
	if out.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact name is required")
	}
	if out.Email == "" && out.Phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact email or phone is required")
	}
	if out.Email != "" {
		if _, err := mail.ParseAddress(out.Email); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact email is invalid")
		}
	}
	if out.Message == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "enquiry message is required")
	}
	return out, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
