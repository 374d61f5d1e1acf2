package intents

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/pkg/auth"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/metrics"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox/payloads"
)

// Outcome is the typed result of resuming or claiming an intent.
type Outcome string

const (
	OutcomeDispatch        Outcome = "dispatch"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeExpired         Outcome = "expired"
	OutcomeAlreadyConsumed Outcome = "already_consumed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type tokenSlot interface {
	Peek(ctx context.Context, deviceID string) (uuid.UUID, bool, error)
	Release(ctx context.Context, deviceID string, token uuid.UUID) error
}

// DispatchInstruction is everything the dispatcher needs to execute a
// resumed intent without reading the catalog again.
type DispatchInstruction struct {
	IntentID       uuid.UUID
	CTAKind        enums.CTAKind
	ProfileID      uuid.UUID
	BlockID        *uuid.UUID
	ProductID      *uuid.UUID
	AmountMinor    int64
	Currency       string
	PayeeReference *string
	TargetURL      *string
	Actor          string
}

// InstructionFor builds the instruction from a resumed intent.
func InstructionFor(intent *models.Intent) *DispatchInstruction {
	return &DispatchInstruction{
		IntentID:       intent.ID,
		CTAKind:        intent.CTAKind,
		ProfileID:      intent.ProfileID,
		BlockID:        intent.BlockID,
		ProductID:      intent.ProductID,
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency,
		PayeeReference: intent.PayeeReference,
		TargetURL:      intent.TargetURL,
		Actor:          intent.Actor,
	}
}

type ResumeInput struct {
	// Token is optional; the device slot is consulted when it is nil.
	Token    *uuid.UUID
	DeviceID string
	Actor    auth.Actor
}

type ResumeResult struct {
	Outcome     Outcome
	IntentID    uuid.UUID
	Instruction *DispatchInstruction
}

// Gate owns every status transition of an intent after creation.
type Gate struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	slot    tokenSlot
	metrics *metrics.IntentMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewGate(repo Repository, tx txRunner, outbox outboxPublisher, slot tokenSlot, m *metrics.IntentMetrics, logg *logger.Logger) (*Gate, error) {
	if repo == nil {
		return nil, errors.New("intent repository required")
	}
	if tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if outbox == nil {
		return nil, errors.New("outbox publisher required")
	}
	if slot == nil {
		return nil, errors.New("pending token slot required")
	}
	return &Gate{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		slot:    slot,
		metrics: m,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Resume consumes a pending intent after the identity detour. Exactly one
// caller wins the pending -> resumed transition; every other caller gets
// already_consumed.
func (g *Gate) Resume(ctx context.Context, input ResumeInput) (*ResumeResult, error) {
	if !input.Actor.IsAuthenticated() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required to resume")
	}

	var token uuid.UUID
	switch {
	case input.Token != nil && *input.Token != uuid.Nil:
		token = *input.Token
	default:
		held, ok, err := g.slot.Peek(ctx, input.DeviceID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read pending intent")
		}
		if !ok {
			return g.resumeOutcome(ctx, OutcomeNotFound, uuid.Nil), nil
		}
		token = held
	}

	intent, err := g.repo.FindByID(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		g.release(ctx, input.DeviceID, token)
		return g.resumeOutcome(ctx, OutcomeNotFound, token), nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load intent")
	}

	if err := checkOwner(intent, input.Actor); err != nil {
		return nil, err
	}

	outcome, claimed, err := g.claim(ctx, intent, input.Actor)
	if err != nil {
		return nil, err
	}
	g.release(ctx, input.DeviceID, token)

	res := g.resumeOutcome(ctx, outcome, token)
	if outcome == OutcomeDispatch {
		res.Instruction = InstructionFor(claimed)
	}
	return res, nil
}

// Claim moves a pending intent to resumed for a caller that needs no detour.
// It shares the compare-and-swap with Resume so both paths race fairly. When
// the caller's device is known its slot is released on a win, so a later
// resume on that device does not find the consumed token.
func (g *Gate) Claim(ctx context.Context, intentID uuid.UUID, actor auth.Actor, deviceID string) (Outcome, *models.Intent, error) {
	intent, err := g.repo.FindByID(ctx, intentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OutcomeNotFound, nil, nil
	}
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load intent")
	}
	if intent.RequiresLogin && !actor.IsAuthenticated() {
		return "", nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required before this action")
	}
	if err := checkOwner(intent, actor); err != nil {
		return "", nil, err
	}
	outcome, claimed, err := g.claim(ctx, intent, actor)
	if err != nil {
		return "", nil, err
	}
	if outcome == OutcomeDispatch && deviceID != "" {
		g.release(ctx, deviceID, intent.ID)
	}
	if claimed == nil {
		claimed = intent
	}
	return outcome, claimed, nil
}

func (g *Gate) claim(ctx context.Context, intent *models.Intent, actor auth.Actor) (Outcome, *models.Intent, error) {
	now := g.now()
	switch intent.Status {
	case enums.IntentStatusPending:
	case enums.IntentStatusExpired:
		return OutcomeExpired, nil, nil
	default:
		g.logConflict(ctx, intent.ID, intent.Status)
		return OutcomeAlreadyConsumed, nil, nil
	}
	if intent.IsExpiredAt(now) {
		if _, err := g.Expire(ctx, intent); err != nil && g.logg != nil {
			g.logg.Warn(g.logg.WithIntentID(ctx, intent.ID.String()), "expire on resume failed: "+err.Error())
		}
		return OutcomeExpired, nil, nil
	}

	var won bool
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := g.repo.WithTx(tx)
		ok, err := repo.Transition(ctx, TransitionInput{
			ID:     intent.ID,
			From:   enums.IntentStatusPending,
			To:     enums.IntentStatusResumed,
			Set:    map[string]any{"actor": actor.String(), "resumed_at": now},
			LiveAt: now,
		})
		if err != nil || !ok {
			return err
		}
		won = true
		return g.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventIntentResumed,
			AggregateType: enums.AggregateIntent,
			AggregateID:   intent.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{ID: actor.String()},
			Data: payloads.IntentResumedEvent{
				IntentID:  intent.ID,
				ProfileID: intent.ProfileID,
				CTAKind:   intent.CTAKind,
				Actor:     actor.String(),
				ResumedAt: now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return "", nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resume intent")
	}
	if !won {
		g.logConflict(ctx, intent.ID, intent.Status)
		return OutcomeAlreadyConsumed, nil, nil
	}

	claimed := *intent
	claimed.Status = enums.IntentStatusResumed
	claimed.Actor = actor.String()
	claimed.ResumedAt = &now
	return OutcomeDispatch, &claimed, nil
}

// CompleteTx moves a resumed intent to completed inside tx and queues
// intent_completed. It reports false when the intent was not resumed.
func (g *Gate) CompleteTx(ctx context.Context, tx *gorm.DB, intentID uuid.UUID, orderID *uuid.UUID) (bool, error) {
	repo := g.repo.WithTx(tx)
	intent, err := repo.FindByID(ctx, intentID)
	if err != nil {
		return false, err
	}
	now := g.now()
	ok, err := repo.Transition(ctx, TransitionInput{
		ID:   intentID,
		From: enums.IntentStatusResumed,
		To:   enums.IntentStatusCompleted,
		Set:  map[string]any{"completed_at": now},
	})
	if err != nil || !ok {
		return false, err
	}
	err = g.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventIntentCompleted,
		AggregateType: enums.AggregateIntent,
		AggregateID:   intentID,
		Version:       1,
		Actor:         &outbox.ActorRef{ID: intent.Actor},
		Data: payloads.IntentCompletedEvent{
			IntentID:    intentID,
			ProfileID:   intent.ProfileID,
			CTAKind:     intent.CTAKind,
			Actor:       intent.Actor,
			OrderID:     orderID,
			CompletedAt: now,
		},
		OccurredAt: now,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// CompleteForOrder is invoked in the transaction that marks an order paid.
// A lost race is logged; the payment itself stays recorded on the order.
func (g *Gate) CompleteForOrder(ctx context.Context, tx *gorm.DB, intentID, orderID uuid.UUID) error {
	ok, err := g.CompleteTx(ctx, tx, intentID, &orderID)
	if err != nil {
		return err
	}
	if !ok && g.logg != nil {
		logCtx := g.logg.WithOrderID(g.logg.WithIntentID(ctx, intentID.String()), orderID.String())
		g.logg.Warn(logCtx, "paid order could not complete intent")
	}
	return nil
}

// EnsureAwaitingPayment fails unless the intent is resumed, the only state in
// which a paid order can still complete it.
func (g *Gate) EnsureAwaitingPayment(ctx context.Context, intentID uuid.UUID) error {
	intent, err := g.repo.FindByID(ctx, intentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "intent not found")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load intent")
	}
	if intent.Status != enums.IntentStatusResumed {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "intent is %s and can no longer be paid", intent.Status).
			WithField("intent_id", intentID.String()).
			WithField("intent_status", intent.Status)
	}
	return nil
}

// Expire moves a live intent to expired and queues intent_expired.
func (g *Gate) Expire(ctx context.Context, intent *models.Intent) (bool, error) {
	if intent.Status.IsTerminal() {
		return false, nil
	}
	now := g.now()
	var won bool
	err := g.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := g.repo.WithTx(tx).Transition(ctx, TransitionInput{
			ID:   intent.ID,
			From: intent.Status,
			To:   enums.IntentStatusExpired,
		})
		if err != nil || !ok {
			return err
		}
		won = true
		return g.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventIntentExpired,
			AggregateType: enums.AggregateIntent,
			AggregateID:   intent.ID,
			Version:       1,
			Data: payloads.IntentExpiredEvent{
				IntentID:      intent.ID,
				ProfileID:     intent.ProfileID,
				PreviousState: intent.Status,
				ExpiredAt:     now,
			},
			OccurredAt: now,
		})
	})
	return won, err
}

func (g *Gate) release(ctx context.Context, deviceID string, token uuid.UUID) {
	if err := g.slot.Release(ctx, deviceID, token); err != nil && g.logg != nil {
		g.logg.Warn(g.logg.WithDeviceID(ctx, deviceID), "release pending intent failed: "+err.Error())
	}
}

func (g *Gate) resumeOutcome(ctx context.Context, outcome Outcome, token uuid.UUID) *ResumeResult {
	g.metrics.ObserveResume(string(outcome))
	if g.logg != nil && outcome != OutcomeDispatch {
		g.logg.Info(g.logg.WithField(ctx, "outcome", outcome), "intent resume skipped")
	}
	return &ResumeResult{Outcome: outcome, IntentID: token}
}

func (g *Gate) logConflict(ctx context.Context, id uuid.UUID, status enums.IntentStatus) {
	if g.logg == nil {
		return
	}
	logCtx := g.logg.WithField(g.logg.WithIntentID(ctx, id.String()), "status", status)
	g.logg.Info(logCtx, "intent already consumed")
}

// checkOwner rejects a caller other than the identified creator. Intents
// created anonymously may be taken over by whoever holds the token.
func checkOwner(intent *models.Intent, caller auth.Actor) error {
	owner, err := auth.ParseActor(intent.Actor)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "intent actor is corrupt")
	}
	if owner.IsAnonymous() || owner.Equal(caller) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "intent belongs to another actor")
}
