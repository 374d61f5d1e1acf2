package intents

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/creatorpage-backend/internal/catalog"
	"github.com/angelmondragon/creatorpage-backend/pkg/auth"
	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/metrics"
)

const (
	NextLogin    = "login"
	NextDispatch = "dispatch"
)

type snapshotLoader interface {
	Load(ctx context.Context, target catalog.Target) (*catalog.Snapshot, error)
}

type tokenHolder interface {
	Hold(ctx context.Context, deviceID string, token uuid.UUID) error
}

// ResolveInput is a visitor interaction on a creator page.
type ResolveInput struct {
	ProfileID     uuid.UUID
	BlockID       *uuid.UUID
	ProductID     *uuid.UUID
	RequestedKind enums.CTAKind
	Actor         auth.Actor
	DeviceID      string
}

// Resolution is the persisted intent plus what the client should do next.
type Resolution struct {
	Intent        *models.Intent
	RequiresLogin bool
	Next          string
}

type Resolver struct {
	loader  snapshotLoader
	repo    Repository
	slot    tokenHolder
	ttl     time.Duration
	metrics *metrics.IntentMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewResolver(loader snapshotLoader, repo Repository, slot tokenHolder, cfg config.IntentsConfig, m *metrics.IntentMetrics, logg *logger.Logger) (*Resolver, error) {
	if loader == nil {
		return nil, errors.New("catalog loader required")
	}
	if repo == nil {
		return nil, errors.New("intent repository required")
	}
	if slot == nil {
		return nil, errors.New("pending token slot required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("intent ttl must be positive")
	}
	return &Resolver{
		loader:  loader,
		repo:    repo,
		slot:    slot,
		ttl:     cfg.TTL,
		metrics: m,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateIntent validates the target, decides the login requirement once and
// persists a pending intent. Nothing is written when validation fails.
func (r *Resolver) CreateIntent(ctx context.Context, input ResolveInput) (*Resolution, error) {
	if input.RequestedKind != "" && !input.RequestedKind.IsActionable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "cta_kind %q is not supported", input.RequestedKind)
	}

	snap, err := r.loader.Load(ctx, catalog.Target{
		ProfileID: input.ProfileID,
		BlockID:   input.BlockID,
		ProductID: input.ProductID,
	})
	if err != nil {
		return nil, err
	}

	kind, err := DeriveKind(snap, input.RequestedKind)
	if err != nil {
		return nil, err
	}

	now := r.now()
	intent := &models.Intent{
		ID:            uuid.New(),
		ProfileID:     snap.Profile.ID,
		Actor:         input.Actor.String(),
		CTAKind:       kind,
		RequiresLogin: RequiresLogin(snap, kind),
		Status:        enums.IntentStatusPending,
		Currency:      snap.Currency(),
		ExpiresAt:     now.Add(r.ttl),
	}
	if snap.Block != nil {
		intent.BlockID = &snap.Block.ID
	}
	if snap.Product != nil {
		intent.ProductID = &snap.Product.ID
	}

	switch kind {
	case enums.CTAKindRedirect:
		intent.TargetURL = snap.Block.TargetURL
	case enums.CTAKindBuy:
		intent.AmountMinor = snap.Product.PriceMinor
		payee := snap.Profile.PayeeReference
		intent.PayeeReference = &payee
	}

	if err := r.repo.Create(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist intent")
	}
	r.metrics.ObserveCreated(string(kind), intent.RequiresLogin)

	res := &Resolution{Intent: intent, RequiresLogin: intent.RequiresLogin, Next: NextDispatch}
	if intent.RequiresLogin && !input.Actor.IsAuthenticated() {
		res.Next = NextLogin
		if input.Actor.IsAnonymous() && strings.TrimSpace(input.DeviceID) != "" {
			if err := r.slot.Hold(ctx, input.DeviceID, intent.ID); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store pending intent")
			}
		}
	}

	if r.logg != nil {
		logCtx := r.logg.WithIntentID(ctx, intent.ID.String())
		logCtx = r.logg.WithFields(logCtx, map[string]any{
			"cta_kind":       kind,
			"requires_login": intent.RequiresLogin,
		})
		r.logg.Info(logCtx, "intent created")
	}
	return res, nil
}

// DeriveKind maps the configured call-to-action onto a flow. A requested kind
// that disagrees with configuration is rejected.
func DeriveKind(snap *catalog.Snapshot, requested enums.CTAKind) (enums.CTAKind, error) {
	var kind enums.CTAKind
	switch {
	case snap.Block != nil:
		kind = snap.Block.CTA.Kind()
		if kind == enums.CTAKindNone && hasURL(snap.Block.TargetURL) {
			kind = enums.CTAKindRedirect
		}
	case snap.Product != nil:
		kind = enums.CTAKindBuy
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "block_id or product_id is required")
	}

	if !kind.IsActionable() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "block has no call to action")
	}
	if requested != "" && requested != kind {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "cta_kind %q does not match configured %q", requested, kind)
	}

	switch kind {
	case enums.CTAKindRedirect:
		if snap.Block == nil || !hasURL(snap.Block.TargetURL) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "link target is not configured")
		}
	case enums.CTAKindBuy:
		if snap.Product == nil {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "buy target has no product")
		}
		if snap.Product.PriceMinor < 0 {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "product price is invalid")
		}
	}
	return kind, nil
}

// RequiresLogin is the login decision for a snapshot and flow. Link visits
// never need an identity; enquiries and purchases do unless the seller
// allowed anonymous use.
func RequiresLogin(snap *catalog.Snapshot, kind enums.CTAKind) bool {
	switch kind {
	case enums.CTAKindRedirect:
		return false
	case enums.CTAKindEnquiry:
		return !snap.AllowsAnonymousEnquiry()
	case enums.CTAKindBuy:
		return !snap.AllowsAnonymousPurchase()
	default:
		return true
	}
}

func hasURL(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}
