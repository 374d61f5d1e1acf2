package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/creatorpage-backend/pkg/errors"
)

// Target names what a visitor interacted with.
type Target struct {
	ProfileID uuid.UUID
	BlockID   *uuid.UUID
	ProductID *uuid.UUID
}

// Snapshot is the seller configuration read once when an intent is created.
// Later configuration edits never change a decision already taken from it.
type Snapshot struct {
	Profile models.Profile
	Block   *models.Block
	Product *models.Product
}

// Loader resolves a Target into a consistent Snapshot.
type Loader struct {
	repo Repository
}

func NewLoader(repo Repository) (*Loader, error) {
	if repo == nil {
		return nil, errors.New("catalog repository required")
	}
	return &Loader{repo: repo}, nil
}

// Load validates the target ids and returns the snapshot. A block that links
// a product pulls that product in when the caller did not name one.
func (l *Loader) Load(ctx context.Context, target Target) (*Snapshot, error) {
	if target.ProfileID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile_id is required")
	}

	var snap *Snapshot
	err := l.repo.ReadConsistent(ctx, func(repo Repository) error {
		var err error
		snap, err = load(ctx, repo, target)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog snapshot")
	}
	return snap, nil
}

func load(ctx context.Context, repo Repository, target Target) (*Snapshot, error) {
	profile, err := repo.FindProfile(ctx, target.ProfileID)
	if err != nil {
		return nil, notFoundOr(err, "profile not found", "load profile")
	}
	if !profile.IsPublished {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	snap := &Snapshot{Profile: *profile}

	if target.BlockID != nil {
		block, err := repo.FindBlock(ctx, *target.BlockID)
		if err != nil {
			return nil, notFoundOr(err, "block not found", "load block")
		}
		if block.ProfileID != profile.ID || !block.IsVisible {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "block not found")
		}
		snap.Block = block
	}

	productID := target.ProductID
	if productID == nil && snap.Block != nil {
		productID = snap.Block.ProductID
	}
	if snap.Block != nil && snap.Block.ProductID != nil && target.ProductID != nil && *snap.Block.ProductID != *target.ProductID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product does not belong to block")
	}
	if productID != nil {
		product, err := repo.FindProduct(ctx, *productID)
		if err != nil {
			return nil, notFoundOr(err, "product not found", "load product")
		}
		if product.ProfileID != profile.ID || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		snap.Product = product
	}
	return snap, nil
}

// Currency is the product currency with the profile currency as fallback.
func (s Snapshot) Currency() string {
	if s.Product != nil && s.Product.Currency != nil && strings.TrimSpace(*s.Product.Currency) != "" {
		return strings.ToUpper(strings.TrimSpace(*s.Product.Currency))
	}
	return strings.ToUpper(strings.TrimSpace(s.Profile.Currency))
}

// AllowsAnonymousEnquiry applies block, then profile configuration.
func (s Snapshot) AllowsAnonymousEnquiry() bool {
	if s.Block != nil && s.Block.AllowAnonymousEnquiry != nil {
		return *s.Block.AllowAnonymousEnquiry
	}
	return s.Profile.AllowAnonymousEnquiry
}

// AllowsAnonymousPurchase applies product, then profile configuration.
func (s Snapshot) AllowsAnonymousPurchase() bool {
	if s.Product != nil && s.Product.AllowAnonymousPurchase != nil {
		return *s.Product.AllowAnonymousPurchase
	}
	return s.Profile.AllowAnonymousPurchase
}

func notFoundOr(err error, notFoundMsg, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
