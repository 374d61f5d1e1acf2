package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
)

// SeedProfile inserts a published profile; mutate adjusts it before insert.
func SeedProfile(t *testing.T, db *gorm.DB, mutate func(*models.Profile)) models.Profile {
	t.Helper()
	profile := models.Profile{
		ID:             uuid.New(),
		Handle:         "creator-" + uuid.NewString()[:8],
		PayeeReference: "payee@upi",
		Currency:       "INR",
		IsPublished:    true,
	}
	if mutate != nil {
		mutate(&profile)
	}
	if err := db.Create(&profile).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return profile
}

// SeedProduct inserts an active product owned by profileID.
func SeedProduct(t *testing.T, db *gorm.DB, profileID uuid.UUID, priceMinor int64, mutate func(*models.Product)) models.Product {
	t.Helper()
	product := models.Product{
		ID:         uuid.New(),
		ProfileID:  profileID,
		Title:      "Product",
		PriceMinor: priceMinor,
		IsActive:   true,
	}
	if mutate != nil {
		mutate(&product)
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// SeedBlock inserts a visible block with the given call to action.
func SeedBlock(t *testing.T, db *gorm.DB, profileID uuid.UUID, cta enums.BlockCTA, mutate func(*models.Block)) models.Block {
	t.Helper()
	block := models.Block{
		ID:        uuid.New(),
		ProfileID: profileID,
		CTA:       cta,
		IsVisible: true,
	}
	if mutate != nil {
		mutate(&block)
	}
	if err := db.Create(&block).Error; err != nil {
		t.Fatalf("seed block: %v", err)
	}
	return block
}
