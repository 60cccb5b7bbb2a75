package scheduler

import (
	"testing"
	"time"

	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/app/repository"
	"github.com/mkobayashi/kaitori-backend/internal/app/service"
	"github.com/mkobayashi/kaitori-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionSweeper_Sweep_ReleasesStaleHolds(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	cartRepo := repository.NewCartRepository(testDB)
	holdRepo := repository.NewHoldRepository(testDB)
	variantRepo := repository.NewVariantRepository(testDB)
	requestRepo := repository.NewRequestRepository(testDB)
	cartService := service.NewCartService(cartRepo, holdRepo, variantRepo, requestRepo, nil, 30*time.Minute, testDB)

	user := &model.User{Email: "tanaka@example.com", PasswordHash: "hash", Name: "田中太郎", Role: model.RoleUser}
	testDB.Create(user)
	variant := &model.Variant{ModelName: "iPhone 13 Pro", Category: model.CategoryIPhone, UnitPrice: 45000, StockCeiling: 5}
	testDB.Create(variant)

	_, err = cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 2, time.Now())
	require.NoError(t, err)

	// 期限を過去に倒して放置されたカートにする
	require.NoError(t, testDB.Model(&model.CartSession{}).
		Where("user_id = ?", user.ID).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	sweeper := NewSessionSweeper(cartService, time.Minute, false)
	sweeper.Sweep()

	held, err := holdRepo.HeldQuantity(variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, held)

	var session model.CartSession
	testDB.Where("user_id = ?", user.ID).First(&session)
	assert.Equal(t, model.SessionExpired, session.Status)
}

func TestSessionSweeper_Sweep_LeavesFreshSessionsAlone(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	cartRepo := repository.NewCartRepository(testDB)
	holdRepo := repository.NewHoldRepository(testDB)
	variantRepo := repository.NewVariantRepository(testDB)
	requestRepo := repository.NewRequestRepository(testDB)
	cartService := service.NewCartService(cartRepo, holdRepo, variantRepo, requestRepo, nil, 30*time.Minute, testDB)

	user := &model.User{Email: "tanaka@example.com", PasswordHash: "hash", Name: "田中太郎", Role: model.RoleUser}
	testDB.Create(user)
	variant := &model.Variant{ModelName: "PlayStation 5", Category: model.CategoryConsole, UnitPrice: 30000, StockCeiling: 5}
	testDB.Create(variant)

	_, err = cartService.AddItem(user.ID, variant.ID, "ホワイト", nil, 1, time.Now())
	require.NoError(t, err)

	sweeper := NewSessionSweeper(cartService, time.Minute, false)
	sweeper.Sweep()

	held, err := holdRepo.HeldQuantity(variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, held)

	var session model.CartSession
	testDB.Where("user_id = ?", user.ID).First(&session)
	assert.Equal(t, model.SessionActive, session.Status)
}
