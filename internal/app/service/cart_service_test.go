package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/app/repository"
	"github.com/mkobayashi/kaitori-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

// fakeMailer records outgoing mail instead of sending it
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

const testSessionTTL = 30 * time.Minute

func setupCartServiceTest(t *testing.T) (CartService, *gorm.DB, *model.User, *model.Variant, *fakeMailer) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	cartRepo := repository.NewCartRepository(testDB)
	holdRepo := repository.NewHoldRepository(testDB)
	variantRepo := repository.NewVariantRepository(testDB)
	requestRepo := repository.NewRequestRepository(testDB)
	userRepo := repository.NewUserRepository(testDB)

	mailer := &fakeMailer{}
	notifier := NewNotificationService(userRepo, mailer)
	cartService := NewCartService(cartRepo, holdRepo, variantRepo, requestRepo, notifier, testSessionTTL, testDB)

	user := &model.User{
		Email:        "tanaka@example.com",
		PasswordHash: "hash",
		Name:         "田中太郎",
		Role:         model.RoleUser,
	}
	testDB.Create(user)

	variant := &model.Variant{
		ModelName:    "iPhone 13 Pro",
		Category:     model.CategoryIPhone,
		UnitPrice:    45000,
		StockCeiling: 5,
	}
	testDB.Create(variant)

	return cartService, testDB, user, variant, mailer
}

func baseTime() time.Time {
	return time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func TestCartService_GetOrCreateSession_FixedDeadline(t *testing.T) {
	cartService, _, user, _, _ := setupCartServiceTest(t)
	now := baseTime()

	session, err := cartService.GetOrCreateSession(user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, session.Status)
	assert.Equal(t, now.Add(testSessionTTL), session.ExpiresAt)

	// 2回目も同じセッションが返り、期限は動かない
	again, err := cartService.GetOrCreateSession(user.ID, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, session.ID, again.ID)
	assert.Equal(t, session.ExpiresAt.Unix(), again.ExpiresAt.Unix())
}

func TestCartService_AddItem_DoesNotExtendDeadline(t *testing.T) {
	cartService, _, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	session, err := cartService.GetOrCreateSession(user.ID, now)
	require.NoError(t, err)

	_, err = cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 1, now.Add(20*time.Minute))
	require.NoError(t, err)

	after, err := cartService.GetOrCreateSession(user.ID, now.Add(25*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, session.ID, after.ID)
	assert.Equal(t, session.ExpiresAt.Unix(), after.ExpiresAt.Unix())
}

func TestCartService_AddItem_MergesSameIdentity(t *testing.T) {
	cartService, _, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	item1, err := cartService.AddItem(user.ID, variant.ID, "ゴールド", strPtr("256GB"), 1, now)
	require.NoError(t, err)
	item2, err := cartService.AddItem(user.ID, variant.ID, "ゴールド", strPtr("256GB"), 2, now)
	require.NoError(t, err)

	assert.Equal(t, item1.ID, item2.ID)
	assert.Equal(t, 3, item2.Quantity)

	cart, err := cartService.GetCart(user.ID, now)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestCartService_AddItem_NilCapacityIsDistinctIdentity(t *testing.T) {
	cartService, _, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	_, err := cartService.AddItem(user.ID, variant.ID, "ゴールド", nil, 1, now)
	require.NoError(t, err)
	_, err = cartService.AddItem(user.ID, variant.ID, "ゴールド", strPtr("256GB"), 1, now)
	require.NoError(t, err)

	cart, err := cartService.GetCart(user.ID, now)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestCartService_AddItem_CeilingConflictLeavesLedgerUntouched(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	other := &model.User{Email: "sato@example.com", PasswordHash: "hash", Name: "佐藤花子", Role: model.RoleUser}
	testDB.Create(other)

	// 上限5のうち3を先に掴む
	_, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 3, now)
	require.NoError(t, err)

	// 残り2に対して3を要求すると拒否され、台帳は3のまま
	_, err = cartService.AddItem(other.ID, variant.ID, "シルバー", nil, 3, now)
	assert.ErrorIs(t, err, ErrInventoryConflict)

	holdRepo := repository.NewHoldRepository(testDB)
	held, err := holdRepo.HeldQuantity(variant.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, held)

	// 残り枠ちょうどなら通る
	_, err = cartService.AddItem(other.ID, variant.ID, "シルバー", nil, 2, now)
	require.NoError(t, err)
	held, _ = holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 5, held)
}

func TestCartService_AddItem_UnknownVariant(t *testing.T) {
	cartService, _, user, _, _ := setupCartServiceTest(t)

	_, err := cartService.AddItem(user.ID, 9999, "シルバー", nil, 1, baseTime())
	assert.ErrorIs(t, err, ErrVariantNotFound)
}

func TestCartService_UpdateQuantity_AdjustsHoldByDelta(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()
	holdRepo := repository.NewHoldRepository(testDB)

	item, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 2, now)
	require.NoError(t, err)

	// 増加: 2 → 4
	updated, err := cartService.UpdateQuantity(user.ID, item.ID, 4, now)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Quantity)
	held, _ := holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 4, held)

	// 減少: 4 → 1
	updated, err = cartService.UpdateQuantity(user.ID, item.ID, 1, now)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Quantity)
	held, _ = holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 1, held)
}

func TestCartService_UpdateQuantity_ConflictKeepsQuantity(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	item, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 3, now)
	require.NoError(t, err)

	// 上限5を超える増加は拒否され、明細も台帳も変化しない
	_, err = cartService.UpdateQuantity(user.ID, item.ID, 6, now)
	assert.ErrorIs(t, err, ErrInventoryConflict)

	var unchanged model.CartItem
	testDB.First(&unchanged, item.ID)
	assert.Equal(t, 3, unchanged.Quantity)

	holdRepo := repository.NewHoldRepository(testDB)
	held, _ := holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 3, held)
}

func TestCartService_RemoveItem_ReleasesHold(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	item, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 3, now)
	require.NoError(t, err)

	require.NoError(t, cartService.RemoveItem(user.ID, item.ID, now))

	holdRepo := repository.NewHoldRepository(testDB)
	held, _ := holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 0, held)

	cart, err := cartService.GetCart(user.ID, now)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 0)
}

func TestCartService_RemoveItem_OtherUsersItem(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	other := &model.User{Email: "sato@example.com", PasswordHash: "hash", Name: "佐藤花子", Role: model.RoleUser}
	testDB.Create(other)

	item, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 1, now)
	require.NoError(t, err)

	_, err = cartService.GetOrCreateSession(other.ID, now)
	require.NoError(t, err)
	err = cartService.RemoveItem(other.ID, item.ID, now)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}

func TestCartService_ExpiredSession_MutationRejectedAndHoldsReleased(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	item, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 2, now)
	require.NoError(t, err)

	// TTL超過後の操作は拒否され、カートは変更されない
	late := now.Add(testSessionTTL + time.Minute)
	_, err = cartService.UpdateQuantity(user.ID, item.ID, 5, late)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// 失効と同時にホールドは解放されている
	holdRepo := repository.NewHoldRepository(testDB)
	held, _ := holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 0, held)

	var session model.CartSession
	testDB.Where("user_id = ?", user.ID).Order("created_at DESC").First(&session)
	assert.Equal(t, model.SessionExpired, session.Status)
}

func TestCartService_ExpiredSession_CheckoutRejected(t *testing.T) {
	cartService, _, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	_, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 1, now)
	require.NoError(t, err)

	_, err = cartService.Checkout(user.ID, model.MethodShipping, now.Add(testSessionTTL+time.Second))
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestCartService_Clear_ReleasesEverything(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	second := &model.Variant{ModelName: "Nikon D850", Category: model.CategoryCamera, UnitPrice: 120000, StockCeiling: 3}
	testDB.Create(second)

	_, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 2, now)
	require.NoError(t, err)
	_, err = cartService.AddItem(user.ID, second.ID, "ブラック", nil, 1, now)
	require.NoError(t, err)

	require.NoError(t, cartService.Clear(user.ID, now))

	holdRepo := repository.NewHoldRepository(testDB)
	held, _ := holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 0, held)
	held, _ = holdRepo.HeldQuantity(second.ID)
	assert.Equal(t, 0, held)

	// クリア後は新しいセッションが切られる
	session, err := cartService.GetOrCreateSession(user.ID, now)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, session.Status)
	cart, err := cartService.GetCart(user.ID, now)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 0)
}

func TestCartService_Checkout_EmptyCart(t *testing.T) {
	cartService, _, user, _, _ := setupCartServiceTest(t)
	now := baseTime()

	_, err := cartService.GetOrCreateSession(user.ID, now)
	require.NoError(t, err)

	_, err = cartService.Checkout(user.ID, model.MethodShipping, now)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCartService_Checkout_SnapshotsPricesAndReleasesHolds(t *testing.T) {
	cartService, testDB, user, variant, mailer := setupCartServiceTest(t)
	now := baseTime()

	_, err := cartService.AddItem(user.ID, variant.ID, "ゴールド", strPtr("256GB"), 2, now)
	require.NoError(t, err)

	request, err := cartService.Checkout(user.ID, model.MethodInstore, now)
	require.NoError(t, err)
	assert.NotEmpty(t, request.ReservationNumber)
	assert.Equal(t, model.StatusReceived, request.Status)
	assert.Equal(t, model.MethodInstore, request.PurchaseMethod)
	assert.Equal(t, int64(90000), request.TotalPrice)
	require.Len(t, request.Items, 1)
	assert.Equal(t, int64(45000), request.Items[0].UnitPrice)

	// 確定後にカタログ価格が変わってもスナップショットは動かない
	testDB.Model(&model.Variant{}).Where("id = ?", variant.ID).Update("unit_price", 99999)
	reloaded, err := repository.NewRequestRepository(testDB).FindByID(request.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(90000), reloaded.TotalPrice)
	assert.Equal(t, int64(45000), reloaded.Items[0].UnitPrice)

	// ホールドは全量解放済み
	holdRepo := repository.NewHoldRepository(testDB)
	held, _ := holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 0, held)

	// 履歴は受付1件、通知は受付メール1通
	require.Len(t, reloaded.History, 1)
	assert.Equal(t, model.RequestStatus(""), reloaded.History[0].PreviousStatus)
	assert.Equal(t, model.StatusReceived, reloaded.History[0].NewStatus)
	assert.Equal(t, 1, mailer.count())
	assert.Equal(t, "tanaka@example.com", mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, request.ReservationNumber)
}

func TestCartService_Checkout_ReleasedCeilingReusable(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	// 上限5を全量掴んで確定
	_, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 5, now)
	require.NoError(t, err)
	_, err = cartService.Checkout(user.ID, model.MethodShipping, now)
	require.NoError(t, err)

	// 解放後は別ユーザーが再び全量掴める
	other := &model.User{Email: "sato@example.com", PasswordHash: "hash", Name: "佐藤花子", Role: model.RoleUser}
	testDB.Create(other)
	_, err = cartService.AddItem(other.ID, variant.ID, "シルバー", nil, 5, now)
	require.NoError(t, err)
}

func TestCartService_Checkout_MailFailureDoesNotFailCheckout(t *testing.T) {
	cartService, testDB, user, variant, mailer := setupCartServiceTest(t)
	now := baseTime()
	mailer.err = assert.AnError

	_, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 1, now)
	require.NoError(t, err)

	request, err := cartService.Checkout(user.ID, model.MethodShipping, now)
	require.NoError(t, err)

	var count int64
	testDB.Model(&model.BuybackRequest{}).Where("id = ?", request.ID).Count(&count)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 0, mailer.count())
}

func TestCartService_ExpireStaleSessions(t *testing.T) {
	cartService, testDB, user, variant, _ := setupCartServiceTest(t)
	now := baseTime()

	other := &model.User{Email: "sato@example.com", PasswordHash: "hash", Name: "佐藤花子", Role: model.RoleUser}
	testDB.Create(other)

	_, err := cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 2, now)
	require.NoError(t, err)
	_, err = cartService.AddItem(other.ID, variant.ID, "シルバー", nil, 1, now)
	require.NoError(t, err)

	expired, err := cartService.ExpireStaleSessions(now.Add(testSessionTTL+time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	holdRepo := repository.NewHoldRepository(testDB)
	held, _ := holdRepo.HeldQuantity(variant.ID)
	assert.Equal(t, 0, held)

	var active int64
	testDB.Model(&model.CartSession{}).Where("status = ?", model.SessionActive).Count(&active)
	assert.Equal(t, int64(0), active)
}

func TestCartService_AddItem_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	cartService, testDB, user, _, _ := setupCartServiceTest(t)
	now := baseTime()

	other := &model.User{Email: "sato@example.com", PasswordHash: "hash", Name: "佐藤花子", Role: model.RoleUser}
	testDB.Create(other)
	scarce := &model.Variant{ModelName: "GR IIIx", Category: model.CategoryCamera, UnitPrice: 80000, StockCeiling: 1}
	testDB.Create(scarce)

	// 上限1の機種に別セッションから同時に申し込む
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, userID := range []uint{user.ID, other.ID} {
		wg.Add(1)
		go func(i int, userID uint) {
			defer wg.Done()
			_, errs[i] = cartService.AddItem(userID, scarce.ID, "ブラック", nil, 1, now)
		}(i, userID)
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrInventoryConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, conflicts)

	holdRepo := repository.NewHoldRepository(testDB)
	held, err := holdRepo.HeldQuantity(scarce.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, held)
}

// failingReloadRequestRepo は確定後の読み直しだけを落とす。トランザクション内の
// 書き込みは埋め込んだ実リポジトリがそのまま担う。
type failingReloadRequestRepo struct {
	repository.RequestRepository
}

func (r *failingReloadRequestRepo) FindByID(requestID uint) (*model.BuybackRequest, error) {
	return nil, assert.AnError
}

func TestCartService_Checkout_ReloadFailureStillSucceeds(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	cartRepo := repository.NewCartRepository(testDB)
	holdRepo := repository.NewHoldRepository(testDB)
	variantRepo := repository.NewVariantRepository(testDB)
	requestRepo := &failingReloadRequestRepo{repository.NewRequestRepository(testDB)}
	userRepo := repository.NewUserRepository(testDB)
	mailer := &fakeMailer{}
	notifier := NewNotificationService(userRepo, mailer)
	cartService := NewCartService(cartRepo, holdRepo, variantRepo, requestRepo, notifier, testSessionTTL, testDB)

	user := &model.User{Email: "tanaka@example.com", PasswordHash: "hash", Name: "田中太郎", Role: model.RoleUser}
	testDB.Create(user)
	variant := &model.Variant{ModelName: "iPhone 13 Pro", Category: model.CategoryIPhone, UnitPrice: 45000, StockCeiling: 5}
	testDB.Create(variant)

	now := baseTime()
	_, err = cartService.AddItem(user.ID, variant.ID, "シルバー", nil, 2, now)
	require.NoError(t, err)

	// 確定は成立しており、読み直し失敗でも成功として返す
	request, err := cartService.Checkout(user.ID, model.MethodShipping, now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, request)
	assert.NotEmpty(t, request.ReservationNumber)
	assert.Equal(t, int64(90000), request.TotalPrice)

	// 受付通知も出る
	require.Equal(t, 1, mailer.count())
	assert.Contains(t, mailer.sent[0].Body, request.ReservationNumber)

	// DB上も申込が残り、カートは畳まれている
	var requests int64
	testDB.Model(&model.BuybackRequest{}).Count(&requests)
	assert.Equal(t, int64(1), requests)
	var items int64
	testDB.Model(&model.CartItem{}).Count(&items)
	assert.Equal(t, int64(0), items)
}
