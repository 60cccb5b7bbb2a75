package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/app/repository"
	"github.com/mkobayashi/kaitori-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSessionExpired    = errors.New("cart session expired")
	ErrInventoryConflict = errors.New("inventory hold ceiling reached")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCartItemNotFound  = errors.New("cart item not found")
	ErrVariantNotFound   = errors.New("variant not found")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInvalidMethod     = errors.New("invalid purchase method")
)

// Cart カートセッションと明細のスナップショット
type Cart struct {
	Session    *model.CartSession `json:"session"`
	Items      []model.CartItem   `json:"items"`
	TotalPrice int64              `json:"total_price"`
}

type CartService interface {
	GetOrCreateSession(userID uint, now time.Time) (*model.CartSession, error)
	GetCart(userID uint, now time.Time) (*Cart, error)
	AddItem(userID, variantID uint, color string, capacity *string, quantity int, now time.Time) (*model.CartItem, error)
	UpdateQuantity(userID, itemID uint, quantity int, now time.Time) (*model.CartItem, error)
	RemoveItem(userID, itemID uint, now time.Time) error
	Clear(userID uint, now time.Time) error
	Checkout(userID uint, method model.PurchaseMethod, now time.Time) (*model.BuybackRequest, error)
	// ExpireStaleSessions は期限切れの active セッションをまとめて失効させ、
	// 掴んでいたホールドを解放する。処理した件数を返す。
	ExpireStaleSessions(now time.Time, limit int) (int, error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	holdRepo    repository.HoldRepository
	variantRepo repository.VariantRepository
	requestRepo repository.RequestRepository
	notifier    NotificationService
	sessionTTL  time.Duration
	db          *gorm.DB
}

func NewCartService(
	cartRepo repository.CartRepository,
	holdRepo repository.HoldRepository,
	variantRepo repository.VariantRepository,
	requestRepo repository.RequestRepository,
	notifier NotificationService,
	sessionTTL time.Duration,
	db *gorm.DB,
) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		holdRepo:    holdRepo,
		variantRepo: variantRepo,
		requestRepo: requestRepo,
		notifier:    notifier,
		sessionTTL:  sessionTTL,
		db:          db,
	}
}

func (s *cartService) GetOrCreateSession(userID uint, now time.Time) (*model.CartSession, error) {
	session, err := s.cartRepo.FindActiveSessionByUser(userID)
	if err == nil {
		if !session.IsExpired(now) {
			return session, nil
		}
		// 期限切れセッションを畳んでから新規作成
		if err := s.expireSession(session.ID); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("Failed to look up active cart session", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	newSession := &model.CartSession{
		UserID:    userID,
		Status:    model.SessionActive,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.cartRepo.CreateSession(newSession); err != nil {
		logger.Error("Failed to create cart session", err, map[string]interface{}{
			"user_id": userID,
		})
		return nil, err
	}

	logger.Info("Cart session created", map[string]interface{}{
		"user_id":    userID,
		"session_id": newSession.ID,
		"expires_at": newSession.ExpiresAt,
	})
	return newSession, nil
}

// resolveFreshSession returns the user's active session, expiring it first
// (holds included) when its deadline has passed.
func (s *cartService) resolveFreshSession(userID uint, now time.Time) (*model.CartSession, error) {
	session, err := s.cartRepo.FindActiveSessionByUser(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	if session.IsExpired(now) {
		if err := s.expireSession(session.ID); err != nil {
			return nil, err
		}
		logger.Info("Cart session expired on access", map[string]interface{}{
			"user_id":    userID,
			"session_id": session.ID,
		})
		return nil, ErrSessionExpired
	}
	return session, nil
}

// expireSession marks one session expired and releases every hold it carried.
// Runs in a single transaction so the ledger never leaks a partial release.
func (s *cartService) expireSession(sessionID uint) error {
	return s.closeSession(sessionID, model.SessionExpired)
}

func (s *cartService) closeSession(sessionID uint, status model.CartSessionStatus) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		holdRepo := s.holdRepo.WithTx(tx)

		items, err := cartRepo.FindItemsBySession(sessionID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := holdRepo.Release(item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		if err := cartRepo.DeleteItemsBySession(sessionID); err != nil {
			return err
		}
		return cartRepo.UpdateSessionStatus(sessionID, status)
	})
}

func (s *cartService) GetCart(userID uint, now time.Time) (*Cart, error) {
	session, err := s.resolveFreshSession(userID, now)
	if err != nil {
		return nil, err
	}

	items, err := s.cartRepo.FindItemsBySession(session.ID)
	if err != nil {
		logger.Error("Failed to fetch cart items", err, map[string]interface{}{
			"user_id":    userID,
			"session_id": session.ID,
		})
		return nil, err
	}

	var total int64
	for _, item := range items {
		total += item.Variant.UnitPrice * int64(item.Quantity)
	}

	return &Cart{Session: session, Items: items, TotalPrice: total}, nil
}

func (s *cartService) AddItem(userID, variantID uint, color string, capacity *string, quantity int, now time.Time) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	logger.Debug("Adding item to cart", map[string]interface{}{
		"user_id":    userID,
		"variant_id": variantID,
		"quantity":   quantity,
	})

	session, err := s.cartRepo.FindActiveSessionByUser(userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		session, err = s.GetOrCreateSession(userID, now)
		if err != nil {
			return nil, err
		}
	} else if session.IsExpired(now) {
		if err := s.expireSession(session.ID); err != nil {
			return nil, err
		}
		return nil, ErrSessionExpired
	}

	var result *model.CartItem
	err = s.db.Transaction(func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		holdRepo := s.holdRepo.WithTx(tx)

		var variant model.Variant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&variant, variantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVariantNotFound
			}
			return err
		}

		ok, newTotal, err := holdRepo.TryClaim(variantID, quantity, variant.StockCeiling)
		if err != nil {
			return err
		}
		if !ok {
			logger.Warn("Hold claim rejected: ceiling reached", map[string]interface{}{
				"user_id":    userID,
				"variant_id": variantID,
				"requested":  quantity,
				"held":       newTotal,
				"ceiling":    variant.StockCeiling,
			})
			return ErrInventoryConflict
		}

		items, err := cartRepo.FindItemsBySession(session.ID)
		if err != nil {
			return err
		}
		for i := range items {
			if items[i].SameIdentity(variantID, color, capacity) {
				merged := items[i].Quantity + quantity
				if err := cartRepo.UpdateItemQuantity(items[i].ID, merged); err != nil {
					return err
				}
				items[i].Quantity = merged
				result = &items[i]
				return nil
			}
		}

		item := &model.CartItem{
			SessionID: session.ID,
			VariantID: variantID,
			Color:     color,
			Capacity:  capacity,
			Quantity:  quantity,
		}
		if err := cartRepo.CreateItem(item); err != nil {
			return err
		}
		result = item
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInventoryConflict) || errors.Is(err, ErrVariantNotFound) {
			return nil, err
		}
		logger.Error("Failed to add item to cart", err, map[string]interface{}{
			"user_id":    userID,
			"session_id": session.ID,
			"variant_id": variantID,
		})
		return nil, err
	}

	logger.Info("Item added to cart", map[string]interface{}{
		"user_id":    userID,
		"session_id": session.ID,
		"item_id":    result.ID,
		"variant_id": variantID,
		"quantity":   result.Quantity,
	})
	return result, nil
}

func (s *cartService) UpdateQuantity(userID, itemID uint, quantity int, now time.Time) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	session, err := s.resolveFreshSession(userID, now)
	if err != nil {
		return nil, err
	}

	var result *model.CartItem
	err = s.db.Transaction(func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		holdRepo := s.holdRepo.WithTx(tx)

		item, err := cartRepo.FindItemByID(itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartItemNotFound
			}
			return err
		}
		if item.SessionID != session.ID {
			return ErrCartItemNotFound
		}

		delta := quantity - item.Quantity
		switch {
		case delta > 0:
			var variant model.Variant
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&variant, item.VariantID).Error; err != nil {
				return err
			}
			ok, _, err := holdRepo.TryClaim(item.VariantID, delta, variant.StockCeiling)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInventoryConflict
			}
		case delta < 0:
			if err := holdRepo.Release(item.VariantID, -delta); err != nil {
				return err
			}
		default:
			// 数量変化なし
			result = item
			return nil
		}

		if err := cartRepo.UpdateItemQuantity(item.ID, quantity); err != nil {
			return err
		}
		item.Quantity = quantity
		result = item
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrCartItemNotFound) || errors.Is(err, ErrInventoryConflict) {
			return nil, err
		}
		logger.Error("Failed to update cart item quantity", err, map[string]interface{}{
			"user_id": userID,
			"item_id": itemID,
		})
		return nil, err
	}

	logger.Info("Cart item quantity updated", map[string]interface{}{
		"user_id":  userID,
		"item_id":  itemID,
		"quantity": quantity,
	})
	return result, nil
}

func (s *cartService) RemoveItem(userID, itemID uint, now time.Time) error {
	session, err := s.resolveFreshSession(userID, now)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		holdRepo := s.holdRepo.WithTx(tx)

		item, err := cartRepo.FindItemByID(itemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCartItemNotFound
			}
			return err
		}
		if item.SessionID != session.ID {
			return ErrCartItemNotFound
		}

		if err := holdRepo.Release(item.VariantID, item.Quantity); err != nil {
			return err
		}
		return cartRepo.DeleteItem(item.ID)
	})
	if err != nil {
		if errors.Is(err, ErrCartItemNotFound) {
			return err
		}
		logger.Error("Failed to remove cart item", err, map[string]interface{}{
			"user_id": userID,
			"item_id": itemID,
		})
		return err
	}

	logger.Info("Cart item removed", map[string]interface{}{
		"user_id": userID,
		"item_id": itemID,
	})
	return nil
}

func (s *cartService) Clear(userID uint, now time.Time) error {
	session, err := s.resolveFreshSession(userID, now)
	if err != nil {
		return err
	}

	if err := s.closeSession(session.ID, model.SessionReleased); err != nil {
		logger.Error("Failed to clear cart", err, map[string]interface{}{
			"user_id":    userID,
			"session_id": session.ID,
		})
		return err
	}

	logger.Info("Cart cleared", map[string]interface{}{
		"user_id":    userID,
		"session_id": session.ID,
	})
	return nil
}

func (s *cartService) Checkout(userID uint, method model.PurchaseMethod, now time.Time) (*model.BuybackRequest, error) {
	if method == "" {
		method = model.MethodShipping
	}
	if !method.IsValid() {
		return nil, ErrInvalidMethod
	}

	session, err := s.resolveFreshSession(userID, now)
	if err != nil {
		return nil, err
	}

	logger.Info("Starting checkout", map[string]interface{}{
		"user_id":    userID,
		"session_id": session.ID,
		"method":     method,
	})

	var request *model.BuybackRequest
	err = s.db.Transaction(func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		holdRepo := s.holdRepo.WithTx(tx)
		requestRepo := s.requestRepo.WithTx(tx)

		items, err := cartRepo.FindItemsBySession(session.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		var (
			total        int64
			requestItems []model.BuybackRequestItem
		)
		for _, item := range items {
			// 単価は確定時点のカタログ値で固定する
			var variant model.Variant
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&variant, item.VariantID).Error; err != nil {
				return err
			}
			requestItems = append(requestItems, model.BuybackRequestItem{
				VariantID: item.VariantID,
				Color:     item.Color,
				Capacity:  item.Capacity,
				Quantity:  item.Quantity,
				UnitPrice: variant.UnitPrice,
			})
			total += variant.UnitPrice * int64(item.Quantity)
		}

		req := &model.BuybackRequest{
			ReservationNumber: newReservationNumber(now),
			UserID:            userID,
			Status:            model.StatusReceived,
			PurchaseMethod:    method,
			TotalPrice:        total,
			Items:             requestItems,
		}
		if err := requestRepo.Create(req); err != nil {
			return err
		}

		if err := requestRepo.AppendHistory(&model.StatusHistory{
			RequestID: req.ID,
			NewStatus: model.StatusReceived,
			ChangedAt: now,
		}); err != nil {
			return err
		}

		// 確定済み分のホールドを解放し、セッションを畳む
		for _, item := range items {
			if err := holdRepo.Release(item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		if err := cartRepo.DeleteItemsBySession(session.ID); err != nil {
			return err
		}
		if err := cartRepo.UpdateSessionStatus(session.ID, model.SessionReleased); err != nil {
			return err
		}

		request = req
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmptyCart) {
			logger.Warn("Checkout rejected: cart is empty", map[string]interface{}{
				"user_id":    userID,
				"session_id": session.ID,
			})
			return nil, err
		}
		logger.Error("Checkout failed", err, map[string]interface{}{
			"user_id":    userID,
			"session_id": session.ID,
		})
		return nil, err
	}

	logger.Info("Checkout completed", map[string]interface{}{
		"user_id":            userID,
		"request_id":         request.ID,
		"reservation_number": request.ReservationNumber,
		"total_price":        request.TotalPrice,
		"item_count":         len(request.Items),
	})

	// 申込はこの時点で確定済み。再読込はレスポンスと通知本文を機種名まで
	// 揃えるためのもので、失敗してもトランザクション内で組んだ
	// スナップショットをそのまま使って成功として返す。
	created, err := s.requestRepo.FindByID(request.ID)
	if err != nil {
		logger.Error("Failed to reload request after checkout", err, map[string]interface{}{
			"request_id": request.ID,
		})
		created = request
	}

	// 通知は確定後に同期送信する。失敗しても申込自体は成立済みなので
	// ログに残すだけで呼び出し元へは返さない。
	if s.notifier != nil {
		s.notifier.NotifyStatusChange(created, "", model.StatusReceived)
	}

	return created, nil
}

func (s *cartService) ExpireStaleSessions(now time.Time, limit int) (int, error) {
	sessions, err := s.cartRepo.FindStaleSessions(now, limit)
	if err != nil {
		logger.Error("Failed to list stale cart sessions", err, nil)
		return 0, err
	}

	expired := 0
	for _, session := range sessions {
		if err := s.expireSession(session.ID); err != nil {
			logger.Error("Failed to expire cart session", err, map[string]interface{}{
				"session_id": session.ID,
			})
			continue
		}
		expired++
	}

	if expired > 0 {
		logger.Info("Expired stale cart sessions", map[string]interface{}{
			"count": expired,
		})
	}
	return expired, nil
}

// newReservationNumber は "R" + 日付 + ランダム8桁の予約番号を作る
func newReservationNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("R%s-%s", now.Format("20060102"), suffix)
}
