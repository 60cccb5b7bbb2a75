package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/app/service"
	apperrors "github.com/mkobayashi/kaitori-backend/internal/errors"
	"github.com/mkobayashi/kaitori-backend/internal/middleware"
	"github.com/mkobayashi/kaitori-backend/pkg/logger"
)

type CartController struct {
	cartService service.CartService
}

func NewCartController(cartService service.CartService) *CartController {
	return &CartController{
		cartService: cartService,
	}
}

type AddItemRequest struct {
	VariantID uint    `json:"variant_id" binding:"required"`
	Color     string  `json:"color" binding:"required"`
	Capacity  *string `json:"capacity"`
	Quantity  int     `json:"quantity" binding:"required,gte=1,lte=999"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" binding:"required,gte=1,lte=999"`
}

type CheckoutRequest struct {
	PurchaseMethod model.PurchaseMethod `json:"purchase_method"`
}

// CreateSession returns the user's active cart session, creating one if needed
// POST /api/v1/cart/session
func (ctrl *CartController) CreateSession(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	session, err := ctrl.cartService.GetOrCreateSession(userID, time.Now())
	if err != nil {
		log.Error("Failed to get or create cart session", err, map[string]interface{}{
			"user_id": userID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

// GetCart returns the active cart with items and running total
// GET /api/v1/cart
func (ctrl *CartController) GetCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	cart, err := ctrl.cartService.GetCart(userID, time.Now())
	if err != nil {
		ctrl.respondCartError(c, log, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":     cart.Session,
		"items":       cart.Items,
		"count":       len(cart.Items),
		"total_price": cart.TotalPrice,
	})
}

// AddItem adds a variant selection to the cart
// POST /api/v1/cart/items
func (ctrl *CartController) AddItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add item request", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "入力内容が正しくありません")
		return
	}

	item, err := ctrl.cartService.AddItem(userID, req.VariantID, req.Color, req.Capacity, req.Quantity, time.Now())
	if err != nil {
		ctrl.respondCartError(c, log, userID, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// UpdateQuantity changes one cart item's quantity
// PUT /api/v1/cart/items/:id
func (ctrl *CartController) UpdateQuantity(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "IDの形式が正しくありません")
		return
	}

	var req UpdateQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "入力内容が正しくありません")
		return
	}

	item, err := ctrl.cartService.UpdateQuantity(userID, uint(itemID), req.Quantity, time.Now())
	if err != nil {
		ctrl.respondCartError(c, log, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item})
}

// RemoveItem deletes one cart item and releases its hold
// DELETE /api/v1/cart/items/:id
func (ctrl *CartController) RemoveItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "IDの形式が正しくありません")
		return
	}

	if err := ctrl.cartService.RemoveItem(userID, uint(itemID), time.Now()); err != nil {
		ctrl.respondCartError(c, log, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "カートから削除しました"})
}

// Clear empties the cart and releases every hold
// DELETE /api/v1/cart
func (ctrl *CartController) Clear(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	if err := ctrl.cartService.Clear(userID, time.Now()); err != nil {
		ctrl.respondCartError(c, log, userID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "カートを空にしました"})
}

// Checkout converts the cart into a buyback request
// POST /api/v1/checkout
func (ctrl *CartController) Checkout(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "入力内容が正しくありません")
		return
	}

	request, err := ctrl.cartService.Checkout(userID, req.PurchaseMethod, time.Now())
	if err != nil {
		ctrl.respondCartError(c, log, userID, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"request": request})
}

func (ctrl *CartController) respondCartError(c *gin.Context, log *logger.Logger, userID uint, err error) {
	switch {
	case errors.Is(err, service.ErrSessionExpired):
		log.Warn("Cart session expired", map[string]interface{}{"user_id": userID})
		apperrors.Conflict(c, apperrors.CartSessionExpired, "カートの有効期限が切れました。もう一度お試しください")
	case errors.Is(err, service.ErrInventoryConflict):
		log.Warn("Inventory hold conflict", map[string]interface{}{"user_id": userID})
		apperrors.Conflict(c, apperrors.InventoryConflict, "ご希望の数量は現在受付上限に達しています")
	case errors.Is(err, service.ErrEmptyCart):
		apperrors.BadRequest(c, apperrors.CartEmpty, "カートが空です")
	case errors.Is(err, service.ErrCartItemNotFound):
		apperrors.NotFound(c, apperrors.CartItemNotFound, "カートに該当の商品が見つかりません")
	case errors.Is(err, service.ErrVariantNotFound):
		apperrors.NotFound(c, apperrors.VariantNotFound, "対象の機種が見つかりません")
	case errors.Is(err, service.ErrInvalidQuantity):
		apperrors.BadRequest(c, apperrors.ValidationInvalidRange, "数量は1以上で指定してください")
	case errors.Is(err, service.ErrInvalidMethod):
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "買取方法の指定が正しくありません")
	default:
		log.Error("Cart operation failed", err, map[string]interface{}{"user_id": userID})
		apperrors.InternalError(c, "")
	}
}
