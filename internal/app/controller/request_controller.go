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
)

type RequestController struct {
	requestService service.RequestService
}

func NewRequestController(requestService service.RequestService) *RequestController {
	return &RequestController{
		requestService: requestService,
	}
}

type UpdateStatusRequest struct {
	Status model.RequestStatus `json:"status" binding:"required"`
}

// ListMine returns the caller's buyback requests
// GET /api/v1/requests
func (ctrl *RequestController) ListMine(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	requests, err := ctrl.requestService.ListByUser(userID)
	if err != nil {
		log.Error("Failed to list user requests", err, map[string]interface{}{
			"user_id": userID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"count":    len(requests),
	})
}

// GetMine returns one of the caller's requests with items and history
// GET /api/v1/requests/:id
func (ctrl *RequestController) GetMine(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apperrors.Unauthorized(c, "")
		return
	}

	requestID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "IDの形式が正しくありません")
		return
	}

	request, err := ctrl.requestService.GetUserRequest(userID, uint(requestID))
	if err != nil {
		if errors.Is(err, service.ErrRequestNotFound) {
			apperrors.NotFound(c, apperrors.RequestNotFound, "申込が見つかりません")
			return
		}
		log.Error("Failed to fetch request", err, map[string]interface{}{
			"user_id":    userID,
			"request_id": requestID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": request})
}

// ListAll returns every request, optionally filtered by status
// GET /api/v1/admin/requests?status=査定中
func (ctrl *RequestController) ListAll(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	statusFilter := model.RequestStatus(c.Query("status"))
	requests, err := ctrl.requestService.ListAll(statusFilter)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			apperrors.BadRequest(c, apperrors.RequestInvalidStatus, "状態の指定が正しくありません")
			return
		}
		log.Error("Failed to list requests", err, map[string]interface{}{
			"status_filter": statusFilter,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"requests": requests,
		"count":    len(requests),
	})
}

// UpdateStatus moves a request through the status pipeline
// PUT /api/v1/admin/requests/:id/status
func (ctrl *RequestController) UpdateStatus(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	requestID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "IDの形式が正しくありません")
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "入力内容が正しくありません")
		return
	}

	request, err := ctrl.requestService.Transition(uint(requestID), req.Status, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			apperrors.BadRequest(c, apperrors.RequestInvalidStatus, "状態の指定が正しくありません")
		case errors.Is(err, service.ErrRequestNotFound):
			apperrors.NotFound(c, apperrors.RequestNotFound, "申込が見つかりません")
		case errors.Is(err, service.ErrRequestClosed):
			apperrors.Conflict(c, apperrors.RequestClosed, "完了またはキャンセル済みの申込は変更できません")
		default:
			log.Error("Failed to update request status", err, map[string]interface{}{
				"request_id": requestID,
				"status":     req.Status,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"request": request})
}
