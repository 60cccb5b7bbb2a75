package service

import (
	"errors"
	"time"

	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/app/repository"
	"github.com/mkobayashi/kaitori-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrRequestNotFound = errors.New("buyback request not found")
	ErrInvalidStatus   = errors.New("invalid request status")
	ErrRequestClosed   = errors.New("request is in a terminal status")
)

type RequestService interface {
	// Transition moves the request to the given status. Same-status calls are
	// accepted and do nothing. Terminal requests reject every transition.
	Transition(requestID uint, next model.RequestStatus, now time.Time) (*model.BuybackRequest, error)
	GetByID(requestID uint) (*model.BuybackRequest, error)
	GetUserRequest(userID, requestID uint) (*model.BuybackRequest, error)
	ListByUser(userID uint) ([]model.BuybackRequest, error)
	ListAll(statusFilter model.RequestStatus) ([]model.BuybackRequest, error)
}

type requestService struct {
	requestRepo repository.RequestRepository
	notifier    NotificationService
	db          *gorm.DB
}

func NewRequestService(requestRepo repository.RequestRepository, notifier NotificationService, db *gorm.DB) RequestService {
	return &requestService{
		requestRepo: requestRepo,
		notifier:    notifier,
		db:          db,
	}
}

func (s *requestService) Transition(requestID uint, next model.RequestStatus, now time.Time) (*model.BuybackRequest, error) {
	if !next.IsValid() {
		logger.Warn("Rejected transition to unknown status", map[string]interface{}{
			"request_id": requestID,
			"status":     next,
		})
		return nil, ErrInvalidStatus
	}

	// 判定と更新は同一トランザクション内の行ロック下で行う。並行する
	// 遷移同士が同じ状態を読んでから書くと、終端状態を上書きしたり
	// 同じ previous_status の履歴が二重に積まれたりするため。
	var (
		previous model.RequestStatus
		noop     bool
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var current model.BuybackRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&current, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}

		// 同一状態への再設定は履歴も updated_at も動かさない
		if current.Status == next {
			noop = true
			return nil
		}

		if current.Status.IsTerminal() {
			return ErrRequestClosed
		}

		previous = current.Status
		requestRepo := s.requestRepo.WithTx(tx)
		if err := requestRepo.UpdateStatus(requestID, next); err != nil {
			return err
		}
		return requestRepo.AppendHistory(&model.StatusHistory{
			RequestID:      requestID,
			PreviousStatus: previous,
			NewStatus:      next,
			ChangedAt:      now,
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			return nil, ErrRequestNotFound
		case errors.Is(err, ErrRequestClosed):
			logger.Warn("Rejected transition out of terminal status", map[string]interface{}{
				"request_id": requestID,
				"requested":  next,
			})
			return nil, ErrRequestClosed
		}
		logger.Error("Failed to apply status transition", err, map[string]interface{}{
			"request_id": requestID,
			"next":       next,
		})
		return nil, err
	}

	request, err := s.requestRepo.FindByID(requestID)
	if err != nil {
		logger.Error("Failed to reload request after transition", err, map[string]interface{}{
			"request_id": requestID,
		})
		return nil, err
	}

	if noop {
		logger.Debug("Transition is a no-op: status unchanged", map[string]interface{}{
			"request_id": requestID,
			"status":     next,
		})
		return request, nil
	}

	logger.Info("Request status updated", map[string]interface{}{
		"request_id": requestID,
		"previous":   previous,
		"next":       next,
	})

	if s.notifier != nil {
		s.notifier.NotifyStatusChange(request, previous, next)
	}

	return request, nil
}

func (s *requestService) GetByID(requestID uint) (*model.BuybackRequest, error) {
	request, err := s.requestRepo.FindByID(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

func (s *requestService) GetUserRequest(userID, requestID uint) (*model.BuybackRequest, error) {
	request, err := s.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if request.UserID != userID {
		logger.Warn("Request access denied: ownership mismatch", map[string]interface{}{
			"user_id":    userID,
			"request_id": requestID,
			"owner_id":   request.UserID,
		})
		return nil, ErrRequestNotFound
	}
	return request, nil
}

func (s *requestService) ListByUser(userID uint) ([]model.BuybackRequest, error) {
	return s.requestRepo.FindByUserID(userID)
}

func (s *requestService) ListAll(statusFilter model.RequestStatus) ([]model.BuybackRequest, error) {
	if statusFilter != "" && !statusFilter.IsValid() {
		return nil, ErrInvalidStatus
	}
	return s.requestRepo.FindAll(statusFilter)
}
