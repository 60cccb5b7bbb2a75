package repository

import (
	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"gorm.io/gorm"
)

type RequestRepository interface {
	Create(request *model.BuybackRequest) error
	FindByID(id uint) (*model.BuybackRequest, error)
	FindByReservationNumber(number string) (*model.BuybackRequest, error)
	FindByUserID(userID uint) ([]model.BuybackRequest, error)
	FindAll(statusFilter model.RequestStatus) ([]model.BuybackRequest, error)
	UpdateStatus(requestID uint, status model.RequestStatus) error
	AppendHistory(entry *model.StatusHistory) error
	FindHistory(requestID uint) ([]model.StatusHistory, error)
	WithTx(tx *gorm.DB) RequestRepository
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) WithTx(tx *gorm.DB) RequestRepository {
	return &requestRepository{db: tx}
}

func (r *requestRepository) Create(request *model.BuybackRequest) error {
	return r.db.Create(request).Error
}

func (r *requestRepository) FindByID(id uint) (*model.BuybackRequest, error) {
	var request model.BuybackRequest
	err := r.db.Preload("Items").Preload("Items.Variant").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("status_histories.changed_at, status_histories.id")
		}).
		First(&request, id).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) FindByReservationNumber(number string) (*model.BuybackRequest, error) {
	var request model.BuybackRequest
	err := r.db.Preload("Items").
		Where("reservation_number = ?", number).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *requestRepository) FindByUserID(userID uint) ([]model.BuybackRequest, error) {
	var requests []model.BuybackRequest
	err := r.db.Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) FindAll(statusFilter model.RequestStatus) ([]model.BuybackRequest, error) {
	var requests []model.BuybackRequest
	query := r.db.Preload("Items").Order("created_at DESC")
	if statusFilter != "" {
		query = query.Where("status = ?", statusFilter)
	}
	if err := query.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) UpdateStatus(requestID uint, status model.RequestStatus) error {
	return r.db.Model(&model.BuybackRequest{}).
		Where("id = ?", requestID).
		Update("status", status).Error
}

func (r *requestRepository) AppendHistory(entry *model.StatusHistory) error {
	return r.db.Create(entry).Error
}

func (r *requestRepository) FindHistory(requestID uint) ([]model.StatusHistory, error) {
	var history []model.StatusHistory
	err := r.db.Where("request_id = ?", requestID).
		Order("changed_at, id").
		Find(&history).Error
	if err != nil {
		return nil, err
	}
	return history, nil
}
