package repository

import (
	"time"

	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"gorm.io/gorm"
)

type CartRepository interface {
	// Sessions
	CreateSession(session *model.CartSession) error
	FindSessionByID(id uint) (*model.CartSession, error)
	FindActiveSessionByUser(userID uint) (*model.CartSession, error)
	UpdateSessionStatus(sessionID uint, status model.CartSessionStatus) error
	// FindStaleSessions returns active sessions whose deadline passed before now
	FindStaleSessions(now time.Time, limit int) ([]model.CartSession, error)

	// Items
	CreateItem(item *model.CartItem) error
	FindItemByID(id uint) (*model.CartItem, error)
	FindItemsBySession(sessionID uint) ([]model.CartItem, error)
	UpdateItemQuantity(itemID uint, quantity int) error
	DeleteItem(itemID uint) error
	DeleteItemsBySession(sessionID uint) error

	WithTx(tx *gorm.DB) CartRepository
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) WithTx(tx *gorm.DB) CartRepository {
	return &cartRepository{db: tx}
}

func (r *cartRepository) CreateSession(session *model.CartSession) error {
	return r.db.Create(session).Error
}

func (r *cartRepository) FindSessionByID(id uint) (*model.CartSession, error) {
	var session model.CartSession
	if err := r.db.First(&session, id).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *cartRepository) FindActiveSessionByUser(userID uint) (*model.CartSession, error) {
	var session model.CartSession
	err := r.db.Where("user_id = ? AND status = ?", userID, model.SessionActive).
		Order("created_at DESC").
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *cartRepository) UpdateSessionStatus(sessionID uint, status model.CartSessionStatus) error {
	return r.db.Model(&model.CartSession{}).
		Where("id = ?", sessionID).
		Update("status", status).Error
}

func (r *cartRepository) FindStaleSessions(now time.Time, limit int) ([]model.CartSession, error) {
	var sessions []model.CartSession
	err := r.db.Where("status = ? AND expires_at < ?", model.SessionActive, now).
		Order("expires_at").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *cartRepository) CreateItem(item *model.CartItem) error {
	return r.db.Create(item).Error
}

func (r *cartRepository) FindItemByID(id uint) (*model.CartItem, error) {
	var item model.CartItem
	if err := r.db.First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) FindItemsBySession(sessionID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := r.db.Preload("Variant").
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepository) UpdateItemQuantity(itemID uint, quantity int) error {
	return r.db.Model(&model.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", quantity).Error
}

func (r *cartRepository) DeleteItem(itemID uint) error {
	return r.db.Delete(&model.CartItem{}, itemID).Error
}

func (r *cartRepository) DeleteItemsBySession(sessionID uint) error {
	return r.db.Where("session_id = ?", sessionID).Delete(&model.CartItem{}).Error
}
