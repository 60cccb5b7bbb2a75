package repository

import (
	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"gorm.io/gorm"
)

type VariantRepository interface {
	Create(variant *model.Variant) error
	FindByID(id uint) (*model.Variant, error)
	FindAll() ([]model.Variant, error)
}

type variantRepository struct {
	db *gorm.DB
}

func NewVariantRepository(db *gorm.DB) VariantRepository {
	return &variantRepository{db: db}
}

func (r *variantRepository) Create(variant *model.Variant) error {
	return r.db.Create(variant).Error
}

func (r *variantRepository) FindByID(id uint) (*model.Variant, error) {
	var variant model.Variant
	if err := r.db.First(&variant, id).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *variantRepository) FindAll() ([]model.Variant, error) {
	var variants []model.Variant
	if err := r.db.Order("id").Find(&variants).Error; err != nil {
		return nil, err
	}
	return variants, nil
}
