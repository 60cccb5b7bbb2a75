package service

import (
	"errors"

	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/app/repository"
	"gorm.io/gorm"
)

// VariantService 買取対象カタログの読み取り。価格・上限の管理は対象外。
type VariantService interface {
	GetAllVariants() ([]model.Variant, error)
	GetVariantByID(id uint) (*model.Variant, error)
}

type variantService struct {
	variantRepo repository.VariantRepository
}

func NewVariantService(variantRepo repository.VariantRepository) VariantService {
	return &variantService{variantRepo: variantRepo}
}

func (s *variantService) GetAllVariants() ([]model.Variant, error) {
	return s.variantRepo.FindAll()
}

func (s *variantService) GetVariantByID(id uint) (*model.Variant, error) {
	variant, err := s.variantRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariantNotFound
		}
		return nil, err
	}
	return variant, nil
}
