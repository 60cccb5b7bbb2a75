package repository

import (
	"errors"

	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HoldRepository 在庫ホールド台帳。予約数の増減は必ずこの2操作
// (TryClaim / Release) を通り、行ロック下で検査と更新を一体で行う。
// 上限超過の中間状態が外部から観測されることはない。
type HoldRepository interface {
	// TryClaim attempts to add qty to the variant's total hold. The claim
	// succeeds only if the new total stays within ceiling; otherwise the
	// ledger is left untouched and ok is false.
	TryClaim(variantID uint, qty int, ceiling int) (ok bool, newTotal int, err error)
	// Release subtracts qty from the variant's total hold, flooring at zero.
	Release(variantID uint, qty int) error
	// HeldQuantity returns the current total hold for the variant (0 if no row)
	HeldQuantity(variantID uint) (int, error)
	// WithTx returns a repository bound to the given transaction
	WithTx(tx *gorm.DB) HoldRepository
}

type holdRepository struct {
	db *gorm.DB
}

func NewHoldRepository(db *gorm.DB) HoldRepository {
	return &holdRepository{db: db}
}

func (r *holdRepository) WithTx(tx *gorm.DB) HoldRepository {
	return &holdRepository{db: tx}
}

func (r *holdRepository) TryClaim(variantID uint, qty int, ceiling int) (bool, int, error) {
	if qty <= 0 {
		return false, 0, errors.New("claim quantity must be positive")
	}

	var ok bool
	var newTotal int

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var hold model.InventoryHold
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("variant_id = ?", variantID).
			First(&hold).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 初回の同時要求が重なると素朴な Create は variant_id の一意制約に
			// 当たる。DO NOTHING で挿入し、勝敗によらずロック付きで読み直す。
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&model.InventoryHold{VariantID: variantID, Quantity: 0}).Error; err != nil {
				return err
			}
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("variant_id = ?", variantID).
				First(&hold).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if hold.Quantity+qty > ceiling {
			ok = false
			newTotal = hold.Quantity
			return nil
		}

		if err := tx.Model(&model.InventoryHold{}).
			Where("id = ?", hold.ID).
			Update("quantity", gorm.Expr("quantity + ?", qty)).Error; err != nil {
			return err
		}
		ok = true
		newTotal = hold.Quantity + qty
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return ok, newTotal, nil
}

func (r *holdRepository) Release(variantID uint, qty int) error {
	if qty <= 0 {
		return errors.New("release quantity must be positive")
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		var hold model.InventoryHold
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("variant_id = ?", variantID).
			First(&hold).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// 台帳行がないなら解放すべきものもない
			return nil
		} else if err != nil {
			return err
		}

		released := qty
		if released > hold.Quantity {
			released = hold.Quantity
		}
		if released == 0 {
			return nil
		}
		return tx.Model(&model.InventoryHold{}).
			Where("id = ?", hold.ID).
			Update("quantity", gorm.Expr("quantity - ?", released)).Error
	})
}

func (r *holdRepository) HeldQuantity(variantID uint) (int, error) {
	var hold model.InventoryHold
	err := r.db.Where("variant_id = ?", variantID).First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return hold.Quantity, nil
}
