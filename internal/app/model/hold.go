package model

import (
	"time"
)

// InventoryHold 有効なカートセッション全体が掴んでいるバリエーション毎の
// 合計予約数。必ず 0 以上かつ受入上限以下に保たれる。更新はホールド台帳の
// アトミック操作のみを通す。
type InventoryHold struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	VariantID uint      `gorm:"not null;uniqueIndex" json:"variant_id"` // 対象バリエーションID
	Quantity  int       `gorm:"not null;default:0" json:"quantity"`     // 予約中の合計数量
	UpdatedAt time.Time `json:"updated_at"`
}

func (InventoryHold) TableName() string {
	return "inventory_holds"
}
