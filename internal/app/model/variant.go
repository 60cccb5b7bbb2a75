package model

import (
	"time"

	"gorm.io/gorm"
)

type VariantCategory string

const (
	CategoryIPhone  VariantCategory = "iphone"
	CategoryCamera  VariantCategory = "camera"
	CategoryConsole VariantCategory = "console"
)

// Variant 買取対象の機種バリエーション。買取単価と受入上限はカタログ管理側が
// 設定し、この基盤は値を読むだけで在庫会計そのものには関与しない。
type Variant struct {
	ID           uint            `gorm:"primarykey" json:"id"`
	ModelName    string          `gorm:"not null" json:"model_name"`       // 機種名 (例: iPhone 13 Pro)
	Category     VariantCategory `gorm:"type:varchar(50)" json:"category"` // 区分
	UnitPrice    int64           `gorm:"not null" json:"unit_price"`       // 買取単価(円)
	StockCeiling int             `gorm:"default:0" json:"stock_ceiling"`   // 受入上限台数
	ImageURL     string          `json:"image_url"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `gorm:"index" json:"-"`

	// Relationships
	CartItems []CartItem `gorm:"foreignKey:VariantID" json:"-"`
}

func (Variant) TableName() string {
	return "variants"
}
