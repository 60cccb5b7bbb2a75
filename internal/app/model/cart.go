package model

import (
	"time"

	"gorm.io/gorm"
)

type CartSessionStatus string // カートセッション状態

const (
	SessionActive   CartSessionStatus = "active"   // 有効
	SessionExpired  CartSessionStatus = "expired"  // 期限切れ (終端)
	SessionReleased CartSessionStatus = "released" // 確定/明示クリア済み (終端)
)

// CartSession 買物中カートの寿命を表す。ExpiresAt は作成時に一度だけ決まり、
// その後の操作で延長されることはない。
type CartSession struct {
	ID        uint              `gorm:"primarykey" json:"id"`                             // セッションID
	UserID    uint              `gorm:"not null;index" json:"user_id"`                    // 所有ユーザーID
	Status    CartSessionStatus `gorm:"type:varchar(20);default:'active'" json:"status"`  // 状態
	ExpiresAt time.Time         `gorm:"not null" json:"expires_at"`                       // 有効期限 (作成時刻 + TTL)
	CreatedAt time.Time         `json:"created_at"`                                       // 作成日時
	UpdatedAt time.Time         `json:"updated_at"`                                       // 更新日時
	DeletedAt gorm.DeletedAt    `gorm:"index" json:"-"`                                   // 削除日時(論理削除)

	User  User       `gorm:"foreignKey:UserID" json:"-"`
	Items []CartItem `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (CartSession) TableName() string {
	return "cart_sessions"
}

// IsExpired reports whether the session has passed its fixed deadline
func (s *CartSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// CartItem カート内の1明細。(session, variant, color, capacity) の組で一意であり、
// 同じ組への追加は行を増やさず数量を加算する。Capacity は「未指定(NULL)」と
// 空文字列を区別する。
type CartItem struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	SessionID uint           `gorm:"not null;index:idx_cart_item_identity" json:"session_id"`
	VariantID uint           `gorm:"not null;index:idx_cart_item_identity" json:"variant_id"`
	Color     string         `gorm:"type:varchar(50);index:idx_cart_item_identity" json:"color"`
	Capacity  *string        `gorm:"type:varchar(50);index:idx_cart_item_identity" json:"capacity,omitempty"`
	Quantity  int            `gorm:"not null;default:1" json:"quantity"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Session CartSession `gorm:"foreignKey:SessionID" json:"-"`
	Variant Variant     `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

// SameIdentity reports whether two items refer to the same selection
func (i *CartItem) SameIdentity(variantID uint, color string, capacity *string) bool {
	if i.VariantID != variantID || i.Color != color {
		return false
	}
	if i.Capacity == nil || capacity == nil {
		return i.Capacity == nil && capacity == nil
	}
	return *i.Capacity == *capacity
}
