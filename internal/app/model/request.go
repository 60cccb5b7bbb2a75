package model

import (
	"time"

	"gorm.io/gorm"
)

type RequestStatus string  // 買取申込の状態コード
type PurchaseMethod string // 買取方法

const (
	StatusReceived          RequestStatus = "申込受付" // 受付完了
	StatusAssessmentStarted RequestStatus = "査定開始" // 査定開始
	StatusAssessing         RequestStatus = "査定中"  // 査定中
	StatusAssessmentDone    RequestStatus = "査定完了" // 査定完了
	StatusPaymentProcessing RequestStatus = "入金処理" // 入金処理中
	StatusPaymentDone       RequestStatus = "入金完了" // 入金完了 (終端)
	StatusCancelled         RequestStatus = "キャンセル済み" // キャンセル (終端)

	MethodShipping PurchaseMethod = "shipping" // 宅配買取
	MethodInstore  PurchaseMethod = "instore"  // 店頭買取
)

// AllStatuses 許可された状態の全集合 (申込パイプラインの順)
var AllStatuses = []RequestStatus{
	StatusReceived,
	StatusAssessmentStarted,
	StatusAssessing,
	StatusAssessmentDone,
	StatusPaymentProcessing,
	StatusPaymentDone,
	StatusCancelled,
}

// IsValid reports whether s belongs to the allowed status vocabulary
func (s RequestStatus) IsValid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal 入金完了とキャンセル済みはそれ以上遷移できない
func (s RequestStatus) IsTerminal() bool {
	return s == StatusPaymentDone || s == StatusCancelled
}

// IsValid reports whether m is a known purchase method
func (m PurchaseMethod) IsValid() bool {
	return m == MethodShipping || m == MethodInstore
}

// BuybackRequest 買取申込。Items はチェックアウト時点の価格スナップショットで、
// 以後カタログ価格が変わっても再計算されない。TotalPrice は常にサーバー側で
// 算出した値が正となる。
type BuybackRequest struct {
	ID                uint           `gorm:"primarykey" json:"id"`
	ReservationNumber string         `gorm:"type:varchar(30);uniqueIndex;not null" json:"reservation_number"` // 予約番号
	UserID            uint           `gorm:"not null;index" json:"user_id"`
	Status            RequestStatus  `gorm:"type:varchar(20);default:'申込受付'" json:"status"`
	PurchaseMethod    PurchaseMethod `gorm:"type:varchar(20);default:'shipping'" json:"purchase_method"`
	TotalPrice        int64          `gorm:"not null" json:"total_price"` // 合計金額(円、サーバー算出)
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	User    User                 `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Items   []BuybackRequestItem `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	History []StatusHistory      `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"history,omitempty"`
}

func (BuybackRequest) TableName() string {
	return "buyback_requests"
}

// BuybackRequestItem 申込明細。単価は申込時点の値で固定される。
type BuybackRequestItem struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	RequestID uint           `gorm:"not null;index" json:"request_id"`
	VariantID uint           `gorm:"not null;index" json:"variant_id"`
	Color     string         `gorm:"type:varchar(50)" json:"color"`
	Capacity  *string        `gorm:"type:varchar(50)" json:"capacity,omitempty"`
	Quantity  int            `gorm:"not null" json:"quantity"`
	UnitPrice int64          `gorm:"not null" json:"unit_price"` // 申込時点の買取単価(円)
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Request BuybackRequest `gorm:"foreignKey:RequestID" json:"-"`
	Variant Variant        `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
}

func (BuybackRequestItem) TableName() string {
	return "buyback_request_items"
}

// StatusHistory 状態遷移の監査記録。追記のみで、更新も削除もされない。
type StatusHistory struct {
	ID             uint          `gorm:"primarykey" json:"id"`
	RequestID      uint          `gorm:"not null;index" json:"request_id"`
	PreviousStatus RequestStatus `gorm:"type:varchar(20)" json:"previous_status"` // 初回受付時は空
	NewStatus      RequestStatus `gorm:"type:varchar(20);not null" json:"new_status"`
	ChangedAt      time.Time     `gorm:"not null" json:"changed_at"`
}

func (StatusHistory) TableName() string {
	return "status_histories"
}
