package model

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string // 利用者権限

const (
	RoleUser  UserRole = "user"  // 一般ユーザー
	RoleStaff UserRole = "staff" // 査定スタッフ
	RoleAdmin UserRole = "admin" // 管理者
)

type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`                        // ユーザーID
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`           // メールアドレス (通知送付先)
	PasswordHash string         `gorm:"not null" json:"-"`                           // パスワードハッシュ
	Name         string         `gorm:"not null" json:"name"`                        // 氏名
	Role         UserRole       `gorm:"type:varchar(20);default:'user'" json:"role"` // 権限
	CreatedAt    time.Time      `json:"created_at"`                                  // 作成日時
	UpdatedAt    time.Time      `json:"updated_at"`                                  // 更新日時
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                              // 削除日時(論理削除)
}

func (User) TableName() string {
	return "users"
}
