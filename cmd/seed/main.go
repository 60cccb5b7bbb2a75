package main

import (
	"fmt"
	"log"

	"github.com/mkobayashi/kaitori-backend/config"
	"github.com/mkobayashi/kaitori-backend/internal/app/model"
	"github.com/mkobayashi/kaitori-backend/internal/db"
	"github.com/mkobayashi/kaitori-backend/pkg/util"
)

// 開発用の初期データ投入。既存データがある場合は何もしない。
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	gormDB := db.GetDB()

	var userCount int64
	gormDB.Model(&model.User{}).Count(&userCount)
	if userCount > 0 {
		fmt.Println("Database already seeded, skipping.")
		return
	}

	// デモユーザー
	users := []struct {
		email    string
		name     string
		password string
		role     model.UserRole
	}{
		{"tanaka@example.com", "田中太郎", "password123", model.RoleUser},
		{"staff@kaitori.example.com", "査定担当", "staffpass123", model.RoleStaff},
		{"admin@kaitori.example.com", "管理者", "adminpass123", model.RoleAdmin},
	}
	for _, u := range users {
		hash, err := util.HashPassword(u.password)
		if err != nil {
			log.Fatal("Failed to hash password:", err)
		}
		user := &model.User{
			Email:        u.email,
			PasswordHash: hash,
			Name:         u.name,
			Role:         u.role,
		}
		if err := gormDB.Create(user).Error; err != nil {
			log.Fatal("Failed to create user:", err)
		}
		fmt.Printf("Created user: %s (%s)\n", u.email, u.role)
	}

	// 買取カタログ
	variants := []model.Variant{
		{ModelName: "iPhone 13 Pro", Category: model.CategoryIPhone, UnitPrice: 45000, StockCeiling: 20},
		{ModelName: "iPhone 14", Category: model.CategoryIPhone, UnitPrice: 58000, StockCeiling: 15},
		{ModelName: "iPhone 15 Pro Max", Category: model.CategoryIPhone, UnitPrice: 120000, StockCeiling: 10},
		{ModelName: "Nikon D850", Category: model.CategoryCamera, UnitPrice: 150000, StockCeiling: 5},
		{ModelName: "Canon EOS R6", Category: model.CategoryCamera, UnitPrice: 180000, StockCeiling: 5},
		{ModelName: "PlayStation 5", Category: model.CategoryConsole, UnitPrice: 30000, StockCeiling: 30},
		{ModelName: "Nintendo Switch 有機EL", Category: model.CategoryConsole, UnitPrice: 22000, StockCeiling: 25},
	}
	if err := gormDB.Create(&variants).Error; err != nil {
		log.Fatal("Failed to create variants:", err)
	}
	fmt.Printf("Created %d variants\n", len(variants))

	fmt.Println("Seed completed.")
}
