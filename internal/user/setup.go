package user

import (
	"fmt"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
)

// PrimeDB 负责自动迁移user模块的数据库表结构
func PrimeDB() error {
	if err := database.DB.AutoMigrate(&User{}, &Credential{}); err != nil {
		return fmt.Errorf("无法迁移user表: %w", err)
	}
	fmt.Println("User数据库表迁移成功。")
	return nil
}
