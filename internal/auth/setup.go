package auth

import (
	"fmt"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
)

// PrimeDB 负责自动迁移auth模块的数据库表结构
func PrimeDB() error {
	if err := database.DB.AutoMigrate(&Challenge{}); err != nil {
		return fmt.Errorf("无法迁移challenge表: %w", err)
	}
	fmt.Println("Challenge数据库表迁移成功。")
	return nil
}

// SweepExpiredChallenges 删除所有已过期的挑战记录。
// 由session模块的后台清扫器周期性调用。
func SweepExpiredChallenges() (int64, error) {
	result := database.DB.Where("expires_at < ?", time.Now()).Delete(&Challenge{})
	if result.Error != nil {
		return 0, fmt.Errorf("清扫过期挑战失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}
