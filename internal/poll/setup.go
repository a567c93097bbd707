package poll

import (
	"fmt"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
)

// PrimeCachedDB 是poll模块的初始化总入口：迁移表并预热快照缓存。
func PrimeCachedDB() error {
	if err := database.DB.AutoMigrate(&Poll{}, &Option{}, &Vote{}); err != nil {
		return fmt.Errorf("无法迁移poll表: %w", err)
	}
	fmt.Println("Poll数据库表迁移成功。")

	if err := WarmupCache(); err != nil {
		return err
	}
	return nil
}
