package startup

import (
	"fmt"

	"github.com/SlpAus/live-polls-backend/internal/auth"
	"github.com/SlpAus/live-polls-backend/internal/poll"
	"github.com/SlpAus/live-polls-backend/internal/session"
	"github.com/SlpAus/live-polls-backend/internal/user"
)

// InitializeApplication 是应用首次启动时执行的总入口
func InitializeApplication() error {
	fmt.Println("开始应用首次初始化...")

	if err := user.PrimeDB(); err != nil {
		return err
	}
	if err := auth.PrimeDB(); err != nil {
		return err
	}
	if err := session.PrimeCachedDB(); err != nil {
		return err
	}
	if err := poll.PrimeCachedDB(); err != nil {
		return err
	}

	fmt.Println("应用初始化完成！")
	return nil
}

// RebuildCache 是一个专门用于在运行时热重建Redis缓存的函数。
// Redis重启后它从数据库把快照缓存和会话缓存恢复到最新状态。
func RebuildCache() error {
	fmt.Println("开始缓存热重建...")

	if err := poll.WarmupCache(); err != nil {
		return err
	}
	if err := session.WarmupCache(); err != nil {
		return err
	}

	fmt.Println("缓存热重建完成。")
	return nil
}
