package session

import (
	"fmt"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/pkg/lifecycle"
)

// sweepInterval 是后台清扫器两次运行之间的间隔
const sweepInterval = 10 * time.Minute

// PrimeCachedDB 是session模块的初始化总入口：迁移表并预热缓存。
func PrimeCachedDB() error {
	if err := database.DB.AutoMigrate(&Session{}); err != nil {
		return fmt.Errorf("无法迁移session表: %w", err)
	}
	fmt.Println("Session数据库表迁移成功。")

	if err := WarmupCache(); err != nil {
		return err
	}
	return nil
}

// SweepExpired 删除所有已过期的会话记录。
func SweepExpired() (int64, error) {
	result := database.DB.Where("expires_at < ?", time.Now()).Delete(&Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("清扫过期会话失败: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// StartSweeper 启动后台清扫器，周期性回收过期会话和其他模块注册的过期数据。
// extraSweeps 由main注入（比如auth模块的过期挑战清扫），避免包间循环依赖。
func StartSweeper(handle *lifecycle.Handle, extraSweeps ...func() (int64, error)) {
	go func() {
		defer handle.Close()
		fmt.Println("会话清扫器已启动。")

		for {
			if err := handle.Sleep(sweepInterval); err != nil {
				fmt.Println("会话清扫器: 收到停机信号，退出。")
				return
			}

			total := int64(0)
			if n, err := SweepExpired(); err != nil {
				fmt.Printf("警告: %v\n", err)
			} else {
				total += n
			}
			if _, err := FlushPendingRevocations(); err != nil {
				fmt.Printf("警告: %v\n", err)
			}
			for _, sweep := range extraSweeps {
				if n, err := sweep(); err != nil {
					fmt.Printf("警告: %v\n", err)
				} else {
					total += n
				}
			}
			if total > 0 {
				fmt.Printf("会话清扫器: 本轮回收了 %d 条过期记录。\n", total)
			}
		}
	}()
}
