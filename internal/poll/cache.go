package poll

import (
	"encoding/json"
	"fmt"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
)

// SnapshotsKey 是一个Redis Hash，缓存所有投票的序列化快照。
// Field: 投票ID
// Value: Snapshot的JSON序列化字符串
const SnapshotsKey = "poll:snapshots"

// RefreshCachedSnapshot 在每次变更提交后把新快照写入缓存。
// 尽力而为：Redis不可用时只打日志，读取方会回退到数据库。
func RefreshCachedSnapshot(snap *Snapshot) {
	if database.RDB == nil || !database.IsRedisHealthy() {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		fmt.Printf("警告: 无法序列化投票快照 %s: %v\n", snap.ID, err)
		return
	}
	if err := database.RDB.HSet(database.Ctx, SnapshotsKey, snap.ID, payload).Err(); err != nil {
		fmt.Printf("警告: 无法刷新投票快照缓存 %s: %v\n", snap.ID, err)
	}
}

// getCachedSnapshot 尝试从缓存读取单个投票的快照。
func getCachedSnapshot(pollID string) (*Snapshot, bool) {
	if database.RDB == nil || !database.IsRedisHealthy() {
		return nil, false
	}
	payload, err := database.RDB.HGet(database.Ctx, SnapshotsKey, pollID).Result()
	if err != nil {
		return nil, false
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		fmt.Printf("警告: 投票快照缓存损坏 %s: %v\n", pollID, err)
		return nil, false
	}
	return &snap, true
}

// WarmupCache 从数据库重建全部投票的快照并写入Redis。
// 启动时和Redis重启后的缓存重建都会调用它。
func WarmupCache() error {
	if database.RDB == nil {
		return nil
	}
	snaps, err := ListAll()
	if err != nil {
		return err
	}

	pipe := database.RDB.Pipeline()
	// 先清空旧的缓存，确保数据一致性
	pipe.Del(database.Ctx, SnapshotsKey)
	for _, snap := range snaps {
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("无法序列化投票快照 %s: %w", snap.ID, err)
		}
		pipe.HSet(database.Ctx, SnapshotsKey, snap.ID, payload)
	}
	if _, err := pipe.Exec(database.Ctx); err != nil {
		return fmt.Errorf("预热投票快照到Redis失败: %w", err)
	}

	fmt.Printf("成功预热 %d 个投票快照到Redis。\n", len(snaps))
	return nil
}
