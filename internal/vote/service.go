package vote

import (
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/broadcast"
	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/internal/poll"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/SlpAus/live-polls-backend/pkg/keyedmutex"
	"gorm.io/gorm"
)

// pollLocks 按投票ID串行化所有变更操作。
// 同一个投票上的cast/change/close/reset互相排队，不同投票互不阻塞。
// 临界区覆盖：加锁 → 事务变更 → 构建快照 → 刷新缓存 → 广播 → 解锁。
// 广播在解锁前发出，因此订阅者看到的快照顺序与提交顺序一致。
var pollLocks = keyedmutex.New()

// VoteStatus 是投票状态查询的结果。
type VoteStatus struct {
	HasVoted bool   `json:"has_voted"`
	OptionID string `json:"option_id,omitempty"`
}

// loadPollForUpdate 在事务中加载投票实体，不存在时返回NotFound。
func loadPollForUpdate(tx *gorm.DB, pollID string) (*poll.Poll, error) {
	var p poll.Poll
	err := tx.Preload("Options").Where("id = ?", pollID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.New(apperror.KindNotFound, "投票不存在")
	}
	if err != nil {
		return nil, fmt.Errorf("查询投票失败: %w", err)
	}
	return &p, nil
}

// optionBelongs 检查选项是否属于该投票。
func optionBelongs(p *poll.Poll, optionID string) bool {
	for _, opt := range p.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// touchPoll 更新投票的updated_at，使快照携带本次变更的时间戳。
func touchPoll(tx *gorm.DB, pollID string) error {
	return tx.Model(&poll.Poll{}).Where("id = ?", pollID).
		Update("updated_at", time.Now()).Error
}

// commitAndPublish 是四个变更操作共用的尾部：
// 在临界区内构建提交后的权威快照，刷新缓存并推送给订阅者。
func commitAndPublish(pollID string) (*poll.Snapshot, error) {
	snap, err := poll.BuildSnapshot(database.DB, pollID)
	if err != nil {
		return nil, err
	}
	poll.RefreshCachedSnapshot(snap)
	broadcast.Publish(snap)
	return snap, nil
}

// CastVote 为用户在投票上记录首次选择。
// 状态机：NotVoted → Voted(option)。已投票的用户会收到Conflict。
func CastVote(pollID, userID, optionID string) (*poll.Snapshot, error) {
	pollLocks.Lock(pollID)
	defer pollLocks.Unlock(pollID)

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		p, err := loadPollForUpdate(tx, pollID)
		if err != nil {
			return err
		}
		if p.IsClosed {
			return apperror.New(apperror.KindValidation, "投票已关闭")
		}
		if !optionBelongs(p, optionID) {
			return apperror.New(apperror.KindNotFound, "选项不存在")
		}

		// 权威检查：客户端缓存的has_voted只是提示，这里才算数
		var existing poll.Vote
		err = tx.Where("poll_id = ? AND user_id = ?", pollID, userID).First(&existing).Error
		if err == nil {
			return apperror.New(apperror.KindConflict, "已经投过票")
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("查询选票失败: %w", err)
		}

		if err := tx.Create(&poll.Vote{
			PollID:   pollID,
			UserID:   userID,
			OptionID: optionID,
		}).Error; err != nil {
			// 唯一索引是并发重复投票的最后一道防线
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.New(apperror.KindConflict, "已经投过票")
			}
			return fmt.Errorf("无法记录选票: %w", err)
		}
		return touchPoll(tx, pollID)
	})
	if err != nil {
		return nil, err
	}

	return commitAndPublish(pollID)
}

// ChangeVote 把用户的选择改到另一个选项。
// 状态机：Voted(option) → Voted(option')。总票数不变。
// 改到当前选项是幂等的无操作，返回当前状态且不触发广播。
func ChangeVote(pollID, userID, optionID string) (*poll.Snapshot, error) {
	pollLocks.Lock(pollID)
	defer pollLocks.Unlock(pollID)

	noop := false
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		p, err := loadPollForUpdate(tx, pollID)
		if err != nil {
			return err
		}
		if p.IsClosed {
			return apperror.New(apperror.KindValidation, "投票已关闭")
		}
		if !optionBelongs(p, optionID) {
			return apperror.New(apperror.KindNotFound, "选项不存在")
		}

		var existing poll.Vote
		err = tx.Where("poll_id = ? AND user_id = ?", pollID, userID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.New(apperror.KindValidation, "尚未投票，无法更改")
		}
		if err != nil {
			return fmt.Errorf("查询选票失败: %w", err)
		}

		if existing.OptionID == optionID {
			noop = true
			return nil
		}

		if err := tx.Model(&existing).Update("option_id", optionID).Error; err != nil {
			return fmt.Errorf("无法更改选票: %w", err)
		}
		return touchPoll(tx, pollID)
	})
	if err != nil {
		return nil, err
	}

	if noop {
		return poll.BuildSnapshot(database.DB, pollID)
	}
	return commitAndPublish(pollID)
}

// ClosePoll 关闭投票，此后拒绝一切投票操作。只有创建者可以关闭。
// 对已关闭的投票重复关闭是幂等的成功。
func ClosePoll(pollID, requesterID string) (*poll.Snapshot, error) {
	pollLocks.Lock(pollID)
	defer pollLocks.Unlock(pollID)

	alreadyClosed := false
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		p, err := loadPollForUpdate(tx, pollID)
		if err != nil {
			return err
		}
		if p.CreatorID != requesterID {
			return apperror.New(apperror.KindForbidden, "只有创建者可以关闭投票")
		}
		if p.IsClosed {
			alreadyClosed = true
			return nil
		}
		if err := tx.Model(&poll.Poll{}).Where("id = ?", pollID).
			Update("is_closed", true).Error; err != nil {
			return fmt.Errorf("无法关闭投票: %w", err)
		}
		return touchPoll(tx, pollID)
	})
	if err != nil {
		return nil, err
	}

	if alreadyClosed {
		return poll.BuildSnapshot(database.DB, pollID)
	}
	return commitAndPublish(pollID)
}

// ResetPoll 清空投票的全部选票，所有用户回到NotVoted状态。
// 只有创建者可以重置。is_closed保持不变：重置不等于重新开放。
func ResetPoll(pollID, requesterID string) (*poll.Snapshot, error) {
	pollLocks.Lock(pollID)
	defer pollLocks.Unlock(pollID)

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		p, err := loadPollForUpdate(tx, pollID)
		if err != nil {
			return err
		}
		if p.CreatorID != requesterID {
			return apperror.New(apperror.KindForbidden, "只有创建者可以重置投票")
		}
		if err := tx.Where("poll_id = ?", pollID).Delete(&poll.Vote{}).Error; err != nil {
			return fmt.Errorf("无法清空选票: %w", err)
		}
		return touchPoll(tx, pollID)
	})
	if err != nil {
		return nil, err
	}

	return commitAndPublish(pollID)
}

// CheckVote 返回用户在投票上的当前状态。只读，无副作用，
// 客户端可以在任何时刻安全地重复调用。
func CheckVote(pollID, userID string) (*VoteStatus, error) {
	// 确认投票存在，让未知ID返回404而不是空状态
	if _, err := poll.GetSnapshot(pollID); err != nil {
		return nil, err
	}

	var v poll.Vote
	err := database.DB.Where("poll_id = ? AND user_id = ?", pollID, userID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &VoteStatus{HasVoted: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询选票失败: %w", err)
	}
	return &VoteStatus{HasVoted: true, OptionID: v.OptionID}, nil
}
