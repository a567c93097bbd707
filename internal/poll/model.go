package poll

import (
	"time"
)

// Poll 定义了投票在数据库中的持久化模型。
// 创建后就地变更（投票、关闭、重置），不会被删除。
type Poll struct {
	// ID 是投票的主键，UUID v7字符串。
	ID string `gorm:"primarykey;type:varchar(36)"`

	// Question 是投票的问题文本。
	Question string `gorm:"not null"`

	// CreatorID 是创建者的用户ID，关闭/重置操作只对创建者开放。
	CreatorID string `gorm:"index;type:varchar(36);not null"`

	// IsClosed 为true时投票变为只读，仍可查询和订阅。
	IsClosed bool `gorm:"not null;default:false"`

	// Options 是该投票的所有选项。
	Options []Option `gorm:"foreignKey:PollID"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// Option 定义了投票选项的持久化模型，由其所属Poll独占。
// 票数不落库：它永远是votes表中该选项的行数，由构造保证不漂移。
type Option struct {
	// ID 是选项的主键，UUID v7字符串。
	ID string `gorm:"primarykey;type:varchar(36)"`

	// PollID 是所属投票的ID。
	PollID string `gorm:"index;type:varchar(36);not null"`

	// Text 是选项文本。
	Text string `gorm:"not null"`

	// Position 保持选项的创建顺序，用于稳定展示。
	Position int `gorm:"not null"`
}

// Vote 定义了单个用户在单个投票上的选择。
// (poll_id, user_id)上的唯一索引在模式层面保证了一人一票：
// 并发的重复投票会被数据库拒绝，而不依赖应用层检查。
type Vote struct {
	ID uint `gorm:"primarykey"`

	PollID   string `gorm:"uniqueIndex:idx_vote_poll_user;type:varchar(36);not null"`
	UserID   string `gorm:"uniqueIndex:idx_vote_poll_user;type:varchar(36);not null"`
	OptionID string `gorm:"index;type:varchar(36);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// --- 快照DTO ---
// 快照是投票的完整当前状态，与客户端的Poll JSON逐字段对应。
// 广播中心推送的也是这个结构，永远是全量而不是增量。

// Snapshot 是单个投票的完整API表示。
type Snapshot struct {
	ID         string           `json:"id"`
	Question   string           `json:"question"`
	CreatorID  string           `json:"creator_id"`
	Options    []OptionSnapshot `json:"options"`
	IsClosed   bool             `json:"is_closed"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	TotalVotes int              `json:"total_votes"`
}

// OptionSnapshot 是单个选项的API表示。
// Votes恒等于len(Voters)，两者都从votes表现算。
type OptionSnapshot struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Votes  int      `json:"votes"`
	Voters []string `json:"voters"`
}
