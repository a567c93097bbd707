package session

import "time"

// Session 定义了会话令牌在数据库中的持久化模型。
// 数据库是会话的事实来源，Redis中的副本只是快速验证路径。
type Session struct {
	// Token 是256位熵的不透明令牌，Base64URL编码，作为主键。
	Token string `gorm:"primarykey;type:varchar(64)"`

	// UserID 是会话绑定的用户身份。
	UserID string `gorm:"index;type:varchar(36);not null"`

	CreatedAt time.Time
	// ExpiresAt 之后会话失效。会话是固定TTL的，验证不会隐式续期。
	ExpiresAt time.Time `gorm:"index"`
}
