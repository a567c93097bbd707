package auth

import (
	"time"
)

// ChallengeKind 区分挑战所属的仪式类型
type ChallengeKind string

const (
	// KindRegistration 表示注册仪式 (navigator.credentials.create)
	KindRegistration ChallengeKind = "registration"
	// KindAuthentication 表示认证仪式 (navigator.credentials.get)
	KindAuthentication ChallengeKind = "authentication"
)

// Challenge 定义了进行中的WebAuthn仪式在数据库中的持久化模型。
// 每个(用户名, 仪式类型)最多只有一条记录；重新begin会覆盖旧挑战。
// 挑战是严格一次性的：finish验证与删除在同一个事务中完成，
// 重放同一个凭证响应必然失败。
type Challenge struct {
	ID uint `gorm:"primarykey"`

	// Username 是发起仪式的用户名。
	Username string `gorm:"uniqueIndex:idx_challenge_username_kind;not null"`

	// Kind 是仪式类型。
	Kind ChallengeKind `gorm:"uniqueIndex:idx_challenge_username_kind;not null"`

	// Data 是go-webauthn的SessionData的JSON序列化，
	// 其中包含挑战字节、用户handle和允许的凭证ID列表。
	Data []byte `gorm:"not null"`

	// Subject 仅在注册仪式中使用：待创建用户的JSON快照
	// (ID、用户名、昵称、handle)。finish阶段据此重建用户对象，
	// 避免在仪式完成前就向users表写入半成品身份。
	Subject []byte

	CreatedAt time.Time
	// ExpiresAt 之后挑战不再可用；由finish惰性检查，并由后台清扫器回收。
	ExpiresAt time.Time `gorm:"index"`
}
