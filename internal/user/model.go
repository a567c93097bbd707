package user

import (
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"gorm.io/gorm"
)

// User 定义了用户在数据库中的持久化模型。
// 身份在注册完成时创建，之后不可变；凭证可以后续追加。
type User struct {
	// ID 是用户的主键，UUID v7字符串。
	ID string `gorm:"primarykey;type:varchar(36)" json:"id"`

	// Username 是全局唯一的用户名，区分大小写。
	Username string `gorm:"uniqueIndex;not null" json:"username"`

	// DisplayName 是展示用的昵称。
	DisplayName string `json:"display_name"`

	// WebAuthnHandle 是WebAuthn user handle的不透明随机字节。
	// 它被下发给浏览器认证器，绝不使用用户名本身。
	WebAuthnHandle []byte `gorm:"not null" json:"-"`

	// Credentials 是该用户拥有的所有WebAuthn凭证。
	Credentials []Credential `gorm:"foreignKey:UserID" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Credential 定义了单个WebAuthn公钥凭证的持久化模型。
// 每个凭证由且仅由一个用户独占。
type Credential struct {
	// CredentialID 是认证器生成的凭证ID，全局唯一。
	CredentialID []byte `gorm:"primarykey" json:"-"`

	// UserID 是凭证所属用户的ID。
	UserID string `gorm:"index;type:varchar(36);not null" json:"-"`

	// PublicKey 是COSE编码的公钥。
	PublicKey []byte `gorm:"not null" json:"-"`

	// AttestationType 记录注册时使用的attestation格式（默认"none"）。
	AttestationType string `json:"-"`

	// Transport 是逗号分隔的认证器传输方式列表（usb/nfc/ble/internal）。
	Transport string `json:"-"`

	// AAGUID 标识认证器的型号。
	AAGUID []byte `json:"-"`

	// SignCount 是认证器维护的单调签名计数器。
	// 每次成功认证后必须更新；不增长说明凭证可能被克隆。
	SignCount uint32 `json:"-"`

	// BackupEligible / BackupState 记录凭证的备份标志位。
	BackupEligible bool `json:"-"`
	BackupState    bool `json:"-"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// --- webauthn.User 接口实现 ---
// go-webauthn库通过这个接口读取用户身份和已注册凭证。

// WebAuthnID 返回用户的不透明handle字节。
func (u *User) WebAuthnID() []byte {
	return u.WebAuthnHandle
}

// WebAuthnName 返回用户名。
func (u *User) WebAuthnName() string {
	return u.Username
}

// WebAuthnDisplayName 返回展示昵称，为空时退回用户名。
func (u *User) WebAuthnDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// WebAuthnIcon 已被WebAuthn规范废弃，返回空串。
func (u *User) WebAuthnIcon() string {
	return ""
}

// WebAuthnCredentials 将持久化的凭证转换为库所需的结构。
func (u *User) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.Credentials))
	for _, c := range u.Credentials {
		creds = append(creds, c.ToLibrary())
	}
	return creds
}
