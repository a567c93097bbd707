package user

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound 表示目标用户不存在。
var ErrNotFound = errors.New("用户不存在")

// ErrUsernameTaken 表示用户名已被持有凭证的用户占用。
var ErrUsernameTaken = errors.New("用户名已被占用")

// NewUser 构造一个尚未持久化的新用户：UUID v7主键加随机WebAuthn handle。
func NewUser(username, displayName string) (*User, error) {
	newUUID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成UUID v7: %w", err)
	}
	handle := make([]byte, 32)
	if _, err := rand.Read(handle); err != nil {
		return nil, fmt.Errorf("无法生成WebAuthn handle: %w", err)
	}
	return &User{
		ID:             newUUID.String(),
		Username:       username,
		DisplayName:    displayName,
		WebAuthnHandle: handle,
	}, nil
}

// GetByUsername 按用户名查找用户，并预加载其全部凭证。
// 用户名比较是区分大小写的（数据库列使用二进制排序规则/默认collation）。
func GetByUsername(username string) (*User, error) {
	var u User
	err := database.DB.Preload("Credentials").Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}

// GetByID 按主键查找用户。
func GetByID(id string) (*User, error) {
	var u User
	err := database.DB.Preload("Credentials").Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}

// HasCredentials 判断该用户名是否已经持有至少一个已确认的凭证。
// 注册开始前的冲突检查使用它，而不是单纯的用户存在性。
func HasCredentials(username string) (bool, error) {
	u, err := GetByUsername(username)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return len(u.Credentials) > 0, nil
}

// CreateWithCredential 在一个事务中创建用户及其第一个凭证。
// 如果用户已存在（注册被中断后重试），只追加凭证。
func CreateWithCredential(tx *gorm.DB, u *User, cred *webauthn.Credential) error {
	var existing User
	err := tx.Where("username = ?", u.Username).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameTaken
			}
			return fmt.Errorf("无法创建用户: %w", err)
		}
	case err != nil:
		return fmt.Errorf("查询用户失败: %w", err)
	default:
		*u = existing
	}

	record := NewCredentialFromLibrary(u.ID, cred)
	if err := tx.Create(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.New("凭证已被注册")
		}
		return fmt.Errorf("无法保存凭证: %w", err)
	}
	return nil
}

// UpdateCredential 在认证成功后回写凭证的签名计数器和备份标志。
func UpdateCredential(tx *gorm.DB, userID string, cred *webauthn.Credential) error {
	result := tx.Model(&Credential{}).
		Where("credential_id = ? AND user_id = ?", cred.ID, userID).
		Updates(map[string]interface{}{
			"sign_count":   cred.Authenticator.SignCount,
			"backup_state": cred.Flags.BackupState,
		})
	if result.Error != nil {
		return fmt.Errorf("无法更新凭证计数器: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.New("凭证不存在或不属于该用户")
	}
	return nil
}
