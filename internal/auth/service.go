package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/platform/config"
	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/internal/user"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"gorm.io/gorm"
)

// challengeTTL 是单个挑战的有效期。
// 浏览器端的仪式通常在几秒内完成，2分钟已经非常宽裕。
const challengeTTL = 2 * time.Minute

// webAuthn 是全局的go-webauthn实例，在InitWebAuthn中构造。
var webAuthn *webauthn.WebAuthn

// InitWebAuthn 根据配置初始化依赖方(Relying Party)身份。
func InitWebAuthn(cfg config.WebAuthnConfig) error {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return fmt.Errorf("无法初始化WebAuthn: %w", err)
	}
	webAuthn = wa
	fmt.Println("WebAuthn依赖方初始化成功。")
	return nil
}

// pendingSubject 是注册仪式期间随挑战一起持久化的用户身份快照。
type pendingSubject struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Handle      []byte `json:"handle"`
}

// CeremonyResult 是注册/认证仪式成功后返回给客户端的结果。
type CeremonyResult struct {
	Success     bool   `json:"success"`
	Username    string `json:"username"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// saveChallenge 持久化一个新挑战，覆盖同一(用户名, 类型)下的旧挑战。
// subject 仅在注册仪式中非空，携带待创建用户的身份快照。
func saveChallenge(username string, kind ChallengeKind, data *webauthn.SessionData, subject []byte) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("无法序列化SessionData: %w", err)
	}
	return database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ? AND kind = ?", username, kind).Delete(&Challenge{}).Error; err != nil {
			return err
		}
		return tx.Create(&Challenge{
			Username:  username,
			Kind:      kind,
			Data:      payload,
			Subject:   subject,
			ExpiresAt: time.Now().Add(challengeTTL),
		}).Error
	})
}

// consumeChallenge 在事务中原子地取出并删除挑战，保证严格一次性。
// 过期的挑战同样被删除，但返回失败。
func consumeChallenge(tx *gorm.DB, username string, kind ChallengeKind) (*webauthn.SessionData, []byte, error) {
	var ch Challenge
	err := tx.Where("username = ? AND kind = ?", username, kind).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperror.New(apperror.KindValidation, "没有进行中的仪式挑战")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("查询挑战失败: %w", err)
	}

	// 无论后续验证成败，挑战都在此处被消耗
	if err := tx.Delete(&ch).Error; err != nil {
		return nil, nil, fmt.Errorf("无法消耗挑战: %w", err)
	}

	if time.Now().After(ch.ExpiresAt) {
		return nil, nil, apperror.New(apperror.KindValidation, "仪式挑战已过期，请重新开始")
	}

	var data webauthn.SessionData
	if err := json.Unmarshal(ch.Data, &data); err != nil {
		return nil, nil, fmt.Errorf("无法反序列化SessionData: %w", err)
	}
	return &data, ch.Subject, nil
}

// BeginRegistration 开始注册仪式，生成并持久化挑战。
// 如果用户名已持有确认的凭证，返回Conflict。
func BeginRegistration(username, displayName string) (*protocol.CredentialCreation, error) {
	taken, err := user.HasCredentials(username)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperror.New(apperror.KindConflict, "用户名已被占用")
	}

	// 已存在但没有凭证的用户（上次注册被中断）复用原有身份和handle
	u, err := user.GetByUsername(username)
	if errors.Is(err, user.ErrNotFound) {
		u, err = user.NewUser(username, displayName)
	}
	if err != nil {
		return nil, err
	}
	u.DisplayName = displayName

	options, sessionData, err := webAuthn.BeginRegistration(u)
	if err != nil {
		return nil, fmt.Errorf("无法生成注册选项: %w", err)
	}

	subject, err := json.Marshal(pendingSubject{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Handle:      u.WebAuthnHandle,
	})
	if err != nil {
		return nil, fmt.Errorf("无法序列化用户快照: %w", err)
	}
	if err := saveChallenge(username, KindRegistration, sessionData, subject); err != nil {
		return nil, err
	}

	return options, nil
}

// FinishRegistration 校验注册响应，持久化用户与凭证，并消耗挑战。
func FinishRegistration(username string, parsed *protocol.ParsedCredentialCreationData) (*CeremonyResult, error) {
	var result *CeremonyResult
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		sessionData, subject, err := consumeChallenge(tx, username, KindRegistration)
		if err != nil {
			return err
		}

		var sub pendingSubject
		if err := json.Unmarshal(subject, &sub); err != nil || sub.ID == "" {
			return fmt.Errorf("无法恢复注册中的用户快照: %w", err)
		}
		u := &user.User{
			ID:             sub.ID,
			Username:       sub.Username,
			DisplayName:    sub.DisplayName,
			WebAuthnHandle: sub.Handle,
		}

		cred, err := webAuthn.CreateCredential(u, *sessionData, parsed)
		if err != nil {
			fmt.Printf("安全事件: 用户 %s 的注册仪式验证失败: %v\n", username, err)
			return apperror.Wrap(apperror.KindAuthentication, "注册凭证验证失败", err)
		}

		if err := user.CreateWithCredential(tx, u, cred); err != nil {
			if errors.Is(err, user.ErrUsernameTaken) {
				return apperror.New(apperror.KindConflict, "用户名已被占用")
			}
			return err
		}

		result = &CeremonyResult{
			Success:     true,
			Username:    u.Username,
			UserID:      u.ID,
			DisplayName: u.DisplayName,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// BeginAuthentication 开始认证仪式。
// 未知用户返回NotFound，但提示语刻意模糊，不单独确认用户是否存在。
func BeginAuthentication(username string) (*protocol.CredentialAssertion, error) {
	u, err := user.GetByUsername(username)
	if errors.Is(err, user.ErrNotFound) {
		return nil, apperror.New(apperror.KindNotFound, "用户名或凭证不可用")
	}
	if err != nil {
		return nil, err
	}
	if len(u.Credentials) == 0 {
		return nil, apperror.New(apperror.KindNotFound, "用户名或凭证不可用")
	}

	options, sessionData, err := webAuthn.BeginLogin(u)
	if err != nil {
		return nil, fmt.Errorf("无法生成认证选项: %w", err)
	}

	if err := saveChallenge(username, KindAuthentication, sessionData, nil); err != nil {
		return nil, err
	}
	return options, nil
}

// FinishAuthentication 校验认证响应：clientData、origin、挑战匹配、
// 签名和签名计数器全部由go-webauthn完成。任何一步失败都不产生部分成功。
func FinishAuthentication(username string, parsed *protocol.ParsedCredentialAssertionData) (*CeremonyResult, error) {
	u, err := user.GetByUsername(username)
	if errors.Is(err, user.ErrNotFound) {
		return nil, apperror.New(apperror.KindAuthentication, "认证失败")
	}
	if err != nil {
		return nil, err
	}

	var result *CeremonyResult
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		sessionData, _, err := consumeChallenge(tx, username, KindAuthentication)
		if err != nil {
			return err
		}

		cred, err := webAuthn.ValidateLogin(u, *sessionData, parsed)
		if err != nil {
			fmt.Printf("安全事件: 用户 %s 的认证仪式验证失败: %v\n", username, err)
			return apperror.Wrap(apperror.KindAuthentication, "认证失败", err)
		}

		// 签名计数器不增长意味着凭证可能已被克隆，拒绝认证。
		// 计数器恒为0的认证器（不支持计数）不会触发该标志。
		if cred.Authenticator.CloneWarning {
			fmt.Printf("安全事件: 用户 %s 的凭证签名计数器发生回退，疑似克隆认证器。\n", username)
			return apperror.New(apperror.KindAuthentication, "认证失败")
		}

		if err := user.UpdateCredential(tx, u.ID, cred); err != nil {
			return err
		}

		result = &CeremonyResult{
			Success:     true,
			Username:    u.Username,
			UserID:      u.ID,
			DisplayName: u.DisplayName,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
