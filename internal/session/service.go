package session

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/platform/config"
	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/SlpAus/live-polls-backend/pkg/token"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// 撤销时Redis不可用会让session:token:<tok>键残留；如果Redis随后恢复
// 而没有重启（run_id不变，不触发缓存重建），快速路径会复活已撤销的会话。
// 这里记下未完成的缓存删除，由后台清扫器在Redis恢复后重放，
// 快速路径在重放完成前对这些令牌直接失效。
var (
	pendingMu          sync.Mutex
	pendingRevocations = make(map[string]struct{})
)

func deferRevocation(tok string) {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	pendingRevocations[tok] = struct{}{}
}

func isRevocationPending(tok string) bool {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	_, ok := pendingRevocations[tok]
	return ok
}

// FlushPendingRevocations 在Redis恢复后重放被延迟的缓存删除。
// 删除失败的令牌留在队列中等待下一轮。返回本轮完成的删除数。
func FlushPendingRevocations() (int64, error) {
	if database.RDB == nil || !database.IsRedisHealthy() {
		return 0, nil
	}

	pendingMu.Lock()
	toks := make([]string, 0, len(pendingRevocations))
	for tok := range pendingRevocations {
		toks = append(toks, tok)
	}
	pendingMu.Unlock()
	if len(toks) == 0 {
		return 0, nil
	}

	var flushed int64
	var lastErr error
	for _, tok := range toks {
		if err := database.RDB.Del(database.Ctx, tokenKey(tok)).Err(); err != nil {
			lastErr = err
			continue
		}
		pendingMu.Lock()
		delete(pendingRevocations, tok)
		pendingMu.Unlock()
		flushed++
	}
	if lastErr != nil {
		return flushed, fmt.Errorf("重放会话撤销失败: %w", lastErr)
	}
	return flushed, nil
}

// Issue 为指定用户签发一个新会话并持久化。
// Redis写入是尽力而为的：失败只影响验证的快速路径，不影响正确性。
func Issue(userID string) (*Session, error) {
	tok, err := token.New()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		Token:     tok,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl()),
	}
	if err := database.DB.Create(s).Error; err != nil {
		return nil, fmt.Errorf("无法持久化会话: %w", err)
	}

	cacheSession(s)
	return s, nil
}

// Validate 验证令牌并返回其绑定的用户ID。
// 优先走Redis快速路径；Redis不可用或未命中时回退到数据库。
// 过期检查以调用时的墙上时钟为准，不做隐式续期。
func Validate(tok string) (string, error) {
	if tok == "" {
		return "", apperror.New(apperror.KindAuthentication, "缺少会话")
	}

	if database.RDB != nil && database.IsRedisHealthy() && !isRevocationPending(tok) {
		userID, err := database.RDB.Get(database.Ctx, tokenKey(tok)).Result()
		if err == nil && userID != "" {
			return userID, nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			fmt.Printf("警告: 会话缓存读取失败，回退到数据库: %v\n", err)
		}
	}

	var s Session
	err := database.DB.Where("token = ?", tok).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperror.New(apperror.KindAuthentication, "会话无效或已过期")
	}
	if err != nil {
		return "", fmt.Errorf("查询会话失败: %w", err)
	}
	if time.Now().After(s.ExpiresAt) {
		return "", apperror.New(apperror.KindAuthentication, "会话无效或已过期")
	}

	// 数据库命中但缓存未命中，顺手回填
	cacheSession(&s)
	return s.UserID, nil
}

// Revoke 撤销一个令牌。幂等：未知令牌同样返回成功。
func Revoke(tok string) {
	if tok == "" {
		return
	}
	if err := database.DB.Where("token = ?", tok).Delete(&Session{}).Error; err != nil {
		fmt.Printf("警告: 会话撤销的数据库删除失败: %v\n", err)
	}
	if database.RDB == nil {
		return
	}
	if !database.IsRedisHealthy() {
		deferRevocation(tok)
		return
	}
	if err := database.RDB.Del(database.Ctx, tokenKey(tok)).Err(); err != nil {
		fmt.Printf("警告: 会话撤销的缓存删除失败，等待重放: %v\n", err)
		deferRevocation(tok)
	}
}

// cacheSession 将会话写入Redis，TTL为会话的剩余有效期。
func cacheSession(s *Session) {
	if database.RDB == nil || !database.IsRedisHealthy() {
		return
	}
	remaining := time.Until(s.ExpiresAt)
	if remaining <= 0 {
		return
	}
	if err := database.RDB.Set(database.Ctx, tokenKey(s.Token), s.UserID, remaining).Err(); err != nil {
		fmt.Printf("警告: 无法将会话写入Redis缓存: %v\n", err)
	}
}

// WarmupCache 从数据库加载所有未过期会话，预热到Redis。
// 启动时和Redis重启后的缓存重建都会调用它。
func WarmupCache() error {
	if database.RDB == nil {
		return nil
	}
	var sessions []Session
	if err := database.DB.Where("expires_at > ?", time.Now()).Find(&sessions).Error; err != nil {
		return fmt.Errorf("无法从数据库读取会话: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("无有效会话，无需预热会话缓存。")
		return nil
	}

	pipe := database.RDB.Pipeline()
	for i := range sessions {
		remaining := time.Until(sessions[i].ExpiresAt)
		if remaining > 0 {
			pipe.Set(database.Ctx, tokenKey(sessions[i].Token), sessions[i].UserID, remaining)
		}
	}
	if _, err := pipe.Exec(database.Ctx); err != nil {
		return fmt.Errorf("预热会话缓存到Redis失败: %w", err)
	}

	fmt.Printf("成功预热 %d 个会话到Redis。\n", len(sessions))
	return nil
}

// --- Cookie传输 ---

// cookieMaxAge 根据配置计算cookie的Max-Age秒数
func ttl() time.Duration {
	hours := 24
	if config.Cfg != nil && config.Cfg.Session.TTLHours > 0 {
		hours = config.Cfg.Session.TTLHours
	}
	return time.Duration(hours) * time.Hour
}

func cookieName() string {
	if config.Cfg != nil && config.Cfg.Session.CookieName != "" {
		return config.Cfg.Session.CookieName
	}
	return "poll_session"
}

func cookieSecure() bool {
	return config.Cfg != nil && config.Cfg.Session.CookieSecure
}

// IssueToContext 签发会话并作为HttpOnly cookie写入响应。
func IssueToContext(c *gin.Context, userID string) error {
	s, err := Issue(userID)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName(), s.Token, int(ttl().Seconds()), "/", "", cookieSecure(), true)
	return nil
}

// RevokeFromContext 撤销当前请求携带的会话并清除cookie。
// 幂等：没有cookie时也静默成功。
func RevokeFromContext(c *gin.Context) {
	tok, err := c.Cookie(cookieName())
	if err == nil {
		Revoke(tok)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieName(), "", -1, "/", "", cookieSecure(), true)
}
