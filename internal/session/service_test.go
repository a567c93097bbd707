package session

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 为每个测试准备一个独立的内存SQLite数据库。
func setupTestDB(t *testing.T) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Session{}))
	database.DB = db
}

func TestIssueAndValidate(t *testing.T) {
	setupTestDB(t)

	s, err := Issue("user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)
	assert.Equal(t, "user-1", s.UserID)
	assert.True(t, s.ExpiresAt.After(time.Now()))

	userID, err := Validate(s.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestValidateRejectsUnknownAndEmptyTokens(t *testing.T) {
	setupTestDB(t)

	_, err := Validate("")
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))

	_, err = Validate("没有这个令牌")
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))
}

func TestValidateRejectsExpiredSession(t *testing.T) {
	setupTestDB(t)

	s, err := Issue("user-1")
	require.NoError(t, err)

	// 把过期时间拨到过去
	require.NoError(t, database.DB.Model(&Session{}).
		Where("token = ?", s.Token).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = Validate(s.Token)
	assert.Equal(t, apperror.KindAuthentication, apperror.KindOf(err))
}

func TestRevokeIsIdempotent(t *testing.T) {
	setupTestDB(t)

	s, err := Issue("user-1")
	require.NoError(t, err)

	Revoke(s.Token)
	_, err = Validate(s.Token)
	assert.Error(t, err)

	// 再撤销一次以及撤销未知令牌都不应出错
	Revoke(s.Token)
	Revoke("未知令牌")
}

func TestRevokeDefersCacheDeleteWhileRedisUnavailable(t *testing.T) {
	setupTestDB(t)

	// 指向不可达地址的客户端，模拟Redis掉线
	database.RDB = redis.NewClient(&redis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
	})
	database.UpdateStatus(false, "")
	t.Cleanup(func() {
		database.RDB = nil
		database.UpdateStatus(true, "")
		pendingMu.Lock()
		pendingRevocations = make(map[string]struct{})
		pendingMu.Unlock()
	})

	s, err := Issue("user-1")
	require.NoError(t, err)

	Revoke(s.Token)
	assert.True(t, isRevocationPending(s.Token), "Redis不可用时撤销应进入重放队列")

	// 撤销立即生效，不等待重放完成
	_, err = Validate(s.Token)
	assert.Error(t, err)

	// Redis未恢复时重放是空操作，队列保留
	n, err := FlushPendingRevocations()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, isRevocationPending(s.Token))

	// 标记恢复但客户端依旧不可达：删除失败的令牌留在队列中等待下一轮
	database.UpdateStatus(true, "run-1")
	_, err = FlushPendingRevocations()
	assert.Error(t, err)
	assert.True(t, isRevocationPending(s.Token))

	// 队列中的令牌即使在快速路径可用时也直接判失效
	_, err = Validate(s.Token)
	assert.Error(t, err)
}

func TestSweepExpired(t *testing.T) {
	setupTestDB(t)

	live, err := Issue("user-1")
	require.NoError(t, err)
	dead, err := Issue("user-2")
	require.NoError(t, err)
	require.NoError(t, database.DB.Model(&Session{}).
		Where("token = ?", dead.Token).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	n, err := SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = Validate(live.Token)
	assert.NoError(t, err)
}

// --- RequireSession中间件 ---

func newProtectedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", RequireSession(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": CurrentUserID(c)})
	})
	return r
}

func TestRequireSessionWithValidCookie(t *testing.T) {
	setupTestDB(t)
	r := newProtectedRouter()

	s, err := Issue("user-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: cookieName(), Value: s.Token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestRequireSessionWithoutCookie(t *testing.T) {
	setupTestDB(t)
	r := newProtectedRouter()

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireSessionWithRevokedCookie(t *testing.T) {
	setupTestDB(t)
	r := newProtectedRouter()

	s, err := Issue("user-1")
	require.NoError(t, err)
	Revoke(s.Token)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: cookieName(), Value: s.Token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueToContextSetsHttpOnlyCookie(t *testing.T) {
	setupTestDB(t)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	require.NoError(t, IssueToContext(c, "user-1"))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName(), cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	userID, err := Validate(cookies[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}
