package auth

import (
	"fmt"
	"testing"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/platform/config"
	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/internal/user"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTest 准备内存数据库并初始化WebAuthn依赖方身份。
func setupTest(t *testing.T) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&user.User{}, &user.Credential{}, &Challenge{}))
	database.DB = db

	require.NoError(t, InitWebAuthn(config.WebAuthnConfig{
		RPID:          "localhost",
		RPDisplayName: "Live Polls",
		RPOrigins:     []string{"http://localhost:3000"},
	}))
}

func challengeCount(t *testing.T, username string, kind ChallengeKind) int64 {
	t.Helper()
	var n int64
	require.NoError(t, database.DB.Model(&Challenge{}).
		Where("username = ? AND kind = ?", username, kind).Count(&n).Error)
	return n
}

func TestBeginRegistrationCreatesChallenge(t *testing.T) {
	setupTest(t)

	options, err := BeginRegistration("alice", "Alice")
	require.NoError(t, err)

	// 下发给浏览器的创建选项携带挑战和RP身份
	assert.NotEmpty(t, options.Response.Challenge)
	assert.Equal(t, "localhost", options.Response.RelyingParty.ID)
	assert.Equal(t, "alice", options.Response.User.Name)

	assert.Equal(t, int64(1), challengeCount(t, "alice", KindRegistration))
}

func TestBeginRegistrationOverwritesPreviousChallenge(t *testing.T) {
	setupTest(t)

	first, err := BeginRegistration("alice", "Alice")
	require.NoError(t, err)
	second, err := BeginRegistration("alice", "Alice")
	require.NoError(t, err)

	// 重新begin只保留最新的挑战
	assert.NotEqual(t, first.Response.Challenge, second.Response.Challenge)
	assert.Equal(t, int64(1), challengeCount(t, "alice", KindRegistration))
}

func TestBeginRegistrationTakenUsername(t *testing.T) {
	setupTest(t)

	u, err := user.NewUser("alice", "Alice")
	require.NoError(t, err)
	require.NoError(t, database.DB.Create(u).Error)
	require.NoError(t, database.DB.Create(&user.Credential{
		CredentialID: []byte{1},
		UserID:       u.ID,
		PublicKey:    []byte{2},
	}).Error)

	_, err = BeginRegistration("alice", "Alice")
	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestBeginRegistrationReusesInterruptedIdentity(t *testing.T) {
	setupTest(t)

	// 用户行已存在但没有凭证：上次注册在finish前被中断
	u, err := user.NewUser("alice", "Alice")
	require.NoError(t, err)
	require.NoError(t, database.DB.Create(u).Error)

	options, err := BeginRegistration("alice", "Alice二号")
	require.NoError(t, err)
	assert.EqualValues(t, u.WebAuthnHandle, options.Response.User.ID)
}

func TestChallengeIsSingleUse(t *testing.T) {
	setupTest(t)

	_, err := BeginRegistration("alice", "Alice")
	require.NoError(t, err)

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		_, subject, err := consumeChallenge(tx, "alice", KindRegistration)
		require.NoError(t, err)
		assert.NotEmpty(t, subject, "注册挑战应携带用户快照")
		return nil
	})
	require.NoError(t, err)

	// 同一个挑战不能被消耗第二次
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		_, _, err := consumeChallenge(tx, "alice", KindRegistration)
		return err
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestExpiredChallengeIsRejectedAndConsumed(t *testing.T) {
	setupTest(t)

	_, err := BeginRegistration("alice", "Alice")
	require.NoError(t, err)
	require.NoError(t, database.DB.Model(&Challenge{}).
		Where("username = ?", "alice").
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		_, _, err := consumeChallenge(tx, "alice", KindRegistration)
		return err
	})
	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	// 过期挑战同样被消耗掉
	assert.Equal(t, int64(0), challengeCount(t, "alice", KindRegistration))
}

func TestBeginAuthentication(t *testing.T) {
	setupTest(t)

	// 未知用户：模糊的NotFound，不泄露用户是否存在
	_, err := BeginAuthentication("nobody")
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	// 用户存在但没有凭证：同样的回答
	u, err := user.NewUser("alice", "Alice")
	require.NoError(t, err)
	require.NoError(t, database.DB.Create(u).Error)
	_, err = BeginAuthentication("alice")
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	// 持有凭证的用户拿到认证选项和挑战
	require.NoError(t, database.DB.Create(&user.Credential{
		CredentialID: []byte{1},
		UserID:       u.ID,
		PublicKey:    []byte{2},
	}).Error)
	options, err := BeginAuthentication("alice")
	require.NoError(t, err)
	assert.NotEmpty(t, options.Response.Challenge)
	assert.Equal(t, int64(1), challengeCount(t, "alice", KindAuthentication))
}

func TestRegistrationAndAuthenticationChallengesAreIndependent(t *testing.T) {
	setupTest(t)

	u, err := user.NewUser("alice", "Alice")
	require.NoError(t, err)
	require.NoError(t, database.DB.Create(u).Error)
	require.NoError(t, database.DB.Create(&user.Credential{
		CredentialID: []byte{1},
		UserID:       u.ID,
		PublicKey:    []byte{2},
	}).Error)

	_, err = BeginAuthentication("alice")
	require.NoError(t, err)

	// 消耗认证挑战不影响其他类型
	err = database.DB.Transaction(func(tx *gorm.DB) error {
		_, subject, err := consumeChallenge(tx, "alice", KindAuthentication)
		require.NoError(t, err)
		assert.Empty(t, subject, "认证挑战不携带用户快照")
		return nil
	})
	require.NoError(t, err)

	err = database.DB.Transaction(func(tx *gorm.DB) error {
		_, _, err := consumeChallenge(tx, "alice", KindRegistration)
		return err
	})
	require.Error(t, err)
}

func TestSweepExpiredChallenges(t *testing.T) {
	setupTest(t)

	_, err := BeginRegistration("alice", "Alice")
	require.NoError(t, err)
	_, err = BeginRegistration("bob", "Bob")
	require.NoError(t, err)
	require.NoError(t, database.DB.Model(&Challenge{}).
		Where("username = ?", "bob").
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	n, err := SweepExpiredChallenges()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), challengeCount(t, "alice", KindRegistration))
}
