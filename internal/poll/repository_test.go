package poll

import (
	"fmt"
	"strings"
	"testing"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/google/uuid"
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
	require.NoError(t, db.AutoMigrate(&Poll{}, &Option{}, &Vote{}))
	database.DB = db
}

func TestValidateInput(t *testing.T) {
	valid := []string{"红色", "蓝色"}

	t.Run("合法输入被清洗后返回", func(t *testing.T) {
		q, opts, err := ValidateInput("  最喜欢的颜色?  ", []string{" 红色 ", "蓝色"})
		require.NoError(t, err)
		assert.Equal(t, "最喜欢的颜色?", q)
		assert.Equal(t, []string{"红色", "蓝色"}, opts)
	})

	t.Run("空问题", func(t *testing.T) {
		_, _, err := ValidateInput("   ", valid)
		assert.Error(t, err)
	})

	t.Run("问题超长按字符数计", func(t *testing.T) {
		// 201个多字节字符，字节数远超200但字符数才是边界
		_, _, err := ValidateInput(strings.Repeat("问", maxQuestionLength+1), valid)
		assert.Error(t, err)
		_, _, err = ValidateInput(strings.Repeat("问", maxQuestionLength), valid)
		assert.NoError(t, err)
	})

	t.Run("空选项", func(t *testing.T) {
		_, _, err := ValidateInput("q", []string{"a", "  "})
		assert.Error(t, err)
	})

	t.Run("选项超长", func(t *testing.T) {
		_, _, err := ValidateInput("q", []string{"a", strings.Repeat("选", maxOptionLength+1)})
		assert.Error(t, err)
	})

	t.Run("忽略大小写的重复选项", func(t *testing.T) {
		_, _, err := ValidateInput("q", []string{"Red", "red"})
		assert.Error(t, err)
	})

	t.Run("选项过少", func(t *testing.T) {
		_, _, err := ValidateInput("q", []string{"only"})
		assert.Error(t, err)
	})

	t.Run("选项过多", func(t *testing.T) {
		many := make([]string, maxOptionCount+1)
		for i := range many {
			many[i] = fmt.Sprintf("opt-%d", i)
		}
		_, _, err := ValidateInput("q", many)
		assert.Error(t, err)
	})
}

func TestCreateAndGetSnapshot(t *testing.T) {
	setupTestDB(t)

	snap, err := Create("最喜欢的颜色?", []string{"红色", "蓝色", "绿色"}, "creator-1")
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "最喜欢的颜色?", snap.Question)
	assert.Equal(t, "creator-1", snap.CreatorID)
	assert.False(t, snap.IsClosed)
	assert.Equal(t, 0, snap.TotalVotes)
	require.Len(t, snap.Options, 3)

	// 选项保持创建顺序，初始票数为零且voters为空数组而不是null
	assert.Equal(t, "红色", snap.Options[0].Text)
	assert.Equal(t, "蓝色", snap.Options[1].Text)
	assert.Equal(t, "绿色", snap.Options[2].Text)
	for _, opt := range snap.Options {
		assert.NotEmpty(t, opt.ID)
		assert.Equal(t, 0, opt.Votes)
		assert.NotNil(t, opt.Voters)
		assert.Empty(t, opt.Voters)
	}

	got, err := GetSnapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Len(t, got.Options, 3)
}

func TestGetSnapshotUnknownPoll(t *testing.T) {
	setupTestDB(t)

	_, err := GetSnapshot(uuid.NewString())
	assert.Error(t, err)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	setupTestDB(t)

	_, err := Create("", []string{"a", "b"}, "creator-1")
	assert.Error(t, err)
}

func TestSnapshotDerivesCountsFromVotes(t *testing.T) {
	setupTestDB(t)

	snap, err := Create("q", []string{"a", "b"}, "creator-1")
	require.NoError(t, err)

	optA := snap.Options[0].ID
	optB := snap.Options[1].ID
	for i, optID := range []string{optA, optA, optB} {
		require.NoError(t, database.DB.Create(&Vote{
			PollID:   snap.ID,
			UserID:   fmt.Sprintf("user-%d", i),
			OptionID: optID,
		}).Error)
	}

	got, err := BuildSnapshot(database.DB, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalVotes)
	assert.Equal(t, 2, got.Options[0].Votes)
	assert.ElementsMatch(t, []string{"user-0", "user-1"}, got.Options[0].Voters)
	assert.Equal(t, 1, got.Options[1].Votes)
	assert.Equal(t, []string{"user-2"}, got.Options[1].Voters)
}

func TestListAllNewestFirst(t *testing.T) {
	setupTestDB(t)

	first, err := Create("第一", []string{"a", "b"}, "creator-1")
	require.NoError(t, err)
	second, err := Create("第二", []string{"a", "b"}, "creator-2")
	require.NoError(t, err)

	snaps, err := ListAll()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, second.ID, snaps[0].ID)
	assert.Equal(t, first.ID, snaps[1].ID)
}

func TestListByCreator(t *testing.T) {
	setupTestDB(t)

	mine, err := Create("我的", []string{"a", "b"}, "creator-1")
	require.NoError(t, err)
	_, err = Create("别人的", []string{"a", "b"}, "creator-2")
	require.NoError(t, err)

	snaps, err := ListByCreator("creator-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, mine.ID, snaps[0].ID)

	empty, err := ListByCreator("creator-none")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
