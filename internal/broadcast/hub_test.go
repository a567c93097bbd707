package broadcast

import (
	"fmt"
	"testing"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/platform/database"
	"github.com/SlpAus/live-polls-backend/internal/poll"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// resetHub 给每个测试一个干净的广播中心。
func resetHub(t *testing.T) {
	t.Helper()
	globalHub = &Hub{
		byPoll: make(map[string]map[*subscriber]struct{}),
		global: make(map[*subscriber]struct{}),
	}
}

func snap(pollID string) *poll.Snapshot {
	return &poll.Snapshot{ID: pollID, Question: "q"}
}

func TestSubscribeReceivesOwnPollOnly(t *testing.T) {
	resetHub(t)

	sub, err := Subscribe("poll-a")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	Publish(snap("poll-a"))
	Publish(snap("poll-b"))

	received := <-sub.C
	assert.Equal(t, "poll-a", received.ID)
	assert.Empty(t, sub.C, "不应收到其他投票的快照")
}

func TestGlobalSubscriberReceivesAllPolls(t *testing.T) {
	resetHub(t)

	sub, err := Subscribe("")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	Publish(snap("poll-a"))
	Publish(snap("poll-b"))

	assert.Equal(t, "poll-a", (<-sub.C).ID)
	assert.Equal(t, "poll-b", (<-sub.C).ID)
}

func TestSnapshotsArriveInPublishOrder(t *testing.T) {
	resetHub(t)

	sub, err := Subscribe("poll-a")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		s := snap("poll-a")
		s.TotalVotes = i
		Publish(s)
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, (<-sub.C).TotalVotes)
	}
}

func TestUnsubscribeIsIdempotentAndClosesChannel(t *testing.T) {
	resetHub(t)

	sub, err := Subscribe("poll-a")
	require.NoError(t, err)
	assert.Equal(t, 1, SubscriberCount("poll-a"))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, SubscriberCount("poll-a"))

	_, open := <-sub.C
	assert.False(t, open)
}

func TestSlowSubscriberIsPruned(t *testing.T) {
	resetHub(t)

	slow, err := Subscribe("poll-a")
	require.NoError(t, err)
	healthy, err := Subscribe("poll-a")
	require.NoError(t, err)
	defer healthy.Unsubscribe()

	// 填满slow的缓冲并多发一帧触发剪除，healthy一直在消费
	total := subscriberBuffer() + 1
	for i := 0; i < total; i++ {
		Publish(snap("poll-a"))
		<-healthy.C
	}

	assert.Equal(t, 1, SubscriberCount("poll-a"), "慢订阅者应被剪除")

	// 剪除后channel被关闭：读完缓冲内容后得到关闭信号
	for i := 0; i < subscriberBuffer(); i++ {
		<-slow.C
	}
	_, open := <-slow.C
	assert.False(t, open)

	// 剪除后的Unsubscribe仍然安全
	slow.Unsubscribe()
}

func TestPollCreationReachesGlobalSubscribers(t *testing.T) {
	resetHub(t)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&poll.Poll{}, &poll.Option{}, &poll.Vote{}))
	database.DB = db

	sub, err := Subscribe("")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	created, err := poll.Create("Best color?", []string{"Red", "Blue"}, "creator-1")
	require.NoError(t, err)

	// 新投票的首帧在创建时就到达全局订阅者，而不是等到第一票
	select {
	case received := <-sub.C:
		assert.Equal(t, created.ID, received.ID)
		assert.Equal(t, "Best color?", received.Question)
		assert.Equal(t, 0, received.TotalVotes)
	case <-time.After(2 * time.Second):
		t.Fatal("全局订阅者没有收到新建投票的快照")
	}
}

func TestCloseDisconnectsEverybody(t *testing.T) {
	resetHub(t)

	perPoll, err := Subscribe("poll-a")
	require.NoError(t, err)
	global, err := Subscribe("")
	require.NoError(t, err)

	Close()

	_, open := <-perPoll.C
	assert.False(t, open)
	_, open = <-global.C
	assert.False(t, open)

	// 关闭后拒绝新订阅，Publish静默丢弃
	_, err = Subscribe("poll-a")
	assert.ErrorIs(t, err, ErrHubClosed)
	Publish(snap("poll-a"))

	// 重复Close和滞后的Unsubscribe都安全
	Close()
	perPoll.Unsubscribe()
}
