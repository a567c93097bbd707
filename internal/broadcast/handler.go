package broadcast

import (
	"io"
	"time"

	"github.com/SlpAus/live-polls-backend/internal/platform/config"
	"github.com/SlpAus/live-polls-backend/internal/poll"
	"github.com/SlpAus/live-polls-backend/pkg/apperror"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// keepAliveInterval 返回keep-alive帧的发送间隔。
// 哨兵帧让中间代理和客户端能区分"安静但存活"和"已断开"。
func keepAliveInterval() time.Duration {
	seconds := 15
	if config.Cfg != nil && config.Cfg.Stream.KeepAliveSeconds > 0 {
		seconds = config.Cfg.Stream.KeepAliveSeconds
	}
	return time.Duration(seconds) * time.Second
}

// StreamPoll 处理 GET /api/polls/:id/stream
// 订阅单个投票的快照流。
func StreamPoll(c *gin.Context) {
	pollID := c.Param("id")

	// 先确认投票存在，再建立长连接
	initial, err := poll.GetSnapshot(pollID)
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	subscription, err := Subscribe(pollID)
	if err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindInternal, "无法建立订阅", err))
		return
	}
	defer subscription.Unsubscribe()

	runStream(c, subscription, []*poll.Snapshot{initial})
}

// StreamAllPolls 处理 GET /api/polls/results/stream
// 全局订阅：当前客户端打开的就是这个端点，接收所有投票的更新。
func StreamAllPolls(c *gin.Context) {
	subscription, err := Subscribe("")
	if err != nil {
		apperror.Respond(c, apperror.Wrap(apperror.KindInternal, "无法建立订阅", err))
		return
	}
	defer subscription.Unsubscribe()

	// 订阅建立之后再取初始快照，期间发生的变更最多造成重复帧，
	// 而快照是全量的，重复无害；反过来的顺序则可能漏掉更新。
	initial, err := poll.ListAll()
	if err != nil {
		apperror.Respond(c, err)
		return
	}

	runStream(c, subscription, initial)
}

// runStream 是两个流端点共用的事件循环。
// 先推送初始快照（新订阅者永不落后），然后依次转发hub推来的
// 快照和周期性的keep-alive哨兵帧，直到连接关闭或hub停机。
func runStream(c *gin.Context, subscription *Subscription, initial []*poll.Snapshot) {
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAliveInterval())
	defer ticker.Stop()

	queue := initial
	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		// 初始快照优先于后续更新
		if len(queue) > 0 {
			snap := queue[0]
			queue = queue[1:]
			sse.Encode(w, sse.Event{Event: "message", Data: snap})
			return true
		}

		select {
		case snap, ok := <-subscription.C:
			if !ok {
				// hub已关闭（停机）或该订阅者被剪除
				return false
			}
			sse.Encode(w, sse.Event{Event: "message", Data: snap})
			return true
		case <-ticker.C:
			// 客户端会原样丢弃这个哨兵载荷，不做JSON解析
			sse.Encode(w, sse.Event{Event: "message", Data: "keep-alive"})
			return true
		case <-clientGone:
			return false
		}
	})
}
