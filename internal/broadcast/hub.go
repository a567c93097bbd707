package broadcast

import (
	"errors"
	"fmt"
	"sync"

	"github.com/SlpAus/live-polls-backend/internal/platform/config"
	"github.com/SlpAus/live-polls-backend/internal/poll"
)

// ErrHubClosed 表示广播中心已随服务停机关闭，不再接受订阅。
var ErrHubClosed = errors.New("广播中心已关闭")

// subscriber 是单个SSE连接在注册表中的记录。
// 除了投票ID和接收channel之外不保存任何持久状态，
// 这让大量短生命周期的重连订阅者的开销保持在最低。
type subscriber struct {
	// pollID 为空串表示全局订阅者（接收所有投票的更新）。
	pollID string
	ch     chan *poll.Snapshot
}

// Hub 维护按投票ID索引的订阅者注册表。
// 每次投票变更提交后，完整的新快照（而不是增量）被推送给
// 该投票的订阅者和所有全局订阅者。
type Hub struct {
	mu     sync.Mutex
	byPoll map[string]map[*subscriber]struct{}
	global map[*subscriber]struct{}
	closed bool
}

// globalHub 是整个进程唯一的广播中心实例。
var globalHub = &Hub{
	byPoll: make(map[string]map[*subscriber]struct{}),
	global: make(map[*subscriber]struct{}),
}

// 把创建投票的快照推送接到hub上，让新投票立即到达全局订阅者。
func init() {
	poll.RegisterPublisher(Publish)
}

// subscriberBuffer 返回每个订阅者channel的缓冲大小。
func subscriberBuffer() int {
	if config.Cfg != nil && config.Cfg.Stream.SubscriberBuffer > 0 {
		return config.Cfg.Stream.SubscriberBuffer
	}
	return 16
}

// Subscription 是订阅成功后交给SSE处理函数的句柄。
type Subscription struct {
	// C 接收提交顺序的快照流。hub关闭或订阅被剪除时C会被关闭。
	C <-chan *poll.Snapshot

	sub *subscriber
}

// Subscribe 注册一个订阅者。pollID为空串表示订阅所有投票。
// 必须用返回的Unsubscribe释放，否则注册表会泄漏。
func Subscribe(pollID string) (*Subscription, error) {
	globalHub.mu.Lock()
	defer globalHub.mu.Unlock()

	if globalHub.closed {
		return nil, ErrHubClosed
	}

	sub := &subscriber{
		pollID: pollID,
		ch:     make(chan *poll.Snapshot, subscriberBuffer()),
	}
	if pollID == "" {
		globalHub.global[sub] = struct{}{}
	} else {
		set, ok := globalHub.byPoll[pollID]
		if !ok {
			set = make(map[*subscriber]struct{})
			globalHub.byPoll[pollID] = set
		}
		set[sub] = struct{}{}
	}

	return &Subscription{C: sub.ch, sub: sub}, nil
}

// Unsubscribe 把订阅者从注册表中移除并关闭其channel。
// 幂等：重复调用是安全的。连接关闭、出错和进程停机都会走到这里。
func (s *Subscription) Unsubscribe() {
	globalHub.mu.Lock()
	defer globalHub.mu.Unlock()
	globalHub.removeLocked(s.sub)
}

// removeLocked 在持有mu的前提下移除订阅者。
func (h *Hub) removeLocked(sub *subscriber) {
	if sub.pollID == "" {
		if _, ok := h.global[sub]; !ok {
			return
		}
		delete(h.global, sub)
	} else {
		set, ok := h.byPoll[sub.pollID]
		if !ok {
			return
		}
		if _, ok := set[sub]; !ok {
			return
		}
		delete(set, sub)
		if len(set) == 0 {
			delete(h.byPoll, sub.pollID)
		}
	}
	close(sub.ch)
}

// Publish 把提交后的快照推送给目标投票的订阅者和全部全局订阅者。
// 永不阻塞调用方：缓冲已满说明订阅者太慢或已死，直接剪除，
// 让客户端走重连路径（重连时的首帧快照保证它不落后）。
func Publish(snap *poll.Snapshot) {
	globalHub.mu.Lock()
	defer globalHub.mu.Unlock()

	if globalHub.closed {
		return
	}

	deliver := func(sub *subscriber) {
		select {
		case sub.ch <- snap:
		default:
			fmt.Printf("警告: 订阅者缓冲已满，剪除连接 (poll=%s)\n", snap.ID)
			globalHub.removeLocked(sub)
		}
	}

	for sub := range globalHub.byPoll[snap.ID] {
		deliver(sub)
	}
	for sub := range globalHub.global {
		deliver(sub)
	}
}

// SubscriberCount 返回指定投票的当前订阅者数量（含全局订阅者）。
func SubscriberCount(pollID string) int {
	globalHub.mu.Lock()
	defer globalHub.mu.Unlock()
	return len(globalHub.byPoll[pollID]) + len(globalHub.global)
}

// Close 关闭广播中心：清空注册表并关闭所有订阅者channel，
// 让所有SSE处理函数返回，HTTP服务器得以排空。
func Close() {
	globalHub.mu.Lock()
	defer globalHub.mu.Unlock()

	if globalHub.closed {
		return
	}
	globalHub.closed = true

	count := 0
	for pollID, set := range globalHub.byPoll {
		for sub := range set {
			close(sub.ch)
			count++
		}
		delete(globalHub.byPoll, pollID)
	}
	for sub := range globalHub.global {
		close(sub.ch)
		count++
		delete(globalHub.global, sub)
	}
	fmt.Printf("广播中心已关闭，断开了 %d 个订阅者。\n", count)
}
