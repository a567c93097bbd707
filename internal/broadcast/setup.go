package broadcast

import (
	"fmt"

	"github.com/SlpAus/live-polls-backend/pkg/lifecycle"
)

// StartHub 把广播中心挂到生命周期管理器上。
// 收到停机信号时关闭所有订阅者，让SSE长连接立即返回，
// HTTP服务器的Shutdown才不会被挂起的流阻塞。
func StartHub(handle *lifecycle.Handle) {
	go func() {
		defer handle.Close()
		fmt.Println("广播中心 (Broadcast Hub) 已启动。")

		<-handle.Done()
		Close()
	}()
}
