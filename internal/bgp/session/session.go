// Package session 实现单条 BGP 会话的保活与存活性判定。
package session

import (
	"time"
)

// Session 抽象了一条 BGP 会话的定时器与有效性状态。
//
// 设计目标：
//   - 会话自身只维护两个定时器（Keepalive 与 HoldDown）与有效性标志；
//   - 定时器全部挂在注入的虚拟时间调度器上，便于仿真与测试；
//   - 所有方法均可被并发调用，内部保证 Keepalive 重置的仲裁语义。
type Session interface {
	// PeeringInterface 返回会话绑定的对等接口编号。
	PeeringInterface() int

	// Parameters 返回当前定时器配置的快照。
	Parameters() Parameters

	// SetParameters 更新定时器配置。
	//
	// 新配置只影响后续的定时器装载，已装载的定时器不受影响。
	SetParameters(p Parameters) error

	// Start 启动会话：置为有效并装载两个定时器。
	//
	// 对运行中的会话调用 Start 等价于重新装载全部定时器。
	Start()

	// Stop 停止会话：取消全部定时器，有效性标志保持不变。
	Stop()

	// ResetHoldDown 重置 HoldDown 定时器。
	//
	// 通常在收到对端任意消息时调用；会话停止时为空操作。
	ResetHoldDown()

	// ResetKeepalive 重置 Keepalive 定时器。
	//
	// 通常在本端主动向对端发送消息后调用；会话停止时为空操作。
	ResetKeepalive()

	// SetPeerIdentifier 绑定对端的 BGP Identifier。
	SetPeerIdentifier(id uint32)

	// IsThisSession 判断给定的对端标识是否属于本会话。
	//
	// 尚未绑定对端标识时恒为 false。
	IsThisSession(id uint32) bool

	// IsSessionValid 返回会话当前是否有效。
	IsSessionValid() bool

	// LastInvalidatedAt 返回最近一次因 HoldDown 超时失效的时刻。
	//
	// 从未失效过时返回 0 和 false。
	LastInvalidatedAt() (time.Duration, bool)
}
