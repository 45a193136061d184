// Package supervisor 实现控制平面的会话监督循环。
package supervisor

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/bgp-garden-go/internal/bgp"
	"github.com/lk2023060901/bgp-garden-go/internal/bgp/routing"
	"github.com/lk2023060901/bgp-garden-go/internal/bgp/session"
	"github.com/lk2023060901/bgp-garden-go/internal/clock"
	"github.com/lk2023060901/bgp-garden-go/pkg/buffer/ring"
	"github.com/lk2023060901/bgp-garden-go/pkg/log"
	"github.com/lk2023060901/bgp-garden-go/pkg/metrics"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/retry"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/typeutil"
)

// Config 是 SessionSupervisor 的创建配置。
type Config struct {
	// RouterName 是路由器实例名，用于日志与监控标签。
	RouterName string

	// LocalIdentifier 是本端路由器的 BGP Identifier。
	LocalIdentifier uint32

	// SessionCount 是对等接口数量，会话集合在创建时固定。
	SessionCount int

	// SessionParams 是所有会话共用的初始定时器配置。
	SessionParams session.Parameters

	// InboundQueueSize 是接收队列容量，0 表示使用默认值。
	InboundQueueSize int
}

// Validate 校验配置的合法性。
func (c Config) Validate() error {
	if c.RouterName == "" {
		return merr.WrapErrParameterInvalid("router_name", c.RouterName, "router name must not be empty")
	}
	if c.SessionCount <= 0 {
		return merr.WrapErrParameterInvalid("session_count", c.SessionCount, "session count must be positive")
	}
	return c.SessionParams.Validate()
}

// SessionSupervisor 维护一组固定的 BGP 会话，并在每个 tick 内
// 依次完成：拨钟、排空接收队列、派发定时器、轮询会话有效性。
//
// 说明：
//   - 会话集合在创建时固定，下标即对等接口编号；
//   - 同一 tick 内先处理入站消息再派发定时器，
//     使“临到期的 HoldDown”能够被同拍到达的消息抢先重置；
//   - 会话失效时撤路由并通告，同一次失效只处理一次。
type SessionSupervisor struct {
	log.Binder

	name    string
	localID uint32
	sched   clock.Scheduler
	routes  routing.Manager
	out     chan<- *bgp.Message

	sessions []session.Session

	inMu    sync.Mutex
	inbound *ring.Queue[*bgp.Message]

	// handled 记录已完成失效处理的接口，会话启动或重启后移除。
	// 创建时预置全部接口，使尚未启动的会话不会被当作新失效处理。
	handled typeutil.Set[int]

	closed atomic.Bool
}

// New 创建监督器并按配置实例化全部会话。
//
// out 是外发消息队列，会话的保活消息与监督器的撤销通告都经由它发出。
func New(cfg Config, sched clock.Scheduler, routes routing.Manager, out chan<- *bgp.Message) (*SessionSupervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, merr.WrapErrParameterInvalid("scheduler", nil, "scheduler must not be nil")
	}
	if routes == nil {
		return nil, merr.WrapErrParameterInvalid("routing", nil, "routing manager must not be nil")
	}
	if out == nil {
		return nil, merr.WrapErrParameterInvalid("outbound", nil, "outbound channel must not be nil")
	}

	sv := &SessionSupervisor{
		name:     cfg.RouterName,
		localID:  cfg.LocalIdentifier,
		sched:    sched,
		routes:   routes,
		out:      out,
		sessions: make([]session.Session, 0, cfg.SessionCount),
		inbound:  ring.New[*bgp.Message](cfg.InboundQueueSize),
		handled:  typeutil.NewSet[int](),
	}
	sv.SetLogger(log.With(
		log.FieldComponent("session-supervisor"),
		zap.String("router_name", cfg.RouterName),
	).WithRateGroup("bgp.supervisor", 1, 60))

	for i := 0; i < cfg.SessionCount; i++ {
		sess, err := session.NewBGPSession(i, cfg.LocalIdentifier, cfg.SessionParams, sched, out)
		if err != nil {
			return nil, err
		}
		sv.sessions = append(sv.sessions, sess)
		sv.handled.Insert(i)
	}
	return sv, nil
}

// RouterName 返回路由器实例名。
func (sv *SessionSupervisor) RouterName() string {
	return sv.name
}

// LocalIdentifier 返回本端路由器的 BGP Identifier。
func (sv *SessionSupervisor) LocalIdentifier() uint32 {
	return sv.localID
}

// NumSessions 返回会话数量。
func (sv *SessionSupervisor) NumSessions() int {
	return len(sv.sessions)
}

// Session 返回指定接口上的会话。
func (sv *SessionSupervisor) Session(ifIndex int) (session.Session, error) {
	if ifIndex < 0 || ifIndex >= len(sv.sessions) {
		return nil, merr.WrapErrSessionStopped(ifIndex, "peering interface out of range")
	}
	return sv.sessions[ifIndex], nil
}

// Start 启动全部会话。
func (sv *SessionSupervisor) Start() {
	for i, sess := range sv.sessions {
		sess.Start()
		sv.handled.Remove(i)
	}
	sv.Logger().Info("监督器已启动", zap.Int("session_count", len(sv.sessions)))
}

// StartSession 重新启动指定接口上的会话，并允许它再次触发失效处理。
func (sv *SessionSupervisor) StartSession(ifIndex int) error {
	sess, err := sv.Session(ifIndex)
	if err != nil {
		return err
	}
	sess.Start()
	sv.handled.Remove(ifIndex)
	return nil
}

// Enqueue 将数据平面收到的消息放入接收队列，等待下一个 tick 处理。
//
// 队列已满时返回可重试的 ErrQueueFull，由数据平面自行退避重投。
func (sv *SessionSupervisor) Enqueue(msg *bgp.Message) error {
	if msg == nil {
		return merr.WrapErrParameterInvalid("message", nil, "message must not be nil")
	}
	if sv.closed.Load() {
		return merr.WrapErrSessionStopped(-1, "supervisor closed")
	}

	sv.inMu.Lock()
	defer sv.inMu.Unlock()
	if err := sv.inbound.Push(msg); err != nil {
		return merr.WrapErrQueueFull("inbound", sv.inbound.Cap())
	}
	return nil
}

// Tick 执行一次控制循环。
//
// now 是本拍的虚拟时刻，由驱动方显式传入；时刻回退时返回错误。
func (sv *SessionSupervisor) Tick(ctx context.Context, now time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sv.closed.Load() {
		return merr.WrapErrSessionStopped(-1, "supervisor closed")
	}

	// 第一步：只拨钟，不派发。到期事件留到入站消息处理完之后。
	if err := sv.sched.MoveTo(now); err != nil {
		return err
	}

	// 第二步：按到达顺序排空接收队列。
	pending := sv.drainInbound()
	metrics.InboundQueueLength.WithLabelValues(sv.name).Set(float64(len(pending)))
	for _, msg := range pending {
		sv.dispatchInbound(ctx, msg)
	}

	// 第三步：派发本拍到期的全部定时器。
	sv.sched.Dispatch()

	// 第四步：轮询会话有效性，处理新产生的失效。
	sv.pollSessions(ctx)
	return nil
}

// Close 停止全部会话并拒绝后续投递。
func (sv *SessionSupervisor) Close() {
	if !sv.closed.CompareAndSwap(false, true) {
		return
	}
	for _, sess := range sv.sessions {
		sess.Stop()
	}
	sv.Logger().Info("监督器已关闭")
}

// SendToPeer 经外发队列向指定接口的对端发送一条消息。
//
// 本端主动发消息意味着对端即将观察到活动，
// 因此发送成功后同步重置该会话的 Keepalive 定时器。
func (sv *SessionSupervisor) SendToPeer(ctx context.Context, ifIndex int, msg *bgp.Message) error {
	sess, err := sv.Session(ifIndex)
	if err != nil {
		return err
	}
	if msg == nil {
		return merr.WrapErrParameterInvalid("message", nil, "message must not be nil")
	}

	msg.PeerIdentifier = sv.localID
	msg.OutboundInterface = ifIndex

	err = retry.Do(ctx, func() error {
		select {
		case sv.out <- msg:
			return nil
		default:
			return merr.WrapErrQueueFull("outbound", cap(sv.out))
		}
	}, retry.Attempts(3), retry.Sleep(10*time.Millisecond))
	if err != nil {
		sv.Logger().Warn("外发消息投递失败",
			log.FieldInterface(ifIndex),
			zap.String("message_type", msg.Type.String()),
			zap.Error(err))
		return err
	}

	sess.ResetKeepalive()
	return nil
}

// drainInbound 取出接收队列中的全部消息。
func (sv *SessionSupervisor) drainInbound() []*bgp.Message {
	sv.inMu.Lock()
	defer sv.inMu.Unlock()

	if sv.inbound.IsEmpty() {
		return nil
	}
	pending := make([]*bgp.Message, 0, sv.inbound.Len())
	for {
		msg, err := sv.inbound.Pop()
		if err != nil {
			break
		}
		pending = append(pending, msg)
	}
	return pending
}

// dispatchInbound 将一条入站消息派发给对应的会话。
func (sv *SessionSupervisor) dispatchInbound(ctx context.Context, msg *bgp.Message) {
	sess, ok := sv.findSession(msg.PeerIdentifier)
	if !ok {
		// 未知对端的消息只记录，不影响任何会话。
		sv.Logger().RatedWarn(1, "收到未知对端的消息",
			log.FieldPeer(msg.PeerIdentifier),
			zap.String("message_type", msg.Type.String()))
		return
	}

	// 对端的任何消息都证明其仍然存活。
	sess.ResetHoldDown()

	if msg.Type == bgp.MessageTypeOpen && msg.HoldTime > 0 {
		sv.negotiateHoldTime(sess, msg.HoldTime)
	}
}

// negotiateHoldTime 按 OPEN 消息协商会话的 HoldDown 时间，取双方较小值。
func (sv *SessionSupervisor) negotiateHoldTime(sess session.Session, offered time.Duration) {
	p := sess.Parameters()
	if offered >= p.HoldDownTime {
		return
	}
	p.HoldDownTime = offered
	if err := sess.SetParameters(p); err != nil {
		sv.Logger().Warn("HoldTime 协商失败",
			log.FieldInterface(sess.PeeringInterface()),
			zap.Duration("offered", offered),
			zap.Error(err))
	}
}

// findSession 按对端标识定位会话。
func (sv *SessionSupervisor) findSession(peerID uint32) (session.Session, bool) {
	for _, sess := range sv.sessions {
		if sess.IsThisSession(peerID) {
			return sess, true
		}
	}
	return nil, false
}

// pollSessions 轮询全部会话的有效性，并对新失效的会话撤路由。
func (sv *SessionSupervisor) pollSessions(ctx context.Context) {
	valid := 0
	for i, sess := range sv.sessions {
		if sess.IsSessionValid() {
			valid++
			continue
		}
		if sv.handled.Contain(i) {
			continue
		}
		sv.handleInvalidation(ctx, i)
		sv.handled.Insert(i)
	}
	metrics.ValidSessions.WithLabelValues(sv.name).Set(float64(valid))
}

// handleInvalidation 摘除经由失效接口的路由，并向其余有效对端通告撤销。
func (sv *SessionSupervisor) handleInvalidation(ctx context.Context, ifIndex int) {
	prefixes := sv.routes.Withdraw(ifIndex)
	metrics.RouteWithdrawals.WithLabelValues(sv.name, strconv.Itoa(ifIndex)).Inc()
	sv.Logger().Warn("会话失效，撤销路由",
		log.FieldInterface(ifIndex),
		zap.Duration("virtual_now", sv.sched.Now()),
		zap.Strings("withdrawn_routes", prefixes))

	if len(prefixes) == 0 {
		return
	}
	for i, sess := range sv.sessions {
		if i == ifIndex || !sess.IsSessionValid() {
			continue
		}
		withdrawal := bgp.NewWithdrawal(sv.localID, prefixes)
		if err := sv.SendToPeer(ctx, i, withdrawal); err != nil {
			sv.Logger().Warn("撤销通告发送失败",
				log.FieldInterface(i),
				zap.Error(err))
		}
	}
}
