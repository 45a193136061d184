package session

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/bgp-garden-go/internal/bgp"
	"github.com/lk2023060901/bgp-garden-go/internal/clock"
	"github.com/lk2023060901/bgp-garden-go/pkg/log"
	"github.com/lk2023060901/bgp-garden-go/pkg/metrics"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

// BGPSession 是 Session 接口的默认实现。
//
// 内部状态分两把锁维护：
//   - mu 保护运行状态、参数与 HoldDown 定时器；
//   - kaMu 只保护 Keepalive 定时器句柄，配合 kaGen 实现重置仲裁。
//
// 两把锁互不嵌套，定时器回调可以安全地重新装载定时器。
type BGPSession struct {
	log.Binder

	ifIndex int
	ifLabel string
	sched   clock.Scheduler
	out     chan<- *bgp.Message

	mu             sync.Mutex
	params         Parameters
	running        bool
	holdDownTimer  *clock.Timer
	invalidatedAt  time.Duration
	hasInvalidated bool

	// Keepalive 重置仲裁：每次重置递增 kaGen，
	// 携带旧代号的到期回调视为过期，直接丢弃。
	kaMu    sync.Mutex
	kaGen   atomic.Uint64
	kaTimer *clock.Timer

	valid     atomic.Bool
	peerID    atomic.Uint32
	peerBound atomic.Bool

	// 预构建的保活消息，所有触发复用同一对象。
	keepaliveMsg *bgp.Message
}

// 编译期断言：确保 BGPSession 实现了 Session 接口。
var _ Session = (*BGPSession)(nil)

// NewBGPSession 创建一条绑定到指定对等接口的会话。
//
// 参数：
//   - ifIndex: 对等接口编号；
//   - localID: 本端路由器的 BGP Identifier，用于填充外发消息；
//   - params: 定时器配置；
//   - sched: 虚拟时间调度器；
//   - out: 外发消息队列，保活消息经由它交给数据平面。
func NewBGPSession(ifIndex int, localID uint32, params Parameters, sched clock.Scheduler, out chan<- *bgp.Message) (*BGPSession, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, merr.WrapErrParameterInvalid("scheduler", nil, "scheduler must not be nil")
	}
	if out == nil {
		return nil, merr.WrapErrParameterInvalid("outbound", nil, "outbound channel must not be nil")
	}

	s := &BGPSession{
		ifIndex:      ifIndex,
		ifLabel:      strconv.Itoa(ifIndex),
		sched:        sched,
		out:          out,
		params:       params,
		keepaliveMsg: bgp.NewKeepalive(localID, ifIndex),
	}
	s.SetLogger(log.With(
		log.FieldComponent("bgp-session"),
		log.FieldInterface(ifIndex),
	).WithRateGroup("bgp.session", 1, 60))
	return s, nil
}

func (s *BGPSession) PeeringInterface() int {
	return s.ifIndex
}

func (s *BGPSession) Parameters() Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *BGPSession) SetParameters(p Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	s.Logger().Info("会话定时器参数已更新",
		zap.Duration("hold_down_time", p.HoldDownTime),
		zap.Duration("keepalive_interval", p.KeepaliveInterval()))
	return nil
}

func (s *BGPSession) Start() {
	s.mu.Lock()
	s.running = true
	holdDown := s.params.HoldDownTime
	s.armHoldDownLocked(holdDown)
	s.mu.Unlock()

	s.valid.Store(true)
	s.rearmKeepalive()
	s.Logger().Info("会话已启动",
		zap.Duration("hold_down_time", holdDown),
		zap.Duration("virtual_now", s.sched.Now()))
}

func (s *BGPSession) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	if s.holdDownTimer != nil {
		s.sched.Cancel(s.holdDownTimer)
		s.holdDownTimer = nil
	}
	s.mu.Unlock()

	s.cancelKeepalive()
	if wasRunning {
		// 停止只冻结定时器，有效性标志保持原值。
		s.Logger().Info("会话已停止", zap.Duration("virtual_now", s.sched.Now()))
	}
}

func (s *BGPSession) ResetHoldDown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.Logger().RatedDebug(1, "会话未运行，忽略 HoldDown 重置")
		return
	}
	s.armHoldDownLocked(s.params.HoldDownTime)
	s.mu.Unlock()

	metrics.HoldDownResets.WithLabelValues(s.ifLabel).Inc()
}

func (s *BGPSession) ResetKeepalive() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.Logger().RatedDebug(1, "会话未运行，忽略 Keepalive 重置")
		return
	}
	s.mu.Unlock()

	s.rearmKeepalive()
	metrics.KeepaliveResets.WithLabelValues(s.ifLabel).Inc()
}

func (s *BGPSession) SetPeerIdentifier(id uint32) {
	s.peerID.Store(id)
	s.peerBound.Store(true)
	s.Logger().Info("已绑定对端标识", log.FieldPeer(id))
}

func (s *BGPSession) IsThisSession(id uint32) bool {
	return s.peerBound.Load() && s.peerID.Load() == id
}

func (s *BGPSession) IsSessionValid() bool {
	return s.valid.Load()
}

func (s *BGPSession) LastInvalidatedAt() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidatedAt, s.hasInvalidated
}

// armHoldDownLocked 取消并重新装载 HoldDown 定时器，调用方需持有 mu。
func (s *BGPSession) armHoldDownLocked(holdDown time.Duration) {
	if s.holdDownTimer != nil {
		s.sched.Cancel(s.holdDownTimer)
	}
	t, err := s.sched.Schedule(holdDown, s.onHoldDownExpired)
	if err != nil {
		s.holdDownTimer = nil
		s.Logger().Error("装载 HoldDown 定时器失败", zap.Error(err))
		return
	}
	s.holdDownTimer = t
}

// onHoldDownExpired 在 HoldDown 超时后将会话置为失效。
func (s *BGPSession) onHoldDownExpired(now time.Duration) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.holdDownTimer = nil
	s.invalidatedAt = now
	s.hasInvalidated = true
	s.mu.Unlock()

	s.valid.Store(false)
	s.cancelKeepalive()

	metrics.SessionInvalidations.WithLabelValues(s.ifLabel).Inc()
	s.Logger().Warn("HoldDown 超时，会话失效", zap.Duration("virtual_now", now))
}

// rearmKeepalive 取消当前 Keepalive 定时器并装载新的一只。
//
// 内部自动重置与外部显式重置共用此路径：
// 先递增代号使旧注册作废，再装载携带新代号的定时器，
// 保证并发重置最终只会留下一只存活的定时器。
func (s *BGPSession) rearmKeepalive() {
	interval := s.Parameters().KeepaliveInterval()

	s.kaMu.Lock()
	defer s.kaMu.Unlock()

	gen := s.kaGen.Inc()
	if s.kaTimer != nil {
		s.sched.Cancel(s.kaTimer)
	}
	t, err := s.sched.Schedule(interval, func(now time.Duration) {
		s.onKeepaliveExpired(gen, now)
	})
	if err != nil {
		s.kaTimer = nil
		s.Logger().Error("装载 Keepalive 定时器失败", zap.Error(err))
		return
	}
	s.kaTimer = t
}

// cancelKeepalive 作废并取消当前 Keepalive 定时器。
func (s *BGPSession) cancelKeepalive() {
	s.kaMu.Lock()
	defer s.kaMu.Unlock()
	s.kaGen.Inc()
	if s.kaTimer != nil {
		s.sched.Cancel(s.kaTimer)
		s.kaTimer = nil
	}
}

// onKeepaliveExpired 在 Keepalive 定时器到期时发送保活消息并自动重新装载。
func (s *BGPSession) onKeepaliveExpired(gen uint64, now time.Duration) {
	if gen != s.kaGen.Load() {
		// 到期与重置竞争，本次注册已作废。
		return
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return
	}

	select {
	case s.out <- s.keepaliveMsg:
		metrics.KeepalivesSent.WithLabelValues(s.ifLabel).Inc()
		s.Logger().Debug("已发送 keepalive", zap.Duration("virtual_now", now))
	default:
		s.Logger().RatedWarn(1, "外发队列已满，keepalive 被丢弃",
			zap.Duration("virtual_now", now))
	}

	s.rearmKeepalive()
}
