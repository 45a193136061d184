package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/bgp-garden-go/internal/bgp"
	"github.com/lk2023060901/bgp-garden-go/internal/clock"
	"github.com/lk2023060901/bgp-garden-go/pkg/log"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

const testLocalID uint32 = 0x0A000001

type SessionSuite struct {
	suite.Suite

	sched *clock.VirtualScheduler
	out   chan *bgp.Message
	sess  *BGPSession
}

func (s *SessionSuite) SetupSuite() {
	logger, props, err := log.InitTestLogger(s.T(), &log.Config{Level: "info", DisableTimestamp: true})
	s.Require().NoError(err)
	log.ReplaceGlobals(logger, props)
}

func (s *SessionSuite) SetupTest() {
	s.sched = clock.NewVirtualScheduler()
	s.out = make(chan *bgp.Message, 64)

	sess, err := NewBGPSession(1, testLocalID, Parameters{
		HoldDownTime:      30 * time.Second,
		KeepaliveFraction: 3,
	}, s.sched, s.out)
	s.Require().NoError(err)
	s.sess = sess
}

func (s *SessionSuite) drainKeepalives() int {
	n := 0
	for {
		select {
		case msg := <-s.out:
			s.Equal(bgp.MessageTypeKeepalive, msg.Type)
			s.Equal(testLocalID, msg.PeerIdentifier)
			s.Equal(1, msg.OutboundInterface)
			n++
		default:
			return n
		}
	}
}

func (s *SessionSuite) TestParamsValidation() {
	_, err := NewBGPSession(1, testLocalID, Parameters{HoldDownTime: -time.Second, KeepaliveFraction: 3}, s.sched, s.out)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = NewBGPSession(1, testLocalID, Parameters{HoldDownTime: 30 * time.Second}, s.sched, s.out)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	s.ErrorIs(s.sess.SetParameters(Parameters{HoldDownTime: time.Second, KeepaliveFraction: -1}), merr.ErrParameterInvalid)
}

func (s *SessionSuite) TestKeepaliveInterval() {
	p := Parameters{HoldDownTime: 30 * time.Second, KeepaliveFraction: 3}
	s.Equal(10*time.Second, p.KeepaliveInterval())

	// 显式配置优先于分频推导。
	p.KeepaliveTime = 7 * time.Second
	s.Equal(7*time.Second, p.KeepaliveInterval())
}

func (s *SessionSuite) TestSilentPeerExpires() {
	// HoldDown 30s、分频 3：应在 10s 与 20s 各发送一次 keepalive，
	// 30s 时 HoldDown 先于当拍的 keepalive 触发，会话失效。
	s.sess.Start()
	s.True(s.sess.IsSessionValid())

	s.NoError(s.sched.Advance(9 * time.Second))
	s.Equal(0, s.drainKeepalives())

	s.NoError(s.sched.Advance(time.Second)) // t=10s
	s.Equal(1, s.drainKeepalives())

	s.NoError(s.sched.Advance(10 * time.Second)) // t=20s
	s.Equal(1, s.drainKeepalives())
	s.True(s.sess.IsSessionValid())

	s.NoError(s.sched.Advance(10 * time.Second)) // t=30s
	s.Equal(0, s.drainKeepalives())
	s.False(s.sess.IsSessionValid())

	at, ok := s.sess.LastInvalidatedAt()
	s.True(ok)
	s.Equal(30*time.Second, at)

	// 失效后不再产生任何定时器活动。
	s.NoError(s.sched.Advance(time.Minute))
	s.Equal(0, s.drainKeepalives())
	s.Equal(0, s.sched.Pending())
}

func (s *SessionSuite) TestHoldDownResetExtendsLife() {
	s.sess.Start()

	s.NoError(s.sched.Advance(25 * time.Second))
	s.sess.ResetHoldDown() // 新的失效时刻应为 25s+30s=55s

	s.NoError(s.sched.AdvanceTo(54 * time.Second))
	s.True(s.sess.IsSessionValid())
	// HoldDown 重置不影响 keepalive 节奏：t=10/20/30/40/50 各一次。
	s.Equal(5, s.drainKeepalives())

	s.NoError(s.sched.AdvanceTo(55 * time.Second))
	s.False(s.sess.IsSessionValid())
	s.Equal(0, s.drainKeepalives())

	at, ok := s.sess.LastInvalidatedAt()
	s.True(ok)
	s.Equal(55*time.Second, at)
}

func (s *SessionSuite) TestStopFreezesTimers() {
	s.sess.Start()
	s.NoError(s.sched.Advance(15 * time.Second))
	s.Equal(1, s.drainKeepalives())

	s.sess.Stop()
	s.Equal(0, s.sched.Pending())

	// 停止后有效性标志保持不变，定时器不再触发。
	s.NoError(s.sched.Advance(time.Hour))
	s.True(s.sess.IsSessionValid())
	s.Equal(0, s.drainKeepalives())

	// 停止状态下的重置均为空操作。
	s.sess.ResetHoldDown()
	s.sess.ResetKeepalive()
	s.Equal(0, s.sched.Pending())
}

func (s *SessionSuite) TestRestartRearmsTimers() {
	s.sess.Start()
	s.NoError(s.sched.Advance(30 * time.Second))
	s.False(s.sess.IsSessionValid())
	s.drainKeepalives()

	// 重新启动后恢复有效，定时器以当前时刻为基准重新装载。
	s.sess.Start()
	s.True(s.sess.IsSessionValid())

	s.NoError(s.sched.Advance(10 * time.Second)) // t=40s
	s.Equal(1, s.drainKeepalives())

	s.NoError(s.sched.Advance(20 * time.Second)) // t=60s，静默至 30s+30s
	s.False(s.sess.IsSessionValid())
}

func (s *SessionSuite) TestKeepaliveResetArbitration() {
	s.sess.Start()

	// t=5s 外部重置：下一次 keepalive 应推迟到 t=15s，且只触发一次。
	s.NoError(s.sched.Advance(5 * time.Second))
	s.sess.ResetKeepalive()

	s.NoError(s.sched.AdvanceTo(10 * time.Second))
	s.Equal(0, s.drainKeepalives())

	s.NoError(s.sched.AdvanceTo(15 * time.Second))
	s.Equal(1, s.drainKeepalives())

	// 连续多次重置最终只保留一只存活的 Keepalive 定时器。
	s.sess.ResetKeepalive()
	s.sess.ResetKeepalive()
	s.sess.ResetKeepalive()
	s.NoError(s.sched.AdvanceTo(25 * time.Second))
	s.Equal(1, s.drainKeepalives())
}

func (s *SessionSuite) TestPeerIdentity() {
	// 未绑定对端标识时恒不匹配。
	s.False(s.sess.IsThisSession(0))
	s.False(s.sess.IsThisSession(42))

	s.sess.SetPeerIdentifier(42)
	s.True(s.sess.IsThisSession(42))
	s.False(s.sess.IsThisSession(43))
}

func (s *SessionSuite) TestSetParametersAffectsNextArm() {
	s.sess.Start()

	// 更新参数不影响已装载的定时器。
	s.NoError(s.sess.SetParameters(Parameters{
		HoldDownTime:      30 * time.Second,
		KeepaliveFraction: 3,
		KeepaliveTime:     5 * time.Second,
	}))
	s.NoError(s.sched.Advance(10 * time.Second))
	s.Equal(1, s.drainKeepalives()) // 仍按旧的 10s 间隔触发

	// 该次触发的自动重置已采用新的 5s 间隔。
	s.NoError(s.sched.AdvanceTo(14 * time.Second))
	s.Equal(0, s.drainKeepalives())
	s.NoError(s.sched.AdvanceTo(15 * time.Second))
	s.Equal(1, s.drainKeepalives())
}

func TestBGPSession(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}
