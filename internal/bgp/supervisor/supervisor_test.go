package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/bgp-garden-go/internal/bgp"
	"github.com/lk2023060901/bgp-garden-go/internal/bgp/routing"
	"github.com/lk2023060901/bgp-garden-go/internal/bgp/session"
	"github.com/lk2023060901/bgp-garden-go/internal/clock"
	"github.com/lk2023060901/bgp-garden-go/pkg/log"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

const (
	testLocalID uint32 = 0x0A000001
	peerBaseID  uint32 = 100
)

type SupervisorSuite struct {
	suite.Suite

	ctx    context.Context
	sched  *clock.VirtualScheduler
	routes routing.Manager
	out    chan *bgp.Message
	sv     *SessionSupervisor
}

func (s *SupervisorSuite) SetupSuite() {
	logger, props, err := log.InitTestLogger(s.T(), &log.Config{Level: "info", DisableTimestamp: true})
	s.Require().NoError(err)
	log.ReplaceGlobals(logger, props)
}

func (s *SupervisorSuite) SetupTest() {
	s.ctx = context.Background()
	s.sched = clock.NewVirtualScheduler()
	s.routes = routing.NewManager()
	s.out = make(chan *bgp.Message, 256)
	s.sv = s.newSupervisor(3)
}

func (s *SupervisorSuite) newSupervisor(sessionCount int) *SessionSupervisor {
	sv, err := New(Config{
		RouterName:      "r1",
		LocalIdentifier: testLocalID,
		SessionCount:    sessionCount,
		SessionParams: session.Parameters{
			HoldDownTime:      30 * time.Second,
			KeepaliveFraction: 3,
		},
	}, s.sched, s.routes, s.out)
	s.Require().NoError(err)

	// 对端标识按接口编号依次绑定：接口 i 的对端为 peerBaseID+i。
	for i := 0; i < sessionCount; i++ {
		sess, err := sv.Session(i)
		s.Require().NoError(err)
		sess.SetPeerIdentifier(peerBaseID + uint32(i))
	}
	return sv
}

// tickRange 以 step 为步长逐拍驱动监督器，直到 end（含）。
func (s *SupervisorSuite) tickRange(start, end, step time.Duration) {
	for now := start; now <= end; now += step {
		s.Require().NoError(s.sv.Tick(s.ctx, now))
	}
}

// drainOut 按类型清点外发队列中的消息。
func (s *SupervisorSuite) drainOut() map[bgp.MessageType][]*bgp.Message {
	byType := make(map[bgp.MessageType][]*bgp.Message)
	for {
		select {
		case msg := <-s.out:
			byType[msg.Type] = append(byType[msg.Type], msg)
		default:
			return byType
		}
	}
}

// keepAlivePeer 模拟对端在每拍投递一条 keepalive。
func (s *SupervisorSuite) keepAlivePeer(peerID uint32) {
	s.Require().NoError(s.sv.Enqueue(bgp.NewKeepalive(peerID, 0)))
}

func (s *SupervisorSuite) TestConfigValidation() {
	_, err := New(Config{RouterName: "", SessionCount: 1, SessionParams: session.DefaultParameters()},
		s.sched, s.routes, s.out)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = New(Config{RouterName: "r", SessionCount: 0, SessionParams: session.DefaultParameters()},
		s.sched, s.routes, s.out)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = New(Config{RouterName: "r", SessionCount: 1}, s.sched, s.routes, s.out)
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SupervisorSuite) TestWithdrawalHandledExactlyOnce() {
	s.Require().NoError(s.routes.AddRoute(0, "10.0.0.0/16"))
	s.Require().NoError(s.routes.AddRoute(0, "10.1.0.0/16"))
	s.Require().NoError(s.routes.AddRoute(1, "10.2.0.0/16"))
	s.Require().NoError(s.routes.AddRoute(2, "10.3.0.0/16"))

	s.sv.Start()

	// 接口 1、2 的对端持续投递 keepalive，接口 0 的对端保持静默。
	for now := time.Second; now <= 40*time.Second; now += time.Second {
		s.keepAlivePeer(peerBaseID + 1)
		s.keepAlivePeer(peerBaseID + 2)
		s.Require().NoError(s.sv.Tick(s.ctx, now))
	}

	sess0, _ := s.sv.Session(0)
	s.False(sess0.IsSessionValid())

	// 接口 0 的路由被撤销，其余接口不受影响。
	s.Empty(s.routes.RoutesVia(0))
	s.Equal(2, s.routes.NumRoutes())

	// 撤销通告只发给其余两个仍然有效的对端，且只发一轮。
	byType := s.drainOut()
	s.Len(byType[bgp.MessageTypeUpdate], 2)
	for _, msg := range byType[bgp.MessageTypeUpdate] {
		s.Equal(testLocalID, msg.PeerIdentifier)
		s.ElementsMatch([]string{"10.0.0.0/16", "10.1.0.0/16"}, msg.WithdrawnRoutes)
	}

	// 继续运行若干拍，失效处理不会重复。
	for now := 41 * time.Second; now <= 50*time.Second; now += time.Second {
		s.keepAlivePeer(peerBaseID + 1)
		s.keepAlivePeer(peerBaseID + 2)
		s.Require().NoError(s.sv.Tick(s.ctx, now))
	}
	s.Empty(s.drainOut()[bgp.MessageTypeUpdate])
}

func (s *SupervisorSuite) TestTickBeforeStartIsInert() {
	s.Require().NoError(s.routes.AddRoute(0, "10.0.0.0/16"))

	// 启动前的 tick 不把尚未启动的会话当作新失效处理。
	s.Require().NoError(s.sv.Tick(s.ctx, time.Second))
	s.Equal(1, s.routes.NumRoutes())
	s.Empty(s.drainOut()[bgp.MessageTypeUpdate])

	// 启动后恢复正常监督：接口 0 静默满一个 HoldDown 周期仍会触发一轮撤销。
	s.sv.Start()
	for now := 2 * time.Second; now <= 31*time.Second; now += time.Second {
		s.keepAlivePeer(peerBaseID + 1)
		s.keepAlivePeer(peerBaseID + 2)
		s.Require().NoError(s.sv.Tick(s.ctx, now))
	}
	s.Empty(s.routes.RoutesVia(0))
	s.Len(s.drainOut()[bgp.MessageTypeUpdate], 2)
}

func (s *SupervisorSuite) TestSameTickMessageWins() {
	s.sv.Start()

	// HoldDown 在 t=30s 到期。同拍到达的消息必须抢先完成重置。
	s.tickRange(time.Second, 29*time.Second, time.Second)

	s.keepAlivePeer(peerBaseID + 0)
	s.Require().NoError(s.sv.Tick(s.ctx, 30*time.Second))

	sess0, _ := s.sv.Session(0)
	s.True(sess0.IsSessionValid())

	// 新的失效时刻推迟到 30s+30s=60s。
	s.tickRange(31*time.Second, 59*time.Second, time.Second)
	s.True(sess0.IsSessionValid())
	s.Require().NoError(s.sv.Tick(s.ctx, 60*time.Second))
	s.False(sess0.IsSessionValid())
}

func (s *SupervisorSuite) TestUnknownPeerIgnored() {
	s.sv.Start()
	s.Require().NoError(s.sv.Enqueue(bgp.NewKeepalive(9999, 0)))
	s.Require().NoError(s.sv.Tick(s.ctx, time.Second))

	// 所有会话不受未知对端消息影响，仍按原定时刻失效。
	s.tickRange(2*time.Second, 30*time.Second, time.Second)
	for i := 0; i < s.sv.NumSessions(); i++ {
		sess, err := s.sv.Session(i)
		s.Require().NoError(err)
		s.False(sess.IsSessionValid())
	}
}

func (s *SupervisorSuite) TestOpenNegotiatesHoldTime() {
	s.sv.Start()

	// 对端在 OPEN 中给出更小的 HoldTime，取较小值。
	s.Require().NoError(s.sv.Enqueue(bgp.NewOpen(peerBaseID+0, 0, 20*time.Second)))
	s.Require().NoError(s.sv.Tick(s.ctx, time.Second))

	sess0, _ := s.sv.Session(0)
	s.Equal(20*time.Second, sess0.Parameters().HoldDownTime)

	// 对端给出的值不小于本端时保持不变。
	s.Require().NoError(s.sv.Enqueue(bgp.NewOpen(peerBaseID+0, 0, time.Hour)))
	s.Require().NoError(s.sv.Tick(s.ctx, 2*time.Second))
	s.Equal(20*time.Second, sess0.Parameters().HoldDownTime)
}

func (s *SupervisorSuite) TestEnqueueBackpressure() {
	sv, err := New(Config{
		RouterName:       "r2",
		LocalIdentifier:  testLocalID,
		SessionCount:     1,
		SessionParams:    session.DefaultParameters(),
		InboundQueueSize: 2,
	}, clock.NewVirtualScheduler(), routing.NewManager(), s.out)
	s.Require().NoError(err)

	s.NoError(sv.Enqueue(bgp.NewKeepalive(1, 0)))
	s.NoError(sv.Enqueue(bgp.NewKeepalive(1, 0)))

	err = sv.Enqueue(bgp.NewKeepalive(1, 0))
	s.ErrorIs(err, merr.ErrQueueFull)
	s.True(merr.IsRetryableErr(err))
}

func (s *SupervisorSuite) TestSendToPeerResetsKeepalive() {
	s.sv = s.newSupervisor(1)
	s.sv.Start()

	// t=5s 本端主动发送一条 UPDATE，Keepalive 应推迟到 t=15s。
	s.Require().NoError(s.sv.Tick(s.ctx, 5*time.Second))
	s.Require().NoError(s.sv.SendToPeer(s.ctx, 0, &bgp.Message{Type: bgp.MessageTypeUpdate}))

	s.Require().NoError(s.sv.Tick(s.ctx, 10*time.Second))
	byType := s.drainOut()
	s.Len(byType[bgp.MessageTypeUpdate], 1)
	s.Equal(0, byType[bgp.MessageTypeUpdate][0].OutboundInterface)
	s.Empty(byType[bgp.MessageTypeKeepalive])

	s.Require().NoError(s.sv.Tick(s.ctx, 15*time.Second))
	s.Len(s.drainOut()[bgp.MessageTypeKeepalive], 1)
}

func (s *SupervisorSuite) TestRestartAllowsSecondWithdrawal() {
	s.Require().NoError(s.routes.AddRoute(0, "10.0.0.0/16"))
	s.sv.Start()

	// 其余对端保活，仅接口 0 失效。
	for now := time.Second; now <= 30*time.Second; now += time.Second {
		s.keepAlivePeer(peerBaseID + 1)
		s.keepAlivePeer(peerBaseID + 2)
		s.Require().NoError(s.sv.Tick(s.ctx, now))
	}
	s.Len(s.drainOut()[bgp.MessageTypeUpdate], 2)

	// 重启会话并补回路由，再次静默后仍会触发一轮撤销。
	s.Require().NoError(s.sv.StartSession(0))
	s.Require().NoError(s.routes.AddRoute(0, "10.0.0.0/16"))

	for now := 31 * time.Second; now <= 60*time.Second; now += time.Second {
		s.keepAlivePeer(peerBaseID + 1)
		s.keepAlivePeer(peerBaseID + 2)
		s.Require().NoError(s.sv.Tick(s.ctx, now))
	}
	s.Len(s.drainOut()[bgp.MessageTypeUpdate], 2)
}

func (s *SupervisorSuite) TestCloseStopsSessions() {
	s.sv.Start()
	s.sv.Close()

	s.Error(s.sv.Enqueue(bgp.NewKeepalive(peerBaseID, 0)))
	s.Error(s.sv.Tick(s.ctx, time.Second))
	s.Equal(0, s.sched.Pending())
}

func TestSessionSupervisor(t *testing.T) {
	suite.Run(t, new(SupervisorSuite))
}
