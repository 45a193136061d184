package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

type SchedulerSuite struct {
	suite.Suite

	sched *VirtualScheduler
}

func (s *SchedulerSuite) SetupTest() {
	s.sched = NewVirtualScheduler()
}

func (s *SchedulerSuite) TestScheduleValidation() {
	_, err := s.sched.Schedule(0, func(time.Duration) {})
	s.ErrorIs(err, merr.ErrSchedulerDelayInvalid)

	_, err = s.sched.Schedule(-time.Second, func(time.Duration) {})
	s.ErrorIs(err, merr.ErrSchedulerDelayInvalid)

	_, err = s.sched.Schedule(time.Second, nil)
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SchedulerSuite) TestAdvanceFiresInOrder() {
	var fired []int
	_, err := s.sched.Schedule(3*time.Second, func(time.Duration) { fired = append(fired, 3) })
	s.NoError(err)
	_, err = s.sched.Schedule(1*time.Second, func(time.Duration) { fired = append(fired, 1) })
	s.NoError(err)
	_, err = s.sched.Schedule(2*time.Second, func(time.Duration) { fired = append(fired, 2) })
	s.NoError(err)

	s.NoError(s.sched.Advance(2 * time.Second))
	s.Equal([]int{1, 2}, fired)
	s.Equal(1, s.sched.Pending())

	s.NoError(s.sched.Advance(time.Second))
	s.Equal([]int{1, 2, 3}, fired)
	s.Equal(0, s.sched.Pending())
}

func (s *SchedulerSuite) TestSameDeadlineIsFIFO() {
	var fired []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		_, err := s.sched.Schedule(time.Second, func(time.Duration) { fired = append(fired, name) })
		s.NoError(err)
	}
	s.NoError(s.sched.Advance(time.Second))
	s.Equal([]string{"a", "b", "c"}, fired)
}

func (s *SchedulerSuite) TestCancelledTimerNeverFires() {
	fired := false
	t, err := s.sched.Schedule(time.Second, func(time.Duration) { fired = true })
	s.NoError(err)

	s.True(s.sched.Cancel(t))
	s.False(s.sched.Cancel(t)) // 重复取消返回 false
	s.Equal(0, s.sched.Pending())

	s.NoError(s.sched.Advance(5 * time.Second))
	s.False(fired)
}

func (s *SchedulerSuite) TestRearmInsideCallback() {
	// 回调内重新注册时以触发时刻为基准，而不是本轮推进的目标时刻。
	var deadlines []time.Duration
	var rearm Callback
	rearm = func(now time.Duration) {
		deadlines = append(deadlines, now)
		if len(deadlines) < 3 {
			_, err := s.sched.Schedule(10*time.Second, rearm)
			s.NoError(err)
		}
	}
	_, err := s.sched.Schedule(10*time.Second, rearm)
	s.NoError(err)

	// 一次性推进 35s，三次触发应落在 10s/20s/30s。
	s.NoError(s.sched.Advance(35 * time.Second))
	s.Equal([]time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}, deadlines)
	s.Equal(35*time.Second, s.sched.Now())
}

func (s *SchedulerSuite) TestMoveToThenDispatch() {
	fired := false
	t, err := s.sched.Schedule(10*time.Second, func(time.Duration) { fired = true })
	s.NoError(err)

	// 先拨时钟，不派发。
	s.NoError(s.sched.MoveTo(10 * time.Second))
	s.False(fired)

	// 拨钟与派发之间仍可抢先取消。
	s.True(s.sched.Cancel(t))
	s.Equal(0, s.sched.Dispatch())
	s.False(fired)
}

func (s *SchedulerSuite) TestRewindRejected() {
	s.NoError(s.sched.MoveTo(10 * time.Second))
	err := s.sched.MoveTo(5 * time.Second)
	s.ErrorIs(err, merr.ErrSchedulerRewind)
	s.Equal(10*time.Second, s.sched.Now())
}

func (s *SchedulerSuite) TestClose() {
	fired := false
	_, err := s.sched.Schedule(time.Second, func(time.Duration) { fired = true })
	s.NoError(err)

	s.sched.Close()
	s.Equal(0, s.sched.Pending())

	_, err = s.sched.Schedule(time.Second, func(time.Duration) {})
	s.ErrorIs(err, merr.ErrSchedulerClosed)

	s.NoError(s.sched.Advance(5 * time.Second))
	s.False(fired)
}

func TestScheduler(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}
