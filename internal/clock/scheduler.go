// Package clock 提供一个基于虚拟时间的定时器调度器。
//
// 设计目标：
//   - 时间完全由调用方显式推进，不依赖墙上时钟，保证仿真结果可复现；
//   - 同一时刻到期的定时器按注册顺序触发；
//   - 已取消的定时器保证不会再触发回调。
package clock

import (
	"container/heap"
	"sync"
	"time"

	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

// Callback 是定时器到期时的回调函数，now 为该定时器的到期时刻。
type Callback func(now time.Duration)

// Timer 是一次定时器注册的句柄，用于取消。
type Timer struct {
	id uint64
}

// Scheduler 抽象了虚拟时间调度能力。
//
// 说明：
//   - Now/Schedule/Cancel 供定时器使用方调用；
//   - MoveTo/Dispatch 供驱动仿真主循环的一方调用：先把时钟拨到目标时刻，
//     处理完该时刻之前需要抢先生效的事务后，再统一派发到期回调；
//   - AdvanceTo/Advance 是 MoveTo+Dispatch 的便捷组合。
type Scheduler interface {
	// Now 返回当前虚拟时刻。
	Now() time.Duration

	// Schedule 注册一个在 delay 之后触发的一次性定时器。
	//
	// delay 必须大于 0，否则返回 ErrSchedulerDelayInvalid。
	Schedule(delay time.Duration, cb Callback) (*Timer, error)

	// Cancel 取消一个尚未触发的定时器。
	//
	// 返回值表示定时器在取消前是否仍处于待触发状态；
	// 取消成功后对应回调保证不会再被调用。
	Cancel(t *Timer) bool

	// MoveTo 仅把时钟拨到 target，不派发任何回调。
	//
	// target 早于当前时刻时返回 ErrSchedulerRewind。
	MoveTo(target time.Duration) error

	// Dispatch 派发所有到期（deadline <= Now）的回调，返回派发数量。
	//
	// 派发期间 Now 会临时回退到各事件自身的到期时刻，
	// 这样回调内重新注册的定时器以触发时刻为基准计算下一次 deadline。
	Dispatch() int

	// AdvanceTo 把时钟拨到 target 并派发所有到期回调。
	AdvanceTo(target time.Duration) error

	// Advance 把时钟前进 d 并派发所有到期回调。
	Advance(d time.Duration) error

	// Pending 返回尚未触发且未被取消的定时器数量。
	Pending() int

	// Close 取消所有待触发定时器并拒绝后续注册。
	Close()
}

type event struct {
	id        uint64
	deadline  time.Duration
	seq       uint64 // 同一 deadline 下保证 FIFO 触发顺序
	cb        Callback
	cancelled bool
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// VirtualScheduler 是 Scheduler 的默认实现。
type VirtualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	nextID uint64
	events eventHeap
	byID   map[uint64]*event
	closed bool
}

// 编译期断言：确保 VirtualScheduler 实现了 Scheduler 接口。
var _ Scheduler = (*VirtualScheduler)(nil)

// NewVirtualScheduler 创建一个时钟起点为 0 的虚拟调度器。
func NewVirtualScheduler() *VirtualScheduler {
	return &VirtualScheduler{
		byID: make(map[uint64]*event),
	}
}

func (s *VirtualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *VirtualScheduler) Schedule(delay time.Duration, cb Callback) (*Timer, error) {
	if delay <= 0 {
		return nil, merr.WrapErrSchedulerDelayInvalid(delay)
	}
	if cb == nil {
		return nil, merr.WrapErrParameterInvalid("callback", nil, "callback must not be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, merr.ErrSchedulerClosed
	}

	s.nextID++
	s.seq++
	ev := &event{
		id:       s.nextID,
		deadline: s.now + delay,
		seq:      s.seq,
		cb:       cb,
	}
	heap.Push(&s.events, ev)
	s.byID[ev.id] = ev
	return &Timer{id: ev.id}, nil
}

func (s *VirtualScheduler) Cancel(t *Timer) bool {
	if t == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.byID[t.id]
	if !ok {
		return false
	}
	// 惰性删除：仅打标记，事件出堆时丢弃。
	ev.cancelled = true
	ev.cb = nil
	delete(s.byID, t.id)
	return true
}

func (s *VirtualScheduler) MoveTo(target time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if target < s.now {
		return merr.WrapErrSchedulerRewind(s.now, target)
	}
	s.now = target
	return nil
}

func (s *VirtualScheduler) Dispatch() int {
	s.mu.Lock()
	target := s.now
	dispatched := 0
	for len(s.events) > 0 && s.events[0].deadline <= target {
		ev := heap.Pop(&s.events).(*event)
		if ev.cancelled {
			continue
		}
		delete(s.byID, ev.id)
		// 回调以事件自身的到期时刻为“当前时刻”。
		s.now = ev.deadline
		cb := ev.cb
		s.mu.Unlock()
		cb(ev.deadline)
		s.mu.Lock()
		dispatched++
	}
	s.now = target
	s.mu.Unlock()
	return dispatched
}

func (s *VirtualScheduler) AdvanceTo(target time.Duration) error {
	if err := s.MoveTo(target); err != nil {
		return err
	}
	s.Dispatch()
	return nil
}

func (s *VirtualScheduler) Advance(d time.Duration) error {
	if d < 0 {
		return merr.WrapErrSchedulerDelayInvalid(d)
	}
	return s.AdvanceTo(s.Now() + d)
}

func (s *VirtualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *VirtualScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.byID {
		ev.cancelled = true
		ev.cb = nil
	}
	s.byID = make(map[uint64]*event)
	s.events = s.events[:0]
	s.closed = true
}
