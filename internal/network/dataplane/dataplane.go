// Package dataplane 在进程内模拟路由器之间的转发平面。
//
// 每个控制平面通过一个 Port 接入数据平面：
// Port 消费该路由器的外发队列，按消息的出接口选择链路，
// 将消息序列化、反序列化后投递到对端的接收队列，
// 以此模拟“消息离开本端协议栈、经链路到达对端协议栈”的完整路径。
package dataplane

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/bgp-garden-go/internal/bgp"
	"github.com/lk2023060901/bgp-garden-go/internal/network"
	"github.com/lk2023060901/bgp-garden-go/internal/network/serializer"
	"github.com/lk2023060901/bgp-garden-go/pkg/log"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/conc"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

const (
	// defaultPoolSize 是投递协程池的默认容量。
	defaultPoolSize = 16

	deliverInitialInterval = 5 * time.Millisecond
	deliverMaxInterval     = 50 * time.Millisecond
	deliverMaxElapsedTime  = 2 * time.Second
)

// Endpoint 是能够接收入站消息的控制平面端点。
type Endpoint interface {
	Enqueue(msg *bgp.Message) error
}

// DataPlane 管理全部 Port 与底层的投递协程池。
type DataPlane struct {
	log.Binder

	ser  serializer.Serializer
	pool *conc.Pool

	mu    sync.Mutex
	ports []*Port

	closed atomic.Bool
}

// Port 是数据平面上的一个接入点，对应一台路由器。
type Port struct {
	name string
	out  <-chan *bgp.Message
	dp   *DataPlane

	mu    sync.RWMutex
	links map[int]Endpoint // 本端出接口 -> 对端控制平面
}

// New 创建数据平面。
//
// 参数：
//   - ser: 链路上使用的序列化器；
//   - poolSize: 投递协程池容量，小于等于 0 时使用默认值。
func New(ser serializer.Serializer, poolSize int) (*DataPlane, error) {
	if ser == nil {
		return nil, merr.WrapErrParameterInvalid("serializer", nil, "serializer must not be nil")
	}
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	pool, err := conc.NewPool(poolSize, conc.WithNonBlocking(false))
	if err != nil {
		return nil, err
	}

	dp := &DataPlane{
		ser:  ser,
		pool: pool,
	}
	dp.SetLogger(log.With(log.FieldComponent("dataplane")).WithRateGroup("network.dataplane", 1, 60))
	return dp, nil
}

// AttachPort 将一台路由器的外发队列接入数据平面。
func (dp *DataPlane) AttachPort(name string, out <-chan *bgp.Message) *Port {
	p := &Port{
		name:  name,
		out:   out,
		dp:    dp,
		links: make(map[int]Endpoint),
	}

	dp.mu.Lock()
	dp.ports = append(dp.ports, p)
	dp.mu.Unlock()
	return p
}

// Bind 建立一条链路：本端 ifIndex 出接口的消息投递给 peer。
func (p *Port) Bind(ifIndex int, peer Endpoint) {
	p.mu.Lock()
	p.links[ifIndex] = peer
	p.mu.Unlock()
}

func (p *Port) peer(ifIndex int) (Endpoint, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	peer, ok := p.links[ifIndex]
	return peer, ok
}

// Run 启动全部 Port 的转发循环，阻塞直到 ctx 取消。
func (dp *DataPlane) Run(ctx context.Context) error {
	dp.mu.Lock()
	ports := make([]*Port, len(dp.ports))
	copy(ports, dp.ports)
	dp.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range ports {
		p := p
		g.Go(func() error {
			return p.serve(ctx)
		})
	}
	return g.Wait()
}

// Close 释放投递协程池。应在 Run 返回后调用。
func (dp *DataPlane) Close() {
	if !dp.closed.CompareAndSwap(false, true) {
		return
	}
	dp.pool.Release()
}

// serve 消费本端外发队列并逐条转发。
func (p *Port) serve(ctx context.Context) error {
	logger := p.dp.Logger().With(zap.String("port", p.name))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-p.out:
			if !ok {
				logger.Info("外发队列已关闭，转发循环退出")
				return nil
			}
			if err := p.forward(ctx, msg); err != nil {
				logger.Error("消息转发失败",
					zap.String("stage", string(network.StageFor(err))),
					zap.String("message_type", msg.Type.String()),
					zap.Error(err))
			}
		}
	}
}

// forward 将一条消息经链路投递到对端。
//
// 序列化在转发循环内同步完成，投递（含解码与退避重试）提交到协程池，
// 避免某个对端的背压阻塞本端其它链路。
func (p *Port) forward(ctx context.Context, msg *bgp.Message) error {
	logger := p.dp.Logger()

	peer, ok := p.peer(msg.OutboundInterface)
	if !ok {
		logger.RatedWarn(1, "出接口未接线，消息被丢弃",
			zap.String("port", p.name),
			log.FieldInterface(msg.OutboundInterface),
			zap.String("message_type", msg.Type.String()))
		return nil
	}

	wire, err := p.dp.ser.Marshal(msg)
	if err != nil {
		return errors.Wrapf(network.ErrEncodeFailed, "port=%s: %v", p.name, err)
	}

	return p.dp.pool.Submit(func() {
		if err := p.deliver(ctx, peer, wire); err != nil {
			logger.Warn("消息投递失败",
				zap.String("port", p.name),
				zap.String("stage", string(network.StageFor(err))),
				zap.Error(err))
		}
	})
}

// deliver 在对端重建消息对象并写入其接收队列。
func (p *Port) deliver(ctx context.Context, peer Endpoint, wire []byte) error {
	msg := new(bgp.Message)
	if err := p.dp.ser.Unmarshal(wire, msg); err != nil {
		return errors.Wrapf(network.ErrDecodeFailed, "port=%s: %v", p.name, err)
	}

	// 对端接收队列满属于瞬时背压，按指数退避重投。
	bo := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(deliverInitialInterval),
		backoff.WithMaxInterval(deliverMaxInterval),
		backoff.WithMaxElapsedTime(deliverMaxElapsedTime),
	), ctx)
	err := backoff.Retry(func() error {
		if err := peer.Enqueue(msg); err != nil {
			if merr.IsRetryableErr(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, bo)
	if err != nil {
		return errors.Wrapf(network.ErrDeliverFailed,
			"port=%s, message_type=%s: %v", p.name, msg.Type, err)
	}
	return nil
}
