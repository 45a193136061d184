package application

import (
	"time"

	"github.com/lk2023060901/bgp-garden-go/internal/bgp/session"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

// RouteConfig 描述一条静态路由。
type RouteConfig struct {
	Interface int    `mapstructure:"interface"`
	Prefix    string `mapstructure:"prefix"`
}

// RouterConfig 描述一台路由器实例。
type RouterConfig struct {
	Name              string        `mapstructure:"name"`
	Identifier        uint32        `mapstructure:"identifier"`
	Sessions          int           `mapstructure:"sessions"`
	HoldDownTime      time.Duration `mapstructure:"hold-down-time"`
	KeepaliveFraction int           `mapstructure:"keepalive-fraction"`
	KeepaliveTime     time.Duration `mapstructure:"keepalive-time"`
	InboundQueueSize  int           `mapstructure:"inbound-queue-size"`
	OutboundQueueSize int           `mapstructure:"outbound-queue-size"`
	Routes            []RouteConfig `mapstructure:"routes"`
}

// SessionParams 由路由器配置推导出会话定时器配置。
func (c RouterConfig) SessionParams() session.Parameters {
	p := session.DefaultParameters()
	if c.HoldDownTime > 0 {
		p.HoldDownTime = c.HoldDownTime
	}
	if c.KeepaliveFraction > 0 {
		p.KeepaliveFraction = c.KeepaliveFraction
	}
	if c.KeepaliveTime > 0 {
		p.KeepaliveTime = c.KeepaliveTime
	}
	return p
}

// LinkConfig 描述两台路由器之间的一条双向链路。
type LinkConfig struct {
	A          string `mapstructure:"a"`
	AInterface int    `mapstructure:"a-interface"`
	B          string `mapstructure:"b"`
	BInterface int    `mapstructure:"b-interface"`
}

// SimulationConfig 描述仿真主循环的参数。
type SimulationConfig struct {
	// Duration 是仿真的虚拟总时长。
	Duration time.Duration `mapstructure:"duration"`
	// Tick 是相邻两拍之间的虚拟时间步长。
	Tick time.Duration `mapstructure:"tick"`
	// Settle 是每拍之后的墙钟等待时间，留给数据平面完成异步投递。
	Settle time.Duration `mapstructure:"settle"`
	// PoolSize 是数据平面投递协程池的容量。
	PoolSize int `mapstructure:"pool-size"`
}

const (
	defaultSimDuration = 2 * time.Minute
	defaultSimTick     = time.Second
	defaultSimSettle   = 5 * time.Millisecond
)

// normalize 为缺省字段填入默认值。
func (c *SimulationConfig) normalize() {
	if c.Duration <= 0 {
		c.Duration = defaultSimDuration
	}
	if c.Tick <= 0 {
		c.Tick = defaultSimTick
	}
	if c.Settle < 0 {
		c.Settle = defaultSimSettle
	}
}

// topologyConfig 是配置文件的根结构。
type topologyConfig struct {
	Routers    []RouterConfig   `mapstructure:"routers"`
	Links      []LinkConfig     `mapstructure:"links"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

// validate 校验拓扑配置的自洽性。
func (c *topologyConfig) validate() error {
	if len(c.Routers) == 0 {
		return merr.WrapErrParameterInvalid("routers", len(c.Routers), "at least one router required")
	}
	seen := make(map[string]struct{}, len(c.Routers))
	for _, rc := range c.Routers {
		if rc.Name == "" {
			return merr.WrapErrParameterInvalid("router.name", rc.Name, "router name must not be empty")
		}
		if _, ok := seen[rc.Name]; ok {
			return merr.WrapErrParameterInvalid("router.name", rc.Name, "duplicated router name")
		}
		seen[rc.Name] = struct{}{}
		if rc.Sessions <= 0 {
			return merr.WrapErrParameterInvalid("router.sessions", rc.Sessions, "session count must be positive")
		}
	}
	for _, lc := range c.Links {
		if _, ok := seen[lc.A]; !ok {
			return merr.WrapErrParameterInvalid("link.a", lc.A, "unknown router")
		}
		if _, ok := seen[lc.B]; !ok {
			return merr.WrapErrParameterInvalid("link.b", lc.B, "unknown router")
		}
	}
	return nil
}
