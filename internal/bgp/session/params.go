package session

import (
	"time"

	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

const (
	// DefaultHoldDownTime 是未显式配置时会话的 HoldDown 时间。
	DefaultHoldDownTime = 90 * time.Second

	// DefaultKeepaliveFraction 是 Keepalive 间隔相对 HoldDown 时间的默认分频系数。
	DefaultKeepaliveFraction = 3
)

// Parameters 描述一条 BGP 会话的定时器配置。
//
// 说明：
//   - HoldDownTime: 对端静默多久后判定会话失效；
//   - KeepaliveFraction: Keepalive 间隔 = HoldDownTime / KeepaliveFraction；
//   - KeepaliveTime: 显式覆盖 Keepalive 间隔，为 0 时按分频系数推导。
type Parameters struct {
	HoldDownTime      time.Duration
	KeepaliveFraction int
	KeepaliveTime     time.Duration
}

// DefaultParameters 返回默认的会话定时器配置。
func DefaultParameters() Parameters {
	return Parameters{
		HoldDownTime:      DefaultHoldDownTime,
		KeepaliveFraction: DefaultKeepaliveFraction,
	}
}

// Validate 校验配置的合法性。
func (p Parameters) Validate() error {
	if p.HoldDownTime <= 0 {
		return merr.WrapErrParameterInvalid("hold_down_time", p.HoldDownTime,
			"hold-down time must be positive")
	}
	if p.KeepaliveFraction <= 0 {
		return merr.WrapErrParameterInvalid("keepalive_fraction", p.KeepaliveFraction,
			"keepalive fraction must be positive")
	}
	if p.KeepaliveTime < 0 {
		return merr.WrapErrParameterInvalid("keepalive_time", p.KeepaliveTime,
			"keepalive time must not be negative")
	}
	if p.KeepaliveInterval() <= 0 {
		return merr.WrapErrParameterInvalid("keepalive_fraction", p.KeepaliveFraction,
			"derived keepalive interval must be positive")
	}
	return nil
}

// KeepaliveInterval 返回实际生效的 Keepalive 间隔。
func (p Parameters) KeepaliveInterval() time.Duration {
	if p.KeepaliveTime > 0 {
		return p.KeepaliveTime
	}
	return p.HoldDownTime / time.Duration(p.KeepaliveFraction)
}
