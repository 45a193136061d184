// Package routing 维护控制平面的路由表：前缀与出接口的映射。
package routing

import (
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

// Manager 抽象了路由表的增删查能力。
//
// 会话失效时，监督器通过 Withdraw 一次性摘除经由该接口的全部路由。
type Manager interface {
	// AddRoute 添加一条经由指定接口的路由，重复添加为幂等操作。
	AddRoute(ifIndex int, prefix string) error

	// RoutesVia 返回经由指定接口的全部路由前缀快照。
	RoutesVia(ifIndex int) []string

	// Lookup 返回指定前缀的出接口。
	Lookup(prefix string) (int, error)

	// Withdraw 摘除经由指定接口的全部路由，并返回被摘除的前缀。
	Withdraw(ifIndex int) []string

	// NumRoutes 返回路由表中的前缀总数。
	NumRoutes() int
}

// memManager 是 Manager 的内存实现。
type memManager struct {
	mu sync.RWMutex
	// byInterface 保留插入顺序，便于撤销通告的内容可复现。
	byInterface map[int][]string
	byPrefix    map[string]int
}

var _ Manager = (*memManager)(nil)

// NewManager 创建一个空路由表。
func NewManager() Manager {
	return &memManager{
		byInterface: make(map[int][]string),
		byPrefix:    make(map[string]int),
	}
}

func (m *memManager) AddRoute(ifIndex int, prefix string) error {
	if prefix == "" {
		return merr.WrapErrParameterInvalid("prefix", prefix, "prefix must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.byPrefix[prefix]; ok {
		if old == ifIndex {
			return nil
		}
		// 前缀改经新接口时先从旧接口摘除。
		m.byInterface[old] = lo.Without(m.byInterface[old], prefix)
	}
	m.byPrefix[prefix] = ifIndex
	m.byInterface[ifIndex] = append(m.byInterface[ifIndex], prefix)
	return nil
}

func (m *memManager) RoutesVia(ifIndex int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Slice(m.byInterface[ifIndex], 0, len(m.byInterface[ifIndex]))
}

func (m *memManager) Lookup(prefix string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ifIndex, ok := m.byPrefix[prefix]
	if !ok {
		return 0, merr.WrapErrRouteNotFound(-1, "prefix "+prefix+" not found")
	}
	return ifIndex, nil
}

func (m *memManager) Withdraw(ifIndex int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefixes := m.byInterface[ifIndex]
	if len(prefixes) == 0 {
		return nil
	}
	delete(m.byInterface, ifIndex)
	for _, p := range prefixes {
		delete(m.byPrefix, p)
	}
	return prefixes
}

func (m *memManager) NumRoutes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byPrefix)
}
