package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/bgp-garden-go/pkg/util/merr"
)

func TestAddAndLookup(t *testing.T) {
	m := NewManager()

	assert.NoError(t, m.AddRoute(0, "10.1.0.0/16"))
	assert.NoError(t, m.AddRoute(0, "10.2.0.0/16"))
	assert.NoError(t, m.AddRoute(1, "10.3.0.0/16"))
	assert.Equal(t, 3, m.NumRoutes())

	ifIndex, err := m.Lookup("10.3.0.0/16")
	assert.NoError(t, err)
	assert.Equal(t, 1, ifIndex)

	_, err = m.Lookup("192.168.0.0/24")
	assert.ErrorIs(t, err, merr.ErrRouteNotFound)

	assert.ErrorIs(t, m.AddRoute(0, ""), merr.ErrParameterInvalid)
}

func TestAddRouteIdempotent(t *testing.T) {
	m := NewManager()
	assert.NoError(t, m.AddRoute(0, "10.1.0.0/16"))
	assert.NoError(t, m.AddRoute(0, "10.1.0.0/16"))
	assert.Equal(t, 1, m.NumRoutes())
	assert.Equal(t, []string{"10.1.0.0/16"}, m.RoutesVia(0))
}

func TestAddRouteMovesInterface(t *testing.T) {
	m := NewManager()
	assert.NoError(t, m.AddRoute(0, "10.1.0.0/16"))
	assert.NoError(t, m.AddRoute(1, "10.1.0.0/16"))

	assert.Empty(t, m.RoutesVia(0))
	assert.Equal(t, []string{"10.1.0.0/16"}, m.RoutesVia(1))

	ifIndex, err := m.Lookup("10.1.0.0/16")
	assert.NoError(t, err)
	assert.Equal(t, 1, ifIndex)
}

func TestWithdraw(t *testing.T) {
	m := NewManager()
	assert.NoError(t, m.AddRoute(0, "10.1.0.0/16"))
	assert.NoError(t, m.AddRoute(0, "10.2.0.0/16"))
	assert.NoError(t, m.AddRoute(1, "10.3.0.0/16"))

	removed := m.Withdraw(0)
	assert.Equal(t, []string{"10.1.0.0/16", "10.2.0.0/16"}, removed)
	assert.Equal(t, 1, m.NumRoutes())
	assert.Empty(t, m.RoutesVia(0))

	// 重复撤销返回空，且不影响其它接口。
	assert.Nil(t, m.Withdraw(0))
	assert.Equal(t, []string{"10.3.0.0/16"}, m.RoutesVia(1))
}
