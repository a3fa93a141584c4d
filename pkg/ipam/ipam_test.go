/*
Copyright 2025 Paradrop Labs
*/

package ipam

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolDisjointSubnets(t *testing.T) {
	pool, err := NewPool("192.168.128.0/22", 24)
	require.NoError(t, err)

	var subnets []net.IPNet
	for i := 0; i < 4; i++ {
		subnet, err := pool.Next()
		require.NoError(t, err)
		subnets = append(subnets, subnet)
	}

	for i := range subnets {
		for j := i + 1; j < len(subnets); j++ {
			assert.False(t, subnets[i].Contains(subnets[j].IP),
				"%v overlaps %v", subnets[i], subnets[j])
			assert.False(t, subnets[j].Contains(subnets[i].IP),
				"%v overlaps %v", subnets[j], subnets[i])
		}
	}
}

func TestPoolExhaustion(t *testing.T) {
	pool, err := NewPool("192.168.128.0/23", 24)
	require.NoError(t, err)

	_, err = pool.Next()
	require.NoError(t, err)
	_, err = pool.Next()
	require.NoError(t, err)

	_, err = pool.Next()
	require.ErrorIs(t, err, ErrPoolExhausted)
}

func TestPoolReleaseRecycles(t *testing.T) {
	pool, err := NewPool("192.168.128.0/23", 24)
	require.NoError(t, err)

	first, err := pool.Next()
	require.NoError(t, err)
	_, err = pool.Next()
	require.NoError(t, err)

	pool.Release(first)

	again, err := pool.Next()
	require.NoError(t, err)
	assert.True(t, first.IP.Equal(again.IP), "released subnet should be reused")
}

func TestPoolReserve(t *testing.T) {
	pool, err := NewPool("192.168.128.0/23", 24)
	require.NoError(t, err)

	_, taken, err := net.ParseCIDR("192.168.128.0/24")
	require.NoError(t, err)
	pool.Reserve(*taken)

	next, err := pool.Next()
	require.NoError(t, err)
	assert.Equal(t, "192.168.129.0", next.IP.String())
}

func TestPoolRejectsBadConfig(t *testing.T) {
	_, err := NewPool("not-a-network", 24)
	assert.Error(t, err)

	_, err = NewPool("192.168.128.0/24", 16)
	assert.Error(t, err)
}

func TestAdd(t *testing.T) {
	ip := net.ParseIP("10.0.4.0").To4()
	assert.Equal(t, "10.0.4.1", Add(ip, 1).String())
	assert.Equal(t, "10.0.3.255", Add(ip, -1).String())
	assert.Equal(t, "10.0.5.0", Add(ip, 256).String())
}

func TestNetworkAndBroadcast(t *testing.T) {
	_, subnet, err := net.ParseCIDR("192.168.30.0/24")
	require.NoError(t, err)

	assert.Equal(t, "192.168.30.0",
		Network(net.ParseIP("192.168.30.66"), subnet.Mask).String())
	assert.Equal(t, "192.168.30.255", Broadcast(*subnet).String())
}

func TestHosts(t *testing.T) {
	_, subnet, err := net.ParseCIDR("192.168.30.0/24")
	require.NoError(t, err)

	hosts := Hosts(*subnet, 2)
	require.Len(t, hosts, 2)
	assert.Equal(t, "192.168.30.1", hosts[0].String())
	assert.Equal(t, "192.168.30.2", hosts[1].String())
}
