package xconn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tgt(ip string) Target {
	return Target{Family: AddressFamilyIPv4, Addr: net.ParseIP(ip), Port: 8080, Transport: "tcp"}
}

func TestBlacklistAddContains(t *testing.T) {
	b := newTargetBlacklist(time.Minute)

	require.False(t, b.contains(tgt("10.0.0.1")))
	b.add(tgt("10.0.0.1"))
	require.True(t, b.contains(tgt("10.0.0.1")))
	require.Equal(t, 1, b.size())

	b.add(tgt("10.0.0.2"))
	b.add(tgt("10.0.0.3"))
	require.Equal(t, 3, b.size())
	require.True(t, b.contains(tgt("10.0.0.2")))
}

func TestBlacklistExpires(t *testing.T) {
	b := newTargetBlacklist(10 * time.Millisecond)
	b.add(tgt("10.0.0.1"))
	require.True(t, b.contains(tgt("10.0.0.1")))

	time.Sleep(25 * time.Millisecond)
	require.False(t, b.contains(tgt("10.0.0.1")))
	require.Equal(t, 0, b.size())
}

func TestBlacklistReAddResetsCooldown(t *testing.T) {
	b := newTargetBlacklist(20 * time.Millisecond)
	b.add(tgt("10.0.0.1"))
	time.Sleep(12 * time.Millisecond)
	b.add(tgt("10.0.0.1")) // reset cooldown
	time.Sleep(12 * time.Millisecond)
	require.True(t, b.contains(tgt("10.0.0.1")))
	require.Equal(t, 1, b.size())
}
