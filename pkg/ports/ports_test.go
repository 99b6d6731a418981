package ports

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAvailableSkipsBoundPort(t *testing.T) {
	// Bind an arbitrary UDP port, then ask for a range starting at it.
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	require.NoError(t, err)
	defer conn.Close()

	bound := conn.LocalAddr().(*net.UDPAddr).Port

	got, err := FindAvailable(bound, bound+20)
	require.NoError(t, err)
	assert.NotEqual(t, bound, got)
	assert.Greater(t, got, bound)
	assert.LessOrEqual(t, got, bound+20)
}

func TestFindAvailableExhaustion(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	require.NoError(t, err)
	defer conn.Close()

	bound := conn.LocalAddr().(*net.UDPAddr).Port

	_, err = FindAvailable(bound, bound)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoPortAvailable)
}

func TestFindAvailableInvalidRange(t *testing.T) {
	_, err := FindAvailable(7000, 6000)
	assert.Error(t, err)
}

func TestIsAvailable(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	require.NoError(t, err)
	port := conn.LocalAddr().(*net.UDPAddr).Port

	assert.False(t, IsAvailable(port), fmt.Sprintf("port %d is bound", port))
	conn.Close()
	assert.True(t, IsAvailable(port))
}
