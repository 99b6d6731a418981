package ports

import (
	"errors"
	"fmt"
	"net"
)

// Default range for dynamically allocated multicast ports. One port per
// managed editor instance, so a hundred is far more than enough.
const (
	DefaultRangeStart = 6767
	DefaultRangeEnd   = 6866
)

// ErrNoPortAvailable is returned when every port in the requested range is
// already bound.
var ErrNoPortAvailable = errors.New("ports: no available port in range")

// IsAvailable checks whether a UDP port can be bound locally. The probe
// socket is closed before returning, so the caller must bind promptly;
// another process can grab the port in between (accepted TOCTOU).
func IsAvailable(port int) bool {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// FindAvailable scans [start, end] in ascending order and returns the first
// UDP port that can be bound.
func FindAvailable(start, end int) (int, error) {
	if start > end {
		return 0, fmt.Errorf("ports: invalid range %d-%d", start, end)
	}
	for port := start; port <= end; port++ {
		if IsAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w %d-%d", ErrNoPortAvailable, start, end)
}
