package netutil

import (
	"fmt"
	"net"
)

// EphemeralAddr reserves a free loopback TCP port and returns the
// corresponding "127.0.0.1:<port>" listen address. The port is released
// before returning, so a small race with other processes is possible.
func EphemeralAddr() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listening to acquire port: %w", err)
	}
	defer listener.Close()
	return listener.Addr().String(), nil
}
