// Package server binds the relay's listening socket.
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrAddrInUse is returned by Listen when another process holds the port.
var ErrAddrInUse = errors.New("address already in use")

// Listen binds a TCP listener on addr. A port conflict is reported as
// ErrAddrInUse so callers can explain it instead of failing hard; any other
// bind error is returned wrapped.
func Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("bind %s: %w", addr, ErrAddrInUse)
		}
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return ln, nil
}

// PrintPortInUse writes a human-readable explanation of a port conflict with
// ways to free the port or pick another one.
func PrintPortInUse(w io.Writer, program string, port int) {
	_, _ = fmt.Fprintf(w, "Error: port %d is already in use\n", port)
	_, _ = fmt.Fprintf(w, "Stop the other process, e.g.: lsof -ti tcp:%d | xargs kill\n", port)
	_, _ = fmt.Fprintf(w, "Or use another port: %s --port <number>\n", program)
}
