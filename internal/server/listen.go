package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// maxPortAttempts is how many ports above the requested one are tried.
const maxPortAttempts = 16

// UnixSocketPath names the local socket for a daemon listening on port.
func UnixSocketPath(dir string, port int) string {
	return filepath.Join(dir, fmt.Sprintf("tournamentd.%d.sock", port))
}

// ListenTCP listens on the first free port at or above port. Port 0 lets the
// kernel choose. The port actually bound is returned.
func ListenTCP(host string, port int) (net.Listener, int, error) {
	if port == 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
		if err != nil {
			return nil, 0, err
		}
		return ln, ln.Addr().(*net.TCPAddr).Port, nil
	}

	var lastErr error
	for p := port; p < port+maxPortAttempts && p <= 65535; p++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			return ln, p, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, err
		}
		lastErr = err
	}
	return nil, 0, fmt.Errorf("no free port in %d-%d: %w", port, port+maxPortAttempts-1, lastErr)
}

// ListenUnix listens on the unix socket for port in dir, replacing a stale
// socket left by a daemon that did not shut down cleanly.
func ListenUnix(dir string, port int) (net.Listener, string, error) {
	path := UnixSocketPath(dir, port)
	if _, err := os.Stat(path); err == nil {
		conn, dialErr := net.DialTimeout("unix", path, time.Second)
		if dialErr == nil {
			_ = conn.Close()
			return nil, "", fmt.Errorf("%s is in use by another daemon", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, "", fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, "", err
	}
	return ln, path, nil
}
