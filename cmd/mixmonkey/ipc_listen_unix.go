//go:build !windows

package main

import (
	"fmt"
	"net"
	"os"
)

const defaultIPCSocketPath = "/tmp/mixmonkey.sock"

// listenIPC creates the Unix socket, replacing a stale one. The returned
// cleanup removes the socket file.
func listenIPC(path string) (net.Listener, func(), error) {
	path = ExpandPath(path)
	if err := os.RemoveAll(path); err != nil {
		return nil, nil, fmt.Errorf("remove existing socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		ln.Close()
		return nil, nil, fmt.Errorf("chmod socket: %w", err)
	}
	return ln, func() { _ = os.Remove(path) }, nil
}
