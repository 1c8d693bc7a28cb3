//go:build windows

package main

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

const defaultIPCSocketPath = `\\.\pipe\mixmonkey`

// listenIPC opens the named pipe. The pipe is owned by the current user
// only.
func listenIPC(path string) (net.Listener, func(), error) {
	ln, err := winio.ListenPipe(path, &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;OW)",
		InputBufferSize:    4096,
		OutputBufferSize:   4096,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return ln, func() {}, nil
}
