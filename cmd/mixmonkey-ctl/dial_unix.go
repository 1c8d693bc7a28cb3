//go:build !windows

package main

import (
	"net"
	"time"
)

const defaultSocketPath = "/tmp/mixmonkey.sock"

func dialIPC(path string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", path, timeout)
}
