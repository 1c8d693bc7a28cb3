//go:build windows

package main

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

const defaultSocketPath = `\\.\pipe\mixmonkey`

func dialIPC(path string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(path, &timeout)
}
