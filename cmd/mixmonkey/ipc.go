package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// ============================================================================
// IPC control surface
// ============================================================================
// Line-delimited JSON over a Unix domain socket (a named pipe on Windows).
//   - Client sends: {"type": "volume_up", "data": {"session": "chrome"}}
//   - Server replies: {"status": "ok", "data": ...} or {"status": "error", "error": "msg"}
//
// Besides the action types understood by UnmarshalAction, "reload" re-reads
// the config file and "status" returns EngineStatus.
// ============================================================================

// IPCResponse is one reply line.
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ipcController is what the IPC server drives.
type ipcController interface {
	Submit(a Action) bool
	Status() EngineStatus
	Reload() error
}

// runIPCServer accepts connections on ln until ctx is canceled. ln is closed
// on return.
func runIPCServer(ctx context.Context, ln net.Listener, ctrl ipcController, logger *slog.Logger) error {
	logger = logger.With("component", "ipc")
	defer ln.Close()

	logger.Info("IPC listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "err", err)
			continue
		}
		go handleIPCConnection(ctx, conn, ctrl, logger)
	}
}

func handleIPCConnection(ctx context.Context, conn net.Conn, ctrl ipcController, logger *slog.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		logger.Debug("IPC received", "line", string(line))

		resp := handleIPCRequest(line, ctrl)
		if err := encoder.Encode(resp); err != nil {
			logger.Debug("IPC write failed", "err", err)
			return
		}
	}
}

// handleIPCRequest answers one request line. A panic while serving it is
// reported to the client as an error.
func handleIPCRequest(line []byte, ctrl ipcController) (resp IPCResponse) {
	defer func() {
		if p := recover(); p != nil {
			resp = ipcError(fmt.Errorf("request panicked: %v", p))
		}
	}()

	var env ActionEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return ipcError(fmt.Errorf("parse request: %w", err))
	}

	switch env.Type {
	case "status":
		return IPCResponse{Status: "ok", Data: ctrl.Status()}

	case "reload":
		if err := ctrl.Reload(); err != nil {
			return ipcError(fmt.Errorf("reload: %w", err))
		}
		return IPCResponse{Status: "ok"}
	}

	action, err := UnmarshalAction(env)
	if err != nil {
		return ipcError(err)
	}
	if !ctrl.Submit(action) {
		return ipcError(errors.New("action queue full"))
	}
	return IPCResponse{Status: "ok"}
}

func ipcError(err error) IPCResponse {
	return IPCResponse{Status: "error", Error: err.Error()}
}
