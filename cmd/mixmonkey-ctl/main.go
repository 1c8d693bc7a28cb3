package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// ============================================================================
// mixmonkey-ctl - command-line IPC client
// ============================================================================
// Sends one request to the running daemon and prints the reply.
//
//   mixmonkey-ctl volume-up chrome
//   mixmonkey-ctl set spotify -- -40
//   mixmonkey-ctl status
// ============================================================================

var version = "0.3.0"

// Wire types, duplicated from the daemon for a standalone binary.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type sessionData struct {
	Session string `json:"session"`
}

type levelData struct {
	Session string `json:"session"`
	Volume  int    `json:"volume"`
}

type ipcResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

var (
	flagSocket  string
	flagTimeout time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mixmonkey-ctl",
	Short: "Control a running mixmonkey daemon",
	Long: `mixmonkey-ctl sends a single request to the mixmonkey daemon over its
IPC socket (a named pipe on Windows) and prints the reply.

Session names are matched case-insensitively. "master" is the output device
and "other" is every application without a session of its own.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func sessionCmd(use, short, typ string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <session>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, envelope{Type: typ, Data: sessionData{Session: args[0]}})
		},
	}
}

var setCmd = &cobra.Command{
	Use:   "set <session> <level>",
	Short: "Set a session level in [-100, 100]; negative mutes",
	Example: `  mixmonkey-ctl set chrome 35
  mixmonkey-ctl set spotify -- -40`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid level %q: %w", args[1], err)
		}
		if level < -100 || level > 100 {
			return fmt.Errorf("level %d out of range [-100, 100]", level)
		}
		return send(cmd, envelope{Type: "set_volume", Data: levelData{Session: args[0], Volume: level}})
	},
}

var mixerCmd = &cobra.Command{
	Use:   "mixer",
	Short: "Toggle the mixer window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return send(cmd, envelope{Type: "toggle_mixer"})
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-read the daemon config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return send(cmd, envelope{Type: "reload"})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print hotkeys, serial state and last known session levels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := request(flagSocket, flagTimeout, envelope{Type: "status"})
		if err != nil {
			return err
		}
		var pretty any
		if err := json.Unmarshal(resp.Data, &pretty); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagSocket, "socket", "s", defaultSocketPath, "IPC socket path")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 3*time.Second, "Request timeout")

	rootCmd.AddCommand(
		sessionCmd("volume-up", "Raise a session by one step", "volume_up"),
		sessionCmd("volume-down", "Lower a session by one step", "volume_down"),
		sessionCmd("mute", "Toggle a session's mute", "toggle_mute"),
		setCmd,
		mixerCmd,
		reloadCmd,
		statusCmd,
	)
}

func send(cmd *cobra.Command, env envelope) error {
	if _, err := request(flagSocket, flagTimeout, env); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

// request writes one JSON line and reads one JSON line back.
func request(socketPath string, timeout time.Duration, env envelope) (ipcResponse, error) {
	conn, err := dialIPC(socketPath, timeout)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	data, err := json.Marshal(env)
	if err != nil {
		return ipcResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return ipcResponse{}, fmt.Errorf("send request: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return ipcResponse{}, fmt.Errorf("read response: %w", err)
	}
	var resp ipcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return ipcResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		if resp.Error == "" {
			return resp, errors.New("daemon returned an error")
		}
		return resp, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp, nil
}
