package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the mixmonkey daemon.
//
// A Config value is treated as an immutable snapshot once validated: the
// engine publishes it through an atomic pointer and a reload replaces the
// whole value.
type Config struct {
	Serial   SerialConfig    `yaml:"serial"`
	Sessions []SessionConfig `yaml:"sessions"`
	Mixer    MixerConfig     `yaml:"mixer"`
	Hotkeys  HotkeysConfig   `yaml:"hotkeys"`
	Volume   VolumeConfig    `yaml:"volume"`
	IPC      IPCConfig       `yaml:"ipc"`
	Notify   NotifyConfig    `yaml:"notify"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// SerialConfig describes the encoder board.
type SerialConfig struct {
	Enabled bool `yaml:"enabled"`
	// Port is the device path (/dev/ttyACM0, COM3). Empty picks the first
	// port the OS reports.
	Port          string `yaml:"port"`
	BaudRate      int    `yaml:"baud_rate"`
	DTR           bool   `yaml:"dtr"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
	// ReconnectMS is the delay between reopen attempts. 0 disables reconnect.
	ReconnectMS int `yaml:"reconnect_ms"`
	DebounceMS  int `yaml:"debounce_ms"`
}

type SessionConfig struct {
	Name string `yaml:"name"`
	// Encoder pins the session to a serial field index. Nil means positional.
	Encoder  *int            `yaml:"encoder,omitempty"`
	Keybinds []KeybindConfig `yaml:"keybinds,omitempty"`
}

type KeybindConfig struct {
	Key    string `yaml:"key"`
	Action string `yaml:"action"`
}

type MixerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Hotkey  string `yaml:"hotkey,omitempty"`
}

type HotkeysConfig struct {
	Enabled bool `yaml:"enabled"`
	// Devices lists evdev nodes to read. Empty means every keyboard found.
	Devices      []string `yaml:"devices,omitempty"`
	MediaKeys    bool     `yaml:"media_keys"`
	MediaSession string   `yaml:"media_session"`
	Step         int      `yaml:"step"`

	HoldDelayMS      int `yaml:"hold_delay_ms"`
	RepeatIntervalMS int `yaml:"repeat_interval_ms"`
	PollMS           int `yaml:"poll_ms"`
	DebounceMS       int `yaml:"debounce_ms"`
}

// VolumeBackend names a VolumeService implementation.
type VolumeBackend string

const (
	VolumeBackendAuto   VolumeBackend = "auto"
	VolumeBackendPactl  VolumeBackend = "pactl"
	VolumeBackendMemory VolumeBackend = "memory"
)

type VolumeConfig struct {
	Backend VolumeBackend `yaml:"backend"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Serial: SerialConfig{
			Enabled:       false,
			BaudRate:      defaultBaudRate,
			DTR:           true,
			ReadTimeoutMS: int(defaultSerialReadTimeout / time.Millisecond),
			ReconnectMS:   int(defaultReconnectDelay / time.Millisecond),
			DebounceMS:    int(defaultSerialDebounce / time.Millisecond),
		},
		Mixer: MixerConfig{
			Enabled: false,
		},
		Hotkeys: HotkeysConfig{
			Enabled:          true,
			MediaKeys:        true,
			MediaSession:     sessionMaster,
			Step:             defaultVolumeStep,
			HoldDelayMS:      int(defaultHoldDelay / time.Millisecond),
			RepeatIntervalMS: int(defaultRepeatInterval / time.Millisecond),
			PollMS:           int(defaultPollPeriod / time.Millisecond),
			DebounceMS:       int(defaultActionDebounce / time.Millisecond),
		},
		Volume: VolumeConfig{
			Backend: VolumeBackendAuto,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		Notify: NotifyConfig{
			Enabled: true,
			Listen:  "127.0.0.1:3002",
			Path:    "/ws",
		},
		Logging: LoggingConfig{
			Level:  string(LogLevelInfo),
			Format: string(LogFormatText),
		},
	}
}

// DefaultConfigPath returns <user config dir>/mixmonkey/config.yaml.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("~", ".config", "mixmonkey", "config.yaml")
	}
	return filepath.Join(dir, "mixmonkey", "config.yaml")
}

// LoadConfigFile reads and parses a YAML config file. Unknown fields are
// rejected. The returned error wraps fs.ErrNotExist when the file is missing.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML on top of DefaultConfig.
func ParseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		// An empty or comment-only file is a valid "all defaults" config.
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries CLI flags layered over the file. A nil pointer means
// the flag was not given; a non-nil pointer is applied even if zero.
type FlagOverrides struct {
	SerialPort    *string
	SerialBaud    *int
	IPCSocketPath *string
	NotifyListen  *string
	LogLevel      *string
	VolumeBackend *string
}

// Apply merges the overrides into cfg. Giving a serial port also enables the
// serial subsystem.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SerialPort != nil {
		cfg.Serial.Port = *o.SerialPort
		cfg.Serial.Enabled = true
	}
	if o.SerialBaud != nil {
		cfg.Serial.BaudRate = *o.SerialBaud
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.NotifyListen != nil {
		cfg.Notify.Listen = *o.NotifyListen
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.VolumeBackend != nil {
		cfg.Volume.Backend = VolumeBackend(*o.VolumeBackend)
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Serial
	if c.Serial.Enabled && c.Serial.BaudRate <= 0 {
		return errors.New("serial.baud_rate must be > 0")
	}
	if c.Serial.ReadTimeoutMS <= 0 {
		return errors.New("serial.read_timeout_ms must be > 0")
	}
	if c.Serial.DebounceMS <= 0 {
		return errors.New("serial.debounce_ms must be > 0")
	}
	if c.Serial.ReconnectMS < 0 {
		return errors.New("serial.reconnect_ms must be >= 0")
	}

	// Sessions
	for i, s := range c.Sessions {
		if normalizeSession(s.Name) == "" {
			return fmt.Errorf("sessions[%d].name must not be empty", i)
		}
		if s.Encoder != nil && *s.Encoder < 0 {
			return fmt.Errorf("sessions[%d].encoder must be >= 0", i)
		}
		for j, kb := range s.Keybinds {
			if strings.TrimSpace(kb.Key) == "" {
				return fmt.Errorf("sessions[%d].keybinds[%d].key must not be empty", i, j)
			}
			if _, err := parseActionName(kb.Action, s.Name); err != nil {
				return fmt.Errorf("sessions[%d].keybinds[%d]: %w", i, j, err)
			}
		}
	}
	if dups := lo.FindDuplicatesBy(c.Sessions, func(s SessionConfig) string {
		return normalizeSession(s.Name)
	}); len(dups) > 0 {
		return fmt.Errorf("duplicate session name %q", dups[0].Name)
	}
	pinned := lo.Filter(c.Sessions, func(s SessionConfig, _ int) bool { return s.Encoder != nil })
	if dups := lo.FindDuplicatesBy(pinned, func(s SessionConfig) int { return *s.Encoder }); len(dups) > 0 {
		return fmt.Errorf("duplicate encoder index %d (session %q)", *dups[0].Encoder, dups[0].Name)
	}

	// Hotkeys
	if c.Hotkeys.Step <= 0 || c.Hotkeys.Step > 100 {
		return errors.New("hotkeys.step must be between 1 and 100")
	}
	if c.Hotkeys.HoldDelayMS <= 0 {
		return errors.New("hotkeys.hold_delay_ms must be > 0")
	}
	if c.Hotkeys.RepeatIntervalMS <= 0 {
		return errors.New("hotkeys.repeat_interval_ms must be > 0")
	}
	if c.Hotkeys.PollMS <= 0 {
		return errors.New("hotkeys.poll_ms must be > 0")
	}
	if c.Hotkeys.DebounceMS <= 0 {
		return errors.New("hotkeys.debounce_ms must be > 0")
	}
	if c.Hotkeys.MediaKeys && normalizeSession(c.Hotkeys.MediaSession) == "" {
		return errors.New("hotkeys.media_session must not be empty when media_keys is true")
	}
	for i, dev := range c.Hotkeys.Devices {
		if dev == "" {
			return fmt.Errorf("hotkeys.devices[%d] is empty", i)
		}
	}

	// Volume
	switch c.Volume.Backend {
	case VolumeBackendAuto, VolumeBackendPactl, VolumeBackendMemory:
	default:
		return fmt.Errorf("volume.backend must be %q, %q or %q", VolumeBackendAuto, VolumeBackendPactl, VolumeBackendMemory)
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// Notify
	if c.Notify.Enabled {
		if c.Notify.Listen == "" {
			return errors.New("notify.listen must not be empty")
		}
		if !strings.HasPrefix(c.Notify.Path, "/") {
			return errors.New("notify.path must start with /")
		}
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := parseLogFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}

	return nil
}

// SessionNames returns every configured session name in file order.
func (c *Config) SessionNames() []string {
	return lo.Map(c.Sessions, func(s SessionConfig, _ int) string { return s.Name })
}

// SessionForEncoder maps a serial field index to a session name. A session
// that pins the index wins; otherwise the index counts through the sessions
// that pin nothing, in file order.
func (c *Config) SessionForEncoder(i int) (string, bool) {
	if i < 0 {
		return "", false
	}
	for _, s := range c.Sessions {
		if s.Encoder != nil && *s.Encoder == i {
			return s.Name, true
		}
	}
	n := 0
	for _, s := range c.Sessions {
		if s.Encoder != nil {
			continue
		}
		if n == i {
			return s.Name, true
		}
		n++
	}
	return "", false
}

func (h HotkeysConfig) HoldDelay() time.Duration {
	return time.Duration(h.HoldDelayMS) * time.Millisecond
}

func (h HotkeysConfig) RepeatInterval() time.Duration {
	return time.Duration(h.RepeatIntervalMS) * time.Millisecond
}

func (h HotkeysConfig) PollPeriod() time.Duration {
	return time.Duration(h.PollMS) * time.Millisecond
}

func (h HotkeysConfig) Debounce() time.Duration {
	return time.Duration(h.DebounceMS) * time.Millisecond
}

func (s SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s SerialConfig) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectMS) * time.Millisecond
}

func (s SerialConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
