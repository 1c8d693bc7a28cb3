package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Serial line reconciler
// ============================================================================
// The encoder board writes one line per update: "v0|v1|...|vN\n", each field
// a signed level in [-100, 100] for the session mapped to that encoder index.
// A negative level means "muted, restore to |v|".
//
// A reader goroutine frames lines and hands the newest one to the processor
// through a one-slot channel, replacing anything not yet taken. The processor
// acts on at most one line per debounce window, always the latest.
// Only fields whose value differs from the cache reach the volume service.
// The first line after each (re)connect is applied silently to prime state.
// ============================================================================

var (
	errEmptyLine  = errors.New("empty line")
	errOutOfRange = errors.New("value out of range [-100, 100]")
)

// LineError reports a serial line that was skipped as a whole.
type LineError struct {
	Line  string
	Field int // -1 when the line as a whole is bad
	Err   error
}

func (e *LineError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("serial line %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("serial line %q: field %d: %v", e.Line, e.Field, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// parseLine parses every field before anything is applied, so a single bad
// field rejects the line.
func parseLine(line string) ([]int, error) {
	if line == "" {
		return nil, &LineError{Line: line, Field: -1, Err: errEmptyLine}
	}
	fields := strings.Split(line, "|")
	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, &LineError{Line: line, Field: i, Err: err}
		}
		if v < -100 || v > 100 {
			return nil, &LineError{Line: line, Field: i, Err: errOutOfRange}
		}
		values[i] = v
	}
	return values, nil
}

// levelCache is the last signed level seen per session, keyed by folded name.
type levelCache struct {
	mu     sync.Mutex
	levels map[string]int
}

// reset clears the cache and seeds every name with 0.
func (c *levelCache) reset(names []string) {
	levels := make(map[string]int, len(names))
	for _, n := range names {
		levels[normalizeSession(n)] = 0
	}
	c.mu.Lock()
	c.levels = levels
	c.mu.Unlock()
}

func (c *levelCache) get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[normalizeSession(name)]
}

func (c *levelCache) set(name string, v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.levels == nil {
		c.levels = make(map[string]int)
	}
	c.levels[normalizeSession(name)] = v
}

func (c *levelCache) snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.levels)
}

// serialPort is the part of a serial connection the reconciler uses. Read
// returns (0, nil) when the read timeout expires without data.
type serialPort interface {
	io.Reader
	io.Closer
}

// levelApplier applies one signed session level.
type levelApplier interface {
	ApplyLevel(ctx context.Context, session string, value int, notify bool) error
}

// SerialStatus is reported by the IPC status request.
type SerialStatus struct {
	Enabled   bool           `json:"enabled"`
	Connected bool           `json:"connected"`
	Port      string         `json:"port,omitempty"`
	Levels    map[string]int `json:"levels"`
}

type SerialReconciler struct {
	open    func(cfg SerialConfig) (serialPort, string, error)
	applier levelApplier
	logger  *slog.Logger

	cfg       atomic.Pointer[Config]
	reconfig  chan *Config // one slot, latest wins
	cache     levelCache
	connected atomic.Bool
	port      atomic.Pointer[string]
}

// NewSerialReconciler returns a reconciler for cfg. open is called for every
// connection attempt and returns the port plus the name it resolved to.
func NewSerialReconciler(cfg *Config, open func(SerialConfig) (serialPort, string, error), applier levelApplier, logger *slog.Logger) *SerialReconciler {
	r := &SerialReconciler{
		open:     open,
		applier:  applier,
		logger:   logger.With("component", "serial"),
		reconfig: make(chan *Config, 1),
	}
	r.cfg.Store(cfg)
	r.cache.reset(cfg.SessionNames())
	return r
}

// Reset delivers a new config. The running connection is torn down, its read
// loop is waited for, and a new connection is opened with the new settings.
func (r *SerialReconciler) Reset(cfg *Config) {
	for {
		select {
		case r.reconfig <- cfg:
			return
		default:
		}
		select {
		case <-r.reconfig:
		default:
		}
	}
}

// Status returns the connection state and a copy of the cache.
func (r *SerialReconciler) Status() SerialStatus {
	st := SerialStatus{
		Enabled:   r.cfg.Load().Serial.Enabled,
		Connected: r.connected.Load(),
		Levels:    r.cache.snapshot(),
	}
	if p := r.port.Load(); p != nil {
		st.Port = *p
	}
	return st
}

// Run supervises connections until ctx is done. Connections are driven on
// the calling goroutine so a panic in the volume backend reaches the caller's
// recover.
func (r *SerialReconciler) Run(ctx context.Context) error {
	for r.superviseUntilReset(ctx) {
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// superviseUntilReset runs connections for the current config until ctx is
// done or Reset delivers a new config, which is then stored. It reports
// whether a new config was taken.
func (r *SerialReconciler) superviseUntilReset(ctx context.Context) (reconfigured bool) {
	cfg := r.cfg.Load()
	connCtx, cancel := context.WithCancel(ctx)

	var next *Config
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-connCtx.Done():
		case next = <-r.reconfig:
			cancel()
		}
	}()

	// Runs on panic too, so a taken config is never lost.
	defer func() {
		cancel()
		<-watchDone
		if next != nil {
			r.cfg.Store(next)
			r.cache.reset(next.SessionNames())
			r.logger.Info("serial reconfigured", "enabled", next.Serial.Enabled, "port", next.Serial.Port)
		}
		reconfigured = next != nil
	}()

	r.supervise(connCtx, cfg)
	return false
}

func (r *SerialReconciler) supervise(ctx context.Context, cfg *Config) {
	if !cfg.Serial.Enabled {
		r.logger.Debug("serial disabled")
		<-ctx.Done()
		return
	}

	for {
		err := r.connect(ctx, cfg)
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("serial port unavailable", "err", err)

		delay := cfg.Serial.ReconnectDelay()
		if delay <= 0 {
			r.logger.Error("serial reconnect disabled, running without serial input")
			<-ctx.Done()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// connect opens the port and processes lines until the port fails or ctx is
// done. The read goroutine has exited by the time connect returns.
func (r *SerialReconciler) connect(ctx context.Context, cfg *Config) error {
	port, name, err := r.open(cfg.Serial)
	if err != nil {
		return err
	}
	defer port.Close()

	r.port.Store(&name)
	r.cache.reset(cfg.SessionNames())
	r.connected.Store(true)
	defer r.connected.Store(false)
	r.logger.Info("serial connected", "port", name, "baud", cfg.Serial.BaudRate)

	lines := make(chan string, 1)
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer func() {
			if p := recover(); p != nil {
				readErr <- fmt.Errorf("serial read panicked: %v", p)
			}
		}()
		if err := r.readLines(ctx, port, lines); err != nil {
			readErr <- err
		}
	}()

	var (
		pending    string
		hasPending bool
		first      = true
		timer      *time.Timer
		timerCh    <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			<-readerDone
			return ctx.Err()

		case err := <-readErr:
			<-readerDone
			return err

		case line := <-lines:
			// Latest wins; the window is not extended by new lines.
			pending, hasPending = line, true
			if timer == nil {
				timer = time.NewTimer(cfg.Serial.Debounce())
				timerCh = timer.C
			}

		case <-timerCh:
			timer, timerCh = nil, nil
			if hasPending {
				if r.processLine(ctx, cfg, pending, first) {
					first = false
				}
				pending, hasPending = "", false
			}
		}
	}
}

// readLines frames bytes into lines and offers each to out, replacing a line
// the processor has not taken yet. It returns nil when ctx is done.
func (r *SerialReconciler) readLines(ctx context.Context, port serialPort, out chan string) error {
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)

	for ctx.Err() == nil {
		n, err := port.Read(chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read serial: %w", err)
		}
		if n == 0 {
			continue
		}
		buf = append(buf, chunk[:n]...)

		start := 0
		for {
			i := bytes.IndexByte(buf[start:], '\n')
			if i < 0 {
				break
			}
			line := strings.TrimSpace(strings.ToValidUTF8(string(buf[start:start+i]), "\uFFFD"))
			start += i + 1
			offerLatest(out, line)
		}
		buf = append(buf[:0], buf[start:]...)

		if len(buf) > maxSerialLineBytes {
			r.logger.Warn("serial line too long, discarding", "bytes", len(buf))
			buf = buf[:0]
		}
	}
	return nil
}

// offerLatest puts v into a one-slot channel, evicting an unread value.
func offerLatest(ch chan string, v string) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// processLine reconciles one line against the cache. It reports whether the
// line parsed; a line that did not parse leaves the first-line state alone.
func (r *SerialReconciler) processLine(ctx context.Context, cfg *Config, line string, first bool) bool {
	values, err := parseLine(line)
	if err != nil {
		if errors.Is(err, errEmptyLine) {
			return false
		}
		r.logger.Warn("skipping serial line", "err", err)
		return false
	}

	for i, v := range values {
		session, ok := cfg.SessionForEncoder(i)
		if !ok {
			r.logger.Debug("no session for encoder", "encoder", i)
			continue
		}
		if !first && r.cache.get(session) == v {
			continue
		}
		r.cache.set(session, v)

		if err := r.applier.ApplyLevel(ctx, session, v, !first); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				r.logger.Warn("session not found", "session", session)
				continue
			}
			if ctx.Err() != nil {
				return true
			}
			r.logger.Error("apply serial level failed", "session", session, "value", v, "err", err)
		}
	}
	return true
}
