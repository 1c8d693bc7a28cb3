package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxBackoff   = 10 * time.Second
)

func main() {
	var (
		wsURL   = flag.String("ws", "ws://127.0.0.1:3002/ws", "mixmonkey notify websocket URL")
		once    = flag.Bool("once", false, "Exit when the connection closes instead of reconnecting")
		rawJSON = flag.Bool("json", false, "Print raw event JSON")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &renderer{out: os.Stdout, raw: *rawJSON}

	backoff := 500 * time.Millisecond
	for {
		err := listen(ctx, u.String(), r)
		if ctx.Err() != nil {
			log.Printf("shutting down...")
			return
		}
		if *once {
			if err != nil {
				log.Fatalf("connection ended: %v", err)
			}
			return
		}
		log.Printf("connection lost (%v), retrying in %s", err, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// listen holds one connection open until it fails or ctx is canceled.
func listen(ctx context.Context, addr string, r *renderer) error {
	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", addr)
	conn, _, err := d.DialContext(ctx, addr, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				writeMu.Lock()
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					log.Printf("ping failed: %v", err)
					return
				}
			}
		}
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("server closed the connection")
			}
			return err
		}
		if messageType == websocket.TextMessage {
			r.handle(message)
		}
	}
}

type event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type sessionState struct {
	Session string `json:"session"`
	Volume  int    `json:"volume"`
	Muted   bool   `json:"muted"`
}

type renderer struct {
	out io.Writer
	raw bool
}

func (r *renderer) handle(message []byte) {
	if r.raw {
		fmt.Fprintln(r.out, string(message))
		return
	}

	var ev event
	if err := json.Unmarshal(message, &ev); err != nil {
		fmt.Fprintf(r.out, "%s %s\n", tagStyle.Render("[TEXT]"), string(message))
		return
	}

	ts := timeStyle.Render(ev.Ts.Local().Format("15:04:05.000"))

	switch ev.Type {
	case "state_init":
		var states []sessionState
		if err := json.Unmarshal(ev.Data, &states); err != nil {
			fmt.Fprintf(r.out, "%s %s bad state_init: %v\n", ts, tagStyle.Render("[ERROR]"), err)
			return
		}
		fmt.Fprintf(r.out, "%s %s %d sessions\n", ts, tagStyle.Render("[STATE]"), len(states))
		for _, st := range states {
			fmt.Fprintf(r.out, "    %s\n", formatSession(st))
		}

	case "volume_changed":
		var st sessionState
		if err := json.Unmarshal(ev.Data, &st); err != nil {
			fmt.Fprintf(r.out, "%s %s bad volume_changed: %v\n", ts, tagStyle.Render("[ERROR]"), err)
			return
		}
		fmt.Fprintf(r.out, "%s %s %s\n", ts, tagStyle.Render("[VOLUME]"), formatSession(st))

	case "mixer_toggle":
		fmt.Fprintf(r.out, "%s %s\n", ts, tagStyle.Render("[MIXER]"))

	default:
		fmt.Fprintf(r.out, "%s %s %s\n", ts, tagStyle.Render("["+ev.Type+"]"), string(ev.Data))
	}
}
