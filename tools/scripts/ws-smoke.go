// Package main provides a CI-friendly WebSocket smoke test for the Scrblit canvas.
//
// It validates:
//   - handshake + subprotocol selection
//   - INITIAL_STATE on join
//   - DRAW relay to a peer, never echoed to the sender
//   - late joiner receives the stroke log
//   - optionally (-fill), that scribbling the whole surface yields TRIGGER_SAVE on every client
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"

	v1 "scrblit/shared/contracts/scribble/v1"
)

const (
	defaultSubprotocol = "scrblit.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	inbox chan v1.Message
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		color   = flag.String("color", "#e4572e", "Stroke color")
		width   = flag.Int("width", 900, "Canvas width used by -fill")
		height  = flag.Int("height", 500, "Canvas height used by -fill")
		fill    = flag.Bool("fill", false, "Scribble the whole surface and expect TRIGGER_SAVE")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}

	root := context.Background()

	a, initA := mustConnect(root, "A", *wsURL, *origin, *timeout)
	defer closeWS(a.conn)

	b, _ := mustConnect(root, "B", *wsURL, *origin, *timeout)
	defer closeWS(b.conn)

	if *verbose {
		fmt.Printf("connected: A B origin=%q initial_lines=%d\n", *origin, len(initA.Lines))
	}

	stroke := v1.Line{X1: 10, Y1: 10, X2: 40, Y2: 25, Color: *color}
	mustWrite(root, a.conn, v1.Draw{Line: stroke}, *timeout)

	got := b.mustReadUntil(root, v1.KindDraw, *timeout).(v1.Draw)
	if got.Line != stroke {
		fatalf("relay mismatch: got=%+v want=%+v", got.Line, stroke)
	}
	mustAssertNoKind(root, a, v1.KindDraw, 750*time.Millisecond)

	mustWrite(root, a.conn, v1.Heartbeat{}, *timeout)

	c, initC := mustConnect(root, "C", *wsURL, *origin, *timeout)
	defer closeWS(c.conn)
	if n := len(initC.Lines); n == 0 || initC.Lines[n-1] != stroke {
		fatalf("late joiner: last line missing (lines=%d)", n)
	}

	triggered := false
	if *fill {
		sent := mustFill(root, a, *width, *height, *color, *timeout)
		for _, cl := range []*smokeClient{a, b, c} {
			cl.mustReadUntil(root, v1.KindTriggerSave, *timeout)
		}
		triggered = true
		if *verbose {
			fmt.Printf("TRIGGER_SAVE after %d strokes\n", sent)
		}
	}

	fmt.Printf("OK: relay=1 late_join_lines=%d trigger_save=%t\n", len(initC.Lines), triggered)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin string, stepTimeout time.Duration) (*smokeClient, v1.InitialState) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:  name,
		conn:  conn,
		inbox: make(chan v1.Message, 4096),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()

	init := c.mustReadUntil(parent, v1.KindInitialState, stepTimeout).(v1.InitialState)
	return c, init
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				c.fail(err)
				return
			}
			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				c.fail(fmt.Errorf("unsupported message type: %v", mt))
				return
			}

			msg, err := v1.Decode(data)
			if err != nil {
				c.fail(fmt.Errorf("bad message: %w", err))
				return
			}

			select {
			case c.inbox <- msg:
			default:
				c.fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) fail(err error) {
	select {
	case c.errCh <- err:
	default:
	}
}

// mustReadUntil skips relayed strokes from other smoke clients while waiting.
func (c *smokeClient) mustReadUntil(parent context.Context, want v1.Kind, stepTimeout time.Duration) v1.Message {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %s (%s): %v", want, c.name, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %s (%s): %v", want, c.name, err)
		case msg, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %s (%s)", want, c.name)
			}
			if msg.Kind() == want {
				return msg
			}
			if msg.Kind() != v1.KindDraw {
				fatalf("unexpected message (%s): got=%s want=%s", c.name, msg.Kind(), want)
			}
		}
	}
}

func mustAssertNoKind(parent context.Context, c *smokeClient, forbidden v1.Kind, wait time.Duration) {
	ctx, cancel := context.WithTimeout(parent, wait)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-c.errCh:
			fatalf("connection error (%s): %v", c.name, err)
		case msg, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed (%s)", c.name)
			}
			if msg.Kind() == forbidden {
				fatalf("unexpected %s on %s", forbidden, c.name)
			}
		}
	}
}

// mustFill sweeps horizontal strokes across the whole surface and returns how many it sent.
func mustFill(parent context.Context, c *smokeClient, width, height int, color string, stepTimeout time.Duration) int {
	const spacing = 12
	sent := 0
	for y := 0; y <= height; y += spacing {
		mustWrite(parent, c.conn, v1.Draw{Line: v1.Line{
			X1: 0, Y1: float64(y), X2: float64(width), Y2: float64(y), Color: color,
		}}, stepTimeout)
		sent++
	}
	return sent
}

func mustWrite(parent context.Context, conn *websocket.Conn, msg v1.Message, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := v1.Encode(msg)
	if err != nil {
		fatalf("encode %s: %v", msg.Kind(), err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
