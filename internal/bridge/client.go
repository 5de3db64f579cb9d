package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"realm/internal/harness"
)

// DialRetry is how often Dial retries while the runtime is not answering.
const DialRetry = 10 * time.Millisecond

// Client is the harness side of the websocket bridge.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	frames chan Frame
	done   chan struct{}
	err    error
}

// Dial connects to the bridge at url, retrying every DialRetry until the
// runtime answers or ctx is done.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for attempt := 1; ; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			logger.Debug("bridge: connected", "url", url, "attempts", attempt)
			c := &Client{
				conn:   conn,
				log:    logger,
				frames: make(chan Frame, subscriberBuffer),
				done:   make(chan struct{}),
			}
			go c.readLoop()
			return c, nil
		}
		t := time.NewTimer(DialRetry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("bridge: dial %s: %w", url, err)
		case <-t.C:
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.frames)
	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.err = err
			return
		}
		push(c.frames, f)
	}
}

// Send writes one command.
func (c *Client) Send(cmd harness.Command) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("bridge: send %s: %w", cmd.Action, err)
	}
	return nil
}

// Frames delivers everything the runtime sends. It is closed when the
// connection ends.
func (c *Client) Frames() <-chan Frame {
	return c.frames
}

// Events blocks until the next event batch, skipping other frames.
func (c *Client) Events(ctx context.Context) ([]harness.Event, error) {
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				return nil, fmt.Errorf("bridge: connection closed: %v", c.err)
			}
			if f.Type == FrameEvents {
				return f.Events, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// WaitFor collects event batches until one contains kind.
func (c *Client) WaitFor(ctx context.Context, kind harness.Kind) ([]harness.Event, error) {
	var seen []harness.Event
	for {
		batch, err := c.Events(ctx)
		if err != nil {
			return seen, err
		}
		seen = append(seen, batch...)
		for _, ev := range batch {
			if ev.Kind == kind {
				return seen, nil
			}
		}
	}
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
