package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"realm/internal/harness"
)

const (
	wsWriteWait = 10 * time.Second
	wsPongWait  = 60 * time.Second
	wsPingEvery = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// ServeHTTP upgrades to a websocket. Inbound text frames are harness
// commands, outbound frames are Frame values.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("bridge: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		b.log.Warn("bridge: set read deadline failed", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	frames, unsubscribe := b.Subscribe()
	defer unsubscribe()

	replies := make(chan Frame, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		write := func(f Frame) bool {
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return false
			}
			return conn.WriteJSON(f) == nil
		}
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-replies:
				if !write(f) {
					return
				}
			case f := <-frames:
				if !write(f) {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	b.log.Info("bridge: harness attached", "remote", r.RemoteAddr)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			b.log.Info("bridge: harness detached", "remote", r.RemoteAddr, "error", err)
			cancel()
			<-writerDone
			return
		}
		push(replies, b.handleMessage(msg))
	}
}

func (b *Bridge) handleMessage(msg []byte) Frame {
	if !gjson.ValidBytes(msg) {
		return Frame{Type: FrameError, Message: "frame is not json"}
	}
	action := strings.TrimSpace(gjson.GetBytes(msg, "action").String())
	switch action {
	case "":
		return Frame{Type: FrameError, Message: "action is required"}
	case "ping":
		return Frame{Type: FramePong}
	}

	var cmd harness.Command
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return Frame{Type: FrameError, Action: harness.Action(action), Message: err.Error()}
	}
	if err := b.Dispatch(cmd); err != nil {
		return Frame{Type: FrameError, Action: cmd.Action, Message: err.Error()}
	}
	return Frame{Type: FrameAck, Action: cmd.Action}
}
