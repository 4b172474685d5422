package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sarchlab/resmon/hooking"
	"github.com/sarchlab/resmon/monitor"
)

const streamBufferSize = 256

// A StreamMessage is what the /api/stream websocket sends for every record
// added to the registry.
type StreamMessage struct {
	Kind     string      `json:"kind"`
	Resource string      `json:"resource"`
	Item     interface{} `json:"item"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// streamHub is a registry hook that fans records out to the connected
// websocket clients. A client that cannot keep up loses messages instead of
// stalling the simulation.
type streamHub struct {
	lock        sync.Mutex
	subscribers map[chan StreamMessage]struct{}
	dropped     uint64
}

func newStreamHub() *streamHub {
	return &streamHub{
		subscribers: make(map[chan StreamMessage]struct{}),
	}
}

func kindOf(pos *hooking.HookPos) string {
	switch pos {
	case monitor.HookPosObservation:
		return "observation"
	case monitor.HookPosSample:
		return "sample"
	case monitor.HookPosEntity:
		return "entity"
	default:
		return ""
	}
}

// Func implements hooking.Hook.
func (h *streamHub) Func(ctx hooking.HookCtx) {
	kind := kindOf(ctx.Pos)
	if kind == "" {
		return
	}

	name, _ := ctx.Detail.(string)
	msg := StreamMessage{Kind: kind, Resource: name, Item: ctx.Item}

	h.lock.Lock()
	defer h.lock.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- msg:
		default:
			h.dropped++
		}
	}
}

func (h *streamHub) subscribe() chan StreamMessage {
	ch := make(chan StreamMessage, streamBufferSize)

	h.lock.Lock()
	h.subscribers[ch] = struct{}{}
	h.lock.Unlock()

	return ch
}

func (h *streamHub) unsubscribe(ch chan StreamMessage) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, found := h.subscribers[ch]; !found {
		return
	}

	delete(h.subscribers, ch)
	close(ch)
}

func (h *streamHub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()

	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func (h *streamHub) numSubscribers() int {
	h.lock.Lock()
	defer h.lock.Unlock()

	return len(h.subscribers)
}

func (m *Monitor) stream(w http.ResponseWriter, r *http.Request) {
	ch := m.streams.subscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.streams.unsubscribe(ch)
		m.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer m.streams.unsubscribe(ch)

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-ch:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(
						websocket.CloseGoingAway, "monitor shutting down"),
					time.Now().Add(time.Second))
				return
			}

			if err := conn.WriteJSON(msg); err != nil {
				m.logger.WithError(err).Debug("websocket client gone")
				return
			}
		}
	}
}
