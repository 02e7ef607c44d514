// internal/handlers/notifier.go
package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/coder/websocket"

	"github.com/elemduel/elemduel/internal/duel"
)

// wsNotifier adapts a WebSocket connection to the duel.Notifier port. A
// dedicated writer goroutine drains a bounded queue so session callbacks
// never block on a slow socket; when the queue is full the frame is dropped,
// since a fresh state snapshot always follows.
type wsNotifier struct {
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
}

func newWSNotifier(c *websocket.Conn) *wsNotifier {
	n := &wsNotifier{
		conn: c,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go n.writeLoop()
	return n
}

func (n *wsNotifier) writeLoop() {
	for {
		select {
		case msg := <-n.out:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := n.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				// The read loop notices the broken socket and detaches us.
				return
			}
		case <-n.done:
			return
		}
	}
}

func (n *wsNotifier) stop() {
	close(n.done)
}

func (n *wsNotifier) send(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal outbound frame: %v", err)
		return
	}
	select {
	case n.out <- msg:
	default:
		log.Printf("outbound queue full, dropping frame")
	}
}

// StateChanged pushes the full snapshot; the client rerenders from it.
func (n *wsNotifier) StateChanged(snap duel.Snapshot) {
	n.send(map[string]interface{}{
		"type":  "state",
		"state": snap,
	})
}

// Effect pushes a one-shot notification line (card effects, turn prompts,
// game results).
func (n *wsNotifier) Effect(kind, message string) {
	n.send(map[string]string{
		"type":    "effect",
		"kind":    kind,
		"message": message,
	})
}
