package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Auth runs in middleware before the upgrade.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket serves GET /api/v1/ws/scene?step=5.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	step, ok := h.parseStep(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "invalid step parameter, must be 1-60")
		return
	}

	ip, release, ok := h.admit(w, r, TransportWebSocket)
	if !ok {
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("websocket upgrade failed", "remote_ip", ip, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect the peer closing; clients send nothing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	h.run(ctx, &wsClient{conn: conn}, step, ip)

	deadline := time.Now().Add(wsWriteWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// wsClient writes JSON text frames to one connection.
type wsClient struct {
	conn *websocket.Conn
}

func (c *wsClient) send(v any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

func (c *wsClient) keepalive() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}
