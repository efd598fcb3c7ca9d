package handler

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/Schera-ole/eidolon/internal/broadcast"
)

// wsConn adapts a websocket connection to broadcast.Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (c wsConn) Write(ctx context.Context, payload []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c wsConn) Close(reason string) error {
	status := websocket.StatusGoingAway
	if reason == broadcast.ReasonSlow {
		status = websocket.StatusPolicyViolation
	}
	err := c.conn.Close(status, reason)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// StreamHandler upgrades the request and serves one push subscriber until either
// side disconnects. Inbound text frames are treated as commands.
func StreamHandler(w http.ResponseWriter, r *http.Request, registry *broadcast.Registry, logger *zap.SugaredLogger) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Infow("websocket upgrade failed", "error", err)
		return
	}

	sub, err := registry.Add(r.Context(), wsConn{conn: conn})
	if err != nil {
		conn.Close(websocket.StatusTryAgainLater, err.Error())
		return
	}

	// A server side close completes the handshake, which ends the read loop
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				logger.Debugw("subscriber read failed", "id", sub.ID(), "error", err)
			}
			sub.Close(broadcast.ReasonGone)
			sub.Wait()
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := registry.HandleCommand(ctx, sub, string(data)); err != nil {
			logger.Debugw("command reply not sent", "id", sub.ID(), "error", err)
		}
	}
}
