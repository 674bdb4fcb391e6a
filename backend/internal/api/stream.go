package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

const (
	streamBuffer     = 16
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
	streamReadLimit  = 4 << 10
)

//nolint:gochecknoglobals // Shared upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Stream upgrades to a websocket and pushes every state change to the client. The
// current state is sent first. Clients may send StreamRequest frames to switch the
// fan.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	l := GetLogger(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn("websocket upgrade failed", utils.ErrAttr(err))
		return
	}
	defer utils.LogOnError(l, conn.Close, "failed to close websocket")

	readings := h.engine.Readings(streamBuffer)
	defer readings.Close()

	fans := h.engine.FanStates(streamBuffer)
	defer fans.Close()

	conns := h.engine.ConnectivityStates(streamBuffer)
	defer conns.Close()

	alerts := h.engine.Alerts(streamBuffer)
	defer alerts.Close()

	reach := h.liveness.Reachability(streamBuffer)
	defer reach.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.readStream(ctx, cancel, l, conn)

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	l.Info("stream client connected")

	for {
		var ev StreamEvent

		select {
		case <-ctx.Done():
			l.Info("stream client disconnected")
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}

			continue
		case v, ok := <-readings.C():
			if !ok {
				return
			}

			ev = StreamEvent{Type: EventReading, Reading: &v}
		case v, ok := <-fans.C():
			if !ok {
				return
			}

			ev = StreamEvent{Type: EventFan, Fan: &v}
		case v, ok := <-conns.C():
			if !ok {
				return
			}

			ev = StreamEvent{Type: EventConnectivity, Connectivity: &v}
		case v, ok := <-reach.C():
			if !ok {
				return
			}

			ev = StreamEvent{Type: EventReachability, Reachable: &v}
		case v, ok := <-alerts.C():
			if !ok {
				return
			}

			ev = StreamEvent{Type: EventAlert, Alert: &v}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))

		if err := conn.WriteJSON(ev); err != nil {
			l.Debug("stream write failed", utils.ErrAttr(err))
			return
		}
	}
}

// readStream handles client frames until the connection fails, then cancels the
// writer.
func (h *Handler) readStream(ctx context.Context, cancel context.CancelFunc, l *slog.Logger, conn *websocket.Conn) {
	defer cancel()

	conn.SetReadLimit(streamReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for ctx.Err() == nil {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.Debug("stream read failed", utils.ErrAttr(err))
			}

			return
		}

		req, err := utils.FromJSON[StreamRequest](data)
		if err != nil {
			l.Debug("ignoring malformed stream request", utils.ErrAttr(err))
			continue
		}

		if req.Fan != nil {
			h.engine.SetFan(*req.Fan)
		}
	}
}
