package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks belong to the gateway in front of this service.
		return true
	},
}

// clientFrame is the inbound control message clients send to manage room
// membership.
type clientFrame struct {
	Action    string `json:"action"`
	ProjectID string `json:"projectId"`
}

// Gateway upgrades HTTP requests to websocket sessions and runs the read
// side of each connection. The wire framing lives here; the Broker only
// sees Conn and Session.
type Gateway struct {
	broker *Broker
	logger *slog.Logger
}

// NewGateway constructs a Gateway and installs the websocket heartbeat on
// the broker.
func NewGateway(broker *Broker, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	broker.SetPing(func(c Conn) error {
		ws, ok := c.(*websocket.Conn)
		if !ok {
			return nil
		}
		return ws.WriteMessage(websocket.PingMessage, nil)
	})
	return &Gateway{broker: broker, logger: logger}
}

// ServeHTTP handles GET /ws?token=... upgrades.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}

	sess, err := g.broker.Connect(r.Context(), token, ws)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"),
				time.Now().Add(time.Second))
		}
		_ = ws.Close()
		return
	}

	go g.readLoop(sess, ws)
}

// readLoop consumes inbound frames until the connection dies. Exit tears
// the session down, which drops every room membership immediately.
func (g *Gateway) readLoop(sess *Session, ws *websocket.Conn) {
	defer g.broker.Disconnect(sess)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			g.logger.Debug("malformed client frame",
				slog.String("session", sess.ID), slog.Any("error", err))
			continue
		}
		projectID, err := uuid.Parse(frame.ProjectID)
		if err != nil {
			continue
		}
		switch frame.Action {
		case "join":
			g.broker.JoinProject(sess, projectID)
		case "leave":
			g.broker.LeaveProject(sess, projectID)
		}
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
