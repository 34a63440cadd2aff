package session

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/factpulse/factpulse/internal/models"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// clientMessage is the inbound frame shape. Clients that reconnect send
// {"action": "history"} to replay the session's recorded results.
type clientMessage struct {
	Action string `json:"action"`
}

// WSHandler upgrades session channel connections and streams events to
// each client over its own buffered subscription.
type WSHandler struct {
	registry *Registry
	bus      *Bus
	upgrader websocket.Upgrader
}

// NewWSHandler creates the websocket transport over the registry and bus.
func NewWSHandler(registry *Registry, bus *Bus) *WSHandler {
	return &WSHandler{
		registry: registry,
		bus:      bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle serves GET /ws/{sessionID}. The connection lives until the
// client disconnects or the subscription is closed.
func (h *WSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	if _, err := h.registry.Snapshot(sessionID); err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("Websocket upgrade failed for session %s: %v", sessionID, err)
		return
	}

	sub := h.bus.Subscribe(sessionID)
	replay := make(chan []models.FactCheckResult, 1)

	logrus.Infof("Websocket client connected to session %s", sessionID)

	go h.writePump(conn, sub, replay)
	h.readPump(conn, sessionID, sub, replay)
}

// readPump consumes inbound frames until the connection drops, then tears
// down the subscription which in turn stops the write pump.
func (h *WSHandler) readPump(conn *websocket.Conn, sessionID string, sub *Subscriber, replay chan []models.FactCheckResult) {
	defer func() {
		h.bus.Unsubscribe(sub)
		conn.Close()
		logrus.Infof("Websocket client disconnected from session %s", sessionID)
	}()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.Warnf("Websocket read error on session %s: %v", sessionID, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Action == "history" {
			results, err := h.registry.Results(sessionID)
			if err != nil {
				return
			}
			select {
			case replay <- results:
			default:
			}
		}
	}
}

// writePump owns all writes on the connection: live events, history
// replays and keepalive pings.
func (h *WSHandler) writePump(conn *websocket.Conn, sub *Subscriber, replay chan []models.FactCheckResult) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case results := <-replay:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			for i := range results {
				ev := models.Event{
					Type:      models.EventFactCheckResult,
					SessionID: sub.sessionID,
					ClaimID:   results[i].ClaimID,
					Result:    &results[i],
					Timestamp: results[i].CreatedAt,
				}
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
