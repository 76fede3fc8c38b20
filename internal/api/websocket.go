package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tactical-map/backend/internal/models"
	"github.com/tactical-map/backend/internal/pins"
	"github.com/tactical-map/backend/internal/session"
	"github.com/tactical-map/backend/internal/storage"
)

// WebSocket message types for the live sync protocol
const (
	// Client -> Server messages
	MsgTypePing   = "ping"
	MsgTypeSelect = "select"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypePins      = storage.ChangePins
	MsgTypeRoom      = storage.ChangeRoom
	MsgTypeMeta      = storage.ChangeMeta
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

const (
	wsWriteWait      = 10 * time.Second
	wsDefaultMaxSize = 64 * 1024
	wsDefaultBuffer  = 16 * 1024
)

// WSMessage is the envelope of every websocket message
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// SelectPayload changes the map, layer, profile or hidden marker types whose
// pins the client receives.
type SelectPayload struct {
	MapID     string   `json:"mapId"`
	LayerID   string   `json:"layerId"`
	ProfileID string   `json:"profileId"`
	Hidden    []string `json:"hidden"`
}

// RoomPayload describes the caller's access and who is online
type RoomPayload struct {
	Key    string          `json:"key"`
	Access *session.Access `json:"access"`
	Online []string        `json:"online"`
}

// WSErrorResponse reports a failed snapshot or an invalid message
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams scope snapshots to live clients. Every change
// notification from the hub is answered with a fresh snapshot of that kind.
type WebSocketHandler struct {
	rooms    RoomController
	pins     PinService
	hub      ChangeHub
	upgrader websocket.Upgrader
	maxSize  int64
}

// NewWebSocketHandler creates a new live sync handler. Zero sizes select the defaults.
func NewWebSocketHandler(rooms RoomController, pinSvc PinService, hub ChangeHub, bufferSize int, maxMessageSize int64) *WebSocketHandler {
	if bufferSize <= 0 {
		bufferSize = wsDefaultBuffer
	}
	if maxMessageSize <= 0 {
		maxMessageSize = wsDefaultMaxSize
	}
	return &WebSocketHandler{
		rooms: rooms,
		pins:  pinSvc,
		hub:   hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
		},
		maxSize: maxMessageSize,
	}
}

// wsClient is the state of one connection. Only the HandleWebSocket loop writes to conn.
type wsClient struct {
	conn   *websocket.Conn
	scope  models.Scope
	filter pins.Filter
}

// HandleWebSocket upgrades the connection and runs the sync loop until the
// client disconnects
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	scope, err := scopeOf(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if scope.Shared() {
		access, err := wsh.rooms.Access(ctx, scope)
		if err != nil {
			return FromError(err)
		}
		if access.Role == models.RoleNone {
			return NewNotFoundError("room", scope.RoomID)
		}
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(wsh.maxSize)

	events, cancel := wsh.hub.Subscribe(scope.Key())
	defer cancel()

	client := &wsClient{conn: ws, scope: scope, filter: filterFromQuery(c)}
	uid := scope.Identity.UID
	if scope.Shared() && uid != "" {
		wsh.rooms.Join(scope.RoomID, uid)
		wsh.hub.Publish(scope.Key(), storage.ChangeRoom)
		defer func() {
			wsh.rooms.Leave(scope.RoomID, uid)
			wsh.hub.Publish(scope.Key(), storage.ChangeRoom)
		}()
	}

	fmt.Printf("[WebSocket] Client connected to %s\n", scope.Key())
	wsh.sendMessage(ws, MsgTypeConnected, map[string]string{"key": scope.Key()})
	wsh.sendSnapshot(c, client, MsgTypeRoom)
	wsh.sendSnapshot(c, client, MsgTypePins)
	wsh.sendSnapshot(c, client, MsgTypeMeta)

	incoming := make(chan WSMessage)
	done := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("[WebSocket] Connection error: %v\n", err)
				}
				return
			}
			select {
			case incoming <- msg:
			case <-quit:
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			fmt.Printf("[WebSocket] Client disconnected from %s\n", scope.Key())
			return nil
		case <-ctx.Done():
			return nil
		case kind, ok := <-events:
			if !ok {
				return nil
			}
			wsh.sendSnapshot(c, client, kind)
			// Approval changes what the client may see.
			if kind == MsgTypeRoom {
				wsh.sendSnapshot(c, client, MsgTypePins)
			}
		case msg := <-incoming:
			wsh.handleMessage(c, client, msg)
		}
	}
}

func (wsh *WebSocketHandler) handleMessage(c echo.Context, client *wsClient, msg WSMessage) {
	switch msg.Type {
	case MsgTypePing:
		if client.scope.Shared() && client.scope.Identity.UID != "" {
			wsh.rooms.Touch(client.scope.RoomID, client.scope.Identity.UID)
		}
		wsh.sendMessage(client.conn, MsgTypePong, nil)
	case MsgTypeSelect:
		var payload SelectPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			wsh.sendError(client.conn, "Invalid select payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
		mapChanged := payload.MapID != client.filter.MapID
		client.filter = pins.Filter{
			MapID:     payload.MapID,
			LayerID:   payload.LayerID,
			ProfileID: payload.ProfileID,
			Hidden:    payload.Hidden,
		}
		wsh.sendSnapshot(c, client, MsgTypePins)
		if mapChanged {
			wsh.sendSnapshot(c, client, MsgTypeMeta)
		}
	default:
		wsh.sendError(client.conn, "Unknown message type: "+msg.Type, "INVALID_TYPE")
	}
}

// sendSnapshot sends the current state of one kind. Snapshots the caller may
// not see are skipped; the room snapshot tells them why.
func (wsh *WebSocketHandler) sendSnapshot(c echo.Context, client *wsClient, kind string) {
	ctx := c.Request().Context()
	switch kind {
	case MsgTypeRoom:
		access, err := wsh.rooms.Access(ctx, client.scope)
		if err != nil {
			wsh.sendError(client.conn, err.Error(), FromError(err).Code)
			return
		}
		payload := RoomPayload{Key: client.scope.Key(), Access: access, Online: []string{}}
		if client.scope.Shared() && access.Approved {
			payload.Online = wsh.rooms.Online(client.scope.RoomID)
		}
		wsh.sendMessage(client.conn, MsgTypeRoom, payload)
	case MsgTypePins:
		list, err := wsh.pins.List(ctx, client.scope, client.filter)
		if err != nil {
			return
		}
		if list == nil {
			list = []models.Pin{}
		}
		wsh.sendMessage(client.conn, MsgTypePins, map[string]interface{}{
			"pins":  list,
			"total": len(list),
		})
	case MsgTypeMeta:
		if client.filter.MapID == "" {
			return
		}
		meta, err := wsh.pins.Meta(ctx, client.scope, client.filter.MapID)
		if err != nil {
			return
		}
		wsh.sendMessage(client.conn, MsgTypeMeta, meta)
	}
}

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msgType string, payload interface{}) {
	msg := WSMessage{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		msg.Payload = mustJSON(payload)
	}
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := ws.WriteJSON(msg); err != nil {
		fmt.Printf("[WebSocket] Failed to send message: %v\n", err)
	}
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) {
	wsh.sendMessage(ws, MsgTypeError, WSErrorResponse{Message: message, Code: code})
}

func mustJSON(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
