// Package ws pushes notifications to signed-in browsers. Every connection
// joins its user's room; clients may also join rooms of card sets they can see.
package ws

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/telemetry"
)

type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

const (
	RoomUser    = "user"
	RoomCardSet = "cardset"
)

type Event string

const (
	EventCardSetLiked    Event = "cardset.liked"
	EventCardSetStudied  Event = "cardset.studied"
	EventUserFollowed    Event = "user.followed"
	EventMessageReceived Event = "message.received"
	EventDocReady        Event = "doc.ready"
)

type PayloadEvent struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ClientMessage struct {
	Action Action `json:"action"`
	Room   string `json:"room"`
}

// writer is the part of *websocket.Conn the hub needs.
type writer interface {
	WriteJSON(v any) error
}

// client serializes writes; a websocket connection allows one writer at a time.
type client struct {
	mu   sync.Mutex
	conn writer
}

func (c *client) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// RoomAccess decides whether a user may follow a card set's room.
type RoomAccess interface {
	CanViewCardSet(ctx context.Context, userID int64, publicID string) bool
}

type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*client]struct{}
	access RoomAccess
}

// NewHub returns a hub; with a nil access every card set join is refused.
func NewHub(access RoomAccess) *Hub {
	return &Hub{rooms: map[string]map[*client]struct{}{}, access: access}
}

func UserRoom(userID int64) string {
	return RoomUser + "." + strconv.FormatInt(userID, 10)
}

func CardSetRoom(publicID string) string {
	return RoomCardSet + "." + publicID
}

// Handle serves one authenticated connection until it closes.
func (h *Hub) Handle(c *websocket.Conn) {
	uid, _ := c.Locals(middleware.UserIDKey).(int64)
	log := telemetry.L().With().Str("module", "ws").Int64("user_id", uid).Logger()
	log.Info().Msg("ws_connected")

	cl := &client{conn: c}
	h.join(cl, UserRoom(uid))
	defer func() {
		h.drop(cl)
		_ = c.Close()
		log.Info().Msg("ws_disconnected")
	}()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		h.handleMessage(context.Background(), cl, uid, msg)
	}
}

// handleMessage applies one client frame. User rooms are private; only the
// connection's own is joined, at connect time.
func (h *Hub) handleMessage(ctx context.Context, cl *client, userID int64, msg []byte) {
	var cm ClientMessage
	if err := json.Unmarshal(msg, &cm); err != nil {
		return
	}
	publicID, ok := strings.CutPrefix(cm.Room, RoomCardSet+".")
	if !ok || publicID == "" {
		return
	}
	switch cm.Action {
	case ActionJoin:
		if h.access == nil || !h.access.CanViewCardSet(ctx, userID, publicID) {
			log := telemetry.L()
			log.Debug().Str("module", "ws").Int64("user_id", userID).Str("room", cm.Room).Msg("ws_join_refused")
			return
		}
		h.join(cl, cm.Room)
	case ActionLeave:
		h.leave(cl, cm.Room)
	}
}

func (h *Hub) join(c *client, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = map[*client]struct{}{}
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	h.mu.Unlock()
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends ev to every member of room and returns how many got it.
func (h *Hub) Broadcast(room string, ev Event, data any) int {
	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	pl := PayloadEvent{Event: ev, Data: data}
	sent := 0
	for _, c := range members {
		if err := c.send(pl); err != nil {
			log := telemetry.L()
			log.Debug().Err(err).Str("room", room).Msg("ws_write_failed")
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) NotifyUser(userID int64, ev Event, data any) {
	h.Broadcast(UserRoom(userID), ev, data)
}
