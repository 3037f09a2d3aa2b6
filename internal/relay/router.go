package relay

import (
	"encoding/json"
	"strings"
	"time"
)

// Router applies the protocol semantics to decoded text payloads. The
// protocol state itself (role, room) lives on each Conn; the router only
// transitions it and fans events out through the registry.
type Router struct {
	registry *Registry
}

func NewRouter(reg *Registry) *Router {
	return &Router{registry: reg}
}

// normalizeRoom is the single place the default-room fallback lives. Rooms
// are free-form identifiers; lower-casing keeps clients that sanitize
// inconsistently in the same partition.
func normalizeRoom(room string) string {
	room = strings.ToLower(strings.TrimSpace(room))
	if room == "" {
		return defaultRoom
	}
	return room
}

// normalizeRole fails open: anything that is not literally "controller"
// joins as a viewer.
func normalizeRole(role string) Role {
	if role == "controller" {
		return RoleController
	}
	return RoleViewer
}

// HandleText interprets one decoded text frame from sender. Unparseable
// payloads and unrecognized types are dropped without penalty.
func (r *Router) HandleText(sender *Conn, payload []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "join":
		sender.setIdentity(normalizeRole(msg.Role), normalizeRoom(msg.Room))

	case "orient":
		room := normalizeRoom(msg.Room)
		out, err := json.Marshal(orientEvent{
			Type:  "orient",
			Room:  room,
			Beta:  msg.Beta,
			Gamma: msg.Gamma,
			Alpha: msg.Alpha,
			T:     time.Now().UnixMilli(),
		})
		if err != nil {
			return
		}
		r.broadcast(room, sender, out)

	case "shoot":
		room := normalizeRoom(msg.Room)
		out, err := json.Marshal(shootEvent{
			Type: "shoot",
			Room: room,
			T:    time.Now().UnixMilli(),
		})
		if err != nil {
			return
		}
		r.broadcast(room, sender, out)
	}
}

// broadcast delivers to every viewer in room except the sender. Write
// failures are ignored here; the peer's own read loop tears it down.
func (r *Router) broadcast(room string, sender *Conn, msg []byte) {
	data := encodeFrame(opText, msg)
	for _, c := range r.registry.Snapshot(room, sender, RoleViewer) {
		_ = c.write(data)
	}
}
