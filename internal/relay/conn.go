package relay

import (
	"net"
	"sync"
)

// Role is a connection's declared participant kind.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleController
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RoleController:
		return "controller"
	case RoleViewer:
		return "viewer"
	default:
		return "unknown"
	}
}

// Conn owns one upgraded client socket. The read buffer is touched only by
// the connection's own read loop; role and room are mutated by join messages
// and read during broadcast fan-out, so they sit behind their own lock.
type Conn struct {
	sock net.Conn
	buf  []byte

	writeMu sync.Mutex

	stateMu sync.Mutex
	role    Role
	room    string
}

func newConn(sock net.Conn) *Conn {
	return &Conn{sock: sock, role: RoleUnknown, room: defaultRoom}
}

func (c *Conn) setIdentity(role Role, room string) {
	c.stateMu.Lock()
	c.role = role
	c.room = room
	c.stateMu.Unlock()
}

func (c *Conn) identity() (Role, string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.role, c.room
}

func (c *Conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.sock.Write(data)
	return err
}
