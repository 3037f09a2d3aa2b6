package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSock records everything written to it; reads report EOF.
type fakeSock struct {
	mu    sync.Mutex
	wrote bytes.Buffer
}

func (f *fakeSock) Read(p []byte) (int, error) { return 0, io.EOF }
func (f *fakeSock) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wrote.Write(p)
}
func (f *fakeSock) Close() error                       { return nil }
func (f *fakeSock) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (f *fakeSock) RemoteAddr() net.Addr               { return &net.TCPAddr{} }
func (f *fakeSock) SetDeadline(t time.Time) error      { return nil }
func (f *fakeSock) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeSock) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeSock) bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte{}, f.wrote.Bytes()...)
}

// serverPayloads parses the unmasked frames a server wrote to a socket and
// returns their payloads.
func serverPayloads(t *testing.T, b []byte) [][]byte {
	t.Helper()
	var out [][]byte
	for len(b) > 0 {
		require.GreaterOrEqual(t, len(b), 2)
		require.Zero(t, b[1]&0x80, "server frame must not be masked")
		length := int(b[1] & 0x7f)
		pos := 2
		switch length {
		case 126:
			length = int(b[2])<<8 | int(b[3])
			pos = 4
		case 127:
			t.Fatal("unexpected 64-bit frame in test")
		}
		require.GreaterOrEqual(t, len(b), pos+length)
		out = append(out, b[pos:pos+length])
		b = b[pos+length:]
	}
	return out
}

func newTestConn(reg *Registry, role Role, room string) (*Conn, *fakeSock) {
	sock := &fakeSock{}
	c := newConn(sock)
	c.setIdentity(role, room)
	reg.Add(c)
	return c, sock
}

func TestJoinSetsRoleAndRoom(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	c, sock := newTestConn(reg, RoleUnknown, defaultRoom)

	router.HandleText(c, []byte(`{"type":"join","role":"controller","room":"Lobby "}`))

	role, room := c.identity()
	assert.Equal(t, RoleController, role)
	assert.Equal(t, "lobby", room, "rooms are normalized relay-side")
	assert.Empty(t, sock.bytes(), "join is terminal, no reply")
}

func TestJoinUnknownRoleFallsOpenToViewer(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	c, _ := newTestConn(reg, RoleUnknown, defaultRoom)

	router.HandleText(c, []byte(`{"type":"join","role":"admin"}`))

	role, room := c.identity()
	assert.Equal(t, RoleViewer, role)
	assert.Equal(t, defaultRoom, room)
}

func TestOrientRoutingIsolation(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	a1, sockA1 := newTestConn(reg, RoleViewer, "a")
	_, sockA2 := newTestConn(reg, RoleViewer, "a")
	_, sockB := newTestConn(reg, RoleViewer, "b")

	// sender is itself a viewer in room "a" and must never hear its own echo
	router.HandleText(a1, []byte(`{"type":"orient","room":"a","alpha":1,"beta":2,"gamma":3}`))

	assert.Empty(t, sockA1.bytes())
	assert.Empty(t, sockB.bytes())

	payloads := serverPayloads(t, sockA2.bytes())
	require.Len(t, payloads, 1)

	var got struct {
		Type  string  `json:"type"`
		Room  string  `json:"room"`
		Alpha float64 `json:"alpha"`
		Beta  float64 `json:"beta"`
		Gamma float64 `json:"gamma"`
		T     int64   `json:"t"`
	}
	require.NoError(t, json.Unmarshal(payloads[0], &got))
	assert.Equal(t, "orient", got.Type)
	assert.Equal(t, "a", got.Room)
	assert.Equal(t, 1.0, got.Alpha)
	assert.Equal(t, 2.0, got.Beta)
	assert.Equal(t, 3.0, got.Gamma)
	assert.Greater(t, got.T, int64(0))
}

func TestShootNeverReachesControllersOrUnknown(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	sender, _ := newTestConn(reg, RoleController, "a")
	_, controllerSock := newTestConn(reg, RoleController, "a")
	_, unknownSock := newTestConn(reg, RoleUnknown, "a")
	_, viewerSock := newTestConn(reg, RoleViewer, "a")

	router.HandleText(sender, []byte(`{"type":"shoot","room":"a"}`))

	assert.Empty(t, controllerSock.bytes())
	assert.Empty(t, unknownSock.bytes())

	payloads := serverPayloads(t, viewerSock.bytes())
	require.Len(t, payloads, 1)
	var got shootEvent
	require.NoError(t, json.Unmarshal(payloads[0], &got))
	assert.Equal(t, "shoot", got.Type)
	assert.Equal(t, "a", got.Room)
	assert.Greater(t, got.T, int64(0))
}

func TestTargetRoomComesFromMessageNotSenderState(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	sender, _ := newTestConn(reg, RoleController, "a")
	_, sameRoomSock := newTestConn(reg, RoleViewer, "a")
	_, otherRoomSock := newTestConn(reg, RoleViewer, "b")

	// sender joined "a" but addresses "b": the message wins
	router.HandleText(sender, []byte(`{"type":"shoot","room":"b"}`))

	assert.Empty(t, sameRoomSock.bytes())
	assert.Len(t, serverPayloads(t, otherRoomSock.bytes()), 1)
}

func TestOrientMissingRoomDefaults(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	sender, _ := newTestConn(reg, RoleController, defaultRoom)
	_, viewerSock := newTestConn(reg, RoleViewer, defaultRoom)

	router.HandleText(sender, []byte(`{"type":"orient","alpha":0,"beta":0,"gamma":0}`))

	payloads := serverPayloads(t, viewerSock.bytes())
	require.Len(t, payloads, 1)
	var got orientEvent
	require.NoError(t, json.Unmarshal(payloads[0], &got))
	assert.Equal(t, defaultRoom, got.Room)
}

func TestNonNumericAnglesForwardedUnchanged(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	sender, _ := newTestConn(reg, RoleController, "a")
	_, viewerSock := newTestConn(reg, RoleViewer, "a")

	router.HandleText(sender, []byte(`{"type":"orient","room":"a","alpha":"up","beta":2,"gamma":null}`))

	payloads := serverPayloads(t, viewerSock.bytes())
	require.Len(t, payloads, 1)
	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payloads[0], &got))
	assert.JSONEq(t, `"up"`, string(got["alpha"]))
	assert.JSONEq(t, `2`, string(got["beta"]))
	assert.JSONEq(t, `null`, string(got["gamma"]))
}

func TestUnknownTypeIsDroppedSilently(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	sender, senderSock := newTestConn(reg, RoleController, "a")
	_, viewerSock := newTestConn(reg, RoleViewer, "a")

	router.HandleText(sender, []byte(`{"type":"ping-app"}`))
	router.HandleText(sender, []byte(`{"room":"a"}`))

	assert.Empty(t, senderSock.bytes())
	assert.Empty(t, viewerSock.bytes())
	assert.Equal(t, 2, reg.Len(), "no connection is penalized")
}

func TestMalformedJSONIsDroppedAndConnectionStaysUsable(t *testing.T) {
	reg := NewRegistry()
	router := NewRouter(reg)
	sender, _ := newTestConn(reg, RoleController, "a")
	_, viewerSock := newTestConn(reg, RoleViewer, "a")

	router.HandleText(sender, []byte(`not json`))
	assert.Empty(t, viewerSock.bytes())

	router.HandleText(sender, []byte(`{"type":"shoot","room":"a"}`))
	assert.Len(t, serverPayloads(t, viewerSock.bytes()), 1)
}
