package relay

import (
	"fmt"
	"net"
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthBody = "tilt-relay: ok"

// Server is the relay endpoint: a plain-HTTP health surface plus the
// hand-rolled websocket upgrade path. All live-connection state is owned by
// this instance and dies with it.
type Server struct {
	listenPort uint16
	registry   *Registry
	router     *Router
	ln         net.Listener
	srv        http.Server
}

func NewServer(listenPort uint16) *Server {
	reg := NewRegistry()
	return &Server{
		listenPort: listenPort,
		registry:   reg,
		router:     NewRouter(reg),
	}
}

// Registry exposes the live-connection set, mutated only by the transport
// loop and read by the router during fan-out.
func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.listenPort))
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve runs the relay on an existing listener. Tests hand in a listener on
// an ephemeral port.
func (s *Server) Serve(ln net.Listener) error {
	s.ln = ln

	engine := gin.New()
	engine.Use(ginzap.RecoveryWithZap(zap.L(), true))
	engine.Use(s.upgradeMiddleware())

	health := func(c *gin.Context) { c.String(http.StatusOK, healthBody) }
	engine.GET("/", health)
	engine.GET("/health", health)
	engine.NoRoute(func(c *gin.Context) { c.String(http.StatusNotFound, "Not Found") })

	s.logListenURLs()

	s.srv = http.Server{Handler: engine}
	return s.srv.Serve(s.ln)
}

// Addr returns the bound address once Serve has been called.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Dispose stops the listener and drops every open connection. Hijacked
// sockets are not tracked by net/http, so they are closed explicitly.
func (s *Server) Dispose() error {
	err := s.srv.Close()
	for _, c := range s.registry.all() {
		_ = c.sock.Close()
		s.registry.Remove(c)
	}
	return err
}

// upgradeMiddleware intercepts websocket upgrade requests ahead of routing;
// ordinary requests fall through to the health handlers.
func (s *Server) upgradeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isUpgradeRequest(c.Request) {
			c.Next()
			return
		}
		s.upgrade(c.Writer, c.Request)
		c.Abort()
	}
}

// upgrade performs the one-time handshake. After hijacking, the stream is
// past HTTP: a missing or repeated key destroys the socket with no response.
func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		zap.L().Warn("relay.upgrade", zap.String("err", "response writer cannot hijack"))
		return
	}
	sock, brw, err := hj.Hijack()
	if err != nil {
		zap.L().Warn("relay.upgrade", zap.Error(err))
		return
	}

	key, ok := clientKey(r.Header)
	if !ok {
		_ = sock.Close()
		return
	}

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey(key) + "\r\n\r\n"
	if _, err := sock.Write([]byte(response)); err != nil {
		_ = sock.Close()
		return
	}

	c := newConn(sock)
	// Bytes the HTTP reader buffered past the headers are the start of the
	// websocket stream and must be decoded before any further socket read.
	if n := brw.Reader.Buffered(); n > 0 {
		early, _ := brw.Reader.Peek(n)
		c.buf = append(c.buf, early...)
	}
	s.registry.Add(c)

	go s.readLoop(c)
}

// readLoop is the per-connection transport loop: append incoming bytes,
// drain complete frames, dispatch. Any termination signal converges on the
// deferred removal, which is idempotent.
func (s *Server) readLoop(c *Conn) {
	defer func() {
		s.registry.Remove(c)
		_ = c.sock.Close()
	}()

	chunk := make([]byte, 4096)
	for {
		// First pass covers early data replayed by the handshake.
		if closed := s.drain(c); closed {
			return
		}
		n, err := c.sock.Read(chunk)
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
		}
		if err != nil {
			_ = s.drain(c)
			return
		}
	}
}

// drain decodes every complete frame buffered on c and reports whether the
// connection was terminated in the process.
func (s *Server) drain(c *Conn) bool {
	frames, rest, err := decodeFrames(c.buf)
	c.buf = rest
	for _, f := range frames {
		if !f.fin {
			continue // fragmented messages are not reassembled
		}
		switch f.opcode {
		case opClose:
			s.closeConn(c, closeNormal)
			return true
		case opPing:
			_ = c.write(encodeFrame(opPong, f.payload))
		case opText:
			s.router.HandleText(c, f.payload)
		}
	}
	if err != nil {
		s.closeConn(c, closeCodeFor(err))
		return true
	}
	return false
}

// closeConn sends a best-effort close frame, ends the stream and
// unregisters the connection.
func (s *Server) closeConn(c *Conn, code uint16) {
	_ = c.write(encodeCloseFrame(code))
	_ = c.sock.Close()
	s.registry.Remove(c)
}

// logListenURLs prints the reachable URLs, including every non-loopback
// IPv4 address, so a phone on the same network can be pointed at the relay.
func (s *Server) logListenURLs() {
	port := s.ln.Addr().(*net.TCPAddr).Port
	zap.L().Info("relay.listen", zap.String("url", fmt.Sprintf("ws://localhost:%d", port)))

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			zap.L().Info("relay.listen", zap.String("url", fmt.Sprintf("ws://%s:%d", ip4, port)))
		}
	}
}
