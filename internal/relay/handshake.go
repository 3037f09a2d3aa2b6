package relay

import (
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strings"
)

// Fixed GUID from RFC 6455 section 1.3.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// isUpgradeRequest reports whether the request asks for the websocket
// protocol upgrade. Anything else stays on the ordinary HTTP path.
func isUpgradeRequest(r *http.Request) bool {
	return r.Method == http.MethodGet &&
		strings.Contains(strings.ToLower(r.Header.Get("Upgrade")), "websocket")
}

// acceptKey computes the Sec-WebSocket-Accept value for a client key.
func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// clientKey extracts the Sec-WebSocket-Key header, which must be present
// exactly once and non-empty.
func clientKey(h http.Header) (string, bool) {
	values := h.Values("Sec-WebSocket-Key")
	if len(values) != 1 || values[0] == "" {
		return "", false
	}
	return values[0], true
}
