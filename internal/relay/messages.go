package relay

import "encoding/json"

const defaultRoom = "default"

// inboundMessage is the union of the three recognized client payloads,
// discriminated by Type. Orientation angles stay as raw JSON so whatever the
// controller sent, number or not, is forwarded unmodified.
type inboundMessage struct {
	Type  string          `json:"type"`
	Role  string          `json:"role"`
	Room  string          `json:"room"`
	Alpha json.RawMessage `json:"alpha"`
	Beta  json.RawMessage `json:"beta"`
	Gamma json.RawMessage `json:"gamma"`
}

// orientEvent is the fan-out echo of an orient message, stamped server-side.
type orientEvent struct {
	Type  string          `json:"type"`
	Room  string          `json:"room"`
	Beta  json.RawMessage `json:"beta"`
	Gamma json.RawMessage `json:"gamma"`
	Alpha json.RawMessage `json:"alpha"`
	T     int64           `json:"t"`
}

type shootEvent struct {
	Type string `json:"type"`
	Room string `json:"room"`
	T    int64  `json:"t"`
}
