package transport

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"nhooyr.io/websocket"
)

// Codec translates between wire frames and (event name, JSON data) pairs.
// Whatever the wire encoding, decoded frame data is handed downstream as
// canonical JSON so the decoder and adapters only deal with one format.
type Codec interface {
	Name() string
	MessageType() websocket.MessageType
	// EncodeFrame encodes an outbound frame carrying the given event and data
	EncodeFrame(event string, data any) ([]byte, error)
	// DecodeFrame splits an inbound frame into its event name and JSON data
	DecodeFrame(raw []byte) (event string, data []byte, err error)
}

// NewCodec returns the codec for the given wire format name
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return jsonCodec{}, nil
	case "msgpack":
		return msgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

type jsonFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) MessageType() websocket.MessageType { return websocket.MessageText }

func (jsonCodec) EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonFrame{Event: event, Data: raw})
}

func (jsonCodec) DecodeFrame(raw []byte) (string, []byte, error) {
	var f jsonFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", nil, err
	}
	if f.Event == "" {
		return "", nil, fmt.Errorf("frame is missing an event name")
	}
	return f.Event, f.Data, nil
}

type msgpackFrame struct {
	Event string `msgpack:"event"`
	Data  any    `msgpack:"data"`
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) MessageType() websocket.MessageType { return websocket.MessageBinary }

func (msgpackCodec) EncodeFrame(event string, data any) ([]byte, error) {
	return msgpack.Marshal(msgpackFrame{Event: event, Data: data})
}

func (msgpackCodec) DecodeFrame(raw []byte) (string, []byte, error) {
	var f msgpackFrame
	if err := msgpack.Unmarshal(raw, &f); err != nil {
		return "", nil, err
	}
	if f.Event == "" {
		return "", nil, fmt.Errorf("frame is missing an event name")
	}
	data, err := json.Marshal(f.Data)
	if err != nil {
		return "", nil, err
	}
	return f.Event, data, nil
}
