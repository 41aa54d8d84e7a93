package gateway

import (
	"encoding/json"
	"fmt"
)

// Literal liveness frames, distinct from structured envelopes.
const (
	PingFrame = "ping"
	PongFrame = "pong"
)

// ReplyMethod marks a response correlated to a request; pushes carry their
// event name instead.
const ReplyMethod = "reply"

// Request is the inbound envelope. Params stay raw so each handler decodes
// its own positional arguments.
type Request struct {
	Id     string            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Response is the outbound envelope, both for correlated replies
// (Method == "reply") and for asynchronous pushes.
type Response struct {
	Id         string      `json:"id"`
	Method     string      `json:"method"`
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
}

func (r *Response) String() string {
	return fmt.Sprintf("id:%s statusCode:%d data:%v", r.Id, r.StatusCode, r.Data)
}

// Bytes marshals the envelope; a payload that cannot marshal degrades to an
// empty data field rather than dropping the correlation id.
func (r *Response) Bytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		fallback := Response{Id: r.Id, Method: r.Method, StatusCode: r.StatusCode}
		data, _ = json.Marshal(&fallback)
	}
	return data
}

// ParseRequest decodes a text frame into a request envelope.
func ParseRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	return &req, nil
}

// NewReply builds the correlated response for a request id.
func NewReply(id string, code int, data interface{}) *Response {
	return &Response{Id: id, Method: ReplyMethod, StatusCode: code, Data: data}
}

// NewPush builds an asynchronous server push; id carries the event source
// (room id, publish topic) rather than a request correlation.
func NewPush(id, method string, data interface{}) *Response {
	return &Response{Id: id, Method: method, StatusCode: 0, Data: data}
}
