package rpc

import (
	"encoding/json"
	"time"
)

// Request is the envelope of every call
type Request struct {
	Method    Method          `json:"method"`
	RequestID string          `json:"requestId"`
	From      string          `json:"from,omitempty"`
	Token     string          `json:"token,omitempty"`
	Instant   time.Time       `json:"instant"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is the envelope of every reply
type Response struct {
	RequestID  string          `json:"requestId"`
	Successful bool            `json:"successful"`
	Commentary string          `json:"commentary,omitempty"`
	Kind       ErrorKind       `json:"kind,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func failure(requestID string, kind ErrorKind, commentary string) *Response {
	return &Response{RequestID: requestID, Kind: kind, Commentary: commentary}
}
