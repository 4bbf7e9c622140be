// Package ipc carries newline-delimited JSON commands between CLI
// invocations and the owner process over a unix socket.
package ipc

import "encoding/json"

type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

type Response struct {
	OK      bool            `json:"ok"`
	State   string          `json:"state,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Arg returns the i-th argument or "".
func (r Request) Arg(i int) string {
	if i < 0 || i >= len(r.Args) {
		return ""
	}
	return r.Args[i]
}

// WithPayload returns r carrying v encoded as JSON.
func (r Response) WithPayload(v any) (Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return r, err
	}
	r.Payload = data
	return r, nil
}

// DecodePayload unmarshals the payload into v.
func (r Response) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(r.Payload, v)
}
