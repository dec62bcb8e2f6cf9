package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the only jsonrpc member value accepted on the wire.
const ProtocolVersion = "2.0"

// Values of AnyMessage.Type.
const (
	TypeRequest      = "request"
	TypeNotification = "notification"
	TypeResponse     = "response"
)

var (
	ErrInvalidVersion   = errors.New("invalid JSON-RPC version")
	ErrMalformedMessage = errors.New("malformed JSON-RPC message")
)

// Message is one encoded JSON-RPC message, without framing.
type Message []byte

// Encode marshals a Request or Response into a Message.
func Encode(v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// AnyMessage is whatever arrived from the peer. Decoding classifies it by
// the members present rather than by their values.
type AnyMessage struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Request is a request, or a notification when ID is nil.
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	ID             *RequestID      `json:"id,omitempty"`
}

// Response answers a Request. ID is always written, as null when unknown.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
	ID             *RequestID      `json:"id"`
}

func NewRequest(id *RequestID, method string, params any) (*Request, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return &Request{JSONRPCVersion: ProtocolVersion, Method: method, Params: raw, ID: id}, nil
}

func NewNotification(method string, params any) (*Request, error) {
	return NewRequest(nil, method, params)
}

// encodeParams leaves params out entirely when there are none; the protocol
// forbids a null params member.
func encodeParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(p) == 0 || bytes.Equal(p, []byte("null")) {
			return nil, nil
		}
		return p, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	if bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	return b, nil
}

// NewResultResponse answers id with result. A nil result is written as null,
// which the protocol requires for void requests such as shutdown.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &Response{JSONRPCVersion: ProtocolVersion, Result: b, ID: id}, nil
}

func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		Error:          &Error{Code: code, Message: message, Data: data},
		ID:             id,
	}
}

// UnmarshalJSON validates the message shape. On ErrInvalidVersion and
// ErrMalformedMessage the ID is still populated when it could be read, so
// the error response can echo it.
func (m *AnyMessage) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: not an object", ErrMalformedMessage)
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if raw, ok := members["id"]; ok {
		id := &RequestID{}
		if err := id.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		m.ID = id
	}

	if err := decodeMember(members, "jsonrpc", &m.JSONRPCVersion); err != nil {
		return err
	}
	if m.JSONRPCVersion != ProtocolVersion {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidVersion, ProtocolVersion, m.JSONRPCVersion)
	}

	_, hasMethod := members["method"]
	resultRaw, hasResult := members["result"]
	_, hasError := members["error"]

	switch {
	case hasMethod:
		if hasResult || hasError {
			return fmt.Errorf("%w: request with result or error", ErrMalformedMessage)
		}
		if err := decodeMember(members, "method", &m.Method); err != nil {
			return err
		}
		if m.Method == "" {
			return fmt.Errorf("%w: empty method", ErrMalformedMessage)
		}
		if p, ok := members["params"]; ok && !bytes.Equal(bytes.TrimSpace(p), []byte("null")) {
			m.Params = p
		}
	case hasResult && hasError:
		return fmt.Errorf("%w: response with both result and error", ErrMalformedMessage)
	case hasResult:
		m.Result = resultRaw
	case hasError:
		m.Error = &Error{}
		if err := decodeMember(members, "error", m.Error); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: neither a request nor a response", ErrMalformedMessage)
	}
	return nil
}

func decodeMember(members map[string]json.RawMessage, name string, out any) error {
	raw, ok := members[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedMessage, name, err)
	}
	return nil
}

// Type classifies the message as TypeRequest, TypeNotification or
// TypeResponse.
func (m *AnyMessage) Type() string {
	switch {
	case m.Method == "":
		return TypeResponse
	case m.ID.IsNil():
		return TypeNotification
	default:
		return TypeRequest
	}
}

// AsRequest returns nil for responses.
func (m *AnyMessage) AsRequest() *Request {
	if m.Type() == TypeResponse {
		return nil
	}
	return &Request{JSONRPCVersion: m.JSONRPCVersion, Method: m.Method, Params: m.Params, ID: m.ID}
}

// AsResponse returns nil for requests and notifications.
func (m *AnyMessage) AsResponse() *Response {
	if m.Type() != TypeResponse {
		return nil
	}
	return &Response{JSONRPCVersion: m.JSONRPCVersion, Result: m.Result, Error: m.Error, ID: m.ID}
}
