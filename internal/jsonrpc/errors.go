package jsonrpc

import "fmt"

// ErrorCode is a JSON-RPC 2.0 error code, including the range reserved by the
// language server protocol.
type ErrorCode int

const (
	ErrorCodeParseError     ErrorCode = -32700
	ErrorCodeInvalidRequest ErrorCode = -32600
	ErrorCodeMethodNotFound ErrorCode = -32601
	ErrorCodeInvalidParams  ErrorCode = -32602
	ErrorCodeInternalError  ErrorCode = -32603

	// ErrorCodeServerNotInitialized is sent for requests that arrive before
	// initialize completed.
	ErrorCodeServerNotInitialized ErrorCode = -32002
	ErrorCodeUnknownError         ErrorCode = -32001

	// ErrorCodeRequestCancelled answers a request cancelled through
	// $/cancelRequest.
	ErrorCodeRequestCancelled ErrorCode = -32800
	ErrorCodeContentModified  ErrorCode = -32801
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeParseError:
		return "ParseError"
	case ErrorCodeInvalidRequest:
		return "InvalidRequest"
	case ErrorCodeMethodNotFound:
		return "MethodNotFound"
	case ErrorCodeInvalidParams:
		return "InvalidParams"
	case ErrorCodeInternalError:
		return "InternalError"
	case ErrorCodeServerNotInitialized:
		return "ServerNotInitialized"
	case ErrorCodeUnknownError:
		return "UnknownErrorCode"
	case ErrorCodeRequestCancelled:
		return "RequestCancelled"
	case ErrorCodeContentModified:
		return "ContentModified"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Error is a JSON-RPC error object. It also satisfies the error interface so
// handlers can return one to control the wire code.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewError builds an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc %s (%d): %s", e.Code, int(e.Code), e.Message)
}
