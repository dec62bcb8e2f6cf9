package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type idKind uint8

const (
	idNull idKind = iota
	idNumber
	idString
)

// RequestID is the id of a request: an integer or a string. A nil *RequestID
// and an explicit null behave alike.
type RequestID struct {
	kind idKind
	num  int64
	str  string
}

// NewRequestID wraps a string or an integer. Any other value yields a null
// id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string:
		return &RequestID{kind: idString, str: v}
	case int:
		return &RequestID{kind: idNumber, num: int64(v)}
	case int32:
		return &RequestID{kind: idNumber, num: int64(v)}
	case int64:
		return &RequestID{kind: idNumber, num: v}
	case uint32:
		return &RequestID{kind: idNumber, num: int64(v)}
	}
	return &RequestID{}
}

// IsNil reports whether the id is absent or null.
func (id *RequestID) IsNil() bool {
	return id == nil || id.kind == idNull
}

// String renders the id for logs. 1 and "1" render the same; use Key to
// tell them apart.
func (id *RequestID) String() string {
	switch {
	case id.IsNil():
		return ""
	case id.kind == idString:
		return id.str
	default:
		return strconv.FormatInt(id.num, 10)
	}
}

// Key is a map key that keeps numeric and string ids distinct.
func (id *RequestID) Key() string {
	switch {
	case id.IsNil():
		return ""
	case id.kind == idString:
		return "s:" + id.str
	default:
		return "n:" + strconv.FormatInt(id.num, 10)
	}
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	switch {
	case id.IsNil():
		return []byte("null"), nil
	case id.kind == idString:
		return json.Marshal(id.str)
	default:
		return strconv.AppendInt(nil, id.num, 10), nil
	}
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = RequestID{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("request id: %w", err)
		}
		*id = RequestID{kind: idString, str: s}
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("request id must be an integer or a string, got %s", data)
	}
	*id = RequestID{kind: idNumber, num: n}
	return nil
}
