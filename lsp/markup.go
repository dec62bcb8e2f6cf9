package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
)

// MarkedString is either plain markdown text or a fenced code block in a
// given language. Without a language it encodes as a bare JSON string.
type MarkedString struct {
	Language string
	Value    string
}

// MarshalJSON implements json.Marshaler.
func (m MarkedString) MarshalJSON() ([]byte, error) {
	if m.Language == "" {
		return json.Marshal(m.Value)
	}
	return json.Marshal(struct {
		Language string `json:"language"`
		Value    string `json:"value"`
	}{m.Language, m.Value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MarkedString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("lsp: empty marked string")
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*m = MarkedString{Value: s}
		return nil
	}
	var obj struct {
		Language string `json:"language"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	*m = MarkedString{Language: obj.Language, Value: obj.Value}
	return nil
}

// MarkedStringContainer is the hover content union: one or many marked
// strings.
type MarkedStringContainer = Container[MarkedString]

// NewMarkedStringContainer builds hover contents from plain strings.
func NewMarkedStringContainer(values ...string) MarkedStringContainer {
	items := make([]MarkedString, 0, len(values))
	for _, v := range values {
		items = append(items, MarkedString{Value: v})
	}
	return ContainerFrom(items)
}

// Hover is the result of a textDocument/hover request.
type Hover struct {
	Contents MarkedStringContainer `json:"contents"`
	Range    *Range                `json:"range,omitempty"`
}

// HoverParams is the request payload for textDocument/hover.
type HoverParams struct {
	TextDocumentPositionParams
}
