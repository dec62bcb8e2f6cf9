package lspservice

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeSettings decodes the settings of workspace/didChangeConfiguration
// into out, matching fields by their json tag names. Strings are coerced to
// numbers, booleans and durations where the target field asks for them.
func DecodeSettings(settings any, out any) error {
	if raw, ok := settings.(json.RawMessage); ok {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode settings: %w", err)
		}
		settings = v
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(settings); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}

// DecodeSettingsSection is DecodeSettings applied to a dotted section of the
// settings object, e.g. "lsp.words". A missing section leaves out untouched.
func DecodeSettingsSection(settings any, section string, out any) error {
	if raw, ok := settings.(json.RawMessage); ok {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode settings: %w", err)
		}
		settings = v
	}
	cur := settings
	for _, part := range strings.Split(section, ".") {
		if part == "" {
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[part]; !ok {
			return nil
		}
	}
	return DecodeSettings(cur, out)
}
