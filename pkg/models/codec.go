package models

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON accepts both the canonical toolCallId field and the legacy
// toolUseId spelling on tool-result messages. Writes always emit toolCallId.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	aux := struct {
		*alias
		ToolUseID string `json:"toolUseId,omitempty"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if m.ToolCallID == "" && aux.ToolUseID != "" {
		m.ToolCallID = aux.ToolUseID
	}
	return nil
}

// SafeValue returns a value that is guaranteed to JSON-encode. Values that
// fail to encode are replaced with their debug string representation.
func SafeValue(v any) any {
	if v == nil {
		return nil
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return v
}

// SafeDetails applies SafeValue to every entry of a details map.
func SafeDetails(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = SafeValue(v)
	}
	return out
}
