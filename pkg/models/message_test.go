package models

import (
	"encoding/json"
	"testing"
)

func TestUsageTotal(t *testing.T) {
	u := Usage{Input: 10, Output: 5, CacheRead: 3, CacheWrite: 2}
	if got := u.Total(); got != 20 {
		t.Errorf("Total() = %d, want 20", got)
	}

	u.TotalTokens = 100
	if got := u.Total(); got != 100 {
		t.Errorf("Total() with explicit total = %d, want 100", got)
	}
}

func TestMessageToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentBlock{
			TextBlock("let me check"),
			ToolCallBlock("T1", "read", map[string]any{"path": "main.go"}),
			ToolCallBlock("T2", "grep", nil),
		},
	}

	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("ToolCalls() returned %d calls, want 2", len(calls))
	}
	if calls[0].ID != "T1" || calls[1].ID != "T2" {
		t.Errorf("unexpected call ids: %q, %q", calls[0].ID, calls[1].ID)
	}
}

func TestMessageAcceptsToolUseID(t *testing.T) {
	raw := `{"role":"tool_result","timestamp":1,"toolUseId":"T9","isError":false}`
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.ToolCallID != "T9" {
		t.Errorf("ToolCallID = %q, want T9", msg.ToolCallID)
	}

	// Canonical field wins when both are present.
	raw = `{"role":"tool_result","timestamp":1,"toolCallId":"T1","toolUseId":"T9"}`
	msg = Message{}
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.ToolCallID != "T1" {
		t.Errorf("ToolCallID = %q, want T1", msg.ToolCallID)
	}
}

func TestMessageEmitsCanonicalField(t *testing.T) {
	msg := NewToolResultMessage("T1", "read", []ContentBlock{TextBlock("ok")}, false, TrustUntrusted)
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["toolCallId"]; !ok {
		t.Error("expected toolCallId on wire")
	}
	if _, ok := decoded["toolUseId"]; ok {
		t.Error("toolUseId must not be emitted")
	}
}

func TestSafeValueStringifiesUnencodable(t *testing.T) {
	v := SafeValue(func() {})
	if _, ok := v.(string); !ok {
		t.Errorf("SafeValue(func) = %T, want string", v)
	}

	if got := SafeValue(map[string]any{"a": 1}); got == nil {
		t.Error("SafeValue dropped an encodable value")
	}
}

func TestMessageClone(t *testing.T) {
	msg := Message{
		Role:    RoleAssistant,
		Content: []ContentBlock{ToolCallBlock("T1", "read", map[string]any{"path": "a"})},
		Usage:   &Usage{Input: 1},
	}
	clone := msg.Clone()
	clone.Content[0].ToolCall.Arguments["path"] = "b"
	clone.Usage.Input = 99

	if msg.Content[0].ToolCall.Arguments["path"] != "a" {
		t.Error("clone shares tool call arguments with original")
	}
	if msg.Usage.Input != 1 {
		t.Error("clone shares usage with original")
	}
}
