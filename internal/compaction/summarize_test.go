package compaction

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/haasonsaas/agentcore/pkg/models"
)

type fakeSummarizer struct {
	gotSystem       string
	gotConversation string
	gotMaxTokens    int
	out             string
	err             error
}

func (f *fakeSummarizer) Summarize(_ context.Context, systemPrompt, conversation string, maxTokens int) (string, error) {
	f.gotSystem = systemPrompt
	f.gotConversation = conversation
	f.gotMaxTokens = maxTokens
	return f.out, f.err
}

func TestSummarizeCallsModel(t *testing.T) {
	fake := &fakeSummarizer{out: "the summary"}
	msg := models.NewUserMessage("please refactor parser.go")
	got, err := Summarize(context.Background(), fake, Request{Messages: []models.Message{msg}})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "the summary" {
		t.Errorf("summary = %q", got)
	}
	if !strings.Contains(fake.gotConversation, "please refactor parser.go") {
		t.Error("conversation rendering missing user text")
	}
	if fake.gotMaxTokens != summaryMaxTokens {
		t.Errorf("maxTokens = %d, want %d", fake.gotMaxTokens, summaryMaxTokens)
	}
	if !strings.Contains(fake.gotSystem, "Files read or modified") {
		t.Error("system prompt missing file preservation instruction")
	}
}

func TestSummarizeCallerProvidedBypassesModel(t *testing.T) {
	fake := &fakeSummarizer{err: errors.New("should not be called")}
	got, err := Summarize(context.Background(), fake, Request{Summary: "manual"})
	if err != nil || got != "manual" {
		t.Fatalf("got %q, %v", got, err)
	}
	if fake.gotMaxTokens != 0 {
		t.Error("summarizer was called despite caller-provided summary")
	}
}

func TestSummarizeCustomInstructions(t *testing.T) {
	fake := &fakeSummarizer{out: "ok"}
	_, err := Summarize(context.Background(), fake, Request{CustomInstructions: "Focus on the database schema."})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(fake.gotSystem, "Focus on the database schema.") {
		t.Errorf("system prompt = %q, want custom instructions appended", fake.gotSystem)
	}
}

func TestSummarizePropagatesError(t *testing.T) {
	wantErr := errors.New("model unavailable")
	fake := &fakeSummarizer{err: wantErr}
	if _, err := Summarize(context.Background(), fake, Request{}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestRenderMessagesIncludesToolCalls(t *testing.T) {
	msg := models.Message{
		Role: models.RoleAssistant,
		Content: []models.ContentBlock{
			models.TextBlock("reading now"),
			models.ToolCallBlock("tc-1", "read_file", map[string]any{"path": "/src/main.go"}),
		},
	}
	rendered := RenderMessages([]models.Message{msg})
	if !strings.Contains(rendered, "[assistant]") {
		t.Error("missing role header")
	}
	if !strings.Contains(rendered, "tool_call read_file") {
		t.Error("missing tool call line")
	}
}

func TestExtractFileOps(t *testing.T) {
	call := func(name, path string) models.Message {
		return models.Message{
			Role:    models.RoleAssistant,
			Content: []models.ContentBlock{models.ToolCallBlock("tc", name, map[string]any{"path": path})},
		}
	}
	messages := []models.Message{
		call("read_file", "/b.go"),
		call("read", "/a.go"),
		call("read_file", "/a.go"), // duplicate
		call("write_file", "/out.go"),
		call("edit", "/a.go"),
		call("bash", "/ignored"), // not a file op
	}
	got := ExtractFileOps(messages)
	want := map[string][]string{
		"read":  {"/a.go", "/b.go"},
		"write": {"/out.go"},
		"edit":  {"/a.go"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractFileOps = %v, want %v", got, want)
	}
}

func TestExtractFileOpsEmpty(t *testing.T) {
	if got := ExtractFileOps(nil); got != nil {
		t.Errorf("ExtractFileOps(nil) = %v, want nil", got)
	}
}
