package claude

import (
	"testing"

	"convograb/internal/domain"
)

func TestConvertMessages_SortsByTimestamp(t *testing.T) {
	msgs := []chatMessage{
		{Sender: "assistant", CreatedAt: "2025-03-01T10:00:05Z", Content: []contentPart{{Type: "text", Text: "answer"}}},
		{Sender: "human", CreatedAt: "2025-03-01T10:00:00Z", Content: []contentPart{{Type: "text", Text: "question"}}},
	}
	out := convertMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].Role != domain.RoleUser || out[0].Content != "question" {
		t.Fatalf("first message wrong: %+v", out[0])
	}
	if out[1].Role != domain.RoleAssistant || out[1].Content != "answer" {
		t.Fatalf("second message wrong: %+v", out[1])
	}
}

func TestConvertMessages_IndexFallbackOrdering(t *testing.T) {
	msgs := []chatMessage{
		{Sender: "assistant", Index: 1, Content: []contentPart{{Type: "text", Text: "second"}}},
		{Sender: "human", Index: 0, Content: []contentPart{{Type: "text", Text: "first"}}},
	}
	out := convertMessages(msgs)
	if out[0].Content != "first" || out[1].Content != "second" {
		t.Fatalf("index fallback ordering wrong: %+v", out)
	}
}

func TestConvertMessages_MergesAdjacentSameSender(t *testing.T) {
	msgs := []chatMessage{
		{Sender: "human", Index: 0, Content: []contentPart{{Type: "text", Text: "A"}}},
		{Sender: "human", Index: 1, Content: []contentPart{{Type: "text", Text: "B"}}},
		{Sender: "assistant", Index: 2, Content: []contentPart{{Type: "text", Text: "C"}}},
	}
	out := convertMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("expected merge into 2 messages, got %d: %+v", len(out), out)
	}
	if out[0].Role != domain.RoleUser || out[0].Content != "A\nB" {
		t.Fatalf("merged message wrong: %+v", out[0])
	}
}

func TestConvertMessages_KeepsOnlyTextParts(t *testing.T) {
	msgs := []chatMessage{
		{Sender: "human", Index: 0, Content: []contentPart{
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "kept"},
		}},
	}
	out := convertMessages(msgs)
	if len(out) != 1 || out[0].Content != "kept" {
		t.Fatalf("got %+v", out)
	}
}

func TestConvertMessages_LegacyTextFallback(t *testing.T) {
	msgs := []chatMessage{
		{Sender: "human", Index: 0, Text: "legacy body"},
	}
	out := convertMessages(msgs)
	if len(out) != 1 || out[0].Content != "legacy body" {
		t.Fatalf("got %+v", out)
	}
}

func TestConvertMessages_SkipsEmpty(t *testing.T) {
	msgs := []chatMessage{
		{Sender: "human", Index: 0, Content: []contentPart{{Type: "text", Text: "   "}}},
		{Sender: "assistant", Index: 1, Content: []contentPart{{Type: "text", Text: "real"}}},
	}
	out := convertMessages(msgs)
	if len(out) != 1 || out[0].Content != "real" {
		t.Fatalf("got %+v", out)
	}
}

func TestConvertArtifacts_FencedBlock(t *testing.T) {
	in := `Here is the script: <antArtifact identifier="script" type="application/vnd.ant.code" language="python">print(1)</antArtifact>`
	got := convertArtifacts(in)
	want := "Here is the script: ```python\nprint(1)\n```"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConvertArtifacts_NoLanguageAttr(t *testing.T) {
	in := `<antArtifact identifier="x">body</antArtifact>`
	got := convertArtifacts(in)
	if got != "```\nbody\n```" {
		t.Fatalf("got %q", got)
	}
}

func TestConvertMessages_UnicodeContent(t *testing.T) {
	msgs := []chatMessage{
		{Sender: "human", Index: 0, Content: []contentPart{{Type: "text", Text: "今天有什么重大新闻？"}}},
	}
	out := convertMessages(msgs)
	if len(out) != 1 || out[0].Content != "今天有什么重大新闻？" {
		t.Fatalf("got %+v", out)
	}
}
