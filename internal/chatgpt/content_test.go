package chatgpt

import (
	"context"
	"strings"
	"testing"
)

func flatten(t *testing.T, content map[string]any) string {
	t.Helper()
	reg := NewFlattenerRegistry()
	out, err := reg.Flatten(context.Background(), content, &FlattenContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return out
}

func TestFlattenText_JoinsParts(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "text",
		"parts":        []any{"first", "second"},
	})
	if got != "first\nsecond" {
		t.Fatalf("got %q", got)
	}
}

func TestFlattenText_UnwrapsToolEcho(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "text",
		"parts":        []any{`{"response": "the actual answer"}`},
	})
	if got != "the actual answer" {
		t.Fatalf("got %q", got)
	}
}

func TestFlattenCode_FencedWithLanguage(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "code",
		"language":     "python",
		"text":         "print(1)",
	})
	if got != "```python\nprint(1)\n```" {
		t.Fatalf("got %q", got)
	}
}

func TestFlattenCode_DropsTelemetryOnlyJSON(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "code",
		"language":     "json",
		"text":         `{"response_length": 12}`,
	})
	if got != "" {
		t.Fatalf("telemetry body should flatten to empty, got %q", got)
	}
}

func TestFlattenCode_KeepsJSONWithRealContent(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "code",
		"language":     "json",
		"text":         `{"name": "alice", "count": 2}`,
	})
	if !strings.Contains(got, `"alice"`) {
		t.Fatalf("real JSON content dropped: %q", got)
	}
}

func TestFlattenThoughts_ItalicSummaries(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "thoughts",
		"thoughts": []any{
			map[string]any{"summary": "Considering options", "content": "long hidden reasoning"},
			map[string]any{"summary": "Choosing approach"},
		},
	})
	if got != "*Considering options*\n*Choosing approach*" {
		t.Fatalf("got %q", got)
	}
}

func TestFlattenReasoningRecap(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "reasoning_recap",
		"content":      "Thought for 12 seconds",
	})
	if got != "*Thought for 12 seconds*" {
		t.Fatalf("got %q", got)
	}
}

func TestFlattenMultimodal_DegradesToAPIURLWithoutClient(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "multimodal_text",
		"parts": []any{
			"look at this:",
			map[string]any{
				"content_type":  "image_asset_pointer",
				"asset_pointer": "sediment://file_abc123",
			},
		},
	})
	want := "look at this:\n\n![image](" + fileDownloadBase + "file_abc123)"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFlattenMultimodal_FileServicePointer(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "multimodal_text",
		"parts": []any{
			map[string]any{
				"content_type":  "image_asset_pointer",
				"asset_pointer": "file-service://file-xyz",
			},
		},
	})
	if !strings.Contains(got, fileDownloadBase+"file-xyz") {
		t.Fatalf("got %q", got)
	}
}

func TestFlattenUnknownType_FallsThroughToGeneric(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type": "some_future_type",
		"parts":        []any{"still", "readable"},
	})
	if got != "still\nreadable" {
		t.Fatalf("got %q", got)
	}
}

func TestFlattenModelEditableContext_Dropped(t *testing.T) {
	got := flatten(t, map[string]any{
		"content_type":      "model_editable_context",
		"model_set_context": "remembered facts about the user",
	})
	if got != "" {
		t.Fatalf("editable context should be dropped, got %q", got)
	}
}

func TestRegister_ReplacesStrategy(t *testing.T) {
	reg := NewFlattenerRegistry()
	reg.Register("text", func(_ context.Context, _ map[string]any, _ *FlattenContext) (string, error) {
		return "overridden", nil
	})
	got, err := reg.Flatten(context.Background(), map[string]any{"content_type": "text"}, &FlattenContext{})
	if err != nil || got != "overridden" {
		t.Fatalf("got %q, %v", got, err)
	}
}
