package chatgpt

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func toMarkdown(t *testing.T, fragment string) string {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><body>" + fragment + "</body></html>"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return NodeToMarkdown(doc)
}

func TestNodeToMarkdown_Headings(t *testing.T) {
	got := toMarkdown(t, "<h2>Section</h2><p>body</p>")
	if !strings.Contains(got, "## Section") {
		t.Fatalf("heading not converted: %q", got)
	}
}

func TestNodeToMarkdown_Lists(t *testing.T) {
	got := toMarkdown(t, "<ul><li>one</li><li>two</li></ul>")
	if !strings.Contains(got, "- one") || !strings.Contains(got, "- two") {
		t.Fatalf("unordered list not converted: %q", got)
	}

	got = toMarkdown(t, "<ol><li>first</li><li>second</li></ol>")
	if !strings.Contains(got, "1. first") || !strings.Contains(got, "2. second") {
		t.Fatalf("ordered list not converted: %q", got)
	}
}

func TestNodeToMarkdown_LinksAndImages(t *testing.T) {
	got := toMarkdown(t, `<p><a href="https://example.com">site</a></p>`)
	if !strings.Contains(got, "[site](https://example.com)") {
		t.Fatalf("link not converted: %q", got)
	}

	got = toMarkdown(t, `<img src="https://example.com/a.png" alt="pic">`)
	if !strings.Contains(got, "![pic](https://example.com/a.png)") {
		t.Fatalf("image not converted: %q", got)
	}
}

func TestNodeToMarkdown_InlineFormatting(t *testing.T) {
	got := toMarkdown(t, "<p><strong>bold</strong> and <em>italic</em> and <code>inline</code></p>")
	if !strings.Contains(got, "**bold**") || !strings.Contains(got, "*italic*") || !strings.Contains(got, "`inline`") {
		t.Fatalf("inline formatting wrong: %q", got)
	}
}

func TestNodeToMarkdown_Table(t *testing.T) {
	got := toMarkdown(t, `<table>
		<tr><th>Name</th><th>Age</th></tr>
		<tr><td>Alice</td><td>30</td></tr>
	</table>`)
	if !strings.Contains(got, "| Name | Age |") {
		t.Fatalf("header row missing: %q", got)
	}
	if !strings.Contains(got, "| --- | --- |") {
		t.Fatalf("separator missing: %q", got)
	}
	if !strings.Contains(got, "| Alice | 30 |") {
		t.Fatalf("data row missing: %q", got)
	}
}

func TestNodeToMarkdown_Blockquote(t *testing.T) {
	got := toMarkdown(t, "<blockquote>quoted text</blockquote>")
	if !strings.Contains(got, "> quoted text") {
		t.Fatalf("blockquote not converted: %q", got)
	}
}

func TestNodeToMarkdown_SkipsUIChrome(t *testing.T) {
	got := toMarkdown(t, `<p>real</p><button>Copy code</button><script>alert(1)</script>`)
	if strings.Contains(got, "Copy code") || strings.Contains(got, "alert") {
		t.Fatalf("UI chrome leaked into markdown: %q", got)
	}
}

func TestNodeToMarkdown_PreWithoutCodeChild(t *testing.T) {
	got := toMarkdown(t, "<pre>plain block</pre>")
	if !strings.Contains(got, "```\nplain block\n```") {
		t.Fatalf("bare pre not fenced: %q", got)
	}
}
