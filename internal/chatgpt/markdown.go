package chatgpt

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// NodeToMarkdown converts a rendered message subtree into markdown.
// Hand-rolled on purpose: the input is the small, predictable subset of
// HTML the chat UIs emit, and full-fidelity HTML conversion would keep
// artifacts (buttons, toolbars) the transcript must not contain.
func NodeToMarkdown(n *html.Node) string {
	var b strings.Builder
	renderBlocks(n, &b, "")
	return tidyMarkdown(b.String())
}

var langClassRe = regexp.MustCompile(`language-([\w+-]+)`)

func renderBlocks(n *html.Node, b *strings.Builder, listPrefix string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(c, b, listPrefix)
	}
}

func renderNode(n *html.Node, b *strings.Builder, listPrefix string) {
	if n.Type == html.TextNode {
		b.WriteString(collapseSpace(n.Data))
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		b.WriteString("\n\n" + strings.Repeat("#", level) + " " + inlineText(n) + "\n\n")
	case "p":
		b.WriteString("\n\n")
		renderBlocks(n, b, listPrefix)
		b.WriteString("\n\n")
	case "br":
		b.WriteString("\n")
	case "ul":
		b.WriteString("\n\n")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "li" {
				b.WriteString(listPrefix + "- ")
				renderBlocks(c, b, listPrefix+"  ")
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	case "ol":
		b.WriteString("\n\n")
		i := 1
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "li" {
				b.WriteString(listPrefix)
				b.WriteString(strconv.Itoa(i) + ". ")
				renderBlocks(c, b, listPrefix+"   ")
				b.WriteString("\n")
				i++
			}
		}
		b.WriteString("\n")
	case "a":
		href := attrVal(n, "href")
		text := inlineText(n)
		if text == "" {
			text = href
		}
		if href == "" {
			b.WriteString(text)
		} else {
			b.WriteString("[" + text + "](" + href + ")")
		}
	case "img":
		src := attrVal(n, "src")
		if src != "" {
			b.WriteString("![" + attrVal(n, "alt") + "](" + src + ")")
		}
	case "pre":
		code := findFirst(n, func(e *html.Node) bool { return e.Data == "code" })
		lang := ""
		body := rawText(n)
		if code != nil {
			body = rawText(code)
			if m := langClassRe.FindStringSubmatch(attrVal(code, "class")); m != nil {
				lang = m[1]
			}
		}
		b.WriteString("\n\n```" + lang + "\n" + strings.TrimRight(body, "\n") + "\n```\n\n")
	case "code":
		b.WriteString("`" + rawText(n) + "`")
	case "strong", "b":
		b.WriteString("**" + inlineText(n) + "**")
	case "em", "i":
		b.WriteString("*" + inlineText(n) + "*")
	case "blockquote":
		var inner strings.Builder
		renderBlocks(n, &inner, listPrefix)
		for _, line := range strings.Split(strings.TrimSpace(inner.String()), "\n") {
			b.WriteString("\n> " + line)
		}
		b.WriteString("\n\n")
	case "table":
		renderTable(n, b)
	case "script", "style", "button", "svg":
		// UI chrome, never content
	default:
		renderBlocks(n, b, listPrefix)
	}
}

func renderTable(n *html.Node, b *strings.Builder) {
	var rows [][]string
	var walk func(*html.Node)
	walk = func(e *html.Node) {
		for c := e.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "tr" {
				var cells []string
				for td := c.FirstChild; td != nil; td = td.NextSibling {
					if td.Type == html.ElementNode && (td.Data == "td" || td.Data == "th") {
						cells = append(cells, inlineText(td))
					}
				}
				if len(cells) > 0 {
					rows = append(rows, cells)
				}
			} else if c.Type == html.ElementNode {
				walk(c)
			}
		}
	}
	walk(n)
	if len(rows) == 0 {
		return
	}

	b.WriteString("\n\n")
	for i, row := range rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		if i == 0 {
			seps := make([]string, len(row))
			for j := range seps {
				seps[j] = "---"
			}
			b.WriteString("| " + strings.Join(seps, " | ") + " |\n")
		}
	}
	b.WriteString("\n")
}

// inlineText flattens a subtree to plain text with collapsed whitespace.
func inlineText(n *html.Node) string {
	return strings.TrimSpace(collapseSpace(rawText(n)))
}

func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(e *html.Node) {
		if e.Type == html.TextNode {
			b.WriteString(e.Data)
			return
		}
		for c := e.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

var multiSpaceRe = regexp.MustCompile(`[ \t]+`)
var multiBlankRe = regexp.MustCompile(`\n{3,}`)

func collapseSpace(s string) string {
	return multiSpaceRe.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " ")
}

func tidyMarkdown(s string) string {
	return strings.TrimSpace(multiBlankRe.ReplaceAllString(s, "\n\n"))
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && pred(c) {
			return c
		}
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

