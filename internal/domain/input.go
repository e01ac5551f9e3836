package domain

import "net/http"

// InputKind discriminates the three extraction surfaces.
type InputKind string

const (
	InputDOM       InputKind = "dom"        // rendered live-page snapshot
	InputShareLink InputKind = "share-link" // public share URL, no auth context
	InputExt       InputKind = "ext"        // authenticated page context with cookies
)

// Input is the tagged union fed into the adapter registry. The kind is
// fixed at construction; use the NewXxxInput constructors rather than
// building the struct by hand.
type Input struct {
	kind    InputKind
	url     string
	html    string
	cookies []*http.Cookie
}

// NewDOMInput wraps a rendered page snapshot for the DOM-scraping adapters.
func NewDOMInput(html, url string) Input {
	return Input{kind: InputDOM, url: url, html: html}
}

// NewShareLinkInput wraps a public share URL. No page content and no
// credentials are carried; the adapter fetches everything itself.
func NewShareLinkInput(url string) Input {
	return Input{kind: InputShareLink, url: url}
}

// NewExtInput wraps an authenticated page snapshot plus the session
// cookies available in that context.
func NewExtInput(html, url string, cookies []*http.Cookie) Input {
	return Input{kind: InputExt, url: url, html: html, cookies: cookies}
}

func (in Input) Kind() InputKind         { return in.kind }
func (in Input) URL() string             { return in.url }
func (in Input) HTML() string            { return in.html }
func (in Input) Cookies() []*http.Cookie { return in.cookies }
