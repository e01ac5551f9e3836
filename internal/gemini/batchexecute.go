// Package gemini extracts conversations from Gemini's web client,
// which speaks Google's internal batchexecute RPC protocol: requests
// and responses are wrapped in provider-specific envelopes rather than
// plain JSON, and the payload itself has no published schema.
package gemini

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"regexp"
	"strings"

	"convograb/internal/domain"
)

const (
	batchExecuteURL = "https://gemini.google.com/_/BardChatUi/data/batchexecute"

	// RPC ids observed in the web client.
	rpcConversation = "hNvQHb" // authenticated conversation fetch
	rpcSharedChat   = "ujx1Bf" // public share-page fetch
)

// PageParams are the tokens scraped from the hosting page's inline
// script that every batchexecute call must echo back.
type PageParams struct {
	BL   string // build label ("cfb2h")
	FSID string // session id ("FdrFJe")
	AT   string // anti-CSRF token ("SNlM0e"), optional
}

var (
	blRe   = regexp.MustCompile(`"cfb2h":"([^"]+)"`)
	fsidRe = regexp.MustCompile(`"FdrFJe":"([^"]+)"`)
	atRe   = regexp.MustCompile(`"SNlM0e":"([^"]+)"`)
)

// ScrapePageParams pulls bl/f.sid/at out of a rendered Gemini page.
// Missing bl or f.sid is a hard error: no request can be built without
// them. A missing at token degrades gracefully; the field is omitted.
func ScrapePageParams(html string) (*PageParams, error) {
	p := &PageParams{}
	if m := blRe.FindStringSubmatch(html); m != nil {
		p.BL = m[1]
	}
	if m := fsidRe.FindStringSubmatch(html); m != nil {
		p.FSID = m[1]
	}
	if m := atRe.FindStringSubmatch(html); m != nil {
		p.AT = m[1]
	}
	if p.BL == "" || p.FSID == "" {
		return nil, domain.NewAppError(domain.ErrAdapterNotFound,
			"page carries no batchexecute parameters (cfb2h/FdrFJe); not a Gemini app page")
	}
	return p, nil
}

// Request is a fully built batchexecute call.
type Request struct {
	URL  string // endpoint including query params
	Body string // urlencoded f.req (+ at when available)
}

// BuildRequest assembles the batchexecute envelope for one RPC:
// f.req = [[[rpcId, jsonPayload, null, "generic"]]].
func BuildRequest(rpcID, payload, sourcePath string, p *PageParams) (*Request, error) {
	inner, err := json.Marshal([]any{[]any{[]any{rpcID, payload, nil, "generic"}}})
	if err != nil {
		return nil, fmt.Errorf("marshal f.req: %w", err)
	}

	q := url.Values{}
	q.Set("rpcids", rpcID)
	q.Set("source-path", sourcePath)
	q.Set("bl", p.BL)
	q.Set("f.sid", p.FSID)
	q.Set("hl", "en")
	q.Set("_reqid", fmt.Sprintf("%d", 100000+rand.Intn(900000)))
	q.Set("rt", "c")

	body := url.Values{}
	body.Set("f.req", string(inner))
	if p.AT != "" {
		body.Set("at", p.AT)
	}

	return &Request{
		URL:  batchExecuteURL + "?" + q.Encode(),
		Body: body.Encode(),
	}, nil
}

const securityPrefix = ")]}'"

// UnwrapResponse digs the RPC payload out of a batchexecute response:
// strip the security prefix, parse each line independently (many lines
// are length markers or chaff, not JSON), and search every parsed value
// for the ["wrb.fr", rpcId, <jsonString>, ...] envelope. The returned
// string is the payload, still JSON-encoded.
func UnwrapResponse(raw, rpcID string) (string, error) {
	text := strings.TrimPrefix(strings.TrimSpace(raw), securityPrefix)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			continue
		}
		if payload := findEnvelope(parsed, rpcID); payload != "" {
			return payload, nil
		}
	}
	return "", fmt.Errorf("no wrb.fr envelope for rpc %s in response", rpcID)
}

// findEnvelope recursively searches a parsed value for the wrb.fr
// envelope carrying the requested RPC id.
func findEnvelope(v any, rpcID string) string {
	arr, ok := v.([]any)
	if !ok {
		return ""
	}
	if len(arr) >= 3 {
		if tag, ok := arr[0].(string); ok && tag == "wrb.fr" {
			if id, ok := arr[1].(string); ok && id == rpcID {
				if payload, ok := arr[2].(string); ok && payload != "" {
					return payload
				}
			}
		}
	}
	for _, e := range arr {
		if payload := findEnvelope(e, rpcID); payload != "" {
			return payload
		}
	}
	return ""
}
