package gemini

import (
	"strings"
	"testing"

	"convograb/internal/domain"
)

const paramsPage = `<html><script>window.WIZ_global_data = {"cfb2h":"boq_assistant-bard-web-server_20250301.01_p0","FdrFJe":"-1234567890123456789","SNlM0e":"AG5rdx8abcdef:1740000000000"};</script></html>`

func TestScrapePageParams(t *testing.T) {
	p, err := ScrapePageParams(paramsPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.BL != "boq_assistant-bard-web-server_20250301.01_p0" {
		t.Fatalf("bl wrong: %q", p.BL)
	}
	if p.FSID != "-1234567890123456789" {
		t.Fatalf("f.sid wrong: %q", p.FSID)
	}
	if p.AT != "AG5rdx8abcdef:1740000000000" {
		t.Fatalf("at wrong: %q", p.AT)
	}
}

func TestScrapePageParams_MissingATDegrades(t *testing.T) {
	page := `{"cfb2h":"bl-value","FdrFJe":"sid-value"}`
	p, err := ScrapePageParams(page)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AT != "" {
		t.Fatalf("expected empty at, got %q", p.AT)
	}
}

func TestScrapePageParams_MissingRequiredTokens(t *testing.T) {
	_, err := ScrapePageParams(`<html>not a gemini page</html>`)
	if err == nil {
		t.Fatal("expected error for page without tokens")
	}
	appErr, ok := domain.AsAppError(err)
	if !ok || appErr.Code != domain.ErrAdapterNotFound {
		t.Fatalf("expected %s, got %v", domain.ErrAdapterNotFound, err)
	}
}

func TestBuildRequest(t *testing.T) {
	p := &PageParams{BL: "bl-value", FSID: "sid-value", AT: "at-value"}
	req, err := BuildRequest(rpcConversation, `["c_abc",10]`, "/app/abc", p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"rpcids=hNvQHb", "bl=bl-value", "f.sid=sid-value", "_reqid=", "source-path=%2Fapp%2Fabc"} {
		if !strings.Contains(req.URL, want) {
			t.Fatalf("url missing %q: %s", want, req.URL)
		}
	}
	if !strings.Contains(req.Body, "f.req=") {
		t.Fatalf("body missing f.req: %s", req.Body)
	}
	if !strings.Contains(req.Body, "at=at-value") {
		t.Fatalf("body missing at: %s", req.Body)
	}
}

func TestBuildRequest_OmitsEmptyAT(t *testing.T) {
	p := &PageParams{BL: "bl", FSID: "sid"}
	req, err := BuildRequest(rpcSharedChat, `["s_123"]`, "/share/s_123", p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(req.Body, "at=") {
		t.Fatalf("body should omit at: %s", req.Body)
	}
}

func TestUnwrapResponse(t *testing.T) {
	raw := ")]}'\n\n123\n" +
		`[["wrb.fr","hNvQHb","[\"inner\"]",null,null,null,"generic"]]` + "\n45\n"
	payload, err := UnwrapResponse(raw, rpcConversation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != `["inner"]` {
		t.Fatalf("payload wrong: %q", payload)
	}
}

func TestUnwrapResponse_IgnoresChaffLines(t *testing.T) {
	raw := ")]}'\nnot json at all\n[1,2,3]\n" +
		`[["wrb.fr","ujx1Bf","[42]"]]`
	payload, err := UnwrapResponse(raw, rpcSharedChat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload != "[42]" {
		t.Fatalf("payload wrong: %q", payload)
	}
}

func TestUnwrapResponse_WrongRPCID(t *testing.T) {
	raw := ")]}'\n" + `[["wrb.fr","other","[1]"]]`
	if _, err := UnwrapResponse(raw, rpcConversation); err == nil {
		t.Fatal("expected error when envelope carries a different rpc id")
	}
}
