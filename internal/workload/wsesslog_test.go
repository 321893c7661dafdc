package workload

import (
	"os"
	"testing"
	"time"
)

func TestParseWsesslogBasicSessions(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "wsesslog")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()

	content := "" +
		"/page1.html\n" +
		" /embed1.png\n" +
		" /embed2.png\n" +
		"/page2.html think=2.5\n" +
		"\n" +
		"/other.html method=POST contents=\"hi\\nthere\"\n"
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write: %v", err)
	}

	sessions, err := parseWsesslog(f.Name(), time.Second)
	if err != nil {
		t.Fatalf("parseWsesslog: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d: %+v", len(sessions), sessions)
	}

	first := sessions[0]
	if len(first) != 2 {
		t.Fatalf("expected 2 bursts in first session, got %d", len(first))
	}
	if len(first[0].Requests) != 3 {
		t.Fatalf("expected 3 requests in first burst (page + 2 embeds), got %d", len(first[0].Requests))
	}
	if first[0].Requests[0].URI != "/page1.html" || first[0].Requests[1].URI != "/embed1.png" {
		t.Fatalf("unexpected burst contents: %+v", first[0].Requests)
	}
	if first[0].ThinkTime != time.Second {
		t.Fatalf("expected default think time on first burst, got %v", first[0].ThinkTime)
	}
	if first[1].ThinkTime != 2500*time.Millisecond {
		t.Fatalf("expected think=2.5 to override default, got %v", first[1].ThinkTime)
	}

	second := sessions[1]
	if len(second) != 1 || len(second[0].Requests) != 1 {
		t.Fatalf("expected second session with a single request, got %+v", second)
	}
	req := second[0].Requests[0]
	if req.Method != "POST" {
		t.Fatalf("expected POST, got %q", req.Method)
	}
	if string(req.Body) != "hi\nthere" {
		t.Fatalf("expected escaped body %q, got %q", "hi\nthere", req.Body)
	}
}

func TestParseWsesslogContentsBackslashNewlineContinuation(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "wsesslog")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer f.Close()

	content := "/other.html method=POST contents=\"hi\\\nthere\"\n"
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write: %v", err)
	}

	sessions, err := parseWsesslog(f.Name(), time.Second)
	if err != nil {
		t.Fatalf("parseWsesslog: %v", err)
	}
	if len(sessions) != 1 || len(sessions[0]) != 1 || len(sessions[0][0].Requests) != 1 {
		t.Fatalf("expected a single session/burst/request, got %+v", sessions)
	}
	req := sessions[0][0].Requests[0]
	if string(req.Body) != "hi\nthere" {
		t.Fatalf("expected the continuation to join into %q, got %q", "hi\nthere", req.Body)
	}
}

func TestParseWsesslogRejectsMissingFile(t *testing.T) {
	if _, err := parseWsesslog("/nonexistent/path/to/recipe", time.Second); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}

func TestUnescapeWsesslogContentsStripsQuotesAndEscapes(t *testing.T) {
	got := unescapeWsesslogContents(`"a\tb\\c"`)
	want := "a\tb\\c"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
