package config

import (
	"testing"
	"time"

	"github.com/searchktools/httperfgo/internal/rate"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Server != "localhost" || cfg.Port != 80 || cfg.URI != "/" {
		t.Fatalf("unexpected target defaults: %+v", cfg)
	}
	if cfg.HTTPMajor != 1 || cfg.HTTPMinor != 1 {
		t.Fatalf("expected HTTP/1.1 default, got %d.%d", cfg.HTTPMajor, cfg.HTTPMinor)
	}
	if cfg.NumConns != 1 || cfg.NumCalls != 1 || cfg.BurstLength != 1 {
		t.Fatalf("unexpected workload defaults: %+v", cfg)
	}
	if cfg.ClientN != 1 {
		t.Fatalf("expected an unnumbered --client to report N=1, got %d", cfg.ClientN)
	}
}

func TestParseUnknownFlagFails(t *testing.T) {
	_, err := Parse([]string{"--no-such-flag"})
	if err == nil {
		t.Fatalf("expected an error for an unknown flag")
	}
}

func TestParseSSLAndAddHeaderAndWsess(t *testing.T) {
	cfg, err := Parse([]string{
		"--server", "example.com",
		"--add-header", "X-Test: 1",
		"--wsess", "2,3,1.5",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.AddHeaders) != 1 || cfg.AddHeaders[0] != "X-Test: 1" {
		t.Fatalf("expected --add-header to round-trip, got %+v", cfg.AddHeaders)
	}
	if cfg.Wsess == nil || cfg.Wsess.NumSessions != 2 || cfg.Wsess.NumCalls != 3 {
		t.Fatalf("expected --wsess to parse num_sessions/num_calls, got %+v", cfg.Wsess)
	}
	if cfg.Wsess.ThinkTime != 1500*time.Millisecond {
		t.Fatalf("expected a 1.5s think time, got %v", cfg.Wsess.ThinkTime)
	}
}

func TestParseRejectsMalformedAddHeader(t *testing.T) {
	_, err := Parse([]string{"--add-header", "not-a-header-line"})
	if err == nil {
		t.Fatalf("expected a malformed --add-header line to be rejected")
	}
}

func TestParsePrintReplyBareFlagDefaultsToAll(t *testing.T) {
	cfg, err := Parse([]string{"--print-reply"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.PrintReply.Enabled || !cfg.PrintReply.Header || !cfg.PrintReply.Body {
		t.Fatalf("expected a bare --print-reply to enable both header and body, got %+v", cfg.PrintReply)
	}
}

func TestParseRateRatePositiveIsDeterministic(t *testing.T) {
	info, err := parseRate(10, "")
	if err != nil {
		t.Fatalf("parseRate: %v", err)
	}
	if info.Dist != rate.Deterministic {
		t.Fatalf("expected Deterministic, got %v", info.Dist)
	}
	if info.MeanIAT != 100*time.Millisecond {
		t.Fatalf("expected a 100ms mean inter-arrival time for --rate 10, got %v", info.MeanIAT)
	}
}

func TestParseRateNonPositiveIsSequential(t *testing.T) {
	info, err := parseRate(0, "")
	if err != nil {
		t.Fatalf("parseRate: %v", err)
	}
	if info.RateParam != 0 {
		t.Fatalf("expected a zero RateParam (sequential mode), got %+v", info)
	}
}

func TestParseRatePeriodOverridesRate(t *testing.T) {
	info, err := parseRate(999, "u0.1,0.3")
	if err != nil {
		t.Fatalf("parseRate: %v", err)
	}
	if info.Dist != rate.Uniform {
		t.Fatalf("expected --period to select Uniform regardless of --rate, got %v", info.Dist)
	}
	if info.MinIAT != 100*time.Millisecond || info.MaxIAT != 300*time.Millisecond {
		t.Fatalf("unexpected uniform bounds: %+v", info)
	}
}

func TestParseRatePeriodRejectsBadDistribution(t *testing.T) {
	if _, err := parseRate(0, "x1.0"); err == nil {
		t.Fatalf("expected an unknown --period distribution letter to be rejected")
	}
}

func TestParseClient(t *testing.T) {
	id, n, err := parseClient("2/4")
	if err != nil {
		t.Fatalf("parseClient: %v", err)
	}
	if id != 2 || n != 4 {
		t.Fatalf("expected id=2 n=4, got id=%d n=%d", id, n)
	}

	if _, _, err := parseClient("4/4"); err == nil {
		t.Fatalf("expected id >= n to be rejected")
	}
	if _, _, err := parseClient("bogus"); err == nil {
		t.Fatalf("expected a malformed --client value to be rejected")
	}
}

func TestValidateAddHeader(t *testing.T) {
	if err := validateAddHeader("X-Test: value"); err != nil {
		t.Fatalf("expected a well-formed header line to validate, got %v", err)
	}
	if err := validateAddHeader("no-colon-here"); err == nil {
		t.Fatalf("expected a header line without a colon to be rejected")
	}
	if err := validateAddHeader("Bad Name: value"); err == nil {
		t.Fatalf("expected an invalid header field name to be rejected")
	}
}
