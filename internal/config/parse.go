package config

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/searchktools/httperfgo/internal/rate"
)

// Parse builds the root command described by spec.md §6, parses args
// (normally os.Args[1:]) against it, and returns a fully validated
// Config. A parse error or an unknown flag returns a non-nil error whose
// message already includes cobra's usage text (spec.md §6: "Unknown
// options exit with status 1 and a usage message"); the caller need only
// print err and exit 1.
func Parse(args []string) (*Config, error) {
	f, sets := newFlagSets()

	var usage bytes.Buffer
	root := &cobra.Command{
		Use:           "httperfgo",
		Short:         "HTTP load generator",
		SilenceUsage:  false,
		SilenceErrors: true,
		RunE:          func(*cobra.Command, []string) error { return nil },
	}
	root.SetOut(&usage)
	root.SetErr(&usage)
	for _, fs := range sets {
		root.Flags().AddFlagSet(fs)
	}
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return nil, fmt.Errorf("%w\n%s", err, usage.String())
	}

	cfg, err := build(f, root.Flags())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func build(f *rawFlags, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		Server:         f.server,
		Port:           f.port,
		URI:            f.uri,
		ServerName:     f.serverName,
		Method:         f.method,
		NoHostHdr:      f.noHostHdr,
		Hog:            f.hog,
		CloseWithReset: f.closeWithReset,
		SendBuffer:     f.sendBuffer,
		RecvBuffer:     f.recvBuffer,
		SSL:            f.ssl,
		SSLCiphers:     f.sslCiphers,
		SSLNoReuse:     f.sslNoReuse,
		Sources:        f.source,
		NumConns:       f.numConns,
		NumCalls:       f.numCalls,
		BurstLength:    f.burstLength,
		Timeout:        time.Duration(f.timeout) * time.Second,
		ThinkTimeout:   time.Duration(f.thinkTimeout) * time.Second,
		RetryOnFailure: f.retryOnFailure,
		FailureStatus:  f.failureStatus,
		SessionCookies: f.sessionCookies,
		Verbose:        f.verbose,
		MetricsAddr:    f.metricsAddr,
	}

	major, minor, err := parseHTTPVersion(f.httpVersion)
	if err != nil {
		return nil, err
	}
	cfg.HTTPMajor, cfg.HTTPMinor = major, minor

	for _, h := range f.addHeaders {
		if err := validateAddHeader(h); err != nil {
			return nil, err
		}
	}
	cfg.AddHeaders = f.addHeaders

	if cfg.Rate, err = parseRate(f.rate, f.period); err != nil {
		return nil, err
	}

	if cfg.ClientID, cfg.ClientN, err = parseClient(f.client); err != nil {
		return nil, err
	}

	if cfg.PrintReply, err = parseSections(flags.Changed("print-reply"), f.printReply); err != nil {
		return nil, err
	}
	if cfg.PrintRequest, err = parseSections(flags.Changed("print-request"), f.printRequest); err != nil {
		return nil, err
	}

	if f.wsess != "" {
		if cfg.Wsess, err = parseWsess(f.wsess); err != nil {
			return nil, err
		}
	}
	if f.wsesspage != "" {
		if cfg.Wsesspage, err = parseWsesspage(f.wsesspage); err != nil {
			return nil, err
		}
	}
	if f.wsesslog != "" {
		if cfg.Wsesslog, err = parseWsesslog(f.wsesslog); err != nil {
			return nil, err
		}
	}
	if f.wlog != "" {
		if cfg.Wlog, err = parseWlog(f.wlog); err != nil {
			return nil, err
		}
	}
	if f.wset != "" {
		if cfg.Wset, err = parseWset(f.wset); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func parseHTTPVersion(s string) (major, minor int, err error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: --http-version %q: want MAJOR.MINOR", s)
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("config: --http-version %q: want MAJOR.MINOR", s)
	}
	return major, minor, nil
}

// parseRate combines --rate and --period the way httperf.c's option
// parser does: --period, when given, fully determines the distribution
// and its parameters (overriding the mean_iat --rate would otherwise
// derive); --rate alone selects a deterministic schedule at 1/rate
// seconds between ticks, and a non-positive rate means sequential mode
// (spec.md §4.8).
func parseRate(rateFlag float64, period string) (rate.Info, error) {
	if period == "" {
		if rateFlag <= 0 {
			return rate.Info{Dist: rate.Deterministic, RateParam: 0}, nil
		}
		mean := time.Duration(float64(time.Second) / rateFlag)
		return rate.Info{Dist: rate.Deterministic, RateParam: rateFlag, MeanIAT: mean}, nil
	}

	if len(period) < 2 {
		return rate.Info{}, fmt.Errorf("config: --period %q: want [d|u|e]T1[,T2]", period)
	}
	kind, rest := period[0], period[1:]

	parseSeconds := func(s string) (time.Duration, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("config: --period %q: illegal request period %q", period, s)
		}
		return time.Duration(v * float64(time.Second)), nil
	}

	switch kind {
	case 'd':
		mean, err := parseSeconds(rest)
		if err != nil {
			return rate.Info{}, err
		}
		return rateParamFromMean(rate.Deterministic, mean, 0, 0), nil
	case 'u':
		lo, hi, ok := strings.Cut(rest, ",")
		if !ok {
			return rate.Info{}, fmt.Errorf("config: --period %q: uniform period needs T1,T2", period)
		}
		min, err := parseSeconds(lo)
		if err != nil {
			return rate.Info{}, err
		}
		max, err := parseSeconds(hi)
		if err != nil {
			return rate.Info{}, err
		}
		mean := (min + max) / 2
		return rateParamFromMean(rate.Uniform, mean, min, max), nil
	case 'e':
		mean, err := parseSeconds(rest)
		if err != nil {
			return rate.Info{}, err
		}
		return rateParamFromMean(rate.Exponential, mean, 0, 0), nil
	default:
		return rate.Info{}, fmt.Errorf("config: --period %q: distribution must be d, u, or e", period)
	}
}

func rateParamFromMean(dist rate.Distribution, mean, min, max time.Duration) rate.Info {
	info := rate.Info{Dist: dist, MeanIAT: mean, MinIAT: min, MaxIAT: max}
	if mean > 0 {
		info.RateParam = float64(time.Second) / float64(mean)
	}
	return info
}

// parseClient decodes --client=ID/N (spec.md §6 identity group); an
// empty string means this is the only, un-numbered instance.
func parseClient(s string) (id, n int, err error) {
	if s == "" {
		return 0, 1, nil
	}
	idStr, nStr, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("config: --client %q: want ID/N", s)
	}
	id, err1 := strconv.Atoi(idStr)
	n, err2 := strconv.Atoi(nStr)
	if err1 != nil || err2 != nil || n <= 0 || id < 0 || id >= n {
		return 0, 0, fmt.Errorf("config: --client %q: want 0 <= ID < N", s)
	}
	return id, n, nil
}

func parseWsess(s string) (*WsessFlags, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("config: --wsess %q: want num_sessions,num_calls,think_time", s)
	}
	sessions, err1 := strconv.Atoi(parts[0])
	calls, err2 := strconv.Atoi(parts[1])
	think, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("config: --wsess %q: want num_sessions,num_calls,think_time", s)
	}
	return &WsessFlags{NumSessions: sessions, NumCalls: calls, ThinkTime: secondsToDuration(think)}, nil
}

func parseWsesspage(s string) (*WsesspageFlags, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("config: --wsesspage %q: want num_sessions,num_reqs,think_time", s)
	}
	sessions, err1 := strconv.Atoi(parts[0])
	reqs, err2 := strconv.Atoi(parts[1])
	think, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("config: --wsesspage %q: want num_sessions,num_reqs,think_time", s)
	}
	return &WsesspageFlags{NumSessions: sessions, NumReqs: reqs, ThinkTime: secondsToDuration(think)}, nil
}

func parseWsesslog(s string) (*WsesslogFlags, error) {
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("config: --wsesslog %q: want num_sessions,think_time,file", s)
	}
	sessions, err1 := strconv.Atoi(parts[0])
	think, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || parts[2] == "" {
		return nil, fmt.Errorf("config: --wsesslog %q: want num_sessions,think_time,file", s)
	}
	return &WsesslogFlags{NumSessions: sessions, ThinkTime: secondsToDuration(think), File: parts[2]}, nil
}

func parseWlog(s string) (*WlogFlags, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("config: --wlog %q: want y|n,file", s)
	}
	var loop bool
	switch parts[0] {
	case "y":
		loop = true
	case "n":
		loop = false
	default:
		return nil, fmt.Errorf("config: --wlog %q: loop flag must be y or n", s)
	}
	if parts[1] == "" {
		return nil, fmt.Errorf("config: --wlog %q: missing file", s)
	}
	return &WlogFlags{Loop: loop, File: parts[1]}, nil
}

func parseWset(s string) (*WsetFlags, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("config: --wset %q: want num_files,target_miss_rate", s)
	}
	numFiles, err1 := strconv.Atoi(parts[0])
	missRate, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("config: --wset %q: want num_files,target_miss_rate", s)
	}
	return &WsetFlags{NumFiles: numFiles, TargetMissRate: missRate}, nil
}

func secondsToDuration(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
