package config

import (
	"github.com/spf13/pflag"
)

// rawFlags holds the string/primitive values pflag parses directly;
// parse.go's Parse then decodes the composite ones (--period, --wsess,
// --rate, ...) into the structured Config fields.
type rawFlags struct {
	server     string
	port       int
	uri        string
	serverName string

	httpVersion string
	method      string
	addHeaders  []string
	noHostHdr   bool

	hog            bool
	closeWithReset bool
	sendBuffer     int
	recvBuffer     int
	ssl            bool
	sslCiphers     string
	sslNoReuse     bool
	source         string

	numConns    int
	numCalls    int
	burstLength int
	rate        float64
	period      string
	wsess       string
	wsesspage   string
	wsesslog    string
	wlog        string
	wset        string

	timeout      int // seconds, 0 means unset/disabled per spec.md §6
	thinkTimeout int

	retryOnFailure bool
	failureStatus  int
	sessionCookies bool

	verbose    int
	printReply string
	printRequest string

	client string

	metricsAddr string
}

// newFlagSets builds one *pflag.FlagSet per group named in spec.md §6
// (target/protocol/transport/workload/timing/behavior/output/identity),
// grounded on nabbar-golib/cobra's pattern of one flag-owning unit per
// concern; callers merge every set onto the root command's flags via
// AddFlagSet so --help still prints a single combined listing.
func newFlagSets() (*rawFlags, []*pflag.FlagSet) {
	f := &rawFlags{}

	target := pflag.NewFlagSet("target", pflag.ContinueOnError)
	target.StringVar(&f.server, "server", "localhost", "target server hostname or address")
	target.IntVar(&f.port, "port", 80, "target server port")
	target.StringVar(&f.uri, "uri", "/", "URI fetched by the default fixed-URI workload")
	target.StringVar(&f.serverName, "server-name", "", "Host header value, if different from --server")

	protocol := pflag.NewFlagSet("protocol", pflag.ContinueOnError)
	protocol.StringVar(&f.httpVersion, "http-version", "1.1", "HTTP version sent on the request line, MAJOR.MINOR")
	protocol.StringVar(&f.method, "method", "GET", "HTTP method for generated requests")
	protocol.StringArrayVar(&f.addHeaders, "add-header", nil, "extra request header line \"Key: Value\" (repeatable)")
	protocol.BoolVar(&f.noHostHdr, "no-host-hdr", false, "suppress the Host header entirely")

	transport := pflag.NewFlagSet("transport", pflag.ContinueOnError)
	transport.BoolVar(&f.hog, "hog", false, "bind a distinct ephemeral source port to every connection (ports come from the --source addresses; without --source the OS picks them)")
	transport.BoolVar(&f.closeWithReset, "close-with-reset", false, "close connections with RST instead of FIN")
	transport.IntVar(&f.sendBuffer, "send-buffer", 4096, "SO_SNDBUF size in bytes, 0 leaves the OS default")
	transport.IntVar(&f.recvBuffer, "recv-buffer", 16384, "SO_RCVBUF size in bytes, 0 leaves the OS default")
	transport.BoolVar(&f.ssl, "ssl", false, "use TLS for connections")
	transport.StringVar(&f.sslCiphers, "ssl-ciphers", "", "colon-separated TLS cipher suite list")
	transport.BoolVar(&f.sslNoReuse, "ssl-no-reuse", false, "disable TLS session resumption")
	transport.StringVar(&f.source, "source", "", "source address or range to round-robin connections across")

	workload := pflag.NewFlagSet("workload", pflag.ContinueOnError)
	workload.IntVar(&f.numConns, "num-conns", 1, "total connections to create")
	workload.IntVar(&f.numCalls, "num-calls", 1, "calls per connection")
	workload.IntVar(&f.burstLength, "burst-length", 1, "calls pipelined together per burst")
	workload.Float64Var(&f.rate, "rate", 0, "connections/sessions created per second; 0 runs sequentially")
	workload.StringVar(&f.period, "period", "", "inter-arrival distribution: d|u|e<T>[,<T>]")
	workload.StringVar(&f.wsess, "wsess", "", "session workload: num_sessions,num_calls,think_time")
	workload.StringVar(&f.wsesspage, "wsesspage", "", "page-scrape session workload: num_sessions,num_reqs,think_time")
	workload.StringVar(&f.wsesslog, "wsesslog", "", "recipe-driven session workload: num_sessions,think_time,file")
	workload.StringVar(&f.wlog, "wlog", "", "URI-list workload: y|n,file (y loops at EOF)")
	workload.StringVar(&f.wset, "wset", "", "working-set URI workload: num_files,target_miss_rate")

	timing := pflag.NewFlagSet("timing", pflag.ContinueOnError)
	timing.IntVar(&f.timeout, "timeout", 0, "seconds to wait for a connection or reply before failing it")
	timing.IntVar(&f.thinkTimeout, "think-timeout", 0, "extra seconds added to --timeout when waiting for a reply")

	behavior := pflag.NewFlagSet("behavior", pflag.ContinueOnError)
	behavior.BoolVar(&f.retryOnFailure, "retry-on-failure", false, "reconnect and resume a session whose connection fails after at least one reply, and reissue a call whose reply matches --failure-status")
	behavior.IntVar(&f.failureStatus, "failure-status", 0, "reply status code that marks its session failed, 0 disables")
	behavior.BoolVar(&f.sessionCookies, "session-cookies", false, "carry Set-Cookie values forward within a session")

	output := pflag.NewFlagSet("output", pflag.ContinueOnError)
	output.IntVarP(&f.verbose, "verbose", "v", 0, "verbosity level, repeatable (-v, -vv); 2 enables syscall timing")
	output.StringVar(&f.printReply, "print-reply", "", "dump replies: bare flag, header, or body")
	output.Lookup("print-reply").NoOptDefVal = "all"
	output.StringVar(&f.printRequest, "print-request", "", "dump requests: bare flag, header, or body")
	output.Lookup("print-request").NoOptDefVal = "all"
	output.StringVar(&f.metricsAddr, "metrics-addr", "", "address to serve Prometheus /metrics on, empty disables it")

	identity := pflag.NewFlagSet("identity", pflag.ContinueOnError)
	identity.StringVar(&f.client, "client", "", "cooperating-client identity ID/N, seeds this instance's PRNG distinctly")

	return f, []*pflag.FlagSet{target, protocol, transport, workload, timing, behavior, output, identity}
}
