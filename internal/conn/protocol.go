package conn

import "fmt"

// Protocol-line fragment constants per §4.6: "selected from the requested
// protocol version and whether the caller wants a Host header." The
// original picks one of four fixed C string literals; here the same four
// outcomes are produced by NewRequestLine from two orthogonal booleans
// (HTTP/1.0 vs 1.1, keep-alive wanted) plus the caller separately deciding
// whether to attach a Host header via Call.HostHeader — documented in
// DESIGN.md as the chosen resolution of the "four constants" wording.
const (
	userAgentProduct = "httperfgo"
)

// NewRequestLine renders the protocol-line fragment ("HTTP/1.0" or
// "HTTP/1.1") and, for HTTP/1.0 with keep-alive requested, the
// accompanying "Connection: keep-alive" extra header the caller should add
// via Call.AddExtraHeader.
func NewRequestLine(major, minor int, keepAlive bool) (line string, keepAliveHeader string) {
	line = fmt.Sprintf("HTTP/%d.%d", major, minor)
	if major == 1 && minor == 0 && keepAlive {
		return line, "Connection: keep-alive"
	}
	return line, ""
}

// UserAgent returns the fixed User-Agent header line, including version.
// No send path in this module calls it, so requests go out without a
// User-Agent header.
func UserAgent(version string) string {
	return fmt.Sprintf("User-Agent: %s/%s", userAgentProduct, version)
}
