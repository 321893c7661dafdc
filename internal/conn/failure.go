package conn

import "fmt"

// FailureKind enumerates the error taxonomy from spec.md §7. Grouping
// (connect-time / I/O / protocol / timeout / resource / configuration) is
// informational only — stats.Basic prints a per-kind count, not per-group —
// but is kept alongside each constant since it is how the original's
// diagnostics are organized and how a reader will look a kind up.
type FailureKind int

const (
	// Connect-time
	FailureRefused FailureKind = iota
	FailureConnectTimeout
	FailureFDUnavailable
	FailureFtabFull
	FailureAddressUnavailable
	FailureOtherConnect

	// I/O
	FailureReset
	FailureReadError
	FailureWriteError

	// Protocol (diagnostic; unknown-transfer-encoding is not fatal, the
	// others close the connection)
	FailureBadStatusLine
	FailureLineTruncated
	FailureUnknownTransferEncoding

	// Timeout (these two and FailureConnectTimeout all map to
	// client-timeout at the stats boundary — see FailureKind.StatsBucket)
	FailureThinkTimeout
	FailureReplyTimeout

	// Resource
	FailurePortExhausted
	FailureOutOfMemory

	numFailureKinds
)

var failureNames = [numFailureKinds]string{
	"refused", "connect-timeout", "fd-unavailable", "ftab-full",
	"address-unavailable", "other-connect",
	"reset", "read-error", "write-error",
	"bad-status-line", "line-truncated", "unknown-transfer-encoding",
	"think-timeout", "reply-timeout",
	"port-exhausted", "out-of-memory",
}

func (k FailureKind) String() string {
	if k < 0 || int(k) >= len(failureNames) {
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
	return failureNames[k]
}

// StatsBucket collapses every timeout variant (connect, think, reply) into
// the single "client-timeout" counter the §7 stats boundary exposes; every
// other kind reports itself.
func (k FailureKind) StatsBucket() string {
	switch k {
	case FailureConnectTimeout, FailureThinkTimeout, FailureReplyTimeout:
		return "client-timeout"
	default:
		return k.String()
	}
}

// Fatal reports whether k closes the connection outright. Only
// unknown-transfer-encoding is diagnostic-only per §7.
func (k FailureKind) Fatal() bool {
	return k != FailureUnknownTransferEncoding
}
