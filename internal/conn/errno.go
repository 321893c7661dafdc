package conn

import "golang.org/x/sys/unix"

// errEAgain / errEIntr are compared against raw syscall results: EAGAIN
// re-arms the relevant interest and returns (not a failure); EINTR is
// retried in place (§4.6 "Failure semantics").
var (
	errEAgain error = unix.EAGAIN
	errEIntr  error = unix.EINTR
)

// classifyConnectError maps a connect()/bind()/socket() errno to the §7
// connect-time taxonomy.
func classifyConnectError(err error) FailureKind {
	switch err {
	case unix.ECONNREFUSED:
		return FailureRefused
	case unix.ETIMEDOUT:
		return FailureConnectTimeout
	case unix.EMFILE, unix.ENFILE:
		return FailureFDUnavailable
	case unix.EADDRNOTAVAIL:
		return FailureAddressUnavailable
	case unix.EADDRINUSE:
		return FailureFtabFull
	default:
		return FailureOtherConnect
	}
}

// classifyIOError maps a read()/write() errno encountered mid-stream to
// the §7 I/O taxonomy. write distinguishes the fallback kind when the
// errno isn't a reset (ECONNRESET/EPIPE, which always means "reset"
// regardless of direction).
func classifyIOError(err error, write bool) FailureKind {
	switch err {
	case unix.ECONNRESET, unix.EPIPE:
		return FailureReset
	default:
		if write {
			return FailureWriteError
		}
		return FailureReadError
	}
}
