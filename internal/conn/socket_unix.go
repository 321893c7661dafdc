package conn

import (
	"net"

	"golang.org/x/sys/unix"
)

// newNonblockingSocket creates a non-blocking IPv4 TCP socket, grounded on
// the teacher's poller.SetNonblock helper but performed at creation time
// via SOCK_NONBLOCK rather than a later fcntl, avoiding the
// create-then-arm race the teacher's two-step version has.
func newNonblockingSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// bindSource binds fd to ip:port before connect, used for hog mode and
// explicit source-address configuration (§4.6).
func bindSource(fd int, ip net.IP, port int) error {
	var sa unix.SockaddrInet4
	copy(sa.Addr[:], ip.To4())
	sa.Port = port
	return unix.Bind(fd, &sa)
}

// applySocketOptions sets TCP_NODELAY unconditionally and SO_SNDBUF /
// SO_RCVBUF / SO_LINGER(0) per configuration (§4.6 "Socket options").
func applySocketOptions(fd int, sendBuf, recvBuf int, closeWithReset bool) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return err
	}
	if sendBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sendBuf); err != nil {
			return err
		}
	}
	if recvBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recvBuf); err != nil {
			return err
		}
	}
	if closeWithReset {
		linger := unix.Linger{Onoff: 1, Linger: 0}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &linger); err != nil {
			return err
		}
	}
	return nil
}

// startConnect issues a non-blocking connect. err == unix.EINPROGRESS is
// the expected outcome (inProgress=true); any other error is fatal to this
// attempt.
func startConnect(fd int, addr *net.TCPAddr) (inProgress bool, err error) {
	var sa unix.SockaddrInet4
	copy(sa.Addr[:], addr.IP.To4())
	sa.Port = addr.Port

	err = unix.Connect(fd, &sa)
	if err == nil {
		return false, nil
	}
	if err == unix.EINPROGRESS {
		return true, nil
	}
	return false, err
}

// checkConnectError reads SO_ERROR to learn whether a connect() that
// reported EINPROGRESS actually succeeded once the socket becomes writable
// (§4.6: "socket becomes writable and SO_ERROR reads zero").
func checkConnectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func closeSocket(fd int) error {
	return unix.Close(fd)
}

func readSocket(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

func writeSocket(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}
