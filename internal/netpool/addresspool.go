package netpool

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SourceAddr is one local address this process may bind outbound sockets
// from, paired with its own ephemeral-port bitmap (ports are a per-address
// resource, not a process-global one: two source IPs can each have port
// 8000 in use simultaneously).
type SourceAddr struct {
	IP    net.IP
	ports *PortBitmap
}

// AcquirePort returns an unused ephemeral port for this address.
func (s *SourceAddr) AcquirePort() (int, error) { return s.ports.Acquire() }

// ReleasePort returns port to this address's free set.
func (s *SourceAddr) ReleasePort(port int) { s.ports.Release(port) }

// AddressPool is the round-robin collection of SourceAddrs built up by
// AddAddresses, mirroring core.c's struct address_pool / myaddrs.
type AddressPool struct {
	addrs []*SourceAddr
	next  int
}

// NewAddressPool returns an empty pool. If no addresses are ever added,
// NextSource returns (nil, false) and callers bind from the wildcard
// address instead (the default, zero-configuration behavior).
func NewAddressPool() *AddressPool {
	return &AddressPool{}
}

// NextSource returns the next source address in strict round-robin order.
func (p *AddressPool) NextSource() (*SourceAddr, bool) {
	if len(p.addrs) == 0 {
		return nil, false
	}
	a := p.addrs[p.next]
	p.next = (p.next + 1) % len(p.addrs)
	return a, true
}

// Len reports how many source addresses are in the pool.
func (p *AddressPool) Len() int { return len(p.addrs) }

// AddAddresses expands spec into one or more source addresses and appends
// them to the round-robin pool. spec is one of:
//
//   - a single hostname or dotted-quad ("10.0.0.5")
//   - an inclusive IPv4 range ("10.0.0.5-10.0.0.20")
//   - a local interface name ("eth0"), expanded to every non-loopback
//     IPv4 address net.Interfaces() reports for it
//
// This is the Go port of --hog's address-spec parsing (originally
// restricted to one platform via an #ifdef __FreeBSD__ guard around
// ifaddrs.h in core.c; SPEC_FULL.md §4.4 EXPANSION documents widening it
// to "wherever net.Interfaces() succeeds").
func (p *AddressPool) AddAddresses(spec string) error {
	if lo, hi, ok := parseRange(spec); ok {
		for ip := lo; !ipGreater(ip, hi); ip = nextIP(ip) {
			p.addrs = append(p.addrs, &SourceAddr{IP: cloneIP(ip), ports: NewPortBitmap()})
		}
		return nil
	}

	if ip := net.ParseIP(spec); ip != nil {
		p.addrs = append(p.addrs, &SourceAddr{IP: ip, ports: NewPortBitmap()})
		return nil
	}

	if ifc, err := net.InterfaceByName(spec); err == nil {
		addrs, err := ifc.Addrs()
		if err != nil {
			return fmt.Errorf("netpool: addresses for interface %s: %w", spec, err)
		}
		added := 0
		for _, a := range addrs {
			ipn, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipn.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			p.addrs = append(p.addrs, &SourceAddr{IP: ip4, ports: NewPortBitmap()})
			added++
		}
		if added == 0 {
			return fmt.Errorf("netpool: interface %s has no usable IPv4 addresses", spec)
		}
		return nil
	}

	// Fall back to hostname resolution, single address.
	ips, err := net.LookupIP(spec)
	if err != nil {
		return fmt.Errorf("netpool: add-addresses %q: %w", spec, err)
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			p.addrs = append(p.addrs, &SourceAddr{IP: ip4, ports: NewPortBitmap()})
			return nil
		}
	}
	return fmt.Errorf("netpool: add-addresses %q: no IPv4 address", spec)
}

func parseRange(spec string) (lo, hi net.IP, ok bool) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, nil, false
	}
	loIP := net.ParseIP(strings.TrimSpace(parts[0]))
	if loIP == nil {
		return nil, nil, false
	}
	hiStr := strings.TrimSpace(parts[1])
	// "A-B" may give B as a bare last octet ("10.0.0.5-20") or a full
	// dotted quad ("10.0.0.5-10.0.0.20"); support both.
	var hiIP net.IP
	if strings.Contains(hiStr, ".") {
		hiIP = net.ParseIP(hiStr)
	} else if n, err := strconv.Atoi(hiStr); err == nil && n >= 0 && n <= 255 {
		hiIP = cloneIP(loIP.To4())
		hiIP[3] = byte(n)
	}
	if hiIP == nil {
		return nil, nil, false
	}
	lo4, hi4 := loIP.To4(), hiIP.To4()
	if lo4 == nil || hi4 == nil {
		return nil, nil, false
	}
	return lo4, hi4, true
}

func cloneIP(ip net.IP) net.IP {
	c := make(net.IP, len(ip))
	copy(c, ip)
	return c
}

func nextIP(ip net.IP) net.IP {
	n := cloneIP(ip)
	for i := len(n) - 1; i >= 0; i-- {
		n[i]++
		if n[i] != 0 {
			break
		}
	}
	return n
}

func ipGreater(a, b net.IP) bool {
	a4, b4 := a.To4(), b.To4()
	for i := 0; i < 4; i++ {
		if a4[i] != b4[i] {
			return a4[i] > b4[i]
		}
	}
	return false
}
