// Package netpool implements hostname resolution caching and the
// ephemeral-port bitmap allocator described in spec.md §4.4, grounded on
// httperf's core.c hash_table/hash_lookup/hash_enter and its
// port_get/port_put bit-scan allocator.
package netpool

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// hostKey mirrors the original's (hostname, port) hash_entry key.
type hostKey struct {
	host string
	port int
}

// HostCache resolves (hostname, port) to a socket address, caching hits.
// The original used an open-addressed hash table sized 1024; a Go map
// gives the same amortized O(1) lookup without the fixed-capacity
// "can't have more than this many servers" limitation the original's
// comment calls out, while the contract (resolve once, cache forever for
// the process lifetime) is unchanged.
type HostCache struct {
	mu      sync.Mutex
	entries map[hostKey]*net.TCPAddr
	resolve func(ctx context.Context, host string) ([]net.IP, error)
}

// NewHostCache creates an empty cache using net.DefaultResolver for
// misses. Tests may override resolve to avoid real DNS traffic.
func NewHostCache() *HostCache {
	return &HostCache{
		entries: make(map[hostKey]*net.TCPAddr),
		resolve: func(ctx context.Context, host string) ([]net.IP, error) {
			return net.DefaultResolver.LookupIP(ctx, "ip4", host)
		},
	}
}

// Lookup returns the cached address for (host, port), resolving and
// caching on a miss. The miss path is the one operation in the reactor
// that can block (SPEC_FULL.md §5 EXPANSION); callers on the reactor
// thread should route misses through the worker pool (internal/workerpool)
// rather than calling Lookup directly from inside a reactor iteration.
func (c *HostCache) Lookup(ctx context.Context, host string, port int) (*net.TCPAddr, error) {
	key := hostKey{host: host, port: port}

	c.mu.Lock()
	if addr, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return addr, nil
	}
	c.mu.Unlock()

	if ip := net.ParseIP(host); ip != nil {
		addr := &net.TCPAddr{IP: ip, Port: port}
		c.store(key, addr)
		return addr, nil
	}

	ips, err := c.resolve(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("netpool: resolve %s: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("netpool: resolve %s: no addresses", host)
	}
	addr := &net.TCPAddr{IP: ips[0], Port: port}
	c.store(key, addr)
	return addr, nil
}

// Peek returns a cached address without triggering resolution, used by
// the reactor thread to take the synchronous fast path on a cache hit.
func (c *HostCache) Peek(host string, port int) (*net.TCPAddr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.entries[hostKey{host: host, port: port}]
	return addr, ok
}

// Store inserts a resolved address directly, without resolving. The
// engine's async resolution does not use it: its worker goroutine calls
// Lookup, which caches the result itself.
func (c *HostCache) Store(host string, port int, addr *net.TCPAddr) {
	c.store(hostKey{host: host, port: port}, addr)
}

func (c *HostCache) store(key hostKey, addr *net.TCPAddr) {
	c.mu.Lock()
	c.entries[key] = addr
	c.mu.Unlock()
}
