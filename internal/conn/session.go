package conn

import "github.com/searchktools/httperfgo/internal/registry"

// Session optionally groups Calls for multi-call workloads (§3). Everything
// collaborator-specific (cookies, a pool of parallel connections, pipeline
// depth) lives in the embedded RefCounted's lazy Extra slots rather than as
// named fields here, since the core itself never reads that data — only
// the owning workload generator does.
type Session struct {
	registry.RefCounted

	ID     uint64
	Failed bool
}
