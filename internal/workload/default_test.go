package workload

import (
	"testing"
	"time"
)

// TestDefaultWorkloadCompletesConnsAndCalls drives the plain --num-conns/
// --num-calls workload (no --wsess*) end to end: ConnRate opens the
// configured connections, CallSeq issues NumCalls requests per connection,
// and Runtime.Done fires once every connection it opened has also been
// destroyed, mirroring conn_rate.c/call_seq.c's composition.
func TestDefaultWorkloadCompletesConnsAndCalls(t *testing.T) {
	h := newWorkloadHarness(t)
	ip, port := h.listenAddr()
	serveRequests(t, h.ln, 2)

	callSeq := &CallSeq{NumCalls: 2, BurstLen: 1, Method: "GET", HostHeader: "example.com"}
	connRate := &ConnRate{NumConns: 1, Host: ip, Port: port, HostHeader: "example.com"}

	if err := callSeq.Init(h.rt); err != nil {
		t.Fatalf("CallSeq.Init: %v", err)
	}
	if err := connRate.Init(h.rt); err != nil {
		t.Fatalf("ConnRate.Init: %v", err)
	}
	callSeq.Start()
	connRate.Start()
	defer callSeq.Stop()
	defer connRate.Stop()

	h.pump(2*time.Second, func() bool { return h.done })
	if !h.done {
		t.Fatalf("expected the default workload to finish once its one connection closes")
	}
}
