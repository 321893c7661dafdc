package netpool

import "testing"

func TestAddAddressesDottedQuad(t *testing.T) {
	p := NewAddressPool()
	if err := p.AddAddresses("10.0.0.5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 address, got %d", p.Len())
	}
}

func TestAddAddressesRangeExpandsInclusive(t *testing.T) {
	p := NewAddressPool()
	if err := p.AddAddresses("10.0.0.5-10.0.0.8"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Len() != 4 {
		t.Fatalf("expected 4 addresses, got %d", p.Len())
	}
	want := []string{"10.0.0.5", "10.0.0.6", "10.0.0.7", "10.0.0.8"}
	for i, w := range want {
		a, _ := p.NextSource()
		if a.IP.String() != w {
			t.Fatalf("address %d: expected %s, got %s", i, w, a.IP)
		}
	}
}

func TestAddAddressesRangeBareLastOctet(t *testing.T) {
	p := NewAddressPool()
	if err := p.AddAddresses("10.0.0.250-252"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Len() != 3 {
		t.Fatalf("expected 3 addresses, got %d", p.Len())
	}
}

func TestNextSourceRoundRobinsInOrder(t *testing.T) {
	p := NewAddressPool()
	_ = p.AddAddresses("10.0.0.1")
	_ = p.AddAddresses("10.0.0.2")
	_ = p.AddAddresses("10.0.0.3")

	var seq []string
	for i := 0; i < 6; i++ {
		a, ok := p.NextSource()
		if !ok {
			t.Fatalf("expected a source address")
		}
		seq = append(seq, a.IP.String())
	}
	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.1", "10.0.0.2", "10.0.0.3"}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], seq[i])
		}
	}
}

func TestNextSourceEmptyPoolReportsFalse(t *testing.T) {
	p := NewAddressPool()
	if _, ok := p.NextSource(); ok {
		t.Fatalf("expected no source address from an empty pool")
	}
}

func TestSourceAddrHasIndependentPortBitmap(t *testing.T) {
	p := NewAddressPool()
	_ = p.AddAddresses("10.0.0.1")
	_ = p.AddAddresses("10.0.0.2")

	a1, _ := p.NextSource()
	a2, _ := p.NextSource()

	port1, err := a1.AcquirePort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	port2, err := a2.AcquirePort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port1 != port2 {
		t.Fatalf("expected independent bitmaps to both hand out the first port, got %d and %d", port1, port2)
	}
}

func TestAddAddressesRejectsGarbage(t *testing.T) {
	p := NewAddressPool()
	if err := p.AddAddresses("not-a-real-host-or-iface.invalid"); err == nil {
		t.Fatalf("expected an error for an unresolvable spec")
	}
}
