package rate

import (
	"testing"
	"time"

	"github.com/searchktools/httperfgo/internal/clock"
	"github.com/searchktools/httperfgo/internal/event"
)

// TestDeterministicRateFiresAtFixedInterval exercises §4.8's deterministic
// distribution: every tick is exactly mean_iat apart.
func TestDeterministicRateFiresAtFixedInterval(t *testing.T) {
	clk := clock.New()
	now := time.Unix(0, 0)
	clk.SetNowFunc(func() time.Time { return now })
	clk.Tick()

	bus := event.New()
	var ticks int
	g := New(clk, bus, Info{Dist: Deterministic, RateParam: 10, MeanIAT: 100 * time.Millisecond}, 1, func() bool {
		ticks++
		return ticks >= 5
	})
	g.Start(event.ConnDestroyed)
	if ticks != 1 {
		t.Fatalf("expected the first tick to fire synchronously from Start, got %d", ticks)
	}

	for i := 0; i < 10 && ticks < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		clk.Tick()
	}
	if ticks != 5 {
		t.Fatalf("expected 5 ticks, got %d", ticks)
	}
	if !g.Done() {
		t.Fatalf("expected generator to report done once tick returns true")
	}
}

// TestLaggingTicksCatchUpWithoutDrift exercises the "ticks that accumulate
// behind add their lag to the next interval" behavior (§4.8): if the
// reactor is busy for several interarrival periods, the generator must
// fire once per missed period when it finally gets to run, not just once.
func TestLaggingTicksCatchUpWithoutDrift(t *testing.T) {
	clk := clock.New()
	now := time.Unix(0, 0)
	clk.SetNowFunc(func() time.Time { return now })
	clk.Tick()

	bus := event.New()
	var ticks int
	g := New(clk, bus, Info{Dist: Deterministic, RateParam: 10, MeanIAT: 10 * time.Millisecond}, 1, func() bool {
		ticks++
		return ticks >= 100
	})
	g.Start(event.ConnDestroyed)

	// Jump far past several interarrival periods in one go, simulating a
	// reactor that was blocked on a slow poller.Wait.
	now = now.Add(55 * time.Millisecond)
	clk.Tick()

	if ticks < 5 {
		t.Fatalf("expected the lagged tick to have caught up at least 5 ticks, got %d", ticks)
	}
}

// TestUniformDistributionStaysWithinBounds exercises the uniform
// distribution's [min_iat, max_iat] contract.
func TestUniformDistributionStaysWithinBounds(t *testing.T) {
	clk := clock.New()
	bus := event.New()
	g := New(clk, bus, Info{
		Dist: Uniform, RateParam: 1,
		MinIAT: 10 * time.Millisecond, MaxIAT: 20 * time.Millisecond,
	}, 1, func() bool { return false })

	for i := 0; i < 200; i++ {
		d := g.nextInterarrival()
		if d < 10*time.Millisecond || d > 20*time.Millisecond {
			t.Fatalf("interarrival %v outside [10ms,20ms]", d)
		}
	}
}

// TestExponentialDistributionIsNonNegative exercises the exponential
// distribution's formula; it must never yield a negative delay for any
// U in (0,1).
func TestExponentialDistributionIsNonNegative(t *testing.T) {
	clk := clock.New()
	bus := event.New()
	g := New(clk, bus, Info{Dist: Exponential, RateParam: 1, MeanIAT: 50 * time.Millisecond}, 1, func() bool { return false })

	for i := 0; i < 200; i++ {
		if d := g.nextInterarrival(); d < 0 {
			t.Fatalf("exponential interarrival went negative: %v", d)
		}
	}
}

// TestSequentialModeTicksOffCompletionEvent exercises the RateParam<=0
// "sequential" mode: ticks happen one-for-one with a signalled completion
// event rather than a timer.
func TestSequentialModeTicksOffCompletionEvent(t *testing.T) {
	clk := clock.New()
	bus := event.New()
	var ticks int
	g := New(clk, bus, Info{RateParam: 0}, 1, func() bool {
		ticks++
		return ticks >= 3
	})
	g.Start(event.ConnDestroyed)
	if ticks != 1 {
		t.Fatalf("expected one synchronous tick from Start, got %d", ticks)
	}

	bus.Signal(event.ConnDestroyed, nil, nil)
	bus.Signal(event.ConnDestroyed, nil, nil)
	if ticks != 3 {
		t.Fatalf("expected 3 ticks after two completion signals, got %d", ticks)
	}
	if !g.Done() {
		t.Fatalf("expected done once tick returns true")
	}

	// A further completion signal must not tick again once done.
	bus.Signal(event.ConnDestroyed, nil, nil)
	if ticks != 3 {
		t.Fatalf("expected no further ticks once done, got %d", ticks)
	}
}

// TestDifferentClientIDsProduceDifferentStreams exercises the --client
// cooperating-load-generator requirement (§4.8): two generators with the
// same Info but different client IDs must not draw identical random
// interarrival sequences.
func TestDifferentClientIDsProduceDifferentStreams(t *testing.T) {
	clk := clock.New()
	bus := event.New()
	info := Info{Dist: Exponential, RateParam: 1, MeanIAT: 50 * time.Millisecond}

	g1 := New(clk, bus, info, 1, func() bool { return false })
	g2 := New(clk, bus, info, 2, func() bool { return false })

	same := true
	for i := 0; i < 10; i++ {
		if g1.nextInterarrival() != g2.nextInterarrival() {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected distinct client IDs to diverge in their interarrival streams")
	}
}

// TestStopCancelsPendingTimer exercises rate_generator_stop: once Stop is
// called, a previously scheduled tick must never fire.
func TestStopCancelsPendingTimer(t *testing.T) {
	clk := clock.New()
	now := time.Unix(0, 0)
	clk.SetNowFunc(func() time.Time { return now })
	clk.Tick()

	bus := event.New()
	var ticks int
	g := New(clk, bus, Info{Dist: Deterministic, RateParam: 10, MeanIAT: 10 * time.Millisecond}, 1, func() bool {
		ticks++
		return false
	})
	g.Start(event.ConnDestroyed)
	g.Stop()

	now = now.Add(time.Second)
	clk.Tick()

	if ticks != 1 {
		t.Fatalf("expected exactly the synchronous Start tick (1), got %d after Stop", ticks)
	}
}
