package forensics

import "testing"

func feedLatency(d *LatencySpikeDetector, n int, latencyMS int64) bool {
	spiked := false
	for i := 0; i < n; i++ {
		if d.AddSample(0, latencyMS) {
			spiked = true
		}
	}
	return spiked
}

func TestLatencySpikeDetectorWarmsUpBeforeHundredSamples(t *testing.T) {
	d := NewLatencySpikeDetector(3000, 100, 2)
	for i := 0; i < 99; i++ {
		if d.AddSample(0, 9999) {
			t.Fatalf("expected no spike before 100 samples, at sample %d", i)
		}
	}
}

func TestLatencySpikeDetectorConfirmsAfterConsecutiveBreaches(t *testing.T) {
	d := NewLatencySpikeDetector(3000, 100, 2)
	feedLatency(d, 100, 5)

	spiked := feedLatency(d, 200, 200)
	if !spiked {
		t.Fatal("expected a confirmed spike within 200 samples of 200ms latency")
	}
}

func TestLatencySpikeDetectorResetsConsecutiveOnRecovery(t *testing.T) {
	// A small buffer makes the high-latency samples age out of the rolling
	// window quickly, so the test can observe a clean recovery without
	// working through the exact positional-percentile arithmetic.
	d := NewLatencySpikeDetector(150, 100, 2)
	feedLatency(d, 100, 5)

	// A single breach (consecutive_required=2) must never confirm alone.
	if spiked := feedLatency(d, 2, 200); spiked {
		t.Fatal("did not expect confirmation from a single isolated breach window")
	}

	// Flood the window with clean samples until the breaching samples have
	// aged out and the detector has observed at least one non-breaching p99.
	feedLatency(d, 1000, 5)
	if d.consecutiveSpikes != 0 {
		t.Fatalf("expected consecutive spike counter reset after recovery, got %d", d.consecutiveSpikes)
	}
}

func TestLatencySpikeDetectorGetP99RequiresTenSamples(t *testing.T) {
	d := NewLatencySpikeDetector(3000, 100, 2)
	for i := 0; i < 9; i++ {
		d.AddSample(0, 50)
	}
	if d.GetP99() != 0 {
		t.Fatalf("expected GetP99 to be 0 below 10 samples, got %d", d.GetP99())
	}
	d.AddSample(0, 50)
	if d.GetP99() != 50 {
		t.Fatalf("expected GetP99 50, got %d", d.GetP99())
	}
}

func TestPositionalP99UsesFloorIndexing(t *testing.T) {
	window := make([]int64, 3000)
	for i := range window {
		window[i] = int64(i) // ascending 0..2999
	}
	got := positionalP99(window)
	// floor(0.99*3000) = 2970, the value at that ascending index is 2970.
	if got != 2970 {
		t.Fatalf("expected positional p99 2970, got %d", got)
	}
}
