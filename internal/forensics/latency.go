package forensics

import (
	"sort"
	"sync"
)

// LatencySpikeDetector tracks a rolling window of ingest-to-receive latency
// samples and flags a spike after enough consecutive p99 breaches.
//
// The percentile computation below uses the positional formula
// p99_idx = floor(0.99 * len(sorted)), not linear interpolation; do not
// "fix" the indexing to a more standard percentile method, since that
// would shift the threshold and invalidate existing tuning.
type LatencySpikeDetector struct {
	mu                  sync.Mutex
	bufferSize          int
	thresholdMS         int64
	consecutiveRequired int
	window              []int64
	consecutiveSpikes   int
}

// NewLatencySpikeDetector constructs a detector with the given window
// capacity, breach threshold in milliseconds, and confirmation count.
func NewLatencySpikeDetector(bufferSize, thresholdMS, consecutiveRequired int) *LatencySpikeDetector {
	return &LatencySpikeDetector{
		bufferSize:          bufferSize,
		thresholdMS:         int64(thresholdMS),
		consecutiveRequired: consecutiveRequired,
	}
}

// AddSample records one (ingestTSMillis, recvTSMillis) pair and reports
// whether this sample confirms a spike. The window holds fewer than 100
// samples returns false unconditionally, matching the reference
// implementation's warm-up period.
func (d *LatencySpikeDetector) AddSample(ingestTSMillis, recvTSMillis int64) bool {
	latency := recvTSMillis - ingestTSMillis
	if latency < 0 {
		latency = 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.window = append(d.window, latency)
	if len(d.window) > d.bufferSize {
		d.window = d.window[len(d.window)-d.bufferSize:]
	}

	if len(d.window) < 100 {
		return false
	}

	p99 := positionalP99(d.window)
	if p99 > d.thresholdMS {
		d.consecutiveSpikes++
		if d.consecutiveSpikes >= d.consecutiveRequired {
			d.consecutiveSpikes = 0
			return true
		}
		return false
	}
	d.consecutiveSpikes = 0
	return false
}

// GetP99 returns the current window's p99 using the same positional formula
// as AddSample, or 0 if the window holds fewer than 10 samples. Used only
// for human-readable incident metadata, never for the spike decision itself.
func (d *LatencySpikeDetector) GetP99() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.window) < 10 {
		return 0
	}
	return positionalP99(d.window)
}

// positionalP99 sorts a copy of window ascending and returns the element at
// floor(0.99 * len(window)) — a positional percentile, not a rank-based one.
// For the default buffer_size=3000 this is index 2970 of 3000.
func positionalP99(window []int64) int64 {
	sorted := make([]int64, len(window))
	copy(sorted, window)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(0.99 * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
