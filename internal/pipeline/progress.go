package pipeline

import (
	"sync/atomic"
	"time"
)

// Report is one progress observation.
type Report struct {
	Permille int64
	Consumed int64
	Total    int64
	Elapsed  time.Duration
	ETA      time.Duration
}

// Progress counts consumed input bytes across workers and emits a report
// each time the permille watermark advances. Each step is reported at most
// once; under contention reports may arrive out of order and intermediate
// steps may be skipped.
type Progress struct {
	total    int64
	start    time.Time
	consumed atomic.Int64
	reported atomic.Int64
	report   func(Report)
}

// NewProgress returns a reporter for an input of total bytes. A total <= 0
// or a nil report func disables reporting; bytes are still counted.
func NewProgress(total int64, report func(Report)) *Progress {
	return &Progress{total: total, start: time.Now(), report: report}
}

// Add records n consumed bytes.
func (p *Progress) Add(n int) {
	c := p.consumed.Add(int64(n))
	if p.total <= 0 || p.report == nil {
		return
	}
	pm := min(c*1000/p.total, 1000)
	for {
		last := p.reported.Load()
		if pm <= last {
			return
		}
		if p.reported.CompareAndSwap(last, pm) {
			break
		}
	}
	elapsed := time.Since(p.start)
	p.report(Report{
		Permille: pm,
		Consumed: c,
		Total:    p.total,
		Elapsed:  elapsed,
		ETA:      estimateRemaining(elapsed, c, p.total),
	})
}

// Consumed returns the bytes counted so far.
func (p *Progress) Consumed() int64 { return p.consumed.Load() }

// estimateRemaining extrapolates linearly from the fraction done.
func estimateRemaining(elapsed time.Duration, done, total int64) time.Duration {
	if done <= 0 || total <= 0 || done >= total {
		return 0
	}
	frac := float64(done) / float64(total)
	return time.Duration(float64(elapsed)/frac) - elapsed
}
