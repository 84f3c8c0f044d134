package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressReportsEachPermilleStepOnce(t *testing.T) {
	var got []int64
	p := NewProgress(1000, func(r Report) { got = append(got, r.Permille) })
	for i := 0; i < 10; i++ {
		p.Add(100)
	}
	p.Add(5)
	assert.Equal(t, []int64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}, got)
	assert.Equal(t, int64(1005), p.Consumed())
}

func TestProgressDisabledWithoutTotal(t *testing.T) {
	called := false
	p := NewProgress(0, func(Report) { called = true })
	p.Add(1 << 20)
	assert.False(t, called)
	assert.Equal(t, int64(1<<20), p.Consumed())
}

func TestProgressConcurrentAdds(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64]int{}
	p := NewProgress(8000, func(r Report) {
		mu.Lock()
		seen[r.Permille]++
		mu.Unlock()
	})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				p.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8000), p.Consumed())
	for pm, n := range seen {
		assert.Equal(t, 1, n, "permille %d reported more than once", pm)
	}
	assert.Equal(t, 1, seen[1000])
}

func TestEstimateRemaining(t *testing.T) {
	assert.Equal(t, 30*time.Second, estimateRemaining(10*time.Second, 25, 100))
	assert.Zero(t, estimateRemaining(10*time.Second, 0, 100))
	assert.Zero(t, estimateRemaining(10*time.Second, 100, 100))
}
