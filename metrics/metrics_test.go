package metrics

import (
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_total")
	c.Inc()
	c.Add(5)
	c.Add(-3) // ignored
	if got := c.Value(); got != 6 {
		t.Fatalf("Value = %d, want 6", got)
	}
	if c.Name() != "test_total" {
		t.Fatalf("Name = %s", c.Name())
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("concurrent_total")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if got := c.Value(); got != 8000 {
		t.Fatalf("Value = %d, want 8000", got)
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge")
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if got := g.Value(); got != 9 {
		t.Fatalf("Value = %d, want 9", got)
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_hist")
	if h.Min() != 0 || h.Max() != 0 || h.Mean() != 0 {
		t.Fatal("empty histogram must report zeros")
	}

	for _, v := range []float64{3, 1, 4, 1, 5} {
		h.Observe(v)
	}
	if h.Count() != 5 {
		t.Fatalf("Count = %d, want 5", h.Count())
	}
	if h.Sum() != 14 {
		t.Fatalf("Sum = %f, want 14", h.Sum())
	}
	if h.Min() != 1 || h.Max() != 5 {
		t.Fatalf("Min = %f Max = %f", h.Min(), h.Max())
	}
	if h.Mean() != 2.8 {
		t.Fatalf("Mean = %f, want 2.8", h.Mean())
	}
}

func TestTimer(t *testing.T) {
	h := NewHistogram("timer_hist")
	timer := NewTimer(h)
	d := timer.Stop()
	if d < 0 {
		t.Fatalf("negative duration %v", d)
	}
	if h.Count() != 1 {
		t.Fatalf("Count = %d, want 1", h.Count())
	}

	// A nil histogram still measures.
	if NewTimer(nil).Stop() < 0 {
		t.Fatal("nil-histogram timer failed")
	}
}
