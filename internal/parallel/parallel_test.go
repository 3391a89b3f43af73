package parallel

import (
	"sync/atomic"
	"testing"
)

func TestFor(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var counter int64
	For(100, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	if counter != 100 {
		t.Errorf("Expected 100, got %d", counter)
	}
}

func TestRange_CoversEveryIndexOnce(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 3, MinChunkSize: 5}

	n := 101
	hits := make([]int32, n)
	var calls int32
	Range(n, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		for i := start; i < end; i++ {
			atomic.AddInt32(&hits[i], 1)
		}
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d visited %d times", i, h)
		}
	}
	if calls < 2 {
		t.Errorf("expected work to be split, got %d chunk(s)", calls)
	}
}

func TestRange_SmallInputRunsOnce(t *testing.T) {
	cfg := DefaultConfig()

	var calls int32
	Range(cfg.MinChunkSize-1, func(start, end int) {
		atomic.AddInt32(&calls, 1)
		if start != 0 || end != cfg.MinChunkSize-1 {
			t.Errorf("unexpected chunk [%d, %d)", start, end)
		}
	}, cfg)

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRange_Empty(t *testing.T) {
	Range(0, func(_, _ int) {
		t.Fatal("f must not be called for n == 0")
	}, PerItem())
}

func TestPerItem(t *testing.T) {
	var counter int64
	For(3, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, PerItem())

	if counter != 3 {
		t.Errorf("Expected 3, got %d", counter)
	}
}

func BenchmarkRange(b *testing.B) {
	cfg := DefaultConfig()
	data := make([]float32, 1<<20)

	for i := 0; i < b.N; i++ {
		Range(len(data), func(start, end int) {
			for j := start; j < end; j++ {
				data[j] += 1
			}
		}, cfg)
	}
}
