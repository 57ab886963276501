package snapshot

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuard_SecondAcquireLoses(t *testing.T) {
	var g Guard

	if got := g.TryAcquire(); got != Started {
		t.Fatalf("first TryAcquire = %v, want Started", got)
	}
	if got := g.TryAcquire(); got != AlreadyRunning {
		t.Fatalf("second TryAcquire = %v, want AlreadyRunning", got)
	}
	if !g.Running() {
		t.Fatal("Running() = false while held")
	}

	g.Release()

	if g.Running() {
		t.Fatal("Running() = true after release")
	}
	if got := g.TryAcquire(); got != Started {
		t.Fatalf("TryAcquire after release = %v, want Started", got)
	}
}

func TestGuard_SingleWinnerUnderContention(t *testing.T) {
	var g Guard
	var wins atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() == Started {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
}

func TestAcquireResult_String(t *testing.T) {
	if Started.String() == AlreadyRunning.String() {
		t.Fatal("result strings must differ")
	}
}
