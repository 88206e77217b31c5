package watch

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebounce_Coalesces(t *testing.T) {
	d := NewDebouncer[string](50 * time.Millisecond)
	var got atomic.Int32
	d.OnFire(func(keys []string) { got.Store(int32(len(keys))) })

	d.Push("scene.yaml")
	d.Push("scene.yaml")
	time.Sleep(200 * time.Millisecond)

	if got.Load() != 1 {
		t.Fatalf("expected 1, got %d", got.Load())
	}
}

func TestDebounce_FlushFiresSorted(t *testing.T) {
	d := NewDebouncer[int](time.Hour)
	var got []int
	d.OnFire(func(keys []int) { got = keys })

	d.Push(3)
	d.Push(1)
	d.Push(2)
	if d.Pending() != 3 {
		t.Fatalf("expected 3 pending, got %d", d.Pending())
	}
	d.Flush()

	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("unexpected keys: %v", got)
	}
	if d.Pending() != 0 {
		t.Fatalf("expected nothing pending, got %d", d.Pending())
	}
}

func TestDebounce_StopDrops(t *testing.T) {
	d := NewDebouncer[string](20 * time.Millisecond)
	var fired atomic.Bool
	d.OnFire(func([]string) { fired.Store(true) })

	d.Push("a")
	d.Stop()
	time.Sleep(80 * time.Millisecond)

	if fired.Load() {
		t.Fatal("expected no fire after Stop")
	}
}

func TestDebounce_DelayFunc(t *testing.T) {
	d := NewDebouncer[string](time.Second)
	d.SetDelayFunc(func(count int) time.Duration {
		if count > 1 {
			return 2 * time.Second
		}
		return 0
	})
	if d.DelayFor(1) != time.Second {
		t.Fatalf("expected fallback delay, got %v", d.DelayFor(1))
	}
	if d.DelayFor(2) != 2*time.Second {
		t.Fatalf("expected 2s, got %v", d.DelayFor(2))
	}
}
