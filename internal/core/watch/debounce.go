package watch

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Debouncer collects keys and fires them as one sorted, de-duplicated batch
// once no new key has arrived for the current delay.
type Debouncer[K cmp.Ordered] struct {
	delay     time.Duration
	delayFunc func(count int) time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	queued map[K]struct{}
	onFire func(keys []K)
}

func NewDebouncer[K cmp.Ordered](delay time.Duration) *Debouncer[K] {
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &Debouncer[K]{
		delay:  delay,
		queued: map[K]struct{}{},
	}
}

// SetDelayFunc lets the delay grow with the number of queued keys.
func (d *Debouncer[K]) SetDelayFunc(fn func(count int) time.Duration) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.delayFunc = fn
	d.mu.Unlock()
}

func (d *Debouncer[K]) DelayFor(count int) time.Duration {
	if d == nil {
		return 0
	}
	if d.delayFunc == nil {
		return d.delay
	}
	delay := d.delayFunc(count)
	if delay <= 0 {
		return d.delay
	}
	return delay
}

func (d *Debouncer[K]) OnFire(fn func(keys []K)) {
	if d == nil {
		return
	}
	d.mu.Lock()
	d.onFire = fn
	d.mu.Unlock()
}

func (d *Debouncer[K]) Push(key K) {
	if d == nil {
		return
	}

	d.mu.Lock()
	d.queued[key] = struct{}{}
	delay := d.DelayFor(len(d.queued))
	if d.timer != nil {
		_ = d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.fire)
	d.mu.Unlock()
}

// Pending reports how many keys are waiting.
func (d *Debouncer[K]) Pending() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queued)
}

// Flush fires queued keys now instead of waiting for the timer.
func (d *Debouncer[K]) Flush() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.timer != nil {
		_ = d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.fire()
}

// Stop drops queued keys without firing.
func (d *Debouncer[K]) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.timer != nil {
		_ = d.timer.Stop()
		d.timer = nil
	}
	d.queued = map[K]struct{}{}
	d.mu.Unlock()
}

func (d *Debouncer[K]) fire() {
	d.mu.Lock()
	queued := d.queued
	d.queued = map[K]struct{}{}
	fn := d.onFire
	d.mu.Unlock()

	if fn == nil || len(queued) == 0 {
		return
	}

	keys := make([]K, 0, len(queued))
	for k := range queued {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	fn(keys)
}
