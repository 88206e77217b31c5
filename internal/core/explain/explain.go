// Package explain collects per-flush diagnostics: key/value facts and stage
// timings.
package explain

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

type Explain interface {
	KV(key string, value any)
	Timer(name string) func()
}

type Options struct {
	Format string
}

// Collector implements Explain. Timings with the same name accumulate.
type Collector struct {
	mu      sync.Mutex
	format  string
	kv      map[string]any
	timings map[string]time.Duration
}

func NewCollector(opts Options) *Collector {
	format := strings.TrimSpace(opts.Format)
	if format == "" {
		format = "text"
	}
	return &Collector{
		format:  format,
		kv:      map[string]any{},
		timings: map[string]time.Duration{},
	}
}

func (e *Collector) KV(key string, value any) {
	if e == nil {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	e.mu.Lock()
	e.kv[key] = value
	e.mu.Unlock()
}

func (e *Collector) Timer(name string) func() {
	if e == nil {
		return func() {}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return func() {}
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		e.mu.Lock()
		e.timings[name] += d
		e.mu.Unlock()
	}
}

// Reset drops everything collected so far.
func (e *Collector) Reset() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.kv = map[string]any{}
	e.timings = map[string]time.Duration{}
	e.mu.Unlock()
}

func (e *Collector) Snapshot() map[string]any {
	if e == nil {
		return map[string]any{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]any, len(e.kv)+1)
	maps.Copy(out, e.kv)
	if len(e.timings) > 0 {
		tm := make(map[string]int64, len(e.timings))
		for k, d := range e.timings {
			tm[k] = d.Microseconds()
		}
		out["timings_us"] = tm
	}
	return out
}

func (e *Collector) Emit(w io.Writer) error {
	if e == nil || w == nil {
		return nil
	}

	snap := e.Snapshot()

	switch e.format {
	case "json":
		b, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	default:
		_, _ = fmt.Fprintln(w, "explain:")

		for _, k := range slices.Sorted(maps.Keys(snap)) {
			if k == "timings_us" {
				continue
			}
			_, _ = fmt.Fprintf(w, "  %s: %v\n", k, snap[k])
		}

		tm, _ := snap["timings_us"].(map[string]int64)
		for _, name := range slices.Sorted(maps.Keys(tm)) {
			_, _ = fmt.Fprintf(w, "  elapsed_us_%s: %d\n", name, tm[name])
		}
		return nil
	}
}

func (e *Collector) String() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	_ = e.Emit(&b)
	return strings.TrimRight(b.String(), "\r\n")
}
