package explain

import (
	"strings"
	"testing"
)

func TestCollector_TextFormat(t *testing.T) {
	e := NewCollector(Options{})
	e.KV("flush.seq", 3)
	e.KV("  ", "ignored")
	done := e.Timer("flush.resolve")
	done()

	out := e.String()
	if !strings.HasPrefix(out, "explain:") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "flush.seq: 3") {
		t.Fatalf("missing kv: %q", out)
	}
	if !strings.Contains(out, "elapsed_us_flush.resolve:") {
		t.Fatalf("missing timing: %q", out)
	}
	if strings.Contains(out, "ignored") {
		t.Fatalf("blank key should be skipped: %q", out)
	}
}

func TestCollector_JSONAndReset(t *testing.T) {
	e := NewCollector(Options{Format: "json"})
	e.KV("flush.records", 2)
	if out := e.String(); !strings.Contains(out, `"flush.records":2`) {
		t.Fatalf("unexpected json: %q", out)
	}

	e.Reset()
	if len(e.Snapshot()) != 0 {
		t.Fatalf("expected empty snapshot after reset, got %v", e.Snapshot())
	}

	var nilCollector *Collector
	nilCollector.KV("a", 1)
	nilCollector.Timer("b")()
	if nilCollector.String() != "" {
		t.Fatal("nil collector should render nothing")
	}
}
