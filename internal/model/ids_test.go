package model

import "testing"

func TestParseContentID_RoundTrip(t *testing.T) {
	for _, id := range []ContentID{1, 0xdeadbeef, 0x00ab0000} {
		got, err := ParseContentID(id.String())
		if err != nil {
			t.Fatalf("parse %s: %v", id, err)
		}
		if got != id {
			t.Fatalf("got %s, want %s", got, id)
		}
	}
	if got, err := ParseContentID(" 0x1f "); err != nil || got != 0x1f {
		t.Fatalf("got %s err=%v", got, err)
	}
	if _, err := ParseContentID("1ffffffff"); err == nil {
		t.Fatal("expected overflow error")
	}
	if _, err := ParseContentID("zz"); err == nil {
		t.Fatal("expected error")
	}
}
