package sqlite

import (
	"strings"
	"testing"
	"time"
)

func TestApplyWritePragmas_Settings(t *testing.T) {
	s := openTemp(t)

	if err := s.ApplyWritePragmas(); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := s.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if !strings.EqualFold(got["journal_mode"], "wal") {
		t.Fatalf("journal_mode=%q", got["journal_mode"])
	}
	if got["wal_autocheckpoint"] != "256" {
		t.Fatalf("wal_autocheckpoint=%q", got["wal_autocheckpoint"])
	}
	if got["journal_size_limit"] != "16777216" {
		t.Fatalf("journal_size_limit=%q", got["journal_size_limit"])
	}
	if got["fts"] == "" || got["page_count"] == "" {
		t.Fatalf("settings incomplete: %v", got)
	}
}

func TestTune_Custom(t *testing.T) {
	s := openTemp(t)

	if err := s.Tune(WriteTuning{AutocheckpointPages: 64, JournalSizeLimit: -1, BusyTimeout: time.Second}); err != nil {
		t.Fatalf("tune: %v", err)
	}
	got, err := s.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if got["wal_autocheckpoint"] != "64" || got["journal_size_limit"] != "-1" {
		t.Fatalf("settings=%v", got)
	}
}

func TestTune_RejectsInvalid(t *testing.T) {
	s := openTemp(t)
	if err := s.Tune(WriteTuning{AutocheckpointPages: -1}); err == nil {
		t.Fatalf("expected error")
	}
	if err := (*Store)(nil).Tune(DefaultWriteTuning()); err == nil {
		t.Fatalf("expected error for closed store")
	}
}
