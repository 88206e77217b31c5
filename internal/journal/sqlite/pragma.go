package sqlite

import (
	"fmt"
	"strconv"
	"time"
)

// WriteTuning is applied to the connection of a journal writer. A journal
// only ever appends small batches, so the WAL is checkpointed early and
// truncated afterwards instead of growing with the session.
type WriteTuning struct {
	AutocheckpointPages int
	JournalSizeLimit    int64
	BusyTimeout         time.Duration
}

func DefaultWriteTuning() WriteTuning {
	return WriteTuning{
		AutocheckpointPages: 256,
		JournalSizeLimit:    16 << 20,
		BusyTimeout:         5 * time.Second,
	}
}

func (t WriteTuning) statements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA wal_autocheckpoint=" + strconv.Itoa(t.AutocheckpointPages),
		"PRAGMA journal_size_limit=" + strconv.FormatInt(t.JournalSizeLimit, 10),
		"PRAGMA busy_timeout=" + strconv.FormatInt(t.BusyTimeout.Milliseconds(), 10),
	}
}

// ApplyWritePragmas applies DefaultWriteTuning.
func (s *Store) ApplyWritePragmas() error {
	return s.Tune(DefaultWriteTuning())
}

func (s *Store) Tune(t WriteTuning) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	if t.AutocheckpointPages < 0 || t.JournalSizeLimit < -1 || t.BusyTimeout < 0 {
		return fmt.Errorf("invalid write tuning %+v", t)
	}
	for _, stmt := range t.statements() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// settingNames are the pragmas reported by Settings.
var settingNames = []string{
	"journal_mode",
	"synchronous",
	"wal_autocheckpoint",
	"journal_size_limit",
	"busy_timeout",
	"page_count",
}

// Settings reads back the pragmas that govern how the journal is written.
func (s *Store) Settings() (map[string]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	out := make(map[string]string, len(settingNames)+1)
	for _, name := range settingNames {
		var v any
		if err := s.db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
			return nil, fmt.Errorf("pragma %s: %w", name, err)
		}
		switch vv := v.(type) {
		case nil:
			out[name] = ""
		case []byte:
			out[name] = string(vv)
		default:
			out[name] = fmt.Sprint(vv)
		}
	}
	out["fts"] = strconv.FormatBool(s.hasFTS)
	return out, nil
}
