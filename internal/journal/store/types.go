// Package store defines the journal storage contract shared by the backends.
package store

import "encoding/json"

// Entry is one delivered record. Seq and Ord together identify it: Seq is
// the journal batch sequence and Ord the position inside that batch.
type Entry struct {
	Seq       uint64          `json:"seq"`
	Ord       int             `json:"ord"`
	Timestamp int64           `json:"timestamp"`
	Kind      string          `json:"kind"`
	Op        string          `json:"op"`
	Key       string          `json:"key"`
	Object    string          `json:"object,omitempty"`
	Name      string          `json:"name,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type BatchInfo struct {
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Entries   int    `json:"entries"`
}

const (
	OpChanged = "changed"
	OpDeleted = "deleted"
)

type Store interface {
	Close() error
	Backend() string

	Append(entries []Entry) error
	List(seq uint64) ([]Entry, error)
	Batches(limit int) ([]BatchInfo, error)
	LastSeq() (uint64, error)
	Count() (int, error)

	FindObject(object string, limit int) ([]Entry, error)
	Search(text string, limit int) ([]Entry, error)
}

// WritePragmaApplier is implemented by stores that tune their connection
// once a writer takes them over.
type WritePragmaApplier interface {
	ApplyWritePragmas() error
}

// SettingsReporter is implemented by stores that can report their
// backend-specific storage settings.
type SettingsReporter interface {
	Settings() (map[string]string, error)
}
