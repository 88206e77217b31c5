package scqcli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"scenequeue/internal/journal"
	"scenequeue/internal/journal/store"
)

// RenderJSONL writes one JSON object per entry.
func RenderJSONL(entries []store.Entry) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	for _, e := range entries {
		_ = enc.Encode(e)
	}
	return b.String()
}

// RenderDefault writes one line per entry: seq, kind, op, key and name.
func RenderDefault(entries []store.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		_, _ = fmt.Fprintf(&b, "%d:%d %s %s %s", e.Seq, e.Ord, e.Kind, e.Op, e.Key)
		if e.Name != "" {
			_, _ = fmt.Fprintf(&b, " %q", e.Name)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func RenderBatches(infos []store.BatchInfo, jsonl bool) string {
	var b strings.Builder
	if jsonl {
		enc := json.NewEncoder(&b)
		for _, info := range infos {
			_ = enc.Encode(info)
		}
		return b.String()
	}
	for _, info := range infos {
		_, _ = fmt.Fprintf(&b, "%d\t%d\t%d entries\n", info.Seq, info.Timestamp, info.Entries)
	}
	return b.String()
}

// RenderInfo prints the journal summary followed by its settings, one
// "name=value" per line in name order.
func RenderInfo(info journal.Info, jsonl bool) string {
	if jsonl {
		b, _ := json.Marshal(info)
		return string(b) + "\n"
	}
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "backend\t%s\nlast_seq\t%d\nentries\t%d\n", info.Backend, info.LastSeq, info.Entries)
	names := make([]string, 0, len(info.Settings))
	for k := range info.Settings {
		names = append(names, k)
	}
	slices.Sort(names)
	for _, k := range names {
		_, _ = fmt.Fprintf(&b, "%s=%s\n", k, info.Settings[k])
	}
	return b.String()
}

func renderEntries(entries []store.Entry, jsonl bool) string {
	if jsonl {
		return RenderJSONL(entries)
	}
	return RenderDefault(entries)
}
