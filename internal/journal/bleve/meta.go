package bleve

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.etcd.io/bbolt"
)

const (
	bucketBatches = "batches"
	bucketEntries = "entries"
)

// Keys are big-endian so bbolt cursor order matches (seq, ord) order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func entryKey(seq uint64, ord int) []byte {
	k := make([]byte, 12)
	binary.BigEndian.PutUint64(k, seq)
	binary.BigEndian.PutUint32(k[8:], uint32(ord))
	return k
}

func entryDocID(seq uint64, ord int) string {
	return fmt.Sprintf("entry|%d|%d", seq, ord)
}

func parseEntryDocID(id string) (uint64, int, error) {
	parts := strings.Split(id, "|")
	if len(parts) != 3 || parts[0] != docTypeEntry {
		return 0, 0, fmt.Errorf("invalid doc id %q", id)
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid doc id %q: %w", id, err)
	}
	ord, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid doc id %q: %w", id, err)
	}
	return seq, ord, nil
}

func mustBucket(tx *bbolt.Tx, name string) *bbolt.Bucket {
	b := tx.Bucket([]byte(name))
	if b == nil {
		b, _ = tx.CreateBucketIfNotExists([]byte(name))
	}
	return b
}

var errDecode = errors.New("decode failed")

func decode(data []byte, target any) error {
	if len(data) == 0 {
		return errDecode
	}
	return json.Unmarshal(data, target)
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
