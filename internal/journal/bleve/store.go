package bleve

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	"go.etcd.io/bbolt"

	"scenequeue/internal/journal/store"
)

const docTypeEntry = "entry"

// Store keeps entries and batch headers in bbolt and indexes entry metadata
// in bleve for object and name lookups.
type Store struct {
	mu       sync.Mutex
	path     string
	metaPath string
	idx      bleve.Index
	meta     *bbolt.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("dbPath is required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	var idx bleve.Index
	if _, err := os.Stat(filepath.Join(path, "index_meta.json")); err == nil {
		idx, err = bleve.Open(path)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, err
		}
	}

	metaPath := filepath.Join(path, "journal-meta.db")
	meta, err := bbolt.Open(metaPath, 0o600, nil)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}

	s := &Store{path: path, metaPath: metaPath, idx: idx, meta: meta}
	if err := s.ensureBuckets(); err != nil {
		_ = meta.Close()
		_ = idx.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	if s.idx != nil {
		_ = s.idx.Close()
	}
	if s.meta != nil {
		_ = s.meta.Close()
	}
	return nil
}

func (s *Store) Backend() string { return "bleve" }

func (s *Store) Append(entries []store.Entry) error {
	if s == nil || s.meta == nil || s.idx == nil {
		return fmt.Errorf("store is not open")
	}
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Seq == 0 {
			return fmt.Errorf("seq is required")
		}
		if strings.TrimSpace(e.Kind) == "" {
			return fmt.Errorf("kind is required")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.meta.Update(func(tx *bbolt.Tx) error {
		bb := mustBucket(tx, bucketBatches)
		eb := mustBucket(tx, bucketEntries)

		infos := map[uint64]*store.BatchInfo{}
		for _, e := range entries {
			key := entryKey(e.Seq, e.Ord)
			if eb.Get(key) != nil {
				return fmt.Errorf("entry %d/%d already exists", e.Seq, e.Ord)
			}
			info, ok := infos[e.Seq]
			if !ok {
				info = &store.BatchInfo{Seq: e.Seq, Timestamp: e.Timestamp}
				if raw := bb.Get(seqKey(e.Seq)); raw != nil {
					if err := decode(raw, info); err != nil {
						return err
					}
				}
				infos[e.Seq] = info
			}
			info.Entries++

			buf, err := encode(e)
			if err != nil {
				return err
			}
			if err := eb.Put(key, buf); err != nil {
				return err
			}
		}
		for seq, info := range infos {
			buf, err := encode(info)
			if err != nil {
				return err
			}
			if err := bb.Put(seqKey(seq), buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	batch := s.idx.NewBatch()
	for _, e := range entries {
		doc := map[string]any{
			"doc_type": docTypeEntry,
			"seq":      float64(e.Seq),
			"ord":      e.Ord,
			"kind":     e.Kind,
			"op":       e.Op,
			"key":      e.Key,
			"object":   e.Object,
			"name":     e.Name,
		}
		if err := batch.Index(entryDocID(e.Seq, e.Ord), doc); err != nil {
			return err
		}
	}
	return s.idx.Batch(batch)
}

func (s *Store) List(seq uint64) ([]store.Entry, error) {
	if s == nil || s.meta == nil {
		return nil, fmt.Errorf("store is not open")
	}
	var out []store.Entry
	err := s.meta.View(func(tx *bbolt.Tx) error {
		eb := tx.Bucket([]byte(bucketEntries))
		if eb == nil {
			return nil
		}
		prefix := seqKey(seq)
		c := eb.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e store.Entry
			if err := decode(v, &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func (s *Store) Batches(limit int) ([]store.BatchInfo, error) {
	if s == nil || s.meta == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 50
	}
	var out []store.BatchInfo
	err := s.meta.View(func(tx *bbolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBatches))
		if bb == nil {
			return nil
		}
		c := bb.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var info store.BatchInfo
			if err := decode(v, &info); err != nil {
				return err
			}
			out = append(out, info)
		}
		return nil
	})
	return out, err
}

func (s *Store) LastSeq() (uint64, error) {
	if s == nil || s.meta == nil {
		return 0, fmt.Errorf("store is not open")
	}
	var seq uint64
	err := s.meta.View(func(tx *bbolt.Tx) error {
		bb := tx.Bucket([]byte(bucketBatches))
		if bb == nil {
			return nil
		}
		if k, _ := bb.Cursor().Last(); len(k) == 8 {
			seq = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return seq, err
}

func (s *Store) Count() (int, error) {
	if s == nil || s.meta == nil {
		return 0, fmt.Errorf("store is not open")
	}
	var n int
	err := s.meta.View(func(tx *bbolt.Tx) error {
		eb := tx.Bucket([]byte(bucketEntries))
		if eb == nil {
			return nil
		}
		n = eb.Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) FindObject(object string, limit int) ([]store.Entry, error) {
	if s == nil || s.idx == nil {
		return nil, fmt.Errorf("store is not open")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return nil, fmt.Errorf("object is required")
	}
	q := bleve.NewConjunctionQuery(
		termQuery("doc_type", docTypeEntry),
		termQuery("object", object),
	)
	return s.search(q, limit)
}

func (s *Store) Search(text string, limit int) ([]store.Entry, error) {
	if s == nil || s.idx == nil {
		return nil, fmt.Errorf("store is not open")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	nameQ := bleve.NewMatchQuery(text)
	nameQ.SetField("name")
	q := bleve.NewConjunctionQuery(termQuery("doc_type", docTypeEntry), nameQ)
	return s.search(q, limit)
}

func (s *Store) search(q bquery.Query, limit int) ([]store.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.SortBy([]string{"seq", "ord"})
	res, err := s.idx.Search(req)
	if err != nil {
		return nil, err
	}

	out := make([]store.Entry, 0, len(res.Hits))
	err = s.meta.View(func(tx *bbolt.Tx) error {
		eb := tx.Bucket([]byte(bucketEntries))
		if eb == nil {
			return nil
		}
		for _, hit := range res.Hits {
			seq, ord, err := parseEntryDocID(hit.ID)
			if err != nil {
				return err
			}
			raw := eb.Get(entryKey(seq, ord))
			if raw == nil {
				continue
			}
			var e store.Entry
			if err := decode(raw, &e); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func buildMapping() mapping.IndexMapping {
	idxMapping := bleve.NewIndexMapping()
	idxMapping.DefaultAnalyzer = "standard"

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false

	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.Store = true
	keyword.Index = true
	keyword.DocValues = true

	text := bleve.NewTextFieldMapping()
	text.Analyzer = "standard"
	text.Store = true
	text.Index = true

	num := bleve.NewNumericFieldMapping()
	num.Store = true
	num.Index = true
	num.DocValues = true

	doc.AddFieldMappingsAt("doc_type", keyword)
	doc.AddFieldMappingsAt("kind", keyword)
	doc.AddFieldMappingsAt("op", keyword)
	doc.AddFieldMappingsAt("key", keyword)
	doc.AddFieldMappingsAt("object", keyword)
	doc.AddFieldMappingsAt("name", text)
	doc.AddFieldMappingsAt("seq", num)
	doc.AddFieldMappingsAt("ord", num)

	idxMapping.DefaultMapping = doc
	return idxMapping
}

func termQuery(field string, value string) bquery.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

func (s *Store) ensureBuckets() error {
	return s.meta.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketBatches)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketEntries)); err != nil {
			return err
		}
		return nil
	})
}
