package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"scenequeue/internal/journal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db     *sql.DB
	hasFTS bool
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("dbPath is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Backend() string { return "sqlite" }

func (s *Store) HasFTS() bool { return s != nil && s.hasFTS }

func (s *Store) Append(entries []store.Entry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	if len(entries) == 0 {
		return nil
	}

	var seqs []uint64
	batches := map[uint64]*store.BatchInfo{}
	for _, e := range entries {
		if e.Seq == 0 {
			return fmt.Errorf("seq is required")
		}
		if strings.TrimSpace(e.Kind) == "" {
			return fmt.Errorf("kind is required")
		}
		b, ok := batches[e.Seq]
		if !ok {
			b = &store.BatchInfo{Seq: e.Seq, Timestamp: e.Timestamp}
			batches[e.Seq] = b
			seqs = append(seqs, e.Seq)
		}
		b.Entries++
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, seq := range seqs {
		b := batches[seq]
		if _, err := tx.Exec(
			`INSERT INTO batches (seq, timestamp, entries)
			 VALUES (?, ?, ?)
			 ON CONFLICT(seq) DO UPDATE SET
			   entries = entries + excluded.entries`,
			int64(b.Seq),
			b.Timestamp,
			b.Entries,
		); err != nil {
			return err
		}
	}

	for _, e := range entries {
		if _, err := tx.Exec(
			`INSERT INTO entries (seq, ord, kind, op, key, object, name, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(e.Seq),
			e.Ord,
			e.Kind,
			e.Op,
			e.Key,
			e.Object,
			e.Name,
			string(e.Payload),
		); err != nil {
			return fmt.Errorf("insert entry %d/%d: %w", e.Seq, e.Ord, err)
		}
	}

	return tx.Commit()
}

const entryColumns = `e.seq, e.ord, b.timestamp, e.kind, e.op, e.key, e.object, e.name, e.payload`

func (s *Store) List(seq uint64) ([]store.Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	rows, err := s.db.Query(
		`SELECT `+entryColumns+`
		 FROM entries e JOIN batches b ON b.seq = e.seq
		 WHERE e.seq = ?
		 ORDER BY e.ord`,
		int64(seq),
	)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (s *Store) Batches(limit int) ([]store.BatchInfo, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT seq, timestamp, entries FROM batches ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.BatchInfo
	for rows.Next() {
		var (
			b   store.BatchInfo
			seq int64
		)
		if err := rows.Scan(&seq, &b.Timestamp, &b.Entries); err != nil {
			return nil, err
		}
		b.Seq = uint64(seq)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) LastSeq() (uint64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}
	var seq int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM batches`).Scan(&seq); err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

func (s *Store) Count() (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM entries`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) FindObject(object string, limit int) ([]store.Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return nil, fmt.Errorf("object is required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+entryColumns+`
		 FROM entries e JOIN batches b ON b.seq = e.seq
		 WHERE e.object = ?
		 ORDER BY e.seq, e.ord
		 LIMIT ?`,
		object,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// Search matches entry names. It uses FTS5 when available and falls back to
// a case-insensitive LIKE.
func (s *Store) Search(text string, limit int) ([]store.Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if s.hasFTS {
		rows, err = s.db.Query(
			`SELECT `+entryColumns+`
			 FROM entries_fts f
			 JOIN entries e ON e.id = f.rowid
			 JOIN batches b ON b.seq = e.seq
			 WHERE entries_fts MATCH ?
			 ORDER BY e.seq, e.ord
			 LIMIT ?`,
			ftsPhrase(text),
			limit,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT `+entryColumns+`
			 FROM entries e JOIN batches b ON b.seq = e.seq
			 WHERE e.name LIKE ? ESCAPE '\'
			 ORDER BY e.seq, e.ord
			 LIMIT ?`,
			"%"+escapeLike(text)+"%",
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]store.Entry, error) {
	defer rows.Close()
	var out []store.Entry
	for rows.Next() {
		var (
			e       store.Entry
			seq     int64
			payload string
		)
		if err := rows.Scan(&seq, &e.Ord, &e.Timestamp, &e.Kind, &e.Op, &e.Key, &e.Object, &e.Name, &payload); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		if payload != "" {
			e.Payload = []byte(payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func ftsPhrase(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

func escapeLike(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(text)
}

func (s *Store) init() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, _ = s.db.Exec("PRAGMA journal_mode = WAL")

	if err := execStatements(s.db, schemaSQL); err != nil {
		return err
	}

	s.hasFTS = true
	if err := s.tryCreateFTS(); err != nil {
		s.hasFTS = false
	}
	return nil
}

func (s *Store) tryCreateFTS() error {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts
		 USING fts5(
		   name,
		   kind UNINDEXED,
		   content='entries',
		   content_rowid='id'
		 )`,
		`CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
		   INSERT INTO entries_fts(rowid, name, kind)
		   VALUES (new.id, new.name, new.kind);
		 END`,
		`CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
		   INSERT INTO entries_fts(entries_fts, rowid, name, kind)
		   VALUES('delete', old.id, old.name, old.kind);
		 END`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func execStatements(db *sql.DB, sqlText string) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	sqlText = strings.ReplaceAll(sqlText, "\r\n", "\n")

	var cleaned strings.Builder
	for _, line := range strings.Split(sqlText, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteString("\n")
	}

	for _, raw := range strings.Split(cleaned.String(), ";") {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
