// Package store keeps lexicon snapshots in SQLite files.
// It uses modernc.org/sqlite, so no CGO is needed.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/normanking/seifmios/internal/lexicon"
	"github.com/normanking/seifmios/internal/logging"
)

//go:embed migrations/001_snapshot.sql
var snapshotSchema string

// formatVersion is written to meta and checked on load.
const formatVersion = 1

// Store saves and loads snapshots. Each call opens the file it is given, so
// one Store serves any number of paths.
type Store struct {
	log *logging.Logger
}

// New returns a Store that logs through log.
func New(log *logging.Logger) *Store {
	if log == nil {
		log = logging.Global()
	}
	return &Store{log: log.WithComponent("store")}
}

// open creates the file's directory if needed and applies the schema.
func open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	for i, stmt := range splitSQL(snapshotSchema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return db, nil
}

// splitSQL drops comment lines and splits on semicolons. The schema holds no
// string literals, so nothing smarter is needed.
func splitSQL(schema string) []string {
	var kept []string
	for _, line := range strings.Split(schema, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	var stmts []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

var tables = []string{
	"meta", "words", "sources", "authors", "conversations", "messages",
	"instances", "categories", "category_members", "category_links", "active_conversations",
}

// Save replaces whatever snapshot path holds with snap, in one transaction.
func (s *Store) Save(ctx context.Context, path string, snap *lexicon.Snapshot) error {
	start := time.Now()
	db, err := open(ctx, path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	meta := [][2]string{
		{"format_version", strconv.Itoa(formatVersion)},
		{"saved_at", time.Now().UTC().Format(time.RFC3339)},
	}
	if err := insertAll(ctx, tx, "INSERT INTO meta (key, value) VALUES (?, ?)", meta,
		func(kv [2]string) []any { return []any{kv[0], kv[1]} }); err != nil {
		return err
	}
	if err := insertAll(ctx, tx, "INSERT INTO words (id, name) VALUES (?, ?)", snap.Words,
		func(w lexicon.WordRecord) []any { return []any{w.ID, w.Name} }); err != nil {
		return err
	}
	if err := insertAll(ctx, tx, "INSERT INTO sources (id, name, messages) VALUES (?, ?, ?)", snap.Sources,
		func(r lexicon.SourceRecord) []any { return []any{r.ID, r.Name, r.Messages} }); err != nil {
		return err
	}
	if err := insertAll(ctx, tx, "INSERT INTO authors (id, source, name) VALUES (?, ?, ?)", snap.Authors,
		func(a lexicon.AuthorRecord) []any { return []any{a.ID, a.Source, a.Name} }); err != nil {
		return err
	}
	if err := insertAll(ctx, tx, "INSERT INTO conversations (id, source) VALUES (?, ?)", snap.Conversations,
		func(c lexicon.ConversationRecord) []any { return []any{c.ID, c.Source} }); err != nil {
		return err
	}
	if err := insertAll(ctx, tx,
		"INSERT INTO messages (id, author, conversation, idx, learned_at) VALUES (?, ?, ?, ?, ?)", snap.Messages,
		func(m lexicon.MessageRecord) []any {
			return []any{m.ID, m.Author, m.Conversation, m.Index, m.LearnedAt}
		}); err != nil {
		return err
	}
	if err := insertAll(ctx, tx, "INSERT INTO instances (id, word, message, idx) VALUES (?, ?, ?, ?)", snap.Instances,
		func(i lexicon.InstanceRecord) []any { return []any{i.ID, i.Word, i.Message, i.Index} }); err != nil {
		return err
	}
	if err := insertAll(ctx, tx, "INSERT INTO categories (id) VALUES (?)", snap.Categories,
		func(c lexicon.CategoryRecord) []any { return []any{c.ID} }); err != nil {
		return err
	}

	var members, links [][]any
	for _, c := range snap.Categories {
		for pos, ins := range c.Instances {
			members = append(members, []any{c.ID, pos, ins})
		}
		for pos, other := range c.Pre {
			links = append(links, []any{c.ID, "pre", pos, other})
		}
		for pos, other := range c.Post {
			links = append(links, []any{c.ID, "post", pos, other})
		}
	}
	identity := func(row []any) []any { return row }
	if err := insertAll(ctx, tx,
		"INSERT INTO category_members (category, position, instance) VALUES (?, ?, ?)", members, identity); err != nil {
		return err
	}
	if err := insertAll(ctx, tx,
		"INSERT INTO category_links (category, kind, position, other) VALUES (?, ?, ?, ?)", links, identity); err != nil {
		return err
	}
	if err := insertAll(ctx, tx, "INSERT INTO active_conversations (source, conversation) VALUES (?, ?)", snap.Active,
		func(a lexicon.ActiveRecord) []any { return []any{a.Source, a.Conversation} }); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.log.Info("Saved snapshot to %s (%d messages, %d categories) in %s",
		path, len(snap.Messages), len(snap.Categories), time.Since(start).Round(time.Millisecond))
	return nil
}

func insertAll[T any](ctx context.Context, tx *sql.Tx, query string, rows []T, args func(T) []any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %q: %w", query, err)
	}
	defer stmt.Close()
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, args(row)...); err != nil {
			return fmt.Errorf("exec %q: %w", query, err)
		}
	}
	return nil
}

// Load reads the snapshot stored at path. A missing file yields an error
// matching os.ErrNotExist. The snapshot is not validated here; pass it to
// lexicon.Restore.
func (s *Store) Load(ctx context.Context, path string) (*lexicon.Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	db, err := open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var version string
	err = db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'format_version'").Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s has no format version: %w", path, err)
	}
	if version != strconv.Itoa(formatVersion) {
		return nil, fmt.Errorf("snapshot %s has format version %s, want %d", path, version, formatVersion)
	}

	snap := &lexicon.Snapshot{}
	if snap.Words, err = queryAll(ctx, db, "SELECT id, name FROM words ORDER BY id",
		func(r *sql.Rows) (w lexicon.WordRecord, err error) {
			err = r.Scan(&w.ID, &w.Name)
			return
		}); err != nil {
		return nil, err
	}
	if snap.Sources, err = queryAll(ctx, db, "SELECT id, name, messages FROM sources ORDER BY id",
		func(r *sql.Rows) (rec lexicon.SourceRecord, err error) {
			err = r.Scan(&rec.ID, &rec.Name, &rec.Messages)
			return
		}); err != nil {
		return nil, err
	}
	if snap.Authors, err = queryAll(ctx, db, "SELECT id, source, name FROM authors ORDER BY id",
		func(r *sql.Rows) (a lexicon.AuthorRecord, err error) {
			err = r.Scan(&a.ID, &a.Source, &a.Name)
			return
		}); err != nil {
		return nil, err
	}
	if snap.Conversations, err = queryAll(ctx, db, "SELECT id, source FROM conversations ORDER BY id",
		func(r *sql.Rows) (c lexicon.ConversationRecord, err error) {
			err = r.Scan(&c.ID, &c.Source)
			return
		}); err != nil {
		return nil, err
	}
	if snap.Messages, err = queryAll(ctx, db,
		"SELECT id, author, conversation, idx, learned_at FROM messages ORDER BY id",
		func(r *sql.Rows) (m lexicon.MessageRecord, err error) {
			err = r.Scan(&m.ID, &m.Author, &m.Conversation, &m.Index, &m.LearnedAt)
			return
		}); err != nil {
		return nil, err
	}
	if snap.Instances, err = queryAll(ctx, db, "SELECT id, word, message, idx FROM instances ORDER BY id",
		func(r *sql.Rows) (i lexicon.InstanceRecord, err error) {
			err = r.Scan(&i.ID, &i.Word, &i.Message, &i.Index)
			return
		}); err != nil {
		return nil, err
	}
	if snap.Categories, err = loadCategories(ctx, db); err != nil {
		return nil, err
	}
	if snap.Active, err = queryAll(ctx, db,
		"SELECT source, conversation FROM active_conversations ORDER BY source",
		func(r *sql.Rows) (a lexicon.ActiveRecord, err error) {
			err = r.Scan(&a.Source, &a.Conversation)
			return
		}); err != nil {
		return nil, err
	}

	s.log.Info("Loaded snapshot from %s (%d messages, %d categories)", path, len(snap.Messages), len(snap.Categories))
	return snap, nil
}

// loadCategories rebuilds category records with their members and links in
// stored order. Rows naming an unknown category are reported as corruption.
func loadCategories(ctx context.Context, db *sql.DB) ([]lexicon.CategoryRecord, error) {
	ids, err := queryAll(ctx, db, "SELECT id FROM categories ORDER BY id",
		func(r *sql.Rows) (id int64, err error) {
			err = r.Scan(&id)
			return
		})
	if err != nil {
		return nil, err
	}
	var cats []lexicon.CategoryRecord
	index := make(map[int64]int, len(ids))
	for i, id := range ids {
		index[id] = i
		cats = append(cats, lexicon.CategoryRecord{ID: id})
	}
	lookup := func(id int64) (*lexicon.CategoryRecord, error) {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: row for unknown category %d", lexicon.ErrCorruptSnapshot, id)
		}
		return &cats[i], nil
	}

	type member struct{ category, instance int64 }
	members, err := queryAll(ctx, db,
		"SELECT category, instance FROM category_members ORDER BY category, position",
		func(r *sql.Rows) (m member, err error) {
			err = r.Scan(&m.category, &m.instance)
			return
		})
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		c, err := lookup(m.category)
		if err != nil {
			return nil, err
		}
		c.Instances = append(c.Instances, m.instance)
	}

	type link struct {
		category int64
		kind     string
		other    int64
	}
	links, err := queryAll(ctx, db,
		"SELECT category, kind, other FROM category_links ORDER BY category, kind, position",
		func(r *sql.Rows) (l link, err error) {
			err = r.Scan(&l.category, &l.kind, &l.other)
			return
		})
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		c, err := lookup(l.category)
		if err != nil {
			return nil, err
		}
		if l.kind == "pre" {
			c.Pre = append(c.Pre, l.other)
		} else {
			c.Post = append(c.Post, l.other)
		}
	}
	return cats, nil
}

func queryAll[T any](ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", query, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", query, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %q: %w", query, err)
	}
	return out, nil
}
