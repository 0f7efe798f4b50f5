// Package cache is the normalized-query response cache. Answers are
// persisted in SQLite together with their source citations, hit counts
// and access times, so repeated questions skip retrieval and
// generation entirely.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/craftwiki/wikibot/internal/cache/migrations"
)

// maxRawExamples caps how many raw phrasings are remembered per entry.
const maxRawExamples = 10

// Source is one cited origin of a cached answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Entry is a cached answer for one normalized query key.
type Entry struct {
	NormalizedKey  string
	RawExamples    []string
	AnswerText     string
	Sources        []Source
	HitCount       int
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries   int
	TotalHits int
}

// Cache is the SQLite-backed response cache. Safe for concurrent use;
// per-key atomicity comes from transactional row updates.
type Cache struct {
	db       *sql.DB
	path     string
	mentions []string
}

// New opens (or creates) the cache database at path. WAL mode keeps
// readers from blocking behind the occasional write. mentions are bot
// mention tokens stripped during query normalization.
func New(path string, mentions ...string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	cleaned := make([]string, 0, len(mentions))
	for _, m := range mentions {
		m = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(m)), "@")
		if m != "" {
			cleaned = append(cleaned, m)
		}
	}

	c := &Cache{db: db, path: path, mentions: cleaned}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running cache migrations: %w", err)
	}

	return c, nil
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := c.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for i, name := range names {
		version := i + 1
		if version <= current {
			continue
		}
		script, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := c.db.Exec(string(script)); err != nil {
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := c.db.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// Normalize returns the canonical cache key for a raw query.
func (c *Cache) Normalize(raw string) string {
	return normalize(raw, c.mentions)
}

// Lookup returns the entry for the query's normalized key, or nil if
// there is none. A found entry counts as a hit: its hit count and
// last-accessed time are bumped atomically with the read, whether or
// not the caller uses the result.
func (c *Cache) Lookup(ctx context.Context, rawQuery string) (*Entry, error) {
	key := c.Normalize(rawQuery)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin lookup: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE qa_cache SET hit_count = hit_count + 1, last_accessed = ? WHERE normalized_key = ?",
		time.Now().Unix(), key,
	)
	if err != nil {
		return nil, fmt.Errorf("recording cache hit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // miss
	}

	entry, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT normalized_key, raw_examples, answer, sources, hit_count, created_at, last_accessed
		 FROM qa_cache WHERE normalized_key = ?`, key))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit lookup: %w", err)
	}
	return entry, nil
}

// Store creates or overwrites the entry for the query's normalized
// key. Concurrent stores for the same key are idempotent: last writer
// wins, one row per key, hit count and creation time preserved across
// overwrites.
func (c *Cache) Store(ctx context.Context, rawQuery, answerText string, sources []Source) error {
	key := c.Normalize(rawQuery)
	now := time.Now().Unix()

	sourcesJSON, err := json.Marshal(orEmptySources(sources))
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin store: %w", err)
	}
	defer tx.Rollback()

	examples := []string{}
	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT raw_examples FROM qa_cache WHERE normalized_key = ?", key).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading raw examples: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal([]byte(existing), &examples); err != nil {
			examples = nil
		}
	}
	examples = appendExample(examples, strings.TrimSpace(rawQuery))

	examplesJSON, err := json.Marshal(examples)
	if err != nil {
		return fmt.Errorf("encoding raw examples: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO qa_cache (normalized_key, raw_examples, answer, sources, hit_count, created_at, last_accessed)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(normalized_key) DO UPDATE SET
			raw_examples = excluded.raw_examples,
			answer       = excluded.answer,
			sources      = excluded.sources`,
		key, string(examplesJSON), answerText, string(sourcesJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("storing answer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit store: %w", err)
	}
	return nil
}

// TopQueries returns up to n entries ordered by hit count, most recent
// access breaking ties.
func (c *Cache) TopQueries(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT normalized_key, raw_examples, answer, sources, hit_count, created_at, last_accessed
		 FROM qa_cache
		 ORDER BY hit_count DESC, last_accessed DESC
		 LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying top queries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Delete removes the entry for one raw query, if present.
func (c *Cache) Delete(ctx context.Context, rawQuery string) error {
	_, err := c.db.ExecContext(ctx,
		"DELETE FROM qa_cache WHERE normalized_key = ?", c.Normalize(rawQuery))
	if err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Clear destroys all entries.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM qa_cache"); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}
	return nil
}

// CacheStats reports entry and hit totals.
func (c *Cache) CacheStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM qa_cache").Scan(&s.Entries, &s.TotalHits)
	if err != nil {
		return Stats{}, fmt.Errorf("reading cache stats: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                     Entry
		examplesJSON          string
		sourcesJSON           string
		createdAt, accessedAt int64
	)
	err := row.Scan(&e.NormalizedKey, &examplesJSON, &e.AnswerText, &sourcesJSON,
		&e.HitCount, &createdAt, &accessedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(examplesJSON), &e.RawExamples); err != nil {
		e.RawExamples = nil
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &e.Sources); err != nil {
		e.Sources = nil
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.LastAccessedAt = time.Unix(accessedAt, 0)
	return &e, nil
}

func appendExample(examples []string, raw string) []string {
	if raw == "" {
		return examples
	}
	for _, e := range examples {
		if e == raw {
			return examples
		}
	}
	examples = append(examples, raw)
	if len(examples) > maxRawExamples {
		examples = examples[len(examples)-maxRawExamples:]
	}
	return examples
}

func orEmptySources(sources []Source) []Source {
	if sources == nil {
		return []Source{}
	}
	return sources
}
