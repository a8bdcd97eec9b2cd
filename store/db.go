// Package store is a sqlite backed content store.
//
// It holds the posts, terms, users and transients of a site and implements
// the lookups the canonical resolver and the request classifier need,
// including the construction of permalinks from the site's permalink
// structure.
package store // import "code.soquee.net/canonical/store"

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"code.soquee.net/canonical"
	"code.soquee.net/canonical/rewrite"
)

// Schema creates the tables of the store.
const Schema = `
CREATE TABLE IF NOT EXISTS post_types (
	name TEXT PRIMARY KEY,
	public INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO post_types (name, public) VALUES
	('post', 1), ('page', 1), ('attachment', 1), ('revision', 0);

CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY,
	type TEXT NOT NULL DEFAULT 'post',
	status TEXT NOT NULL DEFAULT 'publish',
	parent INTEGER NOT NULL DEFAULT 0,
	author INTEGER NOT NULL DEFAULT 0,
	name TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	date TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_posts_name ON posts(name, type);
CREATE INDEX IF NOT EXISTS idx_posts_parent ON posts(parent);
CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author, status);
CREATE INDEX IF NOT EXISTS idx_posts_date ON posts(date);

CREATE TABLE IF NOT EXISTS terms (
	id INTEGER PRIMARY KEY,
	taxonomy TEXT NOT NULL,
	slug TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	parent INTEGER NOT NULL DEFAULT 0,
	UNIQUE (taxonomy, parent, slug)
);

CREATE TABLE IF NOT EXISTS term_relationships (
	post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
	term_id INTEGER NOT NULL REFERENCES terms(id) ON DELETE CASCADE,
	PRIMARY KEY (post_id, term_id)
);

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	login TEXT NOT NULL UNIQUE,
	nicename TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transients (
	name TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	expires_at TEXT
);
`

// dateFormat is the layout dates are stored in.
// Dates are stored in UTC.
const dateFormat = "2006-01-02 15:04:05"

var _ canonical.Entities = (*Store)(nil)

// Store is a content store backed by a sqlite database.
type Store struct {
	conn       *sql.DB
	path       string
	links      canonical.Links
	taxonomies map[string]rewrite.Taxonomy
}

// Option is used to configure a Store.
type Option func(*Store)

// Taxonomies registers custom taxonomies whose term links the store builds.
func Taxonomies(t ...rewrite.Taxonomy) Option {
	return func(s *Store) {
		for _, tax := range t {
			s.taxonomies[tax.Name] = tax
		}
	}
}

// Open opens or creates a sqlite database at the given path.
// Links are built for the site described by links.
func Open(path string, links canonical.Links, opts ...Option) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return newStore(conn, path, links, opts)
}

// OpenInMemory creates an in-memory database (for testing).
func OpenInMemory(links canonical.Links, opts ...Option) (*Store, error) {
	conn, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every connection would get its own empty database.
	conn.SetMaxOpenConns(1)
	return newStore(conn, ":memory:", links, opts)
}

func newStore(conn *sql.DB, path string, links canonical.Links, opts []Option) (*Store, error) {
	s := &Store{
		conn:       conn,
		path:       path,
		links:      canonical.Links{Site: links.Site.WithDefaults(), Rewrite: links.Rewrite.WithDefaults()},
		taxonomies: make(map[string]rewrite.Taxonomy),
	}
	for _, o := range opts {
		o(s)
	}
	if _, err := conn.Exec(Schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Links returns the link builder of the store.
func (s *Store) Links() canonical.Links {
	return s.links
}

// notFound maps a missing row to canonical.ErrNotFound.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return canonical.ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
