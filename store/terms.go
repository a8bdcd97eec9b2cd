package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"code.soquee.net/canonical"
)

// Built in taxonomies.
const (
	TaxCategory = "category"
	TaxTag      = "post_tag"
)

// defaultCategory is the slug used for %category% when a post has no
// category.
const defaultCategory = "uncategorized"

const termSelect = `SELECT id, taxonomy, slug, name, parent FROM terms`

func scanTerm(row scanner) (*canonical.Term, error) {
	var t canonical.Term
	if err := row.Scan(&t.ID, &t.Taxonomy, &t.Slug, &t.Name, &t.Parent); err != nil {
		return nil, err
	}
	return &t, nil
}

// AddTerm inserts a term and returns its id.
func (s *Store) AddTerm(ctx context.Context, t *canonical.Term) (int64, error) {
	var id any
	if t.ID != 0 {
		id = t.ID
	}
	name := t.Name
	if name == "" {
		name = t.Slug
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO terms (id, taxonomy, slug, name, parent) VALUES (?, ?, ?, ?, ?)`,
		id, t.Taxonomy, t.Slug, name, t.Parent)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s %q: %w", t.Taxonomy, t.Slug, err)
	}
	return res.LastInsertId()
}

// Relate classifies a post under a term.
func (s *Store) Relate(ctx context.Context, postID, termID int64) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO term_relationships (post_id, term_id) VALUES (?, ?)`, postID, termID)
	if err != nil {
		return fmt.Errorf("failed to relate post %d to term %d: %w", postID, termID, err)
	}
	return nil
}

// TermByID returns the term with the given id.
// The taxonomy is checked if it is not empty.
func (s *Store) TermByID(ctx context.Context, id int64, taxonomy string) (*canonical.Term, error) {
	t, err := scanTerm(s.conn.QueryRowContext(ctx, termSelect+` WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "failed to load term %d", id)
	}
	if taxonomy != "" && t.Taxonomy != taxonomy {
		return nil, canonical.ErrNotFound
	}
	return s.withLink(ctx, t)
}

// TermBySlug returns the first term of the taxonomy with the given slug
// regardless of its parent.
func (s *Store) TermBySlug(ctx context.Context, taxonomy, slug string) (*canonical.Term, error) {
	t, err := scanTerm(s.conn.QueryRowContext(ctx,
		termSelect+` WHERE taxonomy = ? AND slug = ? ORDER BY id LIMIT 1`, taxonomy, slug))
	if err != nil {
		return nil, notFound(err, "failed to load %s %q", taxonomy, slug)
	}
	return s.withLink(ctx, t)
}

// TermByPath returns the term of a hierarchical taxonomy at the slash
// separated path of slugs.
// A single slug matches a term at any depth.
func (s *Store) TermByPath(ctx context.Context, taxonomy, path string) (*canonical.Term, error) {
	slugs := strings.Split(strings.Trim(path, "/"), "/")
	if len(slugs) == 1 {
		return s.TermBySlug(ctx, taxonomy, slugs[0])
	}
	var (
		t      *canonical.Term
		parent int64
	)
	for _, slug := range slugs {
		next, err := scanTerm(s.conn.QueryRowContext(ctx,
			termSelect+` WHERE taxonomy = ? AND slug = ? AND parent = ?`, taxonomy, slug, parent))
		if err != nil {
			return nil, notFound(err, "failed to load %s %q", taxonomy, path)
		}
		t, parent = next, next.ID
	}
	return s.withLink(ctx, t)
}

// CategoryByPath returns the category at the slash separated slug path.
func (s *Store) CategoryByPath(ctx context.Context, path string) (*canonical.Term, error) {
	return s.TermByPath(ctx, TaxCategory, path)
}

// HasTerm reports whether the post is classified under the term.
func (s *Store) HasTerm(ctx context.Context, postID, termID int64, taxonomy string) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM term_relationships r JOIN terms t ON t.id = r.term_id
		WHERE r.post_id = ? AND r.term_id = ? AND t.taxonomy = ?`, postID, termID, taxonomy).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check terms of post %d: %w", postID, err)
	}
	return n > 0, nil
}

// termPath returns the slugs of t and its ancestors joined by slashes.
func (s *Store) termPath(ctx context.Context, t *canonical.Term) (string, error) {
	parts := []string{t.Slug}
	seen := map[int64]bool{t.ID: true}
	for parent := t.Parent; parent != 0 && !seen[parent]; {
		seen[parent] = true
		var (
			slug string
			next int64
		)
		err := s.conn.QueryRowContext(ctx, `SELECT slug, parent FROM terms WHERE id = ?`, parent).Scan(&slug, &next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				break
			}
			return "", fmt.Errorf("failed to load parent %d of term %d: %w", parent, t.ID, err)
		}
		parts = append([]string{slug}, parts...)
		parent = next
	}
	return strings.Join(parts, "/"), nil
}

// primaryCategoryPath returns the path of the category with the lowest id the
// post is in.
func (s *Store) primaryCategoryPath(ctx context.Context, postID int64) (string, error) {
	t, err := scanTerm(s.conn.QueryRowContext(ctx, `
		SELECT t.id, t.taxonomy, t.slug, t.name, t.parent FROM terms t
		JOIN term_relationships r ON r.term_id = t.id
		WHERE r.post_id = ? AND t.taxonomy = ? ORDER BY t.id LIMIT 1`, postID, TaxCategory))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return defaultCategory, nil
	case err != nil:
		return "", fmt.Errorf("failed to load category of post %d: %w", postID, err)
	}
	return s.termPath(ctx, t)
}

// withLink fills in the query variable and archive link of t.
func (s *Store) withLink(ctx context.Context, t *canonical.Term) (*canonical.Term, error) {
	l := s.links
	rw := l.Rewrite

	var (
		base         string
		hierarchical bool
		plain        string
	)
	switch t.Taxonomy {
	case TaxCategory:
		t.QueryVar = "category_name"
		base, hierarchical = rw.CategoryBase, true
		plain = "?cat=" + strconv.FormatInt(t.ID, 10)
	case TaxTag:
		t.QueryVar = "tag"
		base = rw.TagBase
		plain = "?tag=" + t.Slug
	default:
		tax, ok := s.taxonomies[t.Taxonomy]
		if !ok {
			return t, nil
		}
		t.QueryVar = tax.QueryVar
		if t.QueryVar == "" {
			t.QueryVar = tax.Name
		}
		base, hierarchical = tax.Slug, tax.Hierarchical
		if base == "" {
			base = tax.Name
		}
		plain = "?" + t.QueryVar + "=" + t.Slug
	}

	if !rw.UsingPermalinks() {
		t.Link = l.Home(plain)
		return t, nil
	}
	path := t.Slug
	if hierarchical {
		var err error
		if path, err = s.termPath(ctx, t); err != nil {
			return nil, err
		}
	}
	slash := canonical.SlashNone
	if t.Taxonomy == TaxCategory {
		slash = canonical.SlashCategory
	}
	t.Link = l.Home(rw.UserTrailingSlash(rw.Front()+base+"/"+path, slash))
	return t, nil
}
