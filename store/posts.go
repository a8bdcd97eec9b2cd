package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"code.soquee.net/canonical"
)

const postColumns = `p.id, p.type, p.status, p.parent, p.author, p.name, p.title, p.content, p.date,
	COALESCE(t.public, 0)`

const postSelect = `SELECT ` + postColumns + ` FROM posts p LEFT JOIN post_types t ON t.name = p.type`

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*canonical.Post, error) {
	var (
		p    canonical.Post
		date string
	)
	if err := row.Scan(&p.ID, &p.Type, &p.Status, &p.Parent, &p.Author, &p.Name, &p.Title, &p.Content, &date, &p.Public); err != nil {
		return nil, err
	}
	t, err := time.Parse(dateFormat, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q of post %d: %w", date, p.ID, err)
	}
	p.Date = t
	return &p, nil
}

// AddPost inserts a post and returns its id.
// If the id of the post is zero one is assigned.
func (s *Store) AddPost(ctx context.Context, p *canonical.Post) (int64, error) {
	var id any
	if p.ID != 0 {
		id = p.ID
	}
	typ, status := p.Type, p.Status
	if typ == "" {
		typ = canonical.TypePost
	}
	if status == "" {
		status = canonical.StatusPublish
	}
	date := p.Date
	if date.IsZero() {
		date = time.Now()
	}
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO posts (id, type, status, parent, author, name, title, content, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, typ, status, p.Parent, p.Author, p.Name, p.Title, p.Content, date.UTC().Format(dateFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert post %q: %w", p.Name, err)
	}
	return res.LastInsertId()
}

// Post returns the post with the given id.
func (s *Store) Post(ctx context.Context, id int64) (*canonical.Post, error) {
	p, err := scanPost(s.conn.QueryRowContext(ctx, postSelect+` WHERE p.id = ?`, id))
	if err != nil {
		return nil, notFound(err, "failed to load post %d", id)
	}
	return p, nil
}

// PostByName returns the most recent post of one of the given types with the
// given slug.
func (s *Store) PostByName(ctx context.Context, name string, types ...string) (*canonical.Post, error) {
	if len(types) == 0 {
		types = []string{canonical.TypePost}
	}
	args := []any{name}
	for _, t := range types {
		args = append(args, t)
	}
	query := postSelect + ` WHERE p.name = ? AND p.type IN (` + placeholders(len(types)) + `)
		ORDER BY p.date DESC, p.id DESC LIMIT 1`
	p, err := scanPost(s.conn.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "failed to load post %q", name)
	}
	return p, nil
}

// PageByPath returns the page at the slash separated path of slugs.
func (s *Store) PageByPath(ctx context.Context, path string) (*canonical.Post, error) {
	return s.hierarchyByPath(ctx, path, canonical.TypePage)
}

// AttachmentByName returns the attachment with the given slug, optionally
// restricted to the children of parent.
func (s *Store) AttachmentByName(ctx context.Context, name string, parent int64) (*canonical.Post, error) {
	query := postSelect + ` WHERE p.name = ? AND p.type = ?`
	args := []any{name, canonical.TypeAttachment}
	if parent != 0 {
		query += ` AND p.parent = ?`
		args = append(args, parent)
	}
	p, err := scanPost(s.conn.QueryRowContext(ctx, query+` ORDER BY p.id LIMIT 1`, args...))
	if err != nil {
		return nil, notFound(err, "failed to load attachment %q", name)
	}
	return p, nil
}

func (s *Store) hierarchyByPath(ctx context.Context, path, typ string) (*canonical.Post, error) {
	var (
		post   *canonical.Post
		parent int64
	)
	for _, slug := range strings.Split(strings.Trim(path, "/"), "/") {
		if slug == "" {
			return nil, canonical.ErrNotFound
		}
		p, err := scanPost(s.conn.QueryRowContext(ctx,
			postSelect+` WHERE p.name = ? AND p.type = ? AND p.parent = ? ORDER BY p.id LIMIT 1`,
			slug, typ, parent))
		if err != nil {
			return nil, notFound(err, "failed to load %s %q", typ, path)
		}
		post, parent = p, p.ID
	}
	return post, nil
}

// Filter restricts the posts counted by CountPosts.
// Zero fields do not restrict anything.
type Filter struct {
	Year   int64
	Month  int64
	Day    int64
	Author int64
	TermID int64
}

// CountPosts returns the number of published posts matching f.
func (s *Store) CountPosts(ctx context.Context, f Filter) (int, error) {
	query := `SELECT COUNT(*) FROM posts p WHERE p.type = 'post' AND p.status = 'publish'`
	var args []any
	add := func(cond string, v int64) {
		if v != 0 {
			query += ` AND ` + cond
			args = append(args, v)
		}
	}
	add(`CAST(substr(p.date, 1, 4) AS INTEGER) = ?`, f.Year)
	add(`CAST(substr(p.date, 6, 2) AS INTEGER) = ?`, f.Month)
	add(`CAST(substr(p.date, 9, 2) AS INTEGER) = ?`, f.Day)
	add(`p.author = ?`, f.Author)
	add(`EXISTS (SELECT 1 FROM term_relationships r WHERE r.post_id = p.id AND r.term_id = ?)`, f.TermID)

	var n int
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

// Permalink returns the canonical link of the post with the given id.
func (s *Store) Permalink(ctx context.Context, id int64) (string, error) {
	p, err := s.Post(ctx, id)
	if err != nil {
		return "", err
	}
	return s.PostLink(ctx, p)
}

// PostLink returns the canonical link of p.
func (s *Store) PostLink(ctx context.Context, p *canonical.Post) (string, error) {
	switch p.Type {
	case canonical.TypePage:
		return s.pageLink(ctx, p)
	case canonical.TypeAttachment:
		return s.attachmentLink(ctx, p)
	}

	l := s.links
	id := strconv.FormatInt(p.ID, 10)
	if !l.Rewrite.UsingPermalinks() || p.Status != canonical.StatusPublish || p.Type != canonical.TypePost {
		return l.Home("?p=" + id), nil
	}

	structure := l.Rewrite.Structure
	var category, author string
	if strings.Contains(structure, "%category%") {
		var err error
		if category, err = s.primaryCategoryPath(ctx, p.ID); err != nil {
			return "", err
		}
	}
	if strings.Contains(structure, "%author%") {
		a, err := s.Author(ctx, p.Author)
		if err != nil {
			return "", err
		}
		author = a.Nicename
	}
	d := p.Date
	link := strings.NewReplacer(
		"%year%", strconv.Itoa(d.Year()),
		"%monthnum%", fmt.Sprintf("%02d", int(d.Month())),
		"%day%", fmt.Sprintf("%02d", d.Day()),
		"%hour%", fmt.Sprintf("%02d", d.Hour()),
		"%minute%", fmt.Sprintf("%02d", d.Minute()),
		"%second%", fmt.Sprintf("%02d", d.Second()),
		"%postname%", p.Name,
		"%post_id%", id,
		"%category%", category,
		"%author%", author,
		"%pagename%", p.Name,
	).Replace(structure)
	return l.Home(l.Rewrite.UserTrailingSlash(link, canonical.SlashSingle)), nil
}

func (s *Store) pageLink(ctx context.Context, p *canonical.Post) (string, error) {
	l := s.links
	if l.Site.ShowOnFront == canonical.ShowPage && p.ID == l.Site.PageOnFront {
		return l.Home("/"), nil
	}
	if !l.Rewrite.UsingPermalinks() || p.Status != canonical.StatusPublish {
		return l.Home("?page_id=" + strconv.FormatInt(p.ID, 10)), nil
	}
	path, err := s.pagePath(ctx, p)
	if err != nil {
		return "", err
	}
	return l.Home(l.Rewrite.UserTrailingSlash(l.Rewrite.Root()+path, canonical.SlashPage)), nil
}

// pagePath returns the slugs of p and its ancestors joined by slashes.
func (s *Store) pagePath(ctx context.Context, p *canonical.Post) (string, error) {
	parts := []string{p.Name}
	seen := map[int64]bool{p.ID: true}
	for parent := p.Parent; parent != 0 && !seen[parent]; {
		seen[parent] = true
		var (
			name string
			next int64
		)
		err := s.conn.QueryRowContext(ctx, `SELECT name, parent FROM posts WHERE id = ?`, parent).Scan(&name, &next)
		if err != nil {
			if err == sql.ErrNoRows {
				break
			}
			return "", fmt.Errorf("failed to load parent %d of page %d: %w", parent, p.ID, err)
		}
		parts = append([]string{name}, parts...)
		parent = next
	}
	return strings.Join(parts, "/"), nil
}

func (s *Store) attachmentLink(ctx context.Context, p *canonical.Post) (string, error) {
	l := s.links
	if !l.Rewrite.UsingPermalinks() || p.Parent == 0 {
		return l.Home("?attachment_id=" + strconv.FormatInt(p.ID, 10)), nil
	}
	parent, err := s.Permalink(ctx, p.Parent)
	if err != nil {
		return "", err
	}
	link := canonical.TrailingSlash(parent) + "attachment/" + p.Name
	return l.Rewrite.UserTrailingSlash(link, canonical.SlashSingle), nil
}

// Guess returns the permalink of the most recent published post whose slug
// starts with the requested name.
// The date variables of the query narrow the search if set.
func (s *Store) Guess(ctx context.Context, _ *canonical.Request, q *canonical.Query) (string, error) {
	name := q.Var("name")
	if name == "" {
		if pagename := strings.Trim(q.Var("pagename"), "/"); pagename != "" {
			name = pagename[strings.LastIndexByte(pagename, '/')+1:]
		}
	}
	if name == "" {
		return "", nil
	}

	query := `SELECT p.id FROM posts p JOIN post_types t ON t.name = p.type
		WHERE t.public = 1 AND p.status = 'publish' AND p.name LIKE ? ESCAPE '\'`
	args := []any{escapeLike(name) + "%"}
	for _, d := range []struct {
		v     int64
		start int
		n     int
	}{
		{q.IntVar("year"), 1, 4},
		{q.IntVar("monthnum"), 6, 2},
		{q.IntVar("day"), 9, 2},
	} {
		if d.v != 0 {
			query += fmt.Sprintf(` AND CAST(substr(p.date, %d, %d) AS INTEGER) = ?`, d.start, d.n)
			args = append(args, d.v)
		}
	}
	if typ := q.Var("post_type"); typ != "" {
		query += ` AND p.type = ?`
		args = append(args, typ)
	}

	var id int64
	err := s.conn.QueryRowContext(ctx, query+` ORDER BY p.date DESC, p.id DESC LIMIT 1`, args...).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to guess permalink for %q: %w", name, err)
	}
	return s.Permalink(ctx, id)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
