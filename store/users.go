package store

import (
	"context"
	"fmt"
	"strconv"

	"code.soquee.net/canonical"
)

const userSelect = `SELECT id, login, nicename FROM users`

// AddUser inserts a user and returns its id.
// The nicename defaults to the login.
func (s *Store) AddUser(ctx context.Context, a *canonical.Author) (int64, error) {
	var id any
	if a.ID != 0 {
		id = a.ID
	}
	nicename := a.Nicename
	if nicename == "" {
		nicename = a.Login
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (id, login, nicename) VALUES (?, ?, ?)`, id, a.Login, nicename)
	if err != nil {
		return 0, fmt.Errorf("failed to insert user %q: %w", a.Login, err)
	}
	return res.LastInsertId()
}

// Author returns the user with the given id.
func (s *Store) Author(ctx context.Context, id int64) (*canonical.Author, error) {
	return s.author(ctx, userSelect+` WHERE id = ?`, id)
}

// AuthorByNicename returns the user with the given nicename.
func (s *Store) AuthorByNicename(ctx context.Context, nicename string) (*canonical.Author, error) {
	return s.author(ctx, userSelect+` WHERE nicename = ?`, nicename)
}

func (s *Store) author(ctx context.Context, query string, arg any) (*canonical.Author, error) {
	var a canonical.Author
	err := s.conn.QueryRowContext(ctx, query, arg).Scan(&a.ID, &a.Login, &a.Nicename)
	if err != nil {
		return nil, notFound(err, "failed to load user %v", arg)
	}
	a.Link = s.authorLink(&a)
	return &a, nil
}

func (s *Store) authorLink(a *canonical.Author) string {
	l := s.links
	if !l.Rewrite.UsingPermalinks() || a.Nicename == "" {
		return l.Home("?author=" + strconv.FormatInt(a.ID, 10))
	}
	return l.Home(l.Rewrite.UserTrailingSlash(l.Rewrite.Front()+l.Rewrite.AuthorBase+"/"+a.Nicename, canonical.SlashNone))
}

// AuthorHasPublished reports whether the user has any published post.
func (s *Store) AuthorHasPublished(ctx context.Context, id int64) (bool, error) {
	n, err := s.CountPosts(ctx, Filter{Author: id})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
