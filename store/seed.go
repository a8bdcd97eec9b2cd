package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"code.soquee.net/canonical"
)

// Fixture is a YAML document describing the content of a site.
//
//	users:
//	  - {id: 1, login: admin}
//	terms:
//	  - {id: 2, taxonomy: category, slug: news}
//	posts:
//	  - id: 3
//	    name: hello
//	    date: 2019-01-02T10:00:00Z
//	    author: 1
//	    terms: [2]
type Fixture struct {
	Users []FixtureUser `yaml:"users"`
	Terms []FixtureTerm `yaml:"terms"`
	Posts []FixturePost `yaml:"posts"`
}

// FixtureUser is a user in a fixture.
type FixtureUser struct {
	ID       int64  `yaml:"id"`
	Login    string `yaml:"login"`
	Nicename string `yaml:"nicename"`
}

// FixtureTerm is a term in a fixture.
type FixtureTerm struct {
	ID       int64  `yaml:"id"`
	Taxonomy string `yaml:"taxonomy"`
	Slug     string `yaml:"slug"`
	Name     string `yaml:"name"`
	Parent   int64  `yaml:"parent"`
}

// FixturePost is a post in a fixture.
// Terms lists the ids of the terms the post is classified under.
type FixturePost struct {
	ID      int64     `yaml:"id"`
	Type    string    `yaml:"type"`
	Status  string    `yaml:"status"`
	Parent  int64     `yaml:"parent"`
	Author  int64     `yaml:"author"`
	Name    string    `yaml:"name"`
	Title   string    `yaml:"title"`
	Content string    `yaml:"content"`
	Date    time.Time `yaml:"date"`
	Terms   []int64   `yaml:"terms"`
}

// ReadFixture decodes a fixture from r.
func ReadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &f, nil
}

// Seed inserts the content of f.
// Users and terms are inserted before the posts that refer to them.
func (s *Store) Seed(ctx context.Context, f *Fixture) error {
	for _, u := range f.Users {
		if _, err := s.AddUser(ctx, &canonical.Author{ID: u.ID, Login: u.Login, Nicename: u.Nicename}); err != nil {
			return err
		}
	}
	for _, t := range f.Terms {
		term := &canonical.Term{ID: t.ID, Taxonomy: t.Taxonomy, Slug: t.Slug, Name: t.Name, Parent: t.Parent}
		if _, err := s.AddTerm(ctx, term); err != nil {
			return err
		}
	}
	for _, p := range f.Posts {
		id, err := s.AddPost(ctx, &canonical.Post{
			ID:      p.ID,
			Type:    p.Type,
			Status:  p.Status,
			Parent:  p.Parent,
			Author:  p.Author,
			Name:    p.Name,
			Title:   p.Title,
			Content: p.Content,
			Date:    p.Date,
		})
		if err != nil {
			return err
		}
		for _, term := range p.Terms {
			if err := s.Relate(ctx, id, term); err != nil {
				return err
			}
		}
	}
	return nil
}
