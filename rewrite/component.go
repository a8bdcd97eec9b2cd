package rewrite

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const (
	typStatic = "static"
	typPath   = "path"
	typString = "string"
	typUint   = "uint"
	typInt    = "int"
	typEnum   = "enum"
)

// component is a single slash separated part of a rule pattern.
// Variable components may be surrounded by a static prefix and suffix, eg.
// "comment-page-{cpage uint}" or "{name string}.html".
type component struct {
	prefix string
	suffix string
	name   string
	typ    string
	values []string
}

// parseComponent parses a pattern component.
// It panics on invalid types.
func parseComponent(pattern string) component {
	// README:
	// The various checks in this function are a tad brittle and *order matters*
	// in subtle ways.
	// Be careful when refactoring this function.

	start := strings.IndexByte(pattern, '{')
	end := strings.LastIndexByte(pattern, '}')

	// Static components aren't patterns and must match exactly.
	if start == -1 || end < start {
		return component{name: pattern, typ: typStatic}
	}
	c := component{
		prefix: pattern[:start],
		suffix: pattern[end+1:],
	}
	param := pattern[start+1 : end]

	// {} is an unnamed variable (it matches any single path component)
	if param == "" {
		c.typ = typString
		return c
	}

	// Variable matches ("{name type}" or "{type}")
	name, typ, ok := strings.Cut(param, " ")
	if !ok {
		name, typ = "", param
	}
	c.name = name
	switch typ {
	case typInt, typUint, typString, typPath:
		c.typ = typ
		return c
	}
	if strings.Contains(typ, "|") {
		c.typ = typEnum
		c.values = strings.Split(typ, "|")
		return c
	}
	panic(fmt.Sprintf("invalid type: %q", typ))
}

// String renders the component as it would appear in a pattern.
func (c component) String() string {
	if c.typ == typStatic {
		return c.name
	}
	typ := c.typ
	if typ == typEnum {
		typ = strings.Join(c.values, "|")
	}
	if c.name == "" {
		return c.prefix + "{" + typ + "}" + c.suffix
	}
	return c.prefix + "{" + c.name + " " + typ + "}" + c.suffix
}

// match reports whether part is accepted by a single segment component and
// returns the value it captured.
func (c component) match(part string) (string, bool) {
	if c.typ == typStatic {
		return "", c.name == part
	}
	if len(part) < len(c.prefix)+len(c.suffix) ||
		!strings.HasPrefix(part, c.prefix) || !strings.HasSuffix(part, c.suffix) {
		return "", false
	}
	v := part[len(c.prefix) : len(part)-len(c.suffix)]
	if v == "" {
		return "", false
	}
	switch c.typ {
	case typString, typPath:
		return v, true
	case typUint:
		_, err := strconv.ParseUint(v, 10, 64)
		return v, err == nil
	case typInt:
		_, err := strconv.ParseInt(v, 10, 64)
		return v, err == nil
	case typEnum:
		return v, slices.Contains(c.values, v)
	}
	panic("unknown type")
}

func nextPart(path string) (string, string) {
	idx := strings.IndexByte(path, '/')
	if idx == -1 {
		return path, ""
	}
	return path[:idx], path[idx+1:]
}

// split returns the non-empty segments of path.
func split(path string) []string {
	var parts []string
	for part, remain := nextPart(path); part != "" || remain != ""; part, remain = nextPart(remain) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
