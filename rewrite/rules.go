package rewrite

import (
	"fmt"
	"maps"
	"strings"
)

const (
	emptyPanic  = "invalid empty pattern"
	panicNoRoot = "all rules must start with /"
)

// Rule maps paths matching a pattern to query variables.
type Rule struct {
	pattern string
	parts   []component
	fixed   map[string]string
}

// Pattern returns the pattern the rule was registered with.
func (r Rule) Pattern() string {
	return r.pattern
}

// Match is the result of matching a path against the rules.
type Match struct {
	// Pattern is the pattern of the rule that matched.
	Pattern string
	// Vars holds the query variables captured by the rule and the fixed
	// variables it sets.
	Vars map[string]string
}

// Rules is an ordered list of rewrite rules.
// The first rule that matches a path wins.
type Rules struct {
	rules []Rule
}

// Option is used to configure a rule list.
type Option func(*Rules)

// New allocates and returns a new rule list.
func New(opts ...Option) *Rules {
	rs := &Rules{}
	for _, o := range opts {
		o(rs)
	}
	return rs
}

// Add registers a rule for the given pattern.
// Fixed is a list of alternating variable names and values that are set
// whenever the rule matches.
// If a rule already exists for pattern, or the pattern is invalid, Add panics.
func Add(pattern string, fixed ...string) Option {
	if pattern == "" {
		panic(emptyPanic)
	}
	if !strings.HasPrefix(pattern, "/") {
		panic(panicNoRoot)
	}
	if len(fixed)%2 != 0 {
		panic(fmt.Sprintf("odd number of fixed variables in rule %q", pattern))
	}

	rule := Rule{pattern: pattern}
	seen := make(map[string]struct{})
	for _, part := range split(pattern) {
		c := parseComponent(part)
		if c.name != "" && c.typ != typStatic {
			if _, ok := seen[c.name]; ok {
				panic(fmt.Sprintf("duplicate variable %q in rule %q", c.name, pattern))
			}
			seen[c.name] = struct{}{}
		}
		rule.parts = append(rule.parts, c)
	}
	if len(fixed) > 0 {
		rule.fixed = make(map[string]string, len(fixed)/2)
		for i := 0; i < len(fixed); i += 2 {
			rule.fixed[fixed[i]] = fixed[i+1]
		}
	}

	return func(rs *Rules) {
		for _, r := range rs.rules {
			if r.pattern == pattern {
				panic(fmt.Sprintf("rule already registered for %s", pattern))
			}
		}
		rs.rules = append(rs.rules, rule)
	}
}

// Len returns the number of registered rules.
func (rs *Rules) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Rules returns the registered rules in order.
func (rs *Rules) Rules() []Rule {
	if rs == nil {
		return nil
	}
	return rs.rules
}

// Match returns the variables of the first rule matching path.
// Leading and trailing slashes are ignored.
func (rs *Rules) Match(path string) (Match, bool) {
	if rs == nil {
		return Match{}, false
	}
	parts := split(path)
	for _, r := range rs.rules {
		vars := make(map[string]string)
		if !matchParts(r.parts, parts, vars) {
			continue
		}
		maps.Copy(vars, r.fixed)
		return Match{Pattern: r.pattern, Vars: vars}, true
	}
	return Match{}, false
}

// matchParts matches the remaining components against the remaining path
// segments.
// Path components consume as few segments as possible, backtracking when the
// rest of the rule fails to match.
func matchParts(comps []component, parts []string, vars map[string]string) bool {
	if len(comps) == 0 {
		return len(parts) == 0
	}
	c := comps[0]
	if c.typ != typPath {
		if len(parts) == 0 {
			return false
		}
		v, ok := c.match(parts[0])
		if !ok {
			return false
		}
		if !matchParts(comps[1:], parts[1:], vars) {
			return false
		}
		if c.name != "" && c.typ != typStatic {
			vars[c.name] = v
		}
		return true
	}

	for n := 1; n <= len(parts); n++ {
		v, ok := c.match(strings.Join(parts[:n], "/"))
		if !ok {
			continue
		}
		if matchParts(comps[1:], parts[n:], vars) {
			if c.name != "" {
				vars[c.name] = v
			}
			return true
		}
	}
	return false
}
