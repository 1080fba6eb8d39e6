package rolltree

import (
	"log/slog"
	"regexp"
	"strings"
)

var variableRegex = regexp.MustCompile(`@[a-zA-Z0-9._-]+`)

// Selector makes Target an alias for the value of the first of Sources
// that resolves.
type Selector struct {
	Target  string
	Sources []string
}

// Context is the layered variable namespace formulas are resolved against.
// Values is a nested map keyed by path segment; leaves are numbers, formula
// strings, Modifier or Calculated values.
type Context struct {
	Values    map[string]any
	Selectors []Selector

	aliases map[string]any
}

func NewContext(values map[string]any, selectors ...Selector) *Context {
	if values == nil {
		values = map[string]any{}
	}
	return &Context{
		Values:    values,
		Selectors: selectors,
		aliases:   map[string]any{},
	}
}

// ResolveSelectors rebuilds the alias namespace from Selectors in order.
// A later selector overwrites an earlier alias for the same target.
func (c *Context) ResolveSelectors(logger *slog.Logger) {
	c.aliases = map[string]any{}
	for _, sel := range c.Selectors {
		target := trimToken(sel.Target)
		var found bool
		for _, source := range sel.Sources {
			owner, key, ok := c.Lookup(source)
			if !ok {
				continue
			}
			c.aliases[target] = owner[key]
			found = true
			break
		}
		if !found && logger != nil {
			logger.Warn("selector has no resolvable source", "target", target, "sources", sel.Sources)
		}
	}
}

// Lookup finds the map owning the last segment of the variable token and
// returns it with that segment. Aliased targets shadow nested values.
func (c *Context) Lookup(token string) (map[string]any, string, bool) {
	path := trimToken(token)
	if path == "" {
		return nil, "", false
	}
	segments := strings.Split(path, ".")
	for i := len(segments); i > 0; i-- {
		prefix := strings.Join(segments[:i], ".")
		aliased, ok := c.aliases[prefix]
		if !ok {
			continue
		}
		if i == len(segments) {
			return c.aliases, prefix, true
		}
		return descend(aliased, segments[i:])
	}
	return descend(c.Values, segments)
}

// Value returns the value bound to the variable token.
func (c *Context) Value(token string) (any, bool) {
	owner, key, ok := c.Lookup(token)
	if !ok {
		return nil, false
	}
	return owner[key], true
}

func descend(v any, segments []string) (map[string]any, string, bool) {
	current := v
	for i, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, "", false
		}
		next, ok := m[seg]
		if !ok {
			return nil, "", false
		}
		if i == len(segments)-1 {
			return m, seg, true
		}
		current = next
	}
	return nil, "", false
}

func trimToken(token string) string {
	return strings.TrimPrefix(strings.TrimSpace(token), "@")
}

// Variables returns the distinct variable tokens of formula in order of
// first appearance.
func Variables(formula string) []string {
	matches := variableRegex.FindAllString(formula, -1)
	seen := make(map[string]bool, len(matches))
	vars := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		vars = append(vars, m)
	}
	return vars
}

type valueKind int

const (
	kindUnresolved valueKind = iota
	kindNumber
	kindFragment
	kindModifier
	kindCalculated
)

type binding struct {
	kind       valueKind
	number     float64
	fragment   string
	modifier   Modifier
	calculated Calculated
}

func (c *Context) bind(token string) binding {
	v, ok := c.Value(token)
	if !ok {
		return binding{}
	}
	switch val := v.(type) {
	case string:
		return binding{kind: kindFragment, fragment: val}
	case Modifier:
		return binding{kind: kindModifier, modifier: val}
	case *Modifier:
		if val == nil {
			return binding{}
		}
		return binding{kind: kindModifier, modifier: *val}
	case Calculated:
		return binding{kind: kindCalculated, calculated: val}
	case *Calculated:
		if val == nil {
			return binding{}
		}
		return binding{kind: kindCalculated, calculated: *val}
	}
	if n, ok := toFloat(v); ok {
		return binding{kind: kindNumber, number: n}
	}
	return binding{}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
