// Package sheet loads roll contexts from YAML character sheets.
//
// A sheet has a values mapping and an optional selectors list:
//
//	values:
//	  level: 4
//	  abilities:
//	    str: {mod: 3}
//	  mods:
//	    bless: !modifier {name: Bless, formula: 1d4, enabled: false}
//	  skills:
//	    athletics: !calculated
//	      base: 3
//	      bonuses:
//	        - {name: Ranks, formula: "2"}
//	selectors:
//	  - target: ability
//	    sources: [abilities.cha, abilities.str]
//
// Modifiers are enabled unless enabled is false, and default their name to
// their key.
package sheet

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/abennett/rolltree/pkg/rolltree"
)

const (
	TagModifier   = "!modifier"
	TagCalculated = "!calculated"
)

var ErrInvalidSheet = errors.New("invalid sheet")

type modifierDoc struct {
	Name    string `yaml:"name"`
	Formula string `yaml:"formula"`
	Enabled *bool  `yaml:"enabled"`
}

func (m modifierDoc) modifier(key string) rolltree.Modifier {
	name := m.Name
	if name == "" {
		name = key
	}
	return rolltree.Modifier{
		Name:    name,
		Formula: m.Formula,
		Enabled: m.Enabled == nil || *m.Enabled,
	}
}

type calculatedDoc struct {
	Base    float64       `yaml:"base"`
	Bonuses []modifierDoc `yaml:"bonuses"`
}

type selectorDoc struct {
	Target  string   `yaml:"target"`
	Sources []string `yaml:"sources"`
}

func Load(path string) (*rolltree.Context, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("loading sheet %s: %w", path, err)
	}
	return c, nil
}

func Parse(content []byte) (*rolltree.Context, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSheet, err)
	}
	values := map[string]any{}
	var selectors []rolltree.Selector
	if len(root.Content) == 0 {
		return rolltree.NewContext(values), nil
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrInvalidSheet)
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		value := doc.Content[i+1]
		switch key.Value {
		case "values":
			v, err := decodeValue("values", value)
			if err != nil {
				return nil, err
			}
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: values must be a mapping", ErrInvalidSheet)
			}
			values = m
		case "selectors":
			var docs []selectorDoc
			if err := value.Decode(&docs); err != nil {
				return nil, fmt.Errorf("%w: selectors: %w", ErrInvalidSheet, err)
			}
			for _, s := range docs {
				selectors = append(selectors, rolltree.Selector{Target: s.Target, Sources: s.Sources})
			}
		default:
			return nil, fmt.Errorf("%w: unknown key %q at line %d", ErrInvalidSheet, key.Value, key.Line)
		}
	}
	return rolltree.NewContext(values, selectors...), nil
}

func decodeValue(key string, node *yaml.Node) (any, error) {
	switch node.Tag {
	case TagModifier:
		var doc modifierDoc
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: modifier %q: %w", ErrInvalidSheet, key, err)
		}
		return doc.modifier(key), nil
	case TagCalculated:
		var doc calculatedDoc
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: calculated %q: %w", ErrInvalidSheet, key, err)
		}
		calc := rolltree.Calculated{Base: doc.Base}
		for idx, b := range doc.Bonuses {
			calc.Bonuses = append(calc.Bonuses, b.modifier(fmt.Sprintf("%s.%d", key, idx)))
		}
		return calc, nil
	}

	switch node.Kind {
	case yaml.MappingNode:
		m := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			k := node.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: non-scalar key at line %d", ErrInvalidSheet, k.Line)
			}
			v, err := decodeValue(k.Value, node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[k.Value] = v
		}
		return m, nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSheet, key, err)
		}
		return v, nil
	case yaml.AliasNode:
		return decodeValue(key, node.Alias)
	default:
		return nil, fmt.Errorf("%w: %q at line %d must be a mapping or a scalar", ErrInvalidSheet, key, node.Line)
	}
}
