package rolltree

import (
	"fmt"
	"strings"
)

// NodeID is a handle to a node in the arena of the tree that created it.
type NodeID int

// Node is one formula fragment of a roll tree. Children are keyed by the
// variable token of Formula they were created for.
type Node struct {
	ID         NodeID
	Formula    string
	Modifier   *Modifier
	Calculated []*Modifier
	Enabled    bool
	Children   map[string]NodeID

	tree       *Tree
	populating bool
	bindings   map[string]binding
	calculated map[string]calculatedTerm
}

type calculatedTerm struct {
	base    float64
	bonuses []*Modifier
}

// Resolved is a machine-evaluable roll expression and its labeled display
// counterpart.
type Resolved struct {
	FinalRoll string
	Formula   string
}

func (n *Node) Tree() *Tree {
	return n.tree
}

// IsVariable reports whether the node's formula references any variables.
func (n *Node) IsVariable() bool {
	return variableRegex.MatchString(n.Formula)
}

func (n *Node) populate() error {
	t := n.tree
	for _, token := range Variables(n.Formula) {
		b := t.context.bind(token)
		switch b.kind {
		case kindUnresolved:
			t.logger.Warn("unresolved variable in nested formula", "variable", token, "formula", n.Formula)
			n.bindings[token] = b
		case kindNumber:
			n.bindings[token] = b
		case kindFragment:
			child, err := t.populateNode(b.fragment, nil)
			if err != nil {
				return err
			}
			n.Children[token] = child.ID
		case kindModifier:
			mod := t.shareModifier(b.modifier, SourceReference)
			child, err := t.populateNode(mod.Formula, mod)
			if err != nil {
				return err
			}
			n.Children[token] = child.ID
		case kindCalculated:
			term := calculatedTerm{base: b.calculated.Base}
			for _, bonus := range b.calculated.Bonuses {
				mod := t.shareModifier(bonus, SourceCalculated)
				term.bonuses = append(term.bonuses, mod)
				n.Calculated = append(n.Calculated, mod)
			}
			n.calculated[token] = term
			n.bindings[token] = b
		}
	}
	return nil
}

// resolve splices the resolved form of every child into the node's own
// formula. The caller resolves each node at most once per pass.
func (n *Node) resolve() Resolved {
	final, display := splice(n.Formula, n.substitute)
	return Resolved{FinalRoll: final, Formula: display}
}

func (n *Node) substitute(token string) substitution {
	t := n.tree
	if id, ok := n.Children[token]; ok {
		child := t.nodes[id]
		if !child.Enabled {
			return substitution{omit: true}
		}
		r := t.resolveNode(child)
		if r.FinalRoll == "" {
			return substitution{omit: true}
		}
		sub := substitution{final: wrap(r.FinalRoll), display: wrap(r.Formula)}
		if child.Modifier != nil {
			sub.display = labeled(r.Formula, child.Modifier.Name)
		}
		return sub
	}

	b := n.bindings[token]
	label := trimToken(token)
	switch b.kind {
	case kindNumber:
		s := formatNumber(b.number)
		return substitution{final: s, display: s + "[" + label + "]"}
	case kindCalculated:
		return n.calculated[token].substitute(label)
	default:
		return substitution{final: "0", display: "0"}
	}
}

func (c calculatedTerm) substitute(label string) substitution {
	var finals, displays []string
	var enabled int
	for _, bonus := range c.bonuses {
		if bonus.Enabled && strings.TrimSpace(bonus.Formula) != "" {
			enabled++
		}
	}
	if c.base != 0 || enabled == 0 {
		s := formatNumber(c.base)
		finals = append(finals, s)
		displays = append(displays, s+"["+label+"]")
	}
	for _, bonus := range c.bonuses {
		f := strings.TrimSpace(bonus.Formula)
		if !bonus.Enabled || f == "" {
			continue
		}
		finals = append(finals, wrap(f))
		displays = append(displays, labeled(f, bonus.Name))
	}
	return substitution{
		final:   wrap(strings.Join(finals, " + ")),
		display: wrap(strings.Join(displays, " + ")),
	}
}

func (n *Node) String() string {
	if n.Modifier != nil {
		return fmt.Sprintf("node(%d %q %s)", n.ID, n.Formula, n.Modifier.Name)
	}
	return fmt.Sprintf("node(%d %q)", n.ID, n.Formula)
}
