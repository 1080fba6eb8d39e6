// Package rolltree builds dependency trees out of dice formulas that
// reference variables and optional modifiers, and resolves them into
// expressions ready for a dice engine.
package rolltree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrCircularFormula = errors.New("circular formula reference")
	ErrNoDialog        = errors.New("no selection dialog configured")
)

// Config carries the collaborators of a tree. Nil collaborators fall back
// to slog.Default, the public roll mode, and English labels.
type Config struct {
	Dialog    Dialog
	Settings  Settings
	Localizer Localizer
	Logger    *slog.Logger
	// Debug emits a debug record at every stage of a roll.
	Debug bool
	// BonusEveryPart appends the free-form bonus to every enabled part
	// instead of only the first primary one.
	BonusEveryPart bool
}

// Tree owns the nodes built for one roll request. Nodes are stored in an
// arena and indexed by formula text, so identical fragments share a node.
type Tree struct {
	cfg     Config
	logger  *slog.Logger
	context *Context
	source  string
	formula string

	root      NodeID
	nodes     []*Node
	index     map[string]NodeID
	modifiers map[string]*Modifier
	resolved  map[NodeID]Resolved
}

func New(formula string, c *Context, cfg Config) *Tree {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = NewContext(nil)
	}
	return &Tree{
		cfg:     cfg,
		logger:  logger.With("formula", formula),
		context: c,
		source:  formula,
	}
}

// Formula returns the validated top-level formula of the last population.
func (t *Tree) Formula() string {
	return t.formula
}

func (t *Tree) Context() *Context {
	return t.context
}

func (t *Tree) Root() *Node {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.nodes[t.root]
}

func (t *Tree) Node(id NodeID) *Node {
	if int(id) < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Nodes returns the nodes in creation order.
func (t *Tree) Nodes() []*Node {
	return t.nodes
}

// NodeFor returns the node registered for the formula text.
func (t *Tree) NodeFor(formula string) (*Node, bool) {
	id, ok := t.index[formula]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

func (t *Tree) debug(msg string, args ...any) {
	if t.cfg.Debug {
		t.logger.Debug(msg, args...)
	}
}

// Validate replaces every variable token of formula that does not resolve
// in the tree's context with a literal 0.
func (t *Tree) Validate(formula string) string {
	for _, token := range Variables(formula) {
		if t.context.bind(token).kind != kindUnresolved {
			continue
		}
		t.logger.Warn("unresolved variable replaced with 0", "variable", token)
		formula = variableRegex.ReplaceAllStringFunc(formula, func(m string) string {
			if m == token {
				return "0"
			}
			return m
		})
	}
	t.debug("validated formula", "validated", formula)
	return formula
}

// Populate discards any previous nodes and modifiers, then builds the tree
// for formula from scratch. It returns the aggregated modifiers.
func (t *Tree) Populate(formula string) ([]*Modifier, error) {
	t.source = formula
	t.nodes = nil
	t.index = map[string]NodeID{}
	t.modifiers = map[string]*Modifier{}
	t.resolved = nil

	t.context.ResolveSelectors(t.logger)
	t.formula = t.Validate(formula)

	root, err := t.populateNode(t.formula, nil)
	if err != nil {
		return nil, fmt.Errorf("populating %q: %w", formula, err)
	}
	t.root = root.ID
	mods := t.Modifiers()
	t.debug("populated tree", "nodes", len(t.nodes), "modifiers", len(mods))
	return mods, nil
}

func (t *Tree) populateNode(formula string, ref *Modifier) (*Node, error) {
	if id, ok := t.index[formula]; ok {
		n := t.nodes[id]
		if n.populating {
			return nil, fmt.Errorf("%w: %q", ErrCircularFormula, formula)
		}
		if n.Modifier == nil && ref != nil {
			n.Modifier = ref
			n.Enabled = ref.Enabled
		}
		return n, nil
	}

	n := &Node{
		ID:         NodeID(len(t.nodes)),
		Formula:    formula,
		Modifier:   ref,
		Enabled:    true,
		Children:   map[string]NodeID{},
		tree:       t,
		bindings:   map[string]binding{},
		calculated: map[string]calculatedTerm{},
	}
	if ref != nil {
		n.Enabled = ref.Enabled
	}
	t.nodes = append(t.nodes, n)
	t.index[formula] = n.ID
	t.debug("created node", "node", n.ID, "fragment", formula)

	n.populating = true
	err := n.populate()
	n.populating = false
	if err != nil {
		return nil, err
	}
	return n, nil
}

// shareModifier returns the tree's single instance of the modifier named
// mod.Name, copying mod in on first sight.
func (t *Tree) shareModifier(mod Modifier, source Source) *Modifier {
	if shared, ok := t.modifiers[mod.Name]; ok {
		return shared
	}
	mod.Source = source
	shared := &mod
	t.modifiers[mod.Name] = shared
	return shared
}

// ReferenceModifiers returns the reference modifier of every node, once per
// name, in node order.
func (t *Tree) ReferenceModifiers() []*Modifier {
	var mods []*Modifier
	seen := map[string]bool{}
	for _, n := range t.nodes {
		if n.Modifier == nil || seen[n.Modifier.Name] {
			continue
		}
		seen[n.Modifier.Name] = true
		mods = append(mods, n.Modifier)
	}
	return mods
}

// Modifiers returns the reference and calculated modifiers of the tree.
// A modifier is skipped when one of the same name is already listed, or
// when its name appears literally in the top-level formula.
func (t *Tree) Modifiers() []*Modifier {
	var mods []*Modifier
	seen := map[string]bool{}
	add := func(m *Modifier) {
		if seen[m.Name] {
			return
		}
		if strings.Contains(t.formula, m.Name) {
			return
		}
		seen[m.Name] = true
		mods = append(mods, m)
	}
	for _, n := range t.nodes {
		if n.Modifier != nil {
			add(n.Modifier)
		}
		for _, m := range n.Calculated {
			add(m)
		}
	}
	return mods
}

// SetEnabled sets the enabled flag of the modifiers by name. Names the tree
// does not know are ignored.
func (t *Tree) SetEnabled(enabled map[string]bool) {
	for name, on := range enabled {
		if m, ok := t.modifiers[name]; ok {
			m.Enabled = on
		}
	}
}

// CommitEnablement copies each node's reference modifier flag onto the
// node.
func (t *Tree) CommitEnablement() {
	for _, n := range t.nodes {
		if n.Modifier != nil {
			n.Enabled = n.Modifier.Enabled
		}
	}
}

// Resolve resolves the root node. Shared nodes are resolved once.
func (t *Tree) Resolve() Resolved {
	t.resolved = map[NodeID]Resolved{}
	root := t.Root()
	if root == nil {
		return Resolved{}
	}
	return t.resolveNode(root)
}

func (t *Tree) resolveNode(n *Node) Resolved {
	if r, ok := t.resolved[n.ID]; ok {
		return r
	}
	r := n.resolve()
	t.resolved[n.ID] = r
	return r
}

// Roll runs one roll request: populate, select, resolve and assemble. A
// cancelled selection is reported in the result and is not an error.
func (t *Tree) Roll(ctx context.Context, opts RollOptions) (Result, error) {
	if _, err := t.Populate(t.source); err != nil {
		return Result{}, err
	}

	sel, err := t.selectRoll(ctx, opts, t.ReferenceModifiers())
	if err != nil {
		return Result{}, err
	}
	if !sel.RollMode.Valid() {
		if sel.RollMode != "" {
			t.logger.Warn("unknown roll mode, using default", "roll_mode", sel.RollMode)
		}
		sel.RollMode = t.defaultRollMode()
	}
	if sel.Parts == nil {
		sel.Parts = opts.Parts
	}
	t.debug("selection received",
		"button", sel.Button,
		"roll_mode", sel.RollMode,
		"bonus", sel.Bonus,
		"parts", len(sel.Parts))

	if sel.Button == ButtonCancel {
		return Result{
			Cancelled: true,
			Button:    sel.Button,
			RollMode:  sel.RollMode,
			Bonus:     sel.Bonus,
		}, nil
	}

	t.SetEnabled(sel.Enabled)
	t.CommitEnablement()
	root := t.Resolve()
	rolls := t.Assemble(root, sel.Parts, sel.Bonus)
	for _, r := range rolls {
		t.debug("assembled roll", "final_roll", r.FinalRoll, "display", r.Formula)
	}
	return Result{
		Button:   sel.Button,
		RollMode: sel.RollMode,
		Bonus:    sel.Bonus,
		Rolls:    rolls,
	}, nil
}

func (t *Tree) selectRoll(ctx context.Context, opts RollOptions, mods []*Modifier) (Selection, error) {
	if opts.SkipUI {
		button := opts.DefaultButton
		if button == "" {
			button = ButtonRoll
		}
		return Selection{
			Button:   button,
			RollMode: t.defaultRollMode(),
			Bonus:    opts.Bonus,
			Parts:    opts.Parts,
		}, nil
	}
	if t.cfg.Dialog == nil {
		return Selection{}, ErrNoDialog
	}
	sel, err := t.cfg.Dialog.Select(ctx, DialogRequest{
		Tree:          t,
		Formula:       t.formula,
		Context:       t.context,
		Modifiers:     mods,
		MainDie:       opts.MainDie,
		Title:         opts.Title,
		Buttons:       opts.Buttons,
		DefaultButton: opts.DefaultButton,
		Parts:         opts.Parts,
	})
	if err != nil {
		return Selection{}, fmt.Errorf("selection dialog: %w", err)
	}
	return sel, nil
}

func (t *Tree) defaultRollMode() RollMode {
	if t.cfg.Settings == nil {
		return RollModePublic
	}
	if mode := t.cfg.Settings.DefaultRollMode(); mode != "" {
		return mode
	}
	return RollModePublic
}
