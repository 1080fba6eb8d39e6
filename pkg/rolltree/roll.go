package rolltree

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

const (
	ButtonRoll   = "roll"
	ButtonCancel = "cancel"
)

// Localization keys used when assembling rolls.
const (
	KeyAdditionalBonus = "rolltree.additional_bonus"
	KeyPartIndex       = "rolltree.part_index"
)

type RollMode string

const (
	RollModePublic RollMode = "publicroll"
	RollModeGM     RollMode = "gmroll"
	RollModeBlind  RollMode = "blindroll"
	RollModeSelf   RollMode = "selfroll"
)

var RollModes = []RollMode{RollModePublic, RollModeGM, RollModeBlind, RollModeSelf}

// Valid reports whether m is one of RollModes.
func (m RollMode) Valid() bool {
	return slices.Contains(RollModes, m)
}

type Button struct {
	ID    string
	Label string
}

// Part is one output slice of a roll. A primary part gets the resolved
// root formula appended to its own.
type Part struct {
	Formula   string
	IsPrimary bool
	Enabled   bool
	// Label is the position of the part among the enabled ones, set when
	// more than one part is rolled.
	Label string
}

// DialogRequest is everything the selection dialog is shown.
type DialogRequest struct {
	Tree          *Tree
	Formula       string
	Context       *Context
	Modifiers     []*Modifier
	MainDie       string
	Title         string
	Buttons       []Button
	DefaultButton string
	Parts         []Part
}

// Selection is what the user picked. Enabled is keyed by modifier name;
// modifiers missing from it keep their current state.
type Selection struct {
	Button   string
	RollMode RollMode
	Bonus    string
	Parts    []Part
	Enabled  map[string]bool
}

// Dialog asks the user which modifiers to apply. It blocks until the user
// answers; a Button of ButtonCancel cancels the roll.
type Dialog interface {
	Select(ctx context.Context, req DialogRequest) (Selection, error)
}

// DialogFunc adapts a function to the Dialog interface.
type DialogFunc func(ctx context.Context, req DialogRequest) (Selection, error)

func (f DialogFunc) Select(ctx context.Context, req DialogRequest) (Selection, error) {
	return f(ctx, req)
}

// Settings supplies the roll mode used when the dialog is skipped.
type Settings interface {
	DefaultRollMode() RollMode
}

// Localizer formats a message by key with named parameters.
type Localizer interface {
	Format(key string, params map[string]any) string
}

type RollOptions struct {
	Title         string
	MainDie       string
	Buttons       []Button
	DefaultButton string
	Parts         []Part
	// SkipUI rolls with DefaultButton, the settings roll mode and Bonus
	// without asking the dialog.
	SkipUI bool
	Bonus  string
}

// Roll is one assembled expression. Part is nil when the roll was
// assembled from the root node alone.
type Roll struct {
	Resolved
	Part *Part
	Node NodeID
}

type Result struct {
	Cancelled bool
	Button    string
	RollMode  RollMode
	Bonus     string
	Rolls     []Roll
}

// Assemble builds the output rolls from the resolved root and the enabled
// parts, appending bonus as configured.
func (t *Tree) Assemble(root Resolved, parts []Part, bonus string) []Roll {
	var enabled []Part
	for _, p := range parts {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		r := Resolved{
			FinalRoll: JoinTerms(root.FinalRoll),
			Formula:   JoinTerms(root.Formula),
		}
		return []Roll{{Resolved: t.withBonus(r, bonus), Node: t.root}}
	}

	bonusPart := bonusTarget(enabled)
	rolls := make([]Roll, 0, len(enabled))
	for idx, p := range enabled {
		r := Resolved{
			FinalRoll: JoinTerms(p.Formula),
			Formula:   JoinTerms(p.Formula),
		}
		if p.IsPrimary {
			r.FinalRoll = JoinTerms(p.Formula, root.FinalRoll)
			r.Formula = JoinTerms(p.Formula, root.Formula)
		}
		if t.cfg.BonusEveryPart || idx == bonusPart {
			r = t.withBonus(r, bonus)
		}
		if len(enabled) > 1 {
			p.Label = t.localize(KeyPartIndex, map[string]any{
				"partIndex": idx + 1,
				"partCount": len(enabled),
			})
		}
		rolls = append(rolls, Roll{Resolved: r, Part: &p, Node: t.root})
	}
	return rolls
}

// bonusTarget is the index of the part that gets the bonus when it is not
// fanned out: the first primary part, else the first part.
func bonusTarget(parts []Part) int {
	for idx, p := range parts {
		if p.IsPrimary {
			return idx
		}
	}
	return 0
}

func (t *Tree) withBonus(r Resolved, bonus string) Resolved {
	bonus = strings.TrimSpace(bonus)
	if bonus == "" {
		return r
	}
	label := t.localize(KeyAdditionalBonus, map[string]any{"bonus": bonus})
	return Resolved{
		FinalRoll: AppendBonus(r.FinalRoll, bonus),
		Formula:   appendBonus(r.Formula, bonus, label),
	}
}

var fallbackMessages = map[string]string{
	KeyAdditionalBonus: "{bonus}[Additional Bonus]",
	KeyPartIndex:       "{partIndex}/{partCount}",
}

func (t *Tree) localize(key string, params map[string]any) string {
	if t.cfg.Localizer != nil {
		return t.cfg.Localizer.Format(key, params)
	}
	msg := fallbackMessages[key]
	for name, v := range params {
		msg = strings.ReplaceAll(msg, "{"+name+"}", fallbackString(v))
	}
	return msg
}

func fallbackString(v any) string {
	return fmt.Sprint(v)
}
