package rolltree

import (
	"slices"
	"strconv"
	"strings"
)

const operators = "+-*/"

func isOperator(b byte) bool {
	return strings.IndexByte(operators, b) >= 0
}

// AppendBonus appends a free-form bonus to a roll expression. A bonus that
// does not start with an operator is added with " +".
//
//	AppendBonus("1d20", "2")  == "1d20 +2"
//	AppendBonus("1d20", "+2") == "1d20 +2"
//	AppendBonus("1d20", "*2") == "1d20 *2"
func AppendBonus(expr, bonus string) string {
	return appendBonus(expr, bonus, strings.TrimSpace(bonus))
}

// appendBonus applies the separator rule of bonus to expr but appends text,
// which is the bonus itself or its labeled display form.
func appendBonus(expr, bonus, text string) string {
	bonus = strings.TrimSpace(bonus)
	if bonus == "" {
		return expr
	}
	if strings.TrimSpace(expr) == "" {
		return strings.TrimSpace(strings.TrimPrefix(text, "+"))
	}
	if isOperator(bonus[0]) {
		return expr + " " + text
	}
	return expr + " +" + text
}

// JoinTerms joins the non-empty terms with " + ". No terms yields "0".
func JoinTerms(terms ...string) string {
	kept := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return "0"
	}
	return strings.Join(kept, " + ")
}

// substitution is what replaces a variable token during resolution. An
// omitted substitution removes the whole term the token belongs to.
type substitution struct {
	final   string
	display string
	omit    bool
}

// splice replaces every variable token of text using replace and returns
// the machine and display forms.
func splice(text string, replace func(token string) substitution) (string, string) {
	locs := variableRegex.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		text = strings.TrimSpace(text)
		return text, text
	}
	var frags []fragment
	last := 0
	for _, loc := range locs {
		frags = lex(frags, text[last:loc[0]])
		sub := replace(text[loc[0]:loc[1]])
		if sub.omit {
			frags = append(frags, fragment{kind: fragHole})
		} else {
			frags = append(frags, fragment{kind: fragAtom, final: sub.final, display: sub.display})
		}
		last = loc[1]
	}
	frags = omitHoles(lex(frags, text[last:]))

	var final, display strings.Builder
	for _, f := range frags {
		final.WriteString(f.final)
		display.WriteString(f.display)
	}
	return strings.TrimSpace(final.String()), strings.TrimSpace(display.String())
}

type fragKind int

const (
	fragSpace fragKind = iota
	fragAtom
	fragOp
	fragOpen
	fragClose
	// fragHole is an omitted term.
	fragHole
)

// fragment is one lexical piece of a formula in both output forms.
type fragment struct {
	kind           fragKind
	final, display string
}

func (f fragment) isAdd() bool {
	return f.kind == fragOp && (f.final == "+" || f.final == "-")
}

func (f fragment) isMul() bool {
	return f.kind == fragOp && (f.final == "*" || f.final == "/")
}

// lex appends the fragments of literal formula text. Flavor labels are
// single atoms.
func lex(frags []fragment, s string) []fragment {
	for i := 0; i < len(s); {
		j := i + 1
		var kind fragKind
		switch c := s[i]; {
		case c == ' ':
			kind = fragSpace
			for j < len(s) && s[j] == ' ' {
				j++
			}
		case c == '(':
			kind = fragOpen
		case c == ')':
			kind = fragClose
		case isOperator(c):
			kind = fragOp
		case c == '[':
			kind = fragAtom
			j = len(s)
			if end := strings.IndexByte(s[i:], ']'); end >= 0 {
				j = i + end + 1
			}
		default:
			kind = fragAtom
			for j < len(s) && !isOperator(s[j]) && strings.IndexByte(" ()[", s[j]) < 0 {
				j++
			}
		}
		frags = append(frags, fragment{kind: kind, final: s[i:j], display: s[i:j]})
		i = j
	}
	return frags
}

// omitHoles removes every omitted term with one adjacent additive
// operator. A group left empty is omitted the same way, together with a
// function name in front of it.
func omitHoles(frags []fragment) []fragment {
	for {
		h := slices.IndexFunc(frags, func(f fragment) bool { return f.kind == fragHole })
		if h < 0 {
			return frags
		}
		start, end := termBounds(frags, h)
		frags = slices.Delete(frags, start, end)
		frags = collapseEmptyGroup(frags)
	}
}

// termBounds returns the span to delete for the hole at h: the product or
// quotient it is a factor of, any unary sign, and one additive operator.
func termBounds(frags []fragment, h int) (int, int) {
	start, end := h, h+1
	for end < len(frags) && frags[end].kind == fragAtom {
		end++
	}
	for {
		i := next(frags, end)
		if i >= len(frags) || !frags[i].isMul() {
			break
		}
		k := operandEnd(frags, next(frags, i+1))
		if k < 0 {
			break
		}
		end = k
	}
	for {
		i := prev(frags, start)
		if i < 0 || !frags[i].isMul() {
			break
		}
		k := operandStart(frags, prev(frags, i))
		if k < 0 {
			break
		}
		start = k
	}
	for {
		i := prev(frags, start)
		if i < 0 || !frags[i].isAdd() {
			break
		}
		if j := prev(frags, i); j >= 0 && frags[j].kind != fragOp && frags[j].kind != fragOpen {
			break
		}
		start = i
	}

	if i := prev(frags, start); i >= 0 && frags[i].isAdd() {
		for i > 0 && frags[i-1].kind == fragSpace {
			i--
		}
		return i, end
	}
	if i := next(frags, end); i < len(frags) && frags[i].kind == fragOp && frags[i].final != "-" {
		return start, next(frags, i+1)
	}
	return start, next(frags, end)
}

func next(frags []fragment, i int) int {
	for i < len(frags) && frags[i].kind == fragSpace {
		i++
	}
	return i
}

func prev(frags []fragment, i int) int {
	i--
	for i >= 0 && frags[i].kind == fragSpace {
		i--
	}
	return i
}

// operandEnd returns the end of the operand starting at i, or -1.
func operandEnd(frags []fragment, i int) int {
	for i < len(frags) && frags[i].isAdd() {
		i = next(frags, i+1)
	}
	start := i
	for i < len(frags) {
		switch frags[i].kind {
		case fragAtom, fragHole:
			i++
			continue
		case fragOpen:
			if c := matchClose(frags, i); c >= 0 {
				i = c + 1
				continue
			}
		}
		break
	}
	if i == start {
		return -1
	}
	return i
}

// operandStart returns the start of the operand ending at i, or -1.
func operandStart(frags []fragment, i int) int {
	end := i
	for i >= 0 {
		switch frags[i].kind {
		case fragAtom, fragHole:
			i--
			continue
		case fragClose:
			if o := matchOpen(frags, i); o >= 0 {
				i = o - 1
				continue
			}
		}
		break
	}
	if i == end {
		return -1
	}
	return i + 1
}

func matchClose(frags []fragment, open int) int {
	depth := 0
	for i := open; i < len(frags); i++ {
		switch frags[i].kind {
		case fragOpen:
			depth++
		case fragClose:
			if depth--; depth == 0 {
				return i
			}
		}
	}
	return -1
}

func matchOpen(frags []fragment, closing int) int {
	depth := 0
	for i := closing; i >= 0; i-- {
		switch frags[i].kind {
		case fragClose:
			depth++
		case fragOpen:
			if depth--; depth == 0 {
				return i
			}
		}
	}
	return -1
}

// collapseEmptyGroup turns the first empty group into a hole.
func collapseEmptyGroup(frags []fragment) []fragment {
	for i, f := range frags {
		if f.kind != fragOpen {
			continue
		}
		c := next(frags, i+1)
		if c >= len(frags) || frags[c].kind != fragClose {
			continue
		}
		start := i
		if start > 0 && frags[start-1].kind == fragAtom {
			start--
		}
		return slices.Replace(frags, start, c+1, fragment{kind: fragHole})
	}
	return frags
}

// isCompound reports whether expr has a space or an operator outside of
// parentheses and flavor labels, ignoring a leading sign.
func isCompound(expr string) bool {
	var depth int
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; {
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case depth > 0:
		case c == ' ':
			return true
		case i > 0 && isOperator(c):
			return true
		}
	}
	return false
}

func wrap(expr string) string {
	if isCompound(expr) {
		return "(" + expr + ")"
	}
	return expr
}

// labeled attaches a flavor label to a display term.
func labeled(display, label string) string {
	if isCompound(display) || strings.HasSuffix(display, "]") {
		display = "(" + display + ")"
	}
	return display + "[" + label + "]"
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
