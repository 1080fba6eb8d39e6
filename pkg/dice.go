package pkg

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

var diceRegex = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// Limits on what one die term and one expression may roll.
const (
	MaxDiceCount      = 1000
	MaxDiceSides      = 1000
	MaxExpressionDice = 10000
)

var (
	ErrInvalidExpression = errors.New("invalid roll expression")
	ErrDivideByZero      = errors.New("division by zero")
)

// Rand is the source of die faces. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type defaultRand struct{}

func (defaultRand) IntN(n int) int {
	return rand.IntN(n)
}

type DiceRoll struct {
	Count     int
	DiceSides int
	Modifier  int
}

func ParseDiceRoll(diceRoll string) (DiceRoll, error) {
	// [<int>]d<int>[+|-<int>]
	var d DiceRoll
	matches := diceRegex.FindStringSubmatch(strings.TrimSpace(diceRoll))
	if matches == nil {
		return d, fmt.Errorf("%w: %q is not a die", ErrInvalidExpression, diceRoll)
	}
	parsed := make([]int, 3)
	for idx, s := range matches[1:] {
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return d, fmt.Errorf("%w: %q: %w", ErrInvalidExpression, diceRoll, err)
		}
		parsed[idx] = v
	}
	if matches[1] == "" {
		parsed[0] = 1
	}
	if parsed[0] < 1 || parsed[1] < 1 {
		return d, fmt.Errorf("%w: %q needs a positive count and sides", ErrInvalidExpression, diceRoll)
	}
	if parsed[0] > MaxDiceCount || parsed[1] > MaxDiceSides {
		return d, fmt.Errorf("%w: %q rolls more than %dd%d", ErrInvalidExpression, diceRoll, MaxDiceCount, MaxDiceSides)
	}
	return DiceRoll{
		Count:     parsed[0],
		DiceSides: parsed[1],
		Modifier:  parsed[2],
	}, nil
}

func (dr DiceRoll) String() string {
	var builder strings.Builder
	base := fmt.Sprintf("%dd%d", dr.Count, dr.DiceSides)
	builder.WriteString(base)
	if dr.Modifier > 0 {
		builder.WriteString("+" + strconv.Itoa(dr.Modifier))
	}
	if dr.Modifier < 0 {
		absolute := int(math.Abs(float64(dr.Modifier)))
		builder.WriteString("-" + strconv.Itoa(absolute))
	}
	return builder.String()
}

func (dr DiceRoll) Roll() int {
	return dr.RollWith(defaultRand{}).Total + dr.Modifier
}

// RollWith rolls the dice without the flat modifier.
func (dr DiceRoll) RollWith(r Rand) DieResult {
	result := DieResult{Dice: dr, Faces: make([]int, dr.Count)}
	for x := range dr.Count {
		face := r.IntN(dr.DiceSides) + 1
		result.Faces[x] = face
		result.Total += face
	}
	return result
}

type DieResult struct {
	Dice  DiceRoll
	Faces []int
	Total int
}

// Result of evaluating a full roll expression.
type Result struct {
	Expression string
	Total      float64
	Dice       []DieResult
}

func (r Result) String() string {
	var faces []string
	for _, d := range r.Dice {
		faces = append(faces, fmt.Sprintf("%dd%d%v", d.Dice.Count, d.Dice.DiceSides, d.Faces))
	}
	total := strconv.FormatFloat(r.Total, 'f', -1, 64)
	if len(faces) == 0 {
		return fmt.Sprintf("%s = %s", r.Expression, total)
	}
	return fmt.Sprintf("%s → %s = %s", r.Expression, strings.Join(faces, " "), total)
}

// Evaluate rolls an arithmetic dice expression such as "1d20 + (2 * 3) -1".
// Flavor labels in brackets after a term are ignored. A nil Rand uses
// math/rand/v2.
func Evaluate(expr string, r Rand) (Result, error) {
	if r == nil {
		r = defaultRand{}
	}
	p := &parser{input: expr, rand: r}
	p.skipSpace()
	if p.done() {
		return Result{}, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	total, err := p.expr()
	if err != nil {
		return Result{}, err
	}
	p.skipSpace()
	if !p.done() {
		return Result{}, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidExpression, p.input[p.pos:], p.pos)
	}
	return Result{Expression: expr, Total: total, Dice: p.dice}, nil
}

type parser struct {
	input  string
	pos    int
	rand   Rand
	dice   []DieResult
	rolled int
}

func (p *parser) done() bool {
	return p.pos >= len(p.input)
}

func (p *parser) peek() byte {
	if p.done() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) skipSpace() {
	for !p.done() && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) expr() (float64, error) {
	total, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '+' && op != '-' {
			return total, nil
		}
		p.pos++
		v, err := p.term()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			total += v
		} else {
			total -= v
		}
	}
}

func (p *parser) term() (float64, error) {
	total, err := p.factor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		op := p.peek()
		if op != '*' && op != '/' {
			return total, nil
		}
		p.pos++
		v, err := p.factor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			total *= v
			continue
		}
		if v == 0 {
			return 0, ErrDivideByZero
		}
		total /= v
	}
}

func (p *parser) factor() (float64, error) {
	p.skipSpace()
	var v float64
	var err error
	switch c := p.peek(); {
	case c == '-':
		p.pos++
		v, err = p.factor()
		return -v, err
	case c == '+':
		p.pos++
		return p.factor()
	case c == '(':
		p.pos++
		v, err = p.expr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, fmt.Errorf("%w: missing ) at %d", ErrInvalidExpression, p.pos)
		}
		p.pos++
	default:
		v, err = p.operand()
		if err != nil {
			return 0, err
		}
	}
	p.skipLabel()
	return v, nil
}

// operand reads a number or an NdM die term.
func (p *parser) operand() (float64, error) {
	start := p.pos
	for !p.done() && (isDigit(p.peek()) || p.peek() == '.' || p.peek() == 'd') {
		p.pos++
	}
	tok := p.input[start:p.pos]
	if tok == "" {
		return 0, fmt.Errorf("%w: expected a term at %d", ErrInvalidExpression, start)
	}
	if strings.Contains(tok, "d") {
		dr, err := ParseDiceRoll(tok)
		if err != nil {
			return 0, err
		}
		if p.rolled += dr.Count; p.rolled > MaxExpressionDice {
			return 0, fmt.Errorf("%w: more than %d dice", ErrInvalidExpression, MaxExpressionDice)
		}
		res := dr.RollWith(p.rand)
		p.dice = append(p.dice, res)
		return float64(res.Total), nil
	}
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpression, tok)
	}
	return v, nil
}

func (p *parser) skipLabel() {
	if p.peek() != '[' {
		return
	}
	if end := strings.IndexByte(p.input[p.pos:], ']'); end >= 0 {
		p.pos += end + 1
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
