package pkg

import (
	"strings"
	"testing"

	"github.com/shoenig/test/must"
)

// maxRand always rolls the highest face.
type maxRand struct{}

func (maxRand) IntN(n int) int {
	return n - 1
}

func TestParseDiceRoll(t *testing.T) {
	example := DiceRoll{
		Count:     1,
		DiceSides: 20,
		Modifier:  1,
	}
	dr, err := ParseDiceRoll("1d20+1")
	must.NoError(t, err)
	must.Eq(t, example, dr)

	dr, err = ParseDiceRoll("d8")
	must.NoError(t, err)
	must.EqOp(t, 1, dr.Count)

	_, err = ParseDiceRoll("cantaloupe")
	must.ErrorIs(t, err, ErrInvalidExpression)

	_, err = ParseDiceRoll("0d6")
	must.ErrorIs(t, err, ErrInvalidExpression)
}

func TestParseDiceRollLimits(t *testing.T) {
	dr, err := ParseDiceRoll("1000d1000")
	must.NoError(t, err)
	must.EqOp(t, MaxDiceCount, dr.Count)

	for _, roll := range []string{"1001d6", "1d1001", "10000000000000d6", "99999999999999999999d6"} {
		_, err = ParseDiceRoll(roll)
		must.ErrorIs(t, err, ErrInvalidExpression, must.Sprint(roll))
	}
}

func TestEvaluateLimits(t *testing.T) {
	_, err := Evaluate("1d20 +10000000000000d6", maxRand{})
	must.ErrorIs(t, err, ErrInvalidExpression)

	terms := make([]string, 11)
	for i := range terms {
		terms[i] = "1000d6"
	}
	_, err = Evaluate(strings.Join(terms, " + "), maxRand{})
	must.ErrorIs(t, err, ErrInvalidExpression)

	res, err := Evaluate("1000d6 + 1000d6", maxRand{})
	must.NoError(t, err)
	must.EqOp(t, 12000.0, res.Total)
}

func TestDiceRollString(t *testing.T) {
	dr := DiceRoll{
		Count:     1,
		DiceSides: 20,
		Modifier:  0,
	}
	must.EqOp(t, "1d20", dr.String())
	dr.Modifier = -2
	must.EqOp(t, "1d20-2", dr.String())
}

func TestDiceRollRange(t *testing.T) {
	dr := DiceRoll{Count: 3, DiceSides: 6, Modifier: 1}
	for range 50 {
		v := dr.Roll()
		must.Between(t, 4, v, 19)
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr  string
		total float64
		dice  int
	}{
		{"1d20 +2", 22, 1},
		{"1d20 + (3 + 2 + 2)", 27, 1},
		{"2 * (1d8 + 3)", 22, 1},
		{"1d4[Bless] +1[Additional Bonus]", 5, 1},
		{"(4[level])[Heroism]", 4, 0},
		{"- 1", -1, 0},
		{"10 / 4", 2.5, 0},
		{"2d6 - 1d4", 8, 2},
		{"0", 0, 0},
	}
	for _, c := range cases {
		res, err := Evaluate(c.expr, maxRand{})
		must.NoError(t, err, must.Sprint(c.expr))
		must.EqOp(t, c.total, res.Total, must.Sprint(c.expr))
		must.Len(t, c.dice, res.Dice, must.Sprint(c.expr))
	}
}

func TestEvaluateErrors(t *testing.T) {
	for _, expr := range []string{"", "1 +", "(1 + 2", "1d", "1 2", "abc"} {
		_, err := Evaluate(expr, maxRand{})
		must.ErrorIs(t, err, ErrInvalidExpression, must.Sprint(expr))
	}
	_, err := Evaluate("1 / 0", maxRand{})
	must.ErrorIs(t, err, ErrDivideByZero)
}

func TestResultString(t *testing.T) {
	res, err := Evaluate("2d6 + 1", maxRand{})
	must.NoError(t, err)
	must.EqOp(t, "2d6 + 1 → 2d6[6 6] = 13", res.String())
}
