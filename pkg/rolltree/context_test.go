package rolltree

import (
	"testing"

	"github.com/shoenig/test/must"
)

func testValues() map[string]any {
	return map[string]any{
		"abilities": map[string]any{
			"str": map[string]any{"mod": 3},
			"dex": map[string]any{"mod": 1},
		},
		"level": 4,
	}
}

func TestLookup(t *testing.T) {
	c := NewContext(testValues())

	owner, key, ok := c.Lookup("@abilities.str.mod")
	must.True(t, ok)
	must.EqOp(t, "mod", key)
	must.Eq[any](t, 3, owner[key])

	_, _, ok = c.Lookup("@abilities.cha.mod")
	must.False(t, ok)

	_, _, ok = c.Lookup("@level.mod")
	must.False(t, ok)

	_, _, ok = c.Lookup("@")
	must.False(t, ok)
}

func TestResolveSelectors(t *testing.T) {
	c := NewContext(testValues(), Selector{
		Target:  "ability",
		Sources: []string{"@abilities.cha", "@abilities.dex"},
	})
	c.ResolveSelectors(nil)

	v, ok := c.Value("@ability.mod")
	must.True(t, ok)
	must.Eq[any](t, 1, v)

	c.Selectors = append(c.Selectors, Selector{
		Target:  "ability",
		Sources: []string{"abilities.str"},
	})
	c.ResolveSelectors(nil)
	v, ok = c.Value("@ability.mod")
	must.True(t, ok)
	must.Eq[any](t, 3, v)
}

func TestSelectorShadowsNested(t *testing.T) {
	values := testValues()
	values["ability"] = map[string]any{"mod": 10}
	c := NewContext(values, Selector{Target: "ability", Sources: []string{"abilities.str"}})

	v, ok := c.Value("@ability.mod")
	must.True(t, ok)
	must.Eq[any](t, 10, v)

	c.ResolveSelectors(nil)
	v, ok = c.Value("@ability.mod")
	must.True(t, ok)
	must.Eq[any](t, 3, v)
}

func TestVariables(t *testing.T) {
	vars := Variables("1d20 + @abilities.str.mod + @item-bonus + @abilities.str.mod")
	must.Eq(t, []string{"@abilities.str.mod", "@item-bonus"}, vars)
	must.SliceEmpty(t, Variables("2d6 + 3"))
}

func TestBind(t *testing.T) {
	c := NewContext(map[string]any{
		"n":    2.5,
		"f":    "1d6",
		"m":    Modifier{Name: "Bless", Formula: "1d4", Enabled: true},
		"pm":   &Modifier{Name: "Haste", Formula: "1"},
		"calc": Calculated{Base: 2},
		"sub":  map[string]any{},
		"flag": true,
	})
	must.EqOp(t, kindNumber, c.bind("@n").kind)
	must.EqOp(t, kindFragment, c.bind("@f").kind)
	must.EqOp(t, kindModifier, c.bind("@m").kind)
	must.EqOp(t, "Haste", c.bind("@pm").modifier.Name)
	must.EqOp(t, kindCalculated, c.bind("@calc").kind)
	must.EqOp(t, kindUnresolved, c.bind("@sub").kind)
	must.EqOp(t, kindUnresolved, c.bind("@flag").kind)
	must.EqOp(t, kindUnresolved, c.bind("@nope").kind)
}
