package rolltree

// Source tells where a modifier was discovered.
type Source int

const (
	// SourceReference modifiers are attached to a node because a variable
	// in its parent's formula resolved to the modifier.
	SourceReference Source = iota
	// SourceCalculated modifiers are bonuses that make up a calculated
	// value referenced by a node.
	SourceCalculated
)

func (s Source) String() string {
	switch s {
	case SourceReference:
		return "reference"
	case SourceCalculated:
		return "calculated"
	default:
		return "unknown"
	}
}

// Modifier is a named contribution to a roll that can be switched on and
// off independently. Formula is either a plain value ("2") or a sub-formula
// that may reference further variables.
type Modifier struct {
	Name    string
	Formula string
	Enabled bool
	Source  Source
}

// Calculated is a numeric value built up from a base and a list of named
// bonuses, such as a skill total. Each bonus becomes a calculated modifier
// of the node referencing the value.
type Calculated struct {
	Base    float64
	Bonuses []Modifier
}
