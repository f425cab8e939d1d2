package speck

import (
	"fmt"
	"strconv"
)

// Cardinality is the accepted invocation range of an interaction. A negative
// Max means unbounded.
type Cardinality struct {
	Min int
	Max int
}

// AnyTimes accepts any number of invocations, including none.
// The rewriter uses it for a `_` count.
var AnyTimes = Cardinality{Min: 0, Max: -1}

// Exactly accepts exactly n invocations.
func Exactly(n int) Cardinality {
	return Cardinality{Min: n, Max: n}
}

// AtLeast accepts n or more invocations.
func AtLeast(n int) Cardinality {
	return Cardinality{Min: n, Max: -1}
}

// AtMost accepts up to n invocations.
func AtMost(n int) Cardinality {
	return Cardinality{Min: 0, Max: n}
}

// Between accepts min to max invocations, both inclusive.
func Between(min, max int) Cardinality {
	return Cardinality{Min: min, Max: max}
}

func (c Cardinality) accepts(n int) bool {
	return c.Max < 0 || n <= c.Max
}

// String renders the cardinality in the DSL notation: "3", "(1.._)", "(_..2)".
func (c Cardinality) String() string {
	switch {
	case c.Min == c.Max:
		return strconv.Itoa(c.Min)
	case c.Max < 0 && c.Min == 0:
		return "_"
	case c.Max < 0:
		return fmt.Sprintf("(%d.._)", c.Min)
	case c.Min == 0:
		return fmt.Sprintf("(_..%d)", c.Max)
	default:
		return fmt.Sprintf("(%d..%d)", c.Min, c.Max)
	}
}

func toCardinality(count any) (Cardinality, error) {
	switch c := count.(type) {
	case Cardinality:
		if c.Min < 0 || (c.Max >= 0 && c.Max < c.Min) {
			return Cardinality{}, fmt.Errorf("invalid cardinality %+v", c)
		}
		return c, nil
	case int:
		if c < 0 {
			return Cardinality{}, fmt.Errorf("invalid cardinality %d", c)
		}
		return Exactly(c), nil
	default:
		return Cardinality{}, fmt.Errorf("cardinality must be an int or speck.Cardinality, got %T", count)
	}
}
