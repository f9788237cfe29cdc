package tree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kgregersen/reweighter/internal/errkind"
	"github.com/kgregersen/reweighter/internal/rowsource"
	"github.com/kgregersen/reweighter/internal/variable"
)

// Sense is the comparison direction of a Cut, modeled as a tagged variant
// rather than the original's Branch::Greater/Branch::Smaller class
// hierarchy (design note: "Polymorphic cuts").
type Sense int

const (
	// Less selects rows where the variable is strictly below the threshold.
	Less Sense = iota
	// GreaterEq selects rows where the variable is at or above the threshold.
	GreaterEq
)

func (s Sense) String() string {
	if s == Less {
		return "<"
	}
	return ">"
}

// Cut is an immutable predicate over one variable.
type Cut struct {
	Variable  *variable.Variable
	Threshold float64
	Sense     Sense
}

// Pass reports whether the row currently positioned in cur satisfies the cut.
func (c Cut) Pass(cur rowsource.Cursor) (bool, error) {
	val, err := c.Variable.Value(cur)
	if err != nil {
		return false, fmt.Errorf("cut: %w", err)
	}
	if c.Sense == Less {
		return val < c.Threshold, nil
	}
	return val >= c.Threshold, nil
}

// String renders the cut in weights-file notation, e.g. "x<0.5" or "x>0.5"
// (the codec uses '>' for GreaterEq, matching the original text format).
func (c Cut) String() string {
	op := "<"
	if c.Sense == GreaterEq {
		op = ">"
	}
	return fmt.Sprintf("%s%s%v", c.Variable.Name(), op, c.Threshold)
}

// ParseCut parses a cut rendered by Cut.String, e.g. "x<0.5", looking up
// the variable by name in reg.
func ParseCut(s string, reg *variable.Registry) (Cut, error) {
	opIdx := strings.IndexAny(s, "<>")
	if opIdx < 0 {
		return Cut{}, errkind.New(errkind.Codec, "tree", "malformed cut %q: no comparison operator", s)
	}
	name := s[:opIdx]
	sense := Less
	if s[opIdx] == '>' {
		sense = GreaterEq
	}
	threshold, err := strconv.ParseFloat(s[opIdx+1:], 64)
	if err != nil {
		return Cut{}, errkind.Wrap(errkind.Codec, "tree", fmt.Errorf("malformed cut %q: %w", s, err))
	}
	v, err := reg.Get(name)
	if err != nil {
		return Cut{}, errkind.Wrap(errkind.Codec, "tree", fmt.Errorf("malformed cut %q: %w", s, err))
	}
	return Cut{Variable: v, Threshold: threshold, Sense: sense}, nil
}
