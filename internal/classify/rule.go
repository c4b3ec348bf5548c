package classify

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/talgya/hexgrid/internal/fault"
)

// Env is what a block rule sees for the cell being tested.
//
//	AvgHeight > AltitudeLimit || AvgHeight < WaterBase || !InMap
type Env struct {
	AvgHeight     float64
	CenterHeight  float64
	AngleToUp     float64
	X, Y          float64
	AltitudeLimit float64
	WaterBase     float64
	SlopeLimit    float64
	InMap         bool
}

// Rule is a compiled blocking predicate.
type Rule struct {
	src     string
	program *vm.Program
}

// CompileRule compiles src into a boolean predicate over Env.
func CompileRule(src string) (*Rule, error) {
	prog, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile block rule %q: %v: %w", src, err, fault.ErrConfiguration)
	}
	return &Rule{src: src, program: prog}, nil
}

// Blocked evaluates the rule for env.
func (r *Rule) Blocked(env Env) (bool, error) {
	out, err := vm.Run(r.program, env)
	if err != nil {
		return false, fmt.Errorf("run block rule %q: %w", r.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("block rule %q returned %T: %w", r.src, out, fault.ErrInvariant)
	}
	return b, nil
}

// builtinBlocked is the default predicate.
func builtinBlocked(env Env) bool {
	return !env.InMap ||
		env.AvgHeight > env.AltitudeLimit ||
		env.AvgHeight < env.WaterBase ||
		env.AngleToUp > env.SlopeLimit
}
