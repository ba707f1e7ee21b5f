package equation

import "math-race-service/internal/domain"

// Params are the difficulty knobs of the generator. Invalid values are corrected by Normalize,
// never rejected.
type Params struct {
	TermCount     int
	VariableCount int
	Operators     []domain.Operator
	OptionCount   int
	OptionMin     int
	OptionMax     int
	ConstantMin   int
	ConstantMax   int
	Policy        domain.ComparisonPolicy
}

// DefaultParams are used for every field Normalize has to replace.
func DefaultParams() Params {
	return Params{
		TermCount:     2,
		VariableCount: 1,
		Operators:     []domain.Operator{domain.OpAdd, domain.OpSub},
		OptionCount:   4,
		OptionMin:     -10,
		OptionMax:     10,
		ConstantMin:   -9,
		ConstantMax:   9,
		Policy:        domain.PolicyGreater,
	}
}

// ParamsFor derives the generator parameters from a level and its world.
func ParamsFor(level domain.Level, world domain.World) Params {
	return Params{
		TermCount:     level.TermCount,
		VariableCount: level.VariableCount,
		Operators:     append([]domain.Operator(nil), world.Operators...),
		OptionCount:   world.OptionCount,
		OptionMin:     world.OptionMin,
		OptionMax:     world.OptionMax,
		ConstantMin:   world.ConstantMin,
		ConstantMax:   world.ConstantMax,
		Policy:        level.ResultType,
	}
}

// Normalize returns a copy with every field inside its valid domain:
// TermCount >= 1, 1 <= VariableCount <= TermCount, OptionCount >= 1 and no larger than the
// option range, low <= high for both ranges, a constant range holding a non-zero value,
// a non-empty operator set and a known policy.
func (p Params) Normalize() Params {
	def := DefaultParams()
	out := p

	if out.TermCount < 1 {
		out.TermCount = def.TermCount
	}
	if out.VariableCount < 1 {
		out.VariableCount = 1
	}
	if out.VariableCount > out.TermCount {
		out.VariableCount = out.TermCount
	}

	out.Operators = nil
	seen := make(map[domain.Operator]bool, len(p.Operators))
	for _, op := range p.Operators {
		if op.Valid() && !seen[op] {
			seen[op] = true
			out.Operators = append(out.Operators, op)
		}
	}
	if len(out.Operators) == 0 {
		out.Operators = def.Operators
	}

	if out.OptionMin > out.OptionMax {
		out.OptionMin, out.OptionMax = out.OptionMax, out.OptionMin
	}
	if out.ConstantMin > out.ConstantMax {
		out.ConstantMin, out.ConstantMax = out.ConstantMax, out.ConstantMin
	}
	if out.ConstantMin == 0 && out.ConstantMax == 0 {
		out.ConstantMin, out.ConstantMax = def.ConstantMin, def.ConstantMax
	}

	if out.OptionCount < 2 {
		out.OptionCount = def.OptionCount
	}
	if width := int64(out.OptionMax) - int64(out.OptionMin) + 1; int64(out.OptionCount) > width {
		out.OptionCount = int(width)
	}

	if !out.Policy.Valid() {
		out.Policy = def.Policy
	}
	return out
}
