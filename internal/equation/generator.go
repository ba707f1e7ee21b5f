package equation

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"math-race-service/internal/domain"
)

// maxAttempts bounds the generate-validate loop before the linear fallback is used.
const maxAttempts = 64

// Generator produces comparison questions. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator builds a generator over the given random source.
func NewGenerator(src rand.Source) *Generator {
	return &Generator{rnd: rand.New(src)}
}

// NewSeededGenerator is reproducible; use it in tests and simulations.
func NewSeededGenerator(seed uint64) *Generator {
	return NewGenerator(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewDefaultGenerator seeds from the wall clock and the runtime source.
func NewDefaultGenerator() *Generator {
	return NewGenerator(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
}

// GenerateMany repeats GenerateOne n times. Questions may repeat.
func (g *Generator) GenerateMany(params Params, n int) []domain.Question {
	if n <= 0 {
		return []domain.Question{}
	}
	out := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.GenerateOne(params))
	}
	return out
}

// GenerateOne always returns a question whose correct answer is one of its options.
func (g *Generator) GenerateOne(params Params) domain.Question {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := params.Normalize()
	options := g.options(p)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		expr := g.expression(p)
		if q, ok := buildQuestion(expr, options, p.Policy); ok {
			return q
		}
	}

	q, _ := buildQuestion(g.fallback(p), options, p.Policy)
	return q
}

func (g *Generator) expression(p Params) domain.Expression {
	variable := make([]bool, p.TermCount)
	for _, idx := range g.rnd.Perm(p.TermCount)[:p.VariableCount] {
		variable[idx] = true
	}

	expr := domain.Expression{
		Terms:     make([]domain.Term, p.TermCount),
		Operators: make([]domain.Operator, 0, p.TermCount-1),
	}
	for i := range expr.Terms {
		expr.Terms[i] = domain.Term{
			Coefficient: g.nonZero(p.ConstantMin, p.ConstantMax),
			Variable:    variable[i],
		}
		if i > 0 {
			expr.Operators = append(expr.Operators, p.Operators[g.rnd.IntN(len(p.Operators))])
		}
	}
	return expr
}

// fallback is linear with a non-zero coefficient, so it is valid for any distinct options.
func (g *Generator) fallback(p Params) domain.Expression {
	return domain.Expression{
		Terms: []domain.Term{
			{Coefficient: g.nonZero(p.ConstantMin, p.ConstantMax), Variable: true},
			{Coefficient: g.nonZero(p.ConstantMin, p.ConstantMax)},
		},
		Operators: []domain.Operator{domain.OpAdd},
	}
}

// options draws OptionCount unique integers from the option range, sorted ascending.
func (g *Generator) options(p Params) []int {
	width := int64(p.OptionMax) - int64(p.OptionMin) + 1
	out := make([]int, 0, p.OptionCount)

	if width <= int64(4*p.OptionCount) {
		for _, i := range g.rnd.Perm(int(width))[:p.OptionCount] {
			out = append(out, p.OptionMin+i)
		}
	} else {
		seen := make(map[int]bool, p.OptionCount)
		for len(out) < p.OptionCount {
			v := p.OptionMin + int(g.rnd.Int64N(width))
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

// nonZero draws uniformly from [lo, hi] \ {0}. Normalize guarantees such a value exists.
func (g *Generator) nonZero(lo, hi int) int {
	span := int64(hi) - int64(lo) + 1
	hasZero := lo <= 0 && hi >= 0
	if hasZero {
		span--
	}
	v := lo + int(g.rnd.Int64N(span))
	if hasZero && v >= 0 {
		v++
	}
	return v
}

// buildQuestion validates expr against the options and picks the correct answer.
func buildQuestion(expr domain.Expression, options []int, policy domain.ComparisonPolicy) (domain.Question, bool) {
	if len(options) == 0 {
		return domain.Question{}, false
	}
	lo, hi := options[0], options[len(options)-1]
	q := domain.Question{
		Text:       Render(expr),
		Expression: expr,
		Options:    options,
	}
	if len(options) == 1 {
		q.CorrectAnswer = lo
		return q, true
	}

	if expr.VariableTerms() == 0 {
		return domain.Question{}, false
	}
	for _, x := range options {
		if _, ok := Evaluate(expr, x); !ok {
			return domain.Question{}, false
		}
	}
	yLo, _ := Evaluate(expr, lo)
	yHi, _ := Evaluate(expr, hi)
	if yLo.Equal(yHi) {
		return domain.Question{}, false
	}

	q.CorrectAnswer = pick(policy, lo, hi, yLo.Cmp(yHi))
	return q, true
}

// pick resolves the extreme option the policy favours; cmp compares y(lo) with y(hi).
func pick(policy domain.ComparisonPolicy, lo, hi, cmp int) int {
	if policy == domain.PolicyLess {
		if cmp > 0 {
			return hi
		}
		return lo
	}
	if cmp > 0 {
		return lo
	}
	return hi
}
