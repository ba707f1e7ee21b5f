package equation

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"math-race-service/internal/domain"
)

const (
	divisionPrecision = 32
	// resultPlaces absorbs division rounding so algebraically equal values compare equal.
	resultPlaces = 9
)

// Evaluate computes expr at x with * and / binding tighter than + and -.
// It returns false when the expression is malformed or divides by zero.
func Evaluate(expr domain.Expression, x int) (decimal.Decimal, bool) {
	if len(expr.Terms) == 0 || len(expr.Operators) != len(expr.Terms)-1 {
		return decimal.Zero, false
	}
	xv := decimal.NewFromInt(int64(x))
	value := func(t domain.Term) decimal.Decimal {
		c := decimal.NewFromInt(int64(t.Coefficient))
		if t.Variable {
			return c.Mul(xv)
		}
		return c
	}

	sum := decimal.Zero
	pending := domain.OpAdd
	product := value(expr.Terms[0])
	for i, op := range expr.Operators {
		next := value(expr.Terms[i+1])
		switch op {
		case domain.OpMul:
			product = product.Mul(next)
		case domain.OpDiv:
			if next.IsZero() {
				return decimal.Zero, false
			}
			product = product.DivRound(next, divisionPrecision)
		case domain.OpAdd, domain.OpSub:
			sum = accumulate(sum, pending, product)
			pending = op
			product = next
		default:
			return decimal.Zero, false
		}
	}
	return accumulate(sum, pending, product).Round(resultPlaces), true
}

func accumulate(sum decimal.Decimal, op domain.Operator, v decimal.Decimal) decimal.Decimal {
	if op == domain.OpSub {
		return sum.Sub(v)
	}
	return sum.Add(v)
}

// Render formats expr as "y = 3x + (-2) * x".
func Render(expr domain.Expression) string {
	var b strings.Builder
	b.WriteString("y = ")
	for i, t := range expr.Terms {
		if i > 0 {
			b.WriteByte(' ')
			if i-1 < len(expr.Operators) {
				b.WriteString(string(expr.Operators[i-1]))
			}
			b.WriteByte(' ')
		}
		s := renderTerm(t)
		if i > 0 && t.Coefficient < 0 {
			s = "(" + s + ")"
		}
		b.WriteString(s)
	}
	return b.String()
}

func renderTerm(t domain.Term) string {
	if !t.Variable {
		return strconv.Itoa(t.Coefficient)
	}
	switch t.Coefficient {
	case 1:
		return "x"
	case -1:
		return "-x"
	default:
		return strconv.Itoa(t.Coefficient) + "x"
	}
}
