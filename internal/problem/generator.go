package problem

import (
	"fmt"
	"math/rand"

	"github.com/Gamechiefx/flashmath-sub004/internal/rating"
)

// Arithmetic operations served by the arena.
const (
	OpAddition       = "addition"
	OpSubtraction    = "subtraction"
	OpMultiplication = "multiplication"
	OpDivision       = "division"
)

var Operations = []string{OpAddition, OpSubtraction, OpMultiplication, OpDivision}

// Problem is one generated question; the answer never leaves the server.
type Problem struct {
	Question  string
	Answer    int
	Operation string
}

// Generator supplies problems for a given operation and practice tier. It is a
// pure collaborator of the orchestrator; implementations must be safe for
// concurrent use.
type Generator interface {
	Generate(operation string, tier int) Problem
}

// Arithmetic is the default generator. Operand magnitudes follow the tier's
// band-interpolated range.
type Arithmetic struct{}

func NewArithmetic() Arithmetic { return Arithmetic{} }

func (Arithmetic) Generate(operation string, tier int) Problem {
	min, max := rating.OperandRange(tier)
	if max <= min {
		max = min + 1
	}
	a := min + rand.Intn(max-min+1)
	b := min + rand.Intn(max-min+1)

	switch operation {
	case OpSubtraction:
		if b > a {
			a, b = b, a
		}
		return Problem{Question: fmt.Sprintf("%d - %d", a, b), Answer: a - b, Operation: operation}
	case OpMultiplication:
		// keep factors near the square root of the band range
		a = smallFactor(min, max)
		b = smallFactor(min, max)
		return Problem{Question: fmt.Sprintf("%d × %d", a, b), Answer: a * b, Operation: operation}
	case OpDivision:
		b = smallFactor(min, max)
		if b == 0 {
			b = 1
		}
		q := smallFactor(min, max)
		if q == 0 {
			q = 1
		}
		a = b * q
		return Problem{Question: fmt.Sprintf("%d ÷ %d", a, b), Answer: q, Operation: operation}
	default:
		return Problem{Question: fmt.Sprintf("%d + %d", a, b), Answer: a + b, Operation: OpAddition}
	}
}

func smallFactor(min, max int) int {
	lo, hi := 2, 12
	span := max - min
	if span > 100 {
		hi = 25
	}
	if span > 500 {
		hi = 50
	}
	return lo + rand.Intn(hi-lo+1)
}

// RandomOperation picks an operation uniformly.
func RandomOperation() string {
	return Operations[rand.Intn(len(Operations))]
}
