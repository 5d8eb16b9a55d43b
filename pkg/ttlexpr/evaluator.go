// Package ttlexpr evaluates the arithmetic expressions used to configure lifetimes,
// such as "15 * 24 * 60 * 60".
//
// An expression is a sequence of non-negative decimal integers joined by the binary
// operators + - * /, with optional blanks between tokens. Parentheses are not
// supported. * and / bind tighter than + and -, and operators of equal precedence
// associate left to right. Division truncates toward zero.
package ttlexpr

import (
	"fmt"
	"math"
	"strings"

	"github.com/turtacn/trustkit/pkg/errors"
)

// Evaluate returns the integer value of expr.
//
// Empty input, a leading or trailing operator, two operators in a row, any character
// outside digits, blanks and + - * /, division by zero, and integer overflow all
// fail with a configuration error.
func Evaluate(expr string) (int, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, errors.ErrConfiguration("TTL expression cannot be empty").
			WithMetadata("expression", expr)
	}

	var (
		terms   []int
		operand int
		// hasDigits is set once the current operand has a digit; closed once a blank follows it.
		hasDigits bool
		closed    bool
		prevOp    = '+'
	)

	// resolve applies the pending operator to the operand that just ended at pos.
	resolve := func(pos int) error {
		if !hasDigits {
			return syntaxError(expr, pos, "missing operand")
		}
		switch prevOp {
		case '+':
			terms = append(terms, operand)
		case '-':
			terms = append(terms, -operand)
		case '*':
			top := terms[len(terms)-1]
			product := top * operand
			if top != 0 && product/top != operand {
				return overflowError(expr)
			}
			terms[len(terms)-1] = product
		case '/':
			if operand == 0 {
				return errors.ErrConfiguration("division by zero in TTL expression").
					WithMetadata("expression", expr).
					WithMetadata("position", pos)
			}
			terms[len(terms)-1] /= operand
		}
		return nil
	}

	for i, c := range expr {
		switch {
		case c >= '0' && c <= '9':
			if closed {
				return 0, syntaxError(expr, i, "unexpected digit after blank")
			}
			d := int(c - '0')
			if operand > (math.MaxInt-d)/10 {
				return 0, overflowError(expr)
			}
			operand = operand*10 + d
			hasDigits = true
		case c == ' ' || c == '\t':
			if hasDigits {
				closed = true
			}
		case c == '+' || c == '-' || c == '*' || c == '/':
			if err := resolve(i); err != nil {
				return 0, err
			}
			prevOp = c
			operand, hasDigits, closed = 0, false, false
		default:
			return 0, syntaxError(expr, i, fmt.Sprintf("unexpected character %q", c))
		}
	}
	if err := resolve(len(expr)); err != nil {
		return 0, err
	}

	total := 0
	for _, term := range terms {
		if (term > 0 && total > math.MaxInt-term) || (term < 0 && total < math.MinInt-term) {
			return 0, overflowError(expr)
		}
		total += term
	}
	return total, nil
}

func syntaxError(expr string, pos int, reason string) error {
	return errors.ErrConfiguration(fmt.Sprintf("malformed TTL expression %q at position %d: %s", expr, pos, reason)).
		WithMetadata("expression", expr).
		WithMetadata("position", pos)
}

func overflowError(expr string) error {
	return errors.ErrConfiguration(fmt.Sprintf("TTL expression %q overflows", expr)).
		WithMetadata("expression", expr)
}
