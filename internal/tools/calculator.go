package tools

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	dispatch "github.com/ZanzyTHEbar/dispatch-agent"
	"github.com/Knetic/govaluate"
)

const calculatorStage = "calculator"

var (
	leadInPattern    = regexp.MustCompile(`(?i)^\s*(?:compute|calculate|evaluate|what\s+is|what's)\s*:?\s*`)
	trailingPattern  = regexp.MustCompile(`[\s?=]+$`)
	percentOfPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?|\.\d+)\s*%\s*of\s*(\d+(?:\.\d+)?|\.\d+)`)

	// A percent sign with nothing to its right is a percentage, not modulo.
	barePercentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?|\.\d+)\s*%\s*(\)|$)`)
)

// arithmeticFunctions are the only functions an expression may call. Each
// implements an operator govaluate lacks or handles differently.
var arithmeticFunctions = map[string]govaluate.ExpressionFunction{
	"div":      binary(divide),
	"floordiv": binary(floorDivide),
	"mod":      binary(modulo),
	"pow":      binary(power),
}

// Evaluate computes an arithmetic expression. Supported syntax is numbers,
// parentheses, unary + and -, and the binary operators + - * / % ** //,
// with their usual precedence. A leading "Compute:" or "what is" and a
// trailing "?" or "=" are ignored, and "N% of M" reads as N percent of M.
// Anything else is rejected with a validation error.
func Evaluate(expr string) (float64, error) {
	canonical, err := Canonicalize(expr)
	if err != nil {
		return 0, err
	}

	expression, err := govaluate.NewEvaluableExpressionWithFunctions(canonical, arithmeticFunctions)
	if err != nil {
		return 0, dispatch.NewValidationError(calculatorStage, "expression could not be compiled", err)
	}
	raw, err := expression.Evaluate(nil)
	if err != nil {
		return 0, dispatch.NewValidationError(calculatorStage, "expression could not be evaluated", err)
	}

	value, ok := raw.(float64)
	if !ok {
		return 0, dispatch.NewValidationError(calculatorStage, fmt.Sprintf("expression produced %T, not a number", raw), nil)
	}
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, dispatch.NewValidationError(calculatorStage, "result is not a finite number", nil)
	}
	return value, nil
}

// Canonicalize validates expr and rewrites it as a fully parenthesized
// expression using only literals, + - * and the whitelisted functions.
func Canonicalize(expr string) (string, error) {
	text := leadInPattern.ReplaceAllString(expr, "")
	text = trailingPattern.ReplaceAllString(text, "")
	text = percentOfPattern.ReplaceAllString(text, "(($1) * ($2) / 100)")
	text = barePercentPattern.ReplaceAllString(text, "(($1) / 100)$2")

	tokens, err := tokenize(text)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", dispatch.NewValidationError(calculatorStage, "empty expression", nil)
	}

	p := &parser{tokens: tokens}
	out, err := p.parseExpr()
	if err != nil {
		return "", err
	}
	if p.pos < len(p.tokens) {
		return "", dispatch.NewValidationError(calculatorStage, fmt.Sprintf("unexpected %q", p.tokens[p.pos].text), nil)
	}
	return out, nil
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenOperator
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isDigit(c) || c == '.':
			start := i
			for i < len(s) && (isDigit(s[i]) || s[i] == '.') {
				i++
			}
			literal := s[start:i]
			if _, err := strconv.ParseFloat(literal, 64); err != nil {
				return nil, dispatch.NewValidationError(calculatorStage, fmt.Sprintf("malformed number %q", literal), err)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: literal})
		case c == '(':
			tokens = append(tokens, token{kind: tokenLParen, text: "("})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRParen, text: ")"})
			i++
		case strings.HasPrefix(s[i:], "**") || strings.HasPrefix(s[i:], "//"):
			tokens = append(tokens, token{kind: tokenOperator, text: s[i : i+2]})
			i += 2
		case strings.IndexByte("+-*/%", c) >= 0:
			tokens = append(tokens, token{kind: tokenOperator, text: string(c)})
			i++
		default:
			return nil, dispatch.NewValidationError(calculatorStage, fmt.Sprintf("unsupported character %q at position %d", c, i), nil)
		}
	}
	return tokens, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// parser is a recursive descent parser over the grammar
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/" | "//" | "%") unary }
//	unary  = ("+" | "-") unary | power
//	power  = atom [ "**" unary ]
//	atom   = number | "(" expr ")"
//
// so ** binds tighter than a unary sign on its left and is right associative.
type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peekOperator(ops ...string) (string, bool) {
	if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokenOperator {
		return "", false
	}
	for _, op := range ops {
		if p.tokens[p.pos].text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) parseExpr() (string, error) {
	left, err := p.parseTerm()
	if err != nil {
		return "", err
	}
	for {
		op, ok := p.peekOperator("+", "-")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return "", err
		}
		left = "(" + left + " " + op + " " + right + ")"
	}
}

func (p *parser) parseTerm() (string, error) {
	left, err := p.parseUnary()
	if err != nil {
		return "", err
	}
	for {
		op, ok := p.peekOperator("*", "/", "//", "%")
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		switch op {
		case "*":
			left = "(" + left + " * " + right + ")"
		case "/":
			left = "div(" + left + ", " + right + ")"
		case "//":
			left = "floordiv(" + left + ", " + right + ")"
		case "%":
			left = "mod(" + left + ", " + right + ")"
		}
	}
}

func (p *parser) parseUnary() (string, error) {
	if op, ok := p.peekOperator("+", "-"); ok {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		if op == "-" {
			return "(0 - " + operand + ")", nil
		}
		return operand, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (string, error) {
	base, err := p.parseAtom()
	if err != nil {
		return "", err
	}
	if _, ok := p.peekOperator("**"); ok {
		p.pos++
		exponent, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		return "pow(" + base + ", " + exponent + ")", nil
	}
	return base, nil
}

func (p *parser) parseAtom() (string, error) {
	if p.pos >= len(p.tokens) {
		return "", dispatch.NewValidationError(calculatorStage, "unexpected end of expression", nil)
	}
	tok := p.tokens[p.pos]
	switch tok.kind {
	case tokenNumber:
		p.pos++
		value, _ := strconv.ParseFloat(tok.text, 64)
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	case tokenLParen:
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return "", err
		}
		if p.pos >= len(p.tokens) || p.tokens[p.pos].kind != tokenRParen {
			return "", dispatch.NewValidationError(calculatorStage, "missing closing parenthesis", nil)
		}
		p.pos++
		return "(" + inner + ")", nil
	}
	return "", dispatch.NewValidationError(calculatorStage, fmt.Sprintf("unexpected %q", tok.text), nil)
}

func binary(fn func(a, b float64) (float64, error)) govaluate.ExpressionFunction {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 arguments, got %d", len(args))
		}
		a, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("non-numeric operand %v", args[0])
		}
		b, ok := args[1].(float64)
		if !ok {
			return nil, fmt.Errorf("non-numeric operand %v", args[1])
		}
		return fn(a, b)
	}
}

var errDivisionByZero = fmt.Errorf("division by zero")

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivisionByZero
	}
	return a / b, nil
}

func floorDivide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivisionByZero
	}
	return math.Floor(a / b), nil
}

// modulo takes the sign of the divisor.
func modulo(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivisionByZero
	}
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r, nil
}

func power(a, b float64) (float64, error) {
	if a == 0 && b < 0 {
		return 0, errDivisionByZero
	}
	if a < 0 && b != math.Trunc(b) {
		return 0, fmt.Errorf("fractional power of a negative number")
	}
	return math.Pow(a, b), nil
}
