package filter

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Expression is a small boolean word-expression over a set of present
// words, e.g. "fast and not mpi", "linux or darwin". It backs the
// platform/option/keyword/parameter enable expressions and the
// dependency result word-expression (spec.md §3/§4.3/§4.4). Precedence,
// low to high: or, and, not. Parentheses are supported for grouping.
//
// This is a deliberately small expression language: the original
// vvtest's keyword-expression grammar is richer, but spec.md does not
// pin down its exact grammar, so a conventional and/or/not/parens
// boolean algebra over words is used.
type Expression struct {
	tokens []string
	pos    int
}

// Parse tokenizes expr for repeated evaluation via Eval.
func Parse(expr string) *Expression {
	return &Expression{tokens: tokenize(expr)}
}

// Eval reports whether the expression is satisfied given the supplied
// set of present words (case-insensitive).
func (e *Expression) Eval(present sets.String) bool {
	e.pos = 0
	if len(e.tokens) == 0 {
		return true
	}
	lower := sets.NewString()
	for _, w := range present.List() {
		lower.Insert(strings.ToLower(w))
	}
	return e.parseOr(lower)
}

func (e *Expression) peek() string {
	if e.pos >= len(e.tokens) {
		return ""
	}
	return e.tokens[e.pos]
}

func (e *Expression) next() string {
	t := e.peek()
	e.pos++
	return t
}

func (e *Expression) parseOr(present sets.String) bool {
	result := e.parseAnd(present)
	for strings.EqualFold(e.peek(), "or") {
		e.next()
		rhs := e.parseAnd(present)
		result = result || rhs
	}
	return result
}

func (e *Expression) parseAnd(present sets.String) bool {
	result := e.parseNot(present)
	for strings.EqualFold(e.peek(), "and") {
		e.next()
		rhs := e.parseNot(present)
		result = result && rhs
	}
	return result
}

func (e *Expression) parseNot(present sets.String) bool {
	if strings.EqualFold(e.peek(), "not") {
		e.next()
		return !e.parseNot(present)
	}
	return e.parseAtom(present)
}

func (e *Expression) parseAtom(present sets.String) bool {
	tok := e.next()
	if tok == "(" {
		result := e.parseOr(present)
		if e.peek() == ")" {
			e.next()
		}
		return result
	}
	return present.Has(strings.ToLower(tok))
}

func tokenize(expr string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range expr {
		switch r {
		case '(', ')':
			flush()
			tokens = append(tokens, string(r))
		case ' ', '\t', ',':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// Satisfied is a convenience for the common case of evaluating a
// possibly-empty expression string directly against a word set,
// returning true for an empty/blank expression (no constraint).
func Satisfied(expr string, present sets.String) bool {
	if strings.TrimSpace(expr) == "" {
		return true
	}
	return Parse(expr).Eval(present)
}
