// Package grammar implements GBNF-constrained decoding: a parser for the
// BNF-like grammar syntax and a derivation-state machine that restricts
// the candidate vocabulary to tokens consistent with the grammar.
package grammar

import (
	"unicode/utf8"
)

type elemKind int

const (
	elemChar    elemKind = iota // character class, possibly negated
	elemRuleRef                 // reference to another rule
)

type charRange struct {
	lo, hi rune
}

type element struct {
	kind   elemKind
	rule   int // rule id for elemRuleRef
	neg    bool
	ranges []charRange
}

func (e element) matches(r rune) bool {
	in := false
	for _, cr := range e.ranges {
		if r >= cr.lo && r <= cr.hi {
			in = true
			break
		}
	}
	if e.neg {
		return !in
	}
	return in
}

// alternative is one sequence of elements; a rule is a set of alternatives.
type alternative []element

// Grammar is a parsed rule graph rooted at the "root" rule.
type Grammar struct {
	rules [][]alternative
	names map[string]int
	root  int
}

// pos identifies one element inside the rule graph. idx may equal the
// alternative length, marking its end.
type pos struct {
	rule, alt, idx int
}

type stack []pos

// Machine tracks every partial derivation of a Grammar consistent with the
// text accepted so far. Multiple parallel stacks model ambiguity. An empty
// stack means that derivation has fully matched the grammar.
type Machine struct {
	g      *Grammar
	stacks []stack
}

// Machine returns a fresh derivation machine positioned at the start of
// the root rule.
func (g *Grammar) Machine() *Machine {
	m := &Machine{g: g}
	for alt := range g.rules[g.root] {
		start := pos{g.root, alt, 0}
		if g.atEnd(start) {
			m.stacks = appendUnique(m.stacks, stack{})
			continue
		}
		g.expand(stack{start}, &m.stacks)
	}
	return m
}

func (g *Grammar) atEnd(p pos) bool {
	return p.idx >= len(g.rules[p.rule][p.alt])
}

func (g *Grammar) elem(p pos) element {
	return g.rules[p.rule][p.alt][p.idx]
}

// expand resolves rule references at the top of st until every resulting
// stack either is empty or has a character class on top, collecting the
// results into out.
func (g *Grammar) expand(st stack, out *[]stack) {
	if len(st) == 0 {
		*out = appendUnique(*out, st)
		return
	}
	top := st[len(st)-1]
	el := g.elem(top)
	if el.kind == elemChar {
		*out = appendUnique(*out, st)
		return
	}

	// Rule reference: substitute each alternative of the referenced rule,
	// keeping the continuation after the reference underneath.
	for alt := range g.rules[el.rule] {
		next := append(stack(nil), st[:len(st)-1]...)
		cont := pos{top.rule, top.alt, top.idx + 1}
		if !g.atEnd(cont) {
			next = append(next, cont)
		}
		sub := pos{el.rule, alt, 0}
		if !g.atEnd(sub) {
			next = append(next, sub)
		}
		g.expand(next, out)
	}
}

// step consumes one rune across the given stacks, returning the surviving
// advanced stacks.
func (g *Grammar) step(stacks []stack, r rune) []stack {
	var out []stack
	for _, st := range stacks {
		if len(st) == 0 {
			continue
		}
		top := st[len(st)-1]
		if !g.elem(top).matches(r) {
			continue
		}
		next := append(stack(nil), st[:len(st)-1]...)
		cont := pos{top.rule, top.alt, top.idx + 1}
		if !g.atEnd(cont) {
			next = append(next, cont)
		}
		g.expand(next, &out)
	}
	return out
}

// Allow reports whether the entire piece is a valid continuation of at
// least one active derivation. Pieces with invalid UTF-8 are rejected.
func (m *Machine) Allow(piece string) bool {
	if piece == "" {
		return false
	}
	cur := m.stacks
	for _, r := range piece {
		if r == utf8.RuneError {
			return false
		}
		cur = m.g.step(cur, r)
		if len(cur) == 0 {
			return false
		}
	}
	return true
}

// Accept advances every derivation stack across the piece. Only pieces for
// which Allow returned true should be accepted.
func (m *Machine) Accept(piece string) {
	for _, r := range piece {
		m.stacks = m.g.step(m.stacks, r)
	}
}

// Done reports whether some derivation has fully matched the grammar, i.e.
// the end-of-sequence token is admissible.
func (m *Machine) Done() bool {
	for _, st := range m.stacks {
		if len(st) == 0 {
			return true
		}
	}
	return false
}

// Alive reports whether any derivation remains.
func (m *Machine) Alive() bool {
	return len(m.stacks) > 0
}

func appendUnique(stacks []stack, st stack) []stack {
	for _, have := range stacks {
		if stackEqual(have, st) {
			return stacks
		}
	}
	return append(stacks, st)
}

func stackEqual(a, b stack) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
