package grammar

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Parse reads a GBNF grammar text into a rule graph rooted at "root".
// Supported syntax: `name ::= body` rules, alternation with |, sequences,
// "literal" terminals, [a-z] character classes (^ negates), ( ) grouping,
// * + ? repetition and # comments.
func Parse(text string) (*Grammar, error) {
	p := &parser{
		src: text,
		g:   &Grammar{names: map[string]int{}},
	}
	p.skipSpace(true)
	for p.i < len(p.src) {
		if err := p.parseRule(); err != nil {
			return nil, err
		}
		p.skipSpace(true)
	}
	root, ok := p.g.names["root"]
	if !ok {
		return nil, fmt.Errorf("grammar: missing root rule")
	}
	for name, id := range p.g.names {
		if p.g.rules[id] == nil {
			return nil, fmt.Errorf("grammar: undefined rule %q", name)
		}
	}
	p.g.root = root
	return p.g, nil
}

type parser struct {
	src string
	i   int
	g   *Grammar
	gen int // counter for synthesized repetition rules
}

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("grammar: %s at offset %d", fmt.Sprintf(format, args...), p.i)
}

func (p *parser) ruleID(name string) int {
	if id, ok := p.g.names[name]; ok {
		return id
	}
	id := len(p.g.rules)
	p.g.rules = append(p.g.rules, nil)
	p.g.names[name] = id
	return id
}

func (p *parser) synthRule(base string, alts []alternative) int {
	p.gen++
	id := p.ruleID(fmt.Sprintf("%s_%d", base, p.gen))
	p.g.rules[id] = alts
	return id
}

func (p *parser) parseRule() error {
	name := p.readName()
	if name == "" {
		return p.errf("expected rule name")
	}
	p.skipSpace(false)
	if !strings.HasPrefix(p.src[p.i:], "::=") {
		return p.errf("expected ::= after rule name %q", name)
	}
	p.i += 3
	p.skipSpace(false)

	alts, err := p.parseAlternates(name, false)
	if err != nil {
		return err
	}
	id := p.ruleID(name)
	if p.g.rules[id] != nil {
		return p.errf("duplicate rule %q", name)
	}
	p.g.rules[id] = alts
	return nil
}

func (p *parser) parseAlternates(base string, nested bool) ([]alternative, error) {
	var alts []alternative
	for {
		seq, err := p.parseSequence(base, nested)
		if err != nil {
			return nil, err
		}
		alts = append(alts, seq)
		p.skipSpace(nested)
		if p.i < len(p.src) && p.src[p.i] == '|' {
			p.i++
			p.skipSpace(true)
			continue
		}
		return alts, nil
	}
}

func (p *parser) parseSequence(base string, nested bool) (alternative, error) {
	var seq alternative
	lastStart := 0
	for p.i < len(p.src) {
		p.skipSpace(nested)
		if p.i >= len(p.src) {
			break
		}
		switch c := p.src[p.i]; {
		case c == '"':
			lastStart = len(seq)
			lit, err := p.readLiteral()
			if err != nil {
				return nil, err
			}
			for _, r := range lit {
				seq = append(seq, element{kind: elemChar, ranges: []charRange{{r, r}}})
			}
		case c == '[':
			lastStart = len(seq)
			el, err := p.readCharClass()
			if err != nil {
				return nil, err
			}
			seq = append(seq, el)
		case c == '(':
			lastStart = len(seq)
			p.i++
			p.skipSpace(true)
			alts, err := p.parseAlternates(base, true)
			if err != nil {
				return nil, err
			}
			if p.i >= len(p.src) || p.src[p.i] != ')' {
				return nil, p.errf("expected closing paren")
			}
			p.i++
			id := p.synthRule(base, alts)
			seq = append(seq, element{kind: elemRuleRef, rule: id})
		case c == '*' || c == '+' || c == '?':
			if len(seq) == lastStart {
				return nil, p.errf("repetition %q without preceding item", string(c))
			}
			p.i++
			items := append(alternative(nil), seq[lastStart:]...)
			var alts []alternative
			switch c {
			case '*':
				// R ::= items R | (empty)
				alts = []alternative{nil, {}}
			case '+':
				// R ::= items R | items
				alts = []alternative{nil, items}
			case '?':
				// R ::= items | (empty)
				alts = []alternative{items, {}}
			}
			id := p.synthRule(base, alts)
			if c == '*' || c == '+' {
				rec := append(append(alternative(nil), items...), element{kind: elemRuleRef, rule: id})
				p.g.rules[id][0] = rec
			}
			seq = append(seq[:lastStart], element{kind: elemRuleRef, rule: id})
		case isWordChar(rune(c)):
			lastStart = len(seq)
			name := p.readName()
			seq = append(seq, element{kind: elemRuleRef, rule: p.ruleID(name)})
		default:
			return seq, nil
		}
	}
	return seq, nil
}

func (p *parser) readName() string {
	start := p.i
	for p.i < len(p.src) && isWordChar(rune(p.src[p.i])) {
		p.i++
	}
	return p.src[start:p.i]
}

func (p *parser) readLiteral() (string, error) {
	p.i++ // opening quote
	var sb strings.Builder
	for p.i < len(p.src) {
		if p.src[p.i] == '"' {
			p.i++
			return sb.String(), nil
		}
		r, err := p.readChar()
		if err != nil {
			return "", err
		}
		sb.WriteRune(r)
	}
	return "", p.errf("unterminated literal")
}

func (p *parser) readCharClass() (element, error) {
	p.i++ // opening bracket
	el := element{kind: elemChar}
	if p.i < len(p.src) && p.src[p.i] == '^' {
		el.neg = true
		p.i++
	}
	for p.i < len(p.src) {
		if p.src[p.i] == ']' {
			p.i++
			if len(el.ranges) == 0 {
				return element{}, p.errf("empty character class")
			}
			return el, nil
		}
		lo, err := p.readChar()
		if err != nil {
			return element{}, err
		}
		hi := lo
		if p.i+1 < len(p.src) && p.src[p.i] == '-' && p.src[p.i+1] != ']' {
			p.i++
			hi, err = p.readChar()
			if err != nil {
				return element{}, err
			}
			if hi < lo {
				return element{}, p.errf("inverted range")
			}
		}
		el.ranges = append(el.ranges, charRange{lo, hi})
	}
	return element{}, p.errf("unterminated character class")
}

// readChar consumes one possibly escaped character.
func (p *parser) readChar() (rune, error) {
	if p.i >= len(p.src) {
		return 0, p.errf("unexpected end of input")
	}
	if p.src[p.i] != '\\' {
		r, size := utf8.DecodeRuneInString(p.src[p.i:])
		if r == utf8.RuneError && size == 1 {
			return 0, p.errf("invalid UTF-8")
		}
		p.i += size
		return r, nil
	}
	p.i++
	if p.i >= len(p.src) {
		return 0, p.errf("dangling escape")
	}
	c := p.src[p.i]
	p.i++
	switch c {
	case 'n':
		return '\n', nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case '\\', '"', '[', ']', '^', '-':
		return rune(c), nil
	case 'x':
		return p.readHex(2)
	case 'u':
		return p.readHex(4)
	case 'U':
		return p.readHex(8)
	}
	return 0, p.errf("unknown escape \\%c", c)
}

func (p *parser) readHex(n int) (rune, error) {
	if p.i+n > len(p.src) {
		return 0, p.errf("truncated hex escape")
	}
	v, err := strconv.ParseUint(p.src[p.i:p.i+n], 16, 32)
	if err != nil {
		return 0, p.errf("bad hex escape")
	}
	p.i += n
	return rune(v), nil
}

// skipSpace consumes spaces, tabs and comments; newlines only when inside
// a nested expression or between rules.
func (p *parser) skipSpace(newlines bool) {
	for p.i < len(p.src) {
		switch c := p.src[p.i]; {
		case c == ' ' || c == '\t':
			p.i++
		case c == '#':
			for p.i < len(p.src) && p.src[p.i] != '\n' {
				p.i++
			}
		case c == '\n' || c == '\r':
			if !newlines && !p.continuationAhead() {
				return
			}
			p.i++
		default:
			return
		}
	}
}

// continuationAhead reports whether the next non-blank line continues the
// current rule body with an alternation.
func (p *parser) continuationAhead() bool {
	j := p.i
	for j < len(p.src) {
		switch p.src[j] {
		case '\n', '\r', ' ', '\t':
			j++
		case '|':
			return true
		default:
			return false
		}
	}
	return false
}

func isWordChar(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
