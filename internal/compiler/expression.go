package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/aretw0/novella/pkg/domain"
)

// Compiled is the structured form of a condition expression.
type Compiled struct {
	Conditions []domain.Condition
	Logic      domain.Logic
}

// CompileExpression turns an authoring expression such as
//
//	stat.courage >= 3 AND flag.met_npc AND NOT item.cursed_ring
//
// into structured conditions. Expressions may use AND or OR, but not both:
// the structured form carries a single combinator per list.
//
// Operands:
//
//	stat.ID | rel.CHARACTER.TYPE | currency.ID | var.ID      compared with == != > >= < <=
//	item.ID                                                  owned (bare) or count comparison
//	items contains "ID"                                      inventory membership
//	flag.ID                                                  set (bare)
//	choice.OPTION | choice.NODE.OPTION                       made (bare)
//	visits | visits.NODE                                     visit count comparison
//	chance < N                                               random percentage draw
func CompileExpression(expr string) (Compiled, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return Compiled{}, err
	}
	p := &parser{tokens: tokens}
	out, err := p.parseList()
	if err != nil {
		return Compiled{}, fmt.Errorf("expression %q: %w", expr, err)
	}
	return out, nil
}

type tokenKind int

const (
	tokWord   tokenKind = iota // identifier or keyword
	tokOp                      // ==, !=, >=, <=, >, <
	tokString                  // "..." or '...'
	tokNumber                  // 42 | 3.14
	tokBool                    // true | false
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		ch := expr[i]
		if unicode.IsSpace(rune(ch)) {
			i++
			continue
		}
		if ch == '=' || ch == '!' || ch == '<' || ch == '>' {
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, token{tokOp, expr[i : i+2]})
				i += 2
				continue
			}
			if ch == '=' {
				return nil, fmt.Errorf("single '=' at position %d, use '=='", i)
			}
			tokens = append(tokens, token{tokOp, string(ch)})
			i++
			continue
		}
		if ch == '"' || ch == '\'' {
			quote := ch
			j := i + 1
			for j < len(expr) && expr[j] != quote {
				if expr[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(expr) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}
			inner := expr[i+1 : j]
			inner = strings.ReplaceAll(inner, `\"`, `"`)
			inner = strings.ReplaceAll(inner, `\'`, `'`)
			inner = strings.ReplaceAll(inner, `\\`, `\`)
			tokens = append(tokens, token{tokString, inner})
			i = j + 1
			continue
		}
		if unicode.IsDigit(rune(ch)) || (ch == '-' && i+1 < len(expr) && unicode.IsDigit(rune(expr[i+1]))) {
			j := i + 1
			for j < len(expr) && (unicode.IsDigit(rune(expr[j])) || expr[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, expr[i:j]})
			i = j
			continue
		}
		if unicode.IsLetter(rune(ch)) || ch == '_' {
			j := i
			for j < len(expr) && isWordByte(expr[j]) {
				j++
			}
			word := expr[i:j]
			switch strings.ToLower(word) {
			case "true", "false":
				tokens = append(tokens, token{tokBool, strings.ToLower(word)})
			default:
				tokens = append(tokens, token{tokWord, word})
			}
			i = j
			continue
		}
		return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
	}
	return append(tokens, token{tokEOF, ""}), nil
}

func isWordByte(b byte) bool {
	r := rune(b)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || b == '_' || b == '.' || b == '-'
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	return t.kind == tokWord && strings.EqualFold(t.val, word)
}

func (p *parser) parseList() (Compiled, error) {
	var out Compiled
	for {
		c, err := p.parseTerm()
		if err != nil {
			return out, err
		}
		out.Conditions = append(out.Conditions, c)

		var logic domain.Logic
		switch {
		case p.keyword("AND"):
			logic = domain.LogicAnd
		case p.keyword("OR"):
			logic = domain.LogicOr
		case p.peek().kind == tokEOF:
			if out.Logic == "" {
				out.Logic = domain.LogicAnd
			}
			return out, nil
		default:
			return out, fmt.Errorf("unexpected %q", p.peek().val)
		}
		if out.Logic != "" && out.Logic != logic {
			return out, fmt.Errorf("cannot mix AND and OR in one expression")
		}
		out.Logic = logic
		p.next()
	}
}

func (p *parser) parseTerm() (domain.Condition, error) {
	negate := false
	for p.keyword("NOT") {
		p.next()
		negate = !negate
	}
	c, err := p.parseAtom()
	if err != nil {
		return c, err
	}
	if negate {
		return negateCondition(c)
	}
	return c, nil
}

func negateCondition(c domain.Condition) (domain.Condition, error) {
	switch c.Type {
	case domain.CondFlagSet:
		c.Type = domain.CondFlagNotSet
	case domain.CondFlagNotSet:
		c.Type = domain.CondFlagSet
	case domain.CondItemOwned:
		c.Type = domain.CondItemNotOwned
	case domain.CondItemNotOwned:
		c.Type = domain.CondItemOwned
	case domain.CondVariableEquals:
		c.Type = domain.CondVariable
		c.Operator = domain.OpNotEquals
	case domain.CondChoiceMade, domain.CondRandomChance:
		return c, fmt.Errorf("NOT is not supported on %s", c.Type)
	default:
		c.Operator = c.Operator.Negate()
	}
	return c, nil
}

func (p *parser) parseAtom() (domain.Condition, error) {
	t := p.next()
	if t.kind != tokWord {
		return domain.Condition{}, fmt.Errorf("expected an operand, got %q", t.val)
	}
	parts := strings.Split(t.val, ".")
	head, rest := strings.ToLower(parts[0]), parts[1:]

	bare := func(typ domain.ConditionType, n int) (domain.Condition, error) {
		if len(rest) < 1 || len(rest) > n {
			return domain.Condition{}, fmt.Errorf("malformed operand %q", t.val)
		}
		return domain.Condition{Type: typ, Parameter: strings.Join(rest, "/")}, nil
	}

	switch head {
	case "flag":
		return bare(domain.CondFlagSet, 1)
	case "choice":
		return bare(domain.CondChoiceMade, 2)
	case "item":
		c, err := bare(domain.CondItemOwned, 1)
		if err != nil || !p.comparison() {
			return c, err
		}
		return p.withComparison(domain.Condition{Type: domain.CondItemCount, Parameter: c.Parameter}, false)
	case "items":
		if len(rest) != 0 {
			return domain.Condition{}, fmt.Errorf("malformed operand %q", t.val)
		}
		return p.withComparison(domain.Condition{Type: domain.CondInventory}, true)
	case "stat", "currency":
		typ := domain.CondPlayerStat
		if head == "currency" {
			typ = domain.CondCurrency
		}
		if len(rest) != 1 {
			return domain.Condition{}, fmt.Errorf("malformed operand %q", t.val)
		}
		return p.withComparison(domain.Condition{Type: typ, Parameter: rest[0]}, false)
	case "rel":
		if len(rest) != 2 {
			return domain.Condition{}, fmt.Errorf("relationship operand must be rel.CHARACTER.TYPE, got %q", t.val)
		}
		return p.withComparison(domain.Condition{Type: domain.CondRelationship, Character: rest[0], Parameter: rest[1]}, false)
	case "var":
		if len(rest) != 1 {
			return domain.Condition{}, fmt.Errorf("malformed operand %q", t.val)
		}
		c, err := p.withComparison(domain.Condition{Type: domain.CondVariable, Parameter: rest[0]}, true)
		if err == nil && c.Operator == domain.OpEquals {
			c.Type, c.Operator = domain.CondVariableEquals, ""
		}
		return c, err
	case "visits":
		switch len(rest) {
		case 0:
			return p.withComparison(domain.Condition{Type: domain.CondCurrentSceneVisits}, false)
		case 1:
			return p.withComparison(domain.Condition{Type: domain.CondVisitCount, Parameter: rest[0]}, false)
		}
		return domain.Condition{}, fmt.Errorf("malformed operand %q", t.val)
	case "chance":
		c, err := p.withComparison(domain.Condition{Type: domain.CondRandomChance}, false)
		if err == nil && c.Operator != domain.OpLessThan && c.Operator != domain.OpLessThanOrEqual {
			return c, fmt.Errorf("chance only supports < and <=")
		}
		return c, err
	}
	return domain.Condition{}, fmt.Errorf("unknown operand %q", t.val)
}

func (p *parser) comparison() bool {
	return p.peek().kind == tokOp || p.keyword("contains")
}

func (p *parser) withComparison(c domain.Condition, allowCollection bool) (domain.Condition, error) {
	op, err := p.parseOperator(allowCollection)
	if err != nil {
		return c, err
	}
	c.Operator = op
	v, err := p.parseLiteral()
	if err != nil {
		return c, err
	}
	c.Value = v
	return c, nil
}

func (p *parser) parseOperator(allowCollection bool) (domain.Operator, error) {
	t := p.next()
	if t.kind == tokWord && strings.EqualFold(t.val, "contains") {
		if !allowCollection {
			return "", fmt.Errorf("contains is not valid here")
		}
		return domain.OpContains, nil
	}
	if t.kind == tokOp && t.val == "!" && p.keyword("contains") {
		p.next()
		if !allowCollection {
			return "", fmt.Errorf("!contains is not valid here")
		}
		return domain.OpNotContains, nil
	}
	if t.kind != tokOp {
		return "", fmt.Errorf("expected an operator, got %q", t.val)
	}
	switch t.val {
	case "==":
		return domain.OpEquals, nil
	case "!=":
		return domain.OpNotEquals, nil
	case ">":
		return domain.OpGreaterThan, nil
	case ">=":
		return domain.OpGreaterThanOrEqual, nil
	case "<":
		return domain.OpLessThan, nil
	case "<=":
		return domain.OpLessThanOrEqual, nil
	}
	return "", fmt.Errorf("unknown operator %q", t.val)
}

func (p *parser) parseLiteral() (any, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		if i, err := strconv.ParseInt(t.val, 10, 64); err == nil {
			return int(i), nil
		}
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.val)
		}
		return f, nil
	case tokString:
		return t.val, nil
	case tokBool:
		return t.val == "true", nil
	}
	return nil, fmt.Errorf("expected a literal, got %q", t.val)
}
