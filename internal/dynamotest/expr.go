package dynamotest

import (
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// eval evaluates a condition or filter expression built from OR, AND, NOT,
// parentheses, attribute_exists, attribute_not_exists and the comparison
// operators = <> < <= > >=.
func eval(expr string, item Item, names map[string]string, values map[string]types.AttributeValue) bool {
	p := &parser{
		tokens: tokenize(expr),
		item:   item,
		names:  names,
		values: values,
	}
	return p.or()
}

type parser struct {
	tokens []string
	pos    int
	item   Item
	names  map[string]string
	values map[string]types.AttributeValue
}

func (p *parser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *parser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *parser) or() bool {
	result := p.and()
	for strings.EqualFold(p.peek(), "OR") {
		p.next()
		rhs := p.and()
		result = result || rhs
	}
	return result
}

func (p *parser) and() bool {
	result := p.unary()
	for strings.EqualFold(p.peek(), "AND") {
		p.next()
		rhs := p.unary()
		result = result && rhs
	}
	return result
}

func (p *parser) unary() bool {
	if strings.EqualFold(p.peek(), "NOT") {
		p.next()
		return !p.unary()
	}
	return p.primary()
}

func (p *parser) primary() bool {
	tok := p.next()
	switch tok {
	case "(":
		result := p.or()
		p.next() // ")"
		return result
	case "attribute_exists", "attribute_not_exists":
		p.next() // "("
		attr := resolveName(p.next(), p.names)
		p.next() // ")"
		_, present := p.item[attr]
		if tok == "attribute_exists" {
			return present
		}
		return !present
	}

	lhs := operand(tok, p.item, p.names, p.values)
	op := p.next()
	rhs := operand(p.next(), p.item, p.names, p.values)
	c, ok := compare(lhs, rhs)
	if !ok {
		return op == "<>"
	}
	switch op {
	case "=":
		return c == 0
	case "<>":
		return c != 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case ">=":
		return c >= 0
	}
	return false
}

func tokenize(expr string) []string {
	var tokens []string
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(' || c == ')' || c == ',' || c == '=':
			tokens = append(tokens, string(c))
			i++
		case c == '<' || c == '>':
			if i+1 < len(expr) && (expr[i+1] == '=' || (c == '<' && expr[i+1] == '>')) {
				tokens = append(tokens, expr[i:i+2])
				i += 2
			} else {
				tokens = append(tokens, string(c))
				i++
			}
		default:
			j := i
			for j < len(expr) && !strings.ContainsRune(" \t\n(),=<>", rune(expr[j])) {
				j++
			}
			tokens = append(tokens, expr[i:j])
			i = j
		}
	}
	return tokens
}

func resolveName(tok string, names map[string]string) string {
	if strings.HasPrefix(tok, "#") {
		if name, ok := names[tok]; ok {
			return name
		}
	}
	return tok
}

func operand(tok string, item Item, names map[string]string, values map[string]types.AttributeValue) types.AttributeValue {
	if strings.HasPrefix(tok, ":") {
		return values[tok]
	}
	return item[resolveName(tok, names)]
}

func compare(a, b types.AttributeValue) (int, bool) {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	x, ok := a.(*types.AttributeValueMemberS)
	if !ok {
		return 0, false
	}
	y, ok := b.(*types.AttributeValueMemberS)
	if !ok {
		return 0, false
	}
	return strings.Compare(x.Value, y.Value), true
}

func number(v types.AttributeValue) (float64, bool) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.Value, 64)
	return f, err == nil
}

func numberValue(f float64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, 64)}
}

// scalar renders a key attribute for indexing.
func scalar(v types.AttributeValue) string {
	switch v := v.(type) {
	case *types.AttributeValueMemberS:
		return "S:" + v.Value
	case *types.AttributeValueMemberN:
		return "N:" + v.Value
	}
	return ""
}
