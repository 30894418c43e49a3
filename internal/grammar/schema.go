package grammar

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// primitiveRules are the building blocks shared by every generated JSON
// grammar.
var primitiveRules = map[string]string{
	"space":   `" "?`,
	"boolean": `("true" | "false") space`,
	"null":    `"null" space`,
	"string": `"\"" ([^"\\] | "\\" (["\\/bfnrt] | "u" [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F] [0-9a-fA-F]))* "\"" space`,
	"number":  `("-"? ([0-9] | [1-9] [0-9]*)) ("." [0-9]+)? ([eE] [-+]? [0-9]+)? space`,
	"integer": `("-"? ([0-9] | [1-9] [0-9]*)) space`,
	"value":   `object | array | string | number | boolean | null`,
	"object":  `"{" space (string ":" space value ("," space string ":" space value)*)? "}" space`,
	"array":   `"[" space (value ("," space value)*)? "]" space`,
}

// SchemaToGrammar converts a JSON Schema document into GBNF text accepting
// exactly the JSON values the schema describes. Supported keywords:
// type, properties, items, enum, const, oneOf/anyOf. Unrecognized schemas
// fall back to the generic JSON value rule.
func SchemaToGrammar(schema []byte) (string, error) {
	var node any
	if err := json.Unmarshal(schema, &node); err != nil {
		return "", fmt.Errorf("schema: %w", err)
	}

	c := &schemaConverter{rules: map[string]string{"space": primitiveRules["space"]}}
	if _, err := c.visit(node, "root"); err != nil {
		return "", err
	}

	names := make([]string, 0, len(c.rules))
	for name := range c.rules {
		if name != "root" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "root ::= %s\n", c.rules["root"])
	for _, name := range names {
		fmt.Fprintf(&sb, "%s ::= %s\n", name, c.rules[name])
	}
	return sb.String(), nil
}

type schemaConverter struct {
	rules map[string]string
}

// addRule registers body under name, renaming on collision.
func (c *schemaConverter) addRule(name, body string) string {
	if have, ok := c.rules[name]; !ok || have == body {
		c.rules[name] = body
		return name
	}
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s%d", name, i)
		if have, ok := c.rules[key]; !ok || have == body {
			c.rules[key] = body
			return key
		}
	}
}

func (c *schemaConverter) addPrimitive(name string) string {
	c.rules[name] = primitiveRules[name]
	switch name {
	case "value", "object", "array":
		// The generic rules reference each other and every primitive.
		for _, dep := range []string{"value", "object", "array", "string", "number", "boolean", "null"} {
			c.rules[dep] = primitiveRules[dep]
		}
	}
	return name
}

func (c *schemaConverter) visit(node any, name string) (string, error) {
	schema, ok := node.(map[string]any)
	if !ok {
		return "", fmt.Errorf("schema: expected object, got %T", node)
	}

	if v, ok := schema["const"]; ok {
		return c.addRule(name, formatLiteral(v)+" space"), nil
	}
	if v, ok := schema["enum"]; ok {
		values, ok := v.([]any)
		if !ok || len(values) == 0 {
			return "", fmt.Errorf("schema: enum must be a non-empty array")
		}
		parts := make([]string, len(values))
		for i, val := range values {
			parts[i] = formatLiteral(val)
		}
		return c.addRule(name, "("+strings.Join(parts, " | ")+") space"), nil
	}
	for _, key := range []string{"oneOf", "anyOf"} {
		if v, ok := schema[key]; ok {
			alts, ok := v.([]any)
			if !ok || len(alts) == 0 {
				return "", fmt.Errorf("schema: %s must be a non-empty array", key)
			}
			parts := make([]string, len(alts))
			for i, alt := range alts {
				ref, err := c.visit(alt, fmt.Sprintf("%s-%d", name, i))
				if err != nil {
					return "", err
				}
				parts[i] = ref
			}
			return c.addRule(name, strings.Join(parts, " | ")), nil
		}
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		props, _ := schema["properties"].(map[string]any)
		if len(props) == 0 {
			return c.addPrimitive("object"), nil
		}
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var body strings.Builder
		body.WriteString(`"{" space`)
		for i, k := range keys {
			ref, err := c.visit(props[k], name+"-"+sanitizeRuleName(k))
			if err != nil {
				return "", err
			}
			if i > 0 {
				body.WriteString(` "," space`)
			}
			fmt.Fprintf(&body, ` %s ":" space %s`, formatLiteral(k), ref)
		}
		body.WriteString(` "}" space`)
		return c.addRule(name, body.String()), nil

	case "array":
		items, ok := schema["items"]
		if !ok {
			return c.addPrimitive("array"), nil
		}
		ref, err := c.visit(items, name+"-item")
		if err != nil {
			return "", err
		}
		body := fmt.Sprintf(`"[" space (%s ("," space %s)*)? "]" space`, ref, ref)
		return c.addRule(name, body), nil

	case "string", "number", "integer", "boolean", "null":
		ref := c.addPrimitive(typ)
		if name == "root" {
			return c.addRule("root", ref), nil
		}
		return ref, nil

	default:
		ref := c.addPrimitive("value")
		if name == "root" {
			return c.addRule("root", ref), nil
		}
		return ref, nil
	}
}

// formatLiteral renders a JSON value as a GBNF string literal matching its
// serialized form.
func formatLiteral(v any) string {
	raw, _ := json.Marshal(v)
	s := string(raw)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	// JSON strings arrive already quoted; their quotes were just escaped.
	return `"` + s + `"`
}

func sanitizeRuleName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if isWordChar(r) {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}
