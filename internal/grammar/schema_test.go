package grammar

import "testing"

// convert runs the schema through the converter and parses the result, so
// every generated grammar is also checked for well-formedness.
func convert(t *testing.T, schema string) *Grammar {
	t.Helper()
	text, err := SchemaToGrammar([]byte(schema))
	if err != nil {
		t.Fatalf("SchemaToGrammar: %v", err)
	}
	g, err := Parse(text)
	if err != nil {
		t.Fatalf("generated grammar does not parse: %v\n%s", err, text)
	}
	return g
}

func TestSchemaToGrammarObject(t *testing.T) {
	g := convert(t, `{"type":"object","properties":{"name":{"type":"string"},"age":{"type":"integer"}}}`)

	// Properties are emitted in sorted key order.
	for _, in := range []string{
		`{"age":30,"name":"bob"}`,
		`{ "age": 0, "name": "" }`,
	} {
		if !matches(t, g, in) {
			t.Errorf("%q should match", in)
		}
	}
	for _, in := range []string{
		`{"name":"bob","age":30}`,
		`{"age":30}`,
		`{}`,
		`{"age":"x","name":"bob"}`,
	} {
		if matches(t, g, in) {
			t.Errorf("%q should not match", in)
		}
	}
}

func TestSchemaToGrammarEnum(t *testing.T) {
	g := convert(t, `{"enum":["red","green"]}`)
	if !matches(t, g, `"red"`) || !matches(t, g, `"green"`) {
		t.Fatal("enum members should match")
	}
	if matches(t, g, `"blue"`) || matches(t, g, `red`) {
		t.Fatal("non-members should not match")
	}
}

func TestSchemaToGrammarConst(t *testing.T) {
	g := convert(t, `{"const":42}`)
	if !matches(t, g, "42") {
		t.Fatal("the const value should match")
	}
	if matches(t, g, "43") {
		t.Fatal("other values should not match")
	}
}

func TestSchemaToGrammarArray(t *testing.T) {
	g := convert(t, `{"type":"array","items":{"type":"boolean"}}`)
	for _, in := range []string{`[]`, `[true]`, `[true,false,true]`} {
		if !matches(t, g, in) {
			t.Errorf("%q should match", in)
		}
	}
	for _, in := range []string{`[1]`, `[true,]`, `true`} {
		if matches(t, g, in) {
			t.Errorf("%q should not match", in)
		}
	}
}

func TestSchemaToGrammarAnyOf(t *testing.T) {
	g := convert(t, `{"anyOf":[{"type":"integer"},{"type":"boolean"}]}`)
	if !matches(t, g, "5") || !matches(t, g, "true") {
		t.Fatal("both branches should match")
	}
	if matches(t, g, `"x"`) {
		t.Fatal("strings are outside both branches")
	}
}

func TestSchemaToGrammarFallbackValue(t *testing.T) {
	g := convert(t, `{}`)
	for _, in := range []string{`null`, `[1,"x",true]`, `{"k":{"n":1}}`} {
		if !matches(t, g, in) {
			t.Errorf("%q should match the generic value rule", in)
		}
	}
}

func TestSchemaToGrammarErrors(t *testing.T) {
	cases := []string{
		`{`,
		`{"enum":[]}`,
		`{"oneOf":[]}`,
		`"just a string"`,
	}
	for _, schema := range cases {
		if _, err := SchemaToGrammar([]byte(schema)); err == nil {
			t.Errorf("SchemaToGrammar(%q) should fail", schema)
		}
	}
}
