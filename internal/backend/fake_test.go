package backend

import "testing"

func TestFakeTokenizeLongestMatch(t *testing.T) {
	f := NewFake([]string{"<s>", "</s>", "a", "b", "ab"}, 32)

	toks, err := f.Tokenize("aba", false)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	// "ab" wins over "a" at the front.
	want := []int{4, 2}
	if len(toks) != 2 || toks[0] != want[0] || toks[1] != want[1] {
		t.Fatalf("toks = %v, want %v", toks, want)
	}

	toks, err = f.Tokenize("ab", true)
	if err != nil || len(toks) != 2 || toks[0] != f.BOS {
		t.Fatalf("addBOS: toks=%v err=%v", toks, err)
	}

	if _, err := f.Tokenize("xyz", false); err == nil {
		t.Fatal("unknown text should fail to tokenize")
	}
}

func TestFakeScriptedLogits(t *testing.T) {
	f := NewFake([]string{"<s>", "</s>", "a", "b"}, 32)
	f.Script = []int{3}

	if err := f.Evaluate([]int{2}, 0, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	logits := f.Logits()
	if logits[3] <= logits[2] {
		t.Fatalf("scripted token not favored: %v", logits)
	}

	// Script exhausted: EOS takes over.
	if err := f.Evaluate([]int{3}, 1, 1); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if f.Logits()[f.EOS] <= f.Logits()[3] {
		t.Fatalf("EOS not favored after script end: %v", f.Logits())
	}
}

func TestFakeFailEvalAt(t *testing.T) {
	f := NewFake([]string{"<s>", "</s>", "a"}, 32)
	f.Script = []int{2, 2}
	f.FailEvalAt = 1

	if err := f.Evaluate([]int{2}, 0, 1); err == nil {
		t.Fatal("first call should fail")
	}
	// The failed call must not consume a script entry.
	if err := f.Evaluate([]int{2}, 1, 1); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if f.Logits()[2] <= f.Logits()[f.EOS] {
		t.Fatal("script entry was consumed by the failed call")
	}
}
