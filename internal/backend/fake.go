package backend

import (
	"fmt"
	"strings"
)

// Fake is an in-memory Model used by tests and by the CLI simulate path.
// Its vocabulary is a fixed list of string pieces (the piece index is the
// token id) and its "weights" are a script: a queue of token ids that each
// evaluation step promotes to the top of the logit distribution.
type Fake struct {
	Pieces []string // vocabulary, id -> piece
	Ctx    int
	Embd   int
	BOS    int
	EOS    int

	// Script holds the ids the model will favor, advancing one entry per
	// Evaluate call. When the script is exhausted the EOS token is
	// favored. Tests that care about exact alignment should keep the
	// prompt within a single batch.
	Script []int

	// FailEvalAt makes the n-th Evaluate call (1-based) return an error.
	FailEvalAt int

	// EmbeddingMode gates the Embeddings accessor.
	EmbeddingMode bool

	EvalCalls   int
	EvalBatches [][]int
	EvalOffsets []int

	step   int
	logits []float32
	embd   []float32
	closed bool
}

// NewFake builds a fake backend over the given vocabulary pieces. Token 0
// is reserved as BOS and token 1 as EOS unless the caller overrides them.
func NewFake(pieces []string, ctx int) *Fake {
	f := &Fake{
		Pieces: pieces,
		Ctx:    ctx,
		Embd:   8,
		BOS:    0,
		EOS:    1,
	}
	f.logits = make([]float32, len(pieces))
	f.embd = make([]float32, f.Embd)
	return f
}

func (f *Fake) Tokenize(text string, addBOS bool) ([]int, error) {
	var out []int
	if addBOS {
		out = append(out, f.BOS)
	}
	for len(text) > 0 {
		best := -1
		bestLen := 0
		for id, p := range f.Pieces {
			if p == "" || id == f.BOS || id == f.EOS {
				continue
			}
			if len(p) > bestLen && strings.HasPrefix(text, p) {
				best, bestLen = id, len(p)
			}
		}
		if best < 0 {
			return nil, fmt.Errorf("tokenize: no piece matches %q", text)
		}
		out = append(out, best)
		text = text[bestLen:]
	}
	return out, nil
}

func (f *Fake) Detokenize(tokens []int) string {
	var sb strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(f.Pieces) {
			sb.WriteString(f.Pieces[id])
		}
	}
	return sb.String()
}

func (f *Fake) Evaluate(tokens []int, nPast, nThreads int) error {
	f.EvalCalls++
	f.EvalBatches = append(f.EvalBatches, append([]int(nil), tokens...))
	f.EvalOffsets = append(f.EvalOffsets, nPast)
	if f.FailEvalAt > 0 && f.EvalCalls == f.FailEvalAt {
		return fmt.Errorf("fake backend: scripted eval failure at call %d", f.EvalCalls)
	}

	next := f.EOS
	if f.step < len(f.Script) {
		next = f.Script[f.step]
	}
	f.step++

	for i := range f.logits {
		f.logits[i] = -10
	}
	if next >= 0 && next < len(f.logits) {
		f.logits[next] = 10
	}

	for i := range f.embd {
		f.embd[i] = float32(nPast+len(tokens)) + float32(i)*0.5
	}
	return nil
}

func (f *Fake) Logits() []float32     { return f.logits }
func (f *Fake) Embeddings() []float32 { return f.embd }
func (f *Fake) NVocab() int           { return len(f.Pieces) }
func (f *Fake) NCtx() int             { return f.Ctx }
func (f *Fake) NEmbd() int            { return f.Embd }
func (f *Fake) TokenBOS() int         { return f.BOS }
func (f *Fake) TokenEOS() int         { return f.EOS }
func (f *Fake) IsEmbedding() bool     { return f.EmbeddingMode }

func (f *Fake) Close() error {
	if f.closed {
		return fmt.Errorf("fake backend: already closed")
	}
	f.closed = true
	return nil
}
