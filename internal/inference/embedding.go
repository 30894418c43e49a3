package inference

import "context"

// GenerateEmbedding tokenizes the prompt, evaluates it in batches without
// sampling and returns the backend's final embedding vector. The session
// must have been created in embedding mode; otherwise the call logs the
// misuse and returns an empty result with ErrEmbeddingDisabled. The
// caller is responsible for keeping the prompt within context capacity;
// no overflow swapping is applied on this path.
func (e *EngineImpl) GenerateEmbedding(ctx context.Context, prompt string) ([]float32, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	if !e.model.IsEmbedding() {
		e.log.Error("embedding requested on a non-embedding session")
		return nil, ErrEmbeddingDisabled
	}

	tokens, err := e.model.Tokenize(prompt, true)
	if err != nil {
		return nil, err
	}

	nPast := 0
	for i := 0; i < len(tokens); i += e.cfg.NBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := len(tokens) - i
		if n > e.cfg.NBatch {
			n = e.cfg.NBatch
		}
		if err := e.model.Evaluate(tokens[i:i+n], nPast, e.cfg.NThreads); err != nil {
			e.log.Error("backend evaluation failed during embedding", "err", err)
		}
		nPast += n
	}

	out := make([]float32, e.model.NEmbd())
	copy(out, e.model.Embeddings())
	return out, nil
}
