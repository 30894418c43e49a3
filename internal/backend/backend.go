// Package backend defines the contract between the decoding engine and the
// model-evaluation layer. The engine never touches weights or kernels; it
// submits token batches and reads back logits or embeddings through this
// interface.
package backend

// Model is a loaded model session. Implementations own the weights, the
// KV cache and the numeric kernels. Evaluate is a blocking call and is not
// safe for concurrent use; callers must serialize access.
type Model interface {
	// Tokenize converts text to token ids. When addBOS is true the
	// beginning-of-sequence token is prepended.
	Tokenize(text string, addBOS bool) ([]int, error)

	// Detokenize converts token ids back to text.
	Detokenize(tokens []int) string

	// Evaluate runs the model over tokens starting at position nPast using
	// nThreads worker threads. On success the logits buffer reflects the
	// last token of the batch.
	Evaluate(tokens []int, nPast, nThreads int) error

	// Logits returns the logit vector for the last evaluated token.
	// Length equals NVocab. The slice is owned by the backend and is
	// overwritten by the next successful Evaluate call.
	Logits() []float32

	// Embeddings returns the final hidden state for the last evaluated
	// batch. Length equals NEmbd. Only meaningful for sessions created in
	// embedding mode.
	Embeddings() []float32

	NVocab() int
	NCtx() int
	NEmbd() int
	TokenBOS() int
	TokenEOS() int

	// IsEmbedding reports whether the session was created in embedding
	// mode and Embeddings may be read.
	IsEmbedding() bool

	Close() error
}
