package inference

// TokenRing is a fixed-capacity ring over the most recent token ids. It is
// always full: a fresh ring holds capacity zeros and Push overwrites the
// oldest entry, so the observable length never changes. The ring backs
// penalty computation and stop-text detection.
type TokenRing struct {
	buf  []int
	head int // index of the oldest entry
}

// NewTokenRing returns a zero-filled ring of the given capacity.
func NewTokenRing(capacity int) *TokenRing {
	return &TokenRing{buf: make([]int, capacity)}
}

// Cap returns the fixed capacity.
func (r *TokenRing) Cap() int { return len(r.buf) }

// Push overwrites the oldest entry with id.
func (r *TokenRing) Push(id int) {
	r.buf[r.head] = id
	r.head = (r.head + 1) % len(r.buf)
}

// Tokens returns the ring contents oldest first. The slice is freshly
// allocated.
func (r *TokenRing) Tokens() []int {
	out := make([]int, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

// Last returns the n most recent entries, oldest first. n larger than the
// capacity returns everything.
func (r *TokenRing) Last(n int) []int {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	toks := r.Tokens()
	return toks[len(toks)-n:]
}

// Reset zero-fills the ring.
func (r *TokenRing) Reset() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	r.head = 0
}
