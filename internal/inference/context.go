package inference

// sessionContext owns the bounded token history and the prompt/batch
// queues, together with the position counters that tie them to the
// backend's view of the world:
//
//	nPast     tokens already evaluated by the backend (<= ring capacity)
//	nConsumed prompt tokens already moved into the batch queue
//	nRemain   sampling budget left (-1 = unlimited)
type sessionContext struct {
	ring   *TokenRing
	prompt []int
	batch  []int

	nPast     int
	nConsumed int
	nRemain   int
}

func newSessionContext(capacity, nPredict int) *sessionContext {
	return &sessionContext{
		ring:    NewTokenRing(capacity),
		nRemain: nPredict,
	}
}

// queuePrompt appends tokens to the prompt queue for later evaluation.
func (c *sessionContext) queuePrompt(tokens []int) {
	c.prompt = append(c.prompt, tokens...)
}

// promptExhausted reports whether every queued prompt token has been moved
// into the batch queue.
func (c *sessionContext) promptExhausted() bool {
	return len(c.prompt) <= c.nConsumed
}

// drainIntoBatch moves queued prompt tokens into the batch queue up to
// nBatch, mirroring each moved token into the ring.
func (c *sessionContext) drainIntoBatch(nBatch int) {
	for len(c.prompt) > c.nConsumed && len(c.batch) < nBatch {
		tok := c.prompt[c.nConsumed]
		c.batch = append(c.batch, tok)
		c.ring.Push(tok)
		c.nConsumed++
	}
}

// swapOnOverflow keeps the logical token stream unbounded. When the
// pending batch would push past the ring capacity it rewinds nPast to
// nKeep and prepends the most recent half of the discarded window to the
// batch so the backend recomputes it. Returns the number of tokens
// scheduled for recomputation, or -1 when no swap was needed or possible.
// With nothing evaluated beyond nKeep there is no window to discard; an
// over-capacity batch then goes through unchanged.
func (c *sessionContext) swapOnOverflow(nKeep int) int {
	if c.nPast+len(c.batch) <= c.ring.Cap() {
		return -1
	}
	nLeft := c.nPast - nKeep
	if nLeft <= 0 {
		return -1
	}
	c.nPast = nKeep

	// The batch tail is already mirrored in the ring; take the recompute
	// window from just before it. A batch longer than the ring leaves no
	// window to recompute.
	toks := c.ring.Tokens()
	end := len(toks) - len(c.batch)
	if end < 0 {
		end = 0
	}
	start := end - nLeft/2
	if start < 0 {
		start = 0
	}
	c.batch = append(append([]int(nil), toks[start:end]...), c.batch...)
	return end - start
}

// clearBatch empties the batch queue after an evaluation pass.
func (c *sessionContext) clearBatch() {
	c.batch = c.batch[:0]
}

// reset returns the context to its initial state: zero-filled ring, empty
// queues, counters at their starting values.
func (c *sessionContext) reset(nPredict int) {
	c.ring.Reset()
	c.prompt = c.prompt[:0]
	c.batch = c.batch[:0]
	c.nPast = 0
	c.nConsumed = 0
	c.nRemain = nPredict
}
