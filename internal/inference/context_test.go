package inference

import (
	"reflect"
	"testing"
)

func TestDrainIntoBatch(t *testing.T) {
	c := newSessionContext(8, -1)
	c.queuePrompt([]int{1, 2, 3, 4, 5})

	c.drainIntoBatch(2)
	if want := []int{1, 2}; !reflect.DeepEqual(c.batch, want) {
		t.Fatalf("batch = %v, want %v", c.batch, want)
	}
	if c.nConsumed != 2 {
		t.Fatalf("nConsumed = %d, want 2", c.nConsumed)
	}
	if c.promptExhausted() {
		t.Fatal("prompt should not be exhausted yet")
	}

	c.clearBatch()
	c.drainIntoBatch(8)
	if want := []int{3, 4, 5}; !reflect.DeepEqual(c.batch, want) {
		t.Fatalf("batch = %v, want %v", c.batch, want)
	}
	if !c.promptExhausted() {
		t.Fatal("prompt should be exhausted")
	}
}

func TestDrainMirrorsIntoRing(t *testing.T) {
	c := newSessionContext(4, -1)
	c.queuePrompt([]int{7, 8, 9})
	c.drainIntoBatch(8)
	if want := []int{0, 7, 8, 9}; !reflect.DeepEqual(c.ring.Tokens(), want) {
		t.Fatalf("ring = %v, want %v", c.ring.Tokens(), want)
	}
}

func TestSwapOnOverflow(t *testing.T) {
	cases := []struct {
		name          string
		capacity      int
		nKeep         int
		nPast         int
		batch         []int
		wantRecompute int
		wantNPast     int
	}{
		{
			// The fixture from the overflow formula: capacity 8, keep 2,
			// full context, one pending token -> recompute (8-2)/2 = 3.
			name:          "full-context-single-token",
			capacity:      8,
			nKeep:         2,
			nPast:         8,
			batch:         []int{99},
			wantRecompute: 3,
			wantNPast:     2,
		},
		{
			name:          "keep-zero",
			capacity:      8,
			nKeep:         0,
			nPast:         8,
			batch:         []int{99},
			wantRecompute: 4,
			wantNPast:     0,
		},
		{
			name:          "odd-window",
			capacity:      9,
			nKeep:         2,
			nPast:         9,
			batch:         []int{99},
			wantRecompute: 3, // (9-2)/2 integer division
			wantNPast:     2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newSessionContext(tc.capacity, -1)
			for i := 1; i <= tc.nPast; i++ {
				c.ring.Push(i)
			}
			for _, tok := range tc.batch {
				c.ring.Push(tok)
			}
			c.nPast = tc.nPast
			c.batch = append([]int(nil), tc.batch...)

			got := c.swapOnOverflow(tc.nKeep)
			if got != tc.wantRecompute {
				t.Fatalf("recompute = %d, want %d", got, tc.wantRecompute)
			}
			if c.nPast != tc.wantNPast {
				t.Fatalf("nPast = %d, want %d", c.nPast, tc.wantNPast)
			}
			if len(c.batch) != tc.wantRecompute+len(tc.batch) {
				t.Fatalf("batch length = %d, want %d", len(c.batch), tc.wantRecompute+len(tc.batch))
			}
			// The batch tail must be the original pending tokens.
			tail := c.batch[len(c.batch)-len(tc.batch):]
			if !reflect.DeepEqual(tail, tc.batch) {
				t.Fatalf("batch tail = %v, want %v", tail, tc.batch)
			}
		})
	}
}

func TestSwapNotTriggeredWithinCapacity(t *testing.T) {
	c := newSessionContext(8, -1)
	c.nPast = 4
	c.batch = []int{1, 2}
	if got := c.swapOnOverflow(2); got != -1 {
		t.Fatalf("swap triggered below capacity, recompute = %d", got)
	}
	if c.nPast != 4 {
		t.Fatalf("nPast changed to %d", c.nPast)
	}
}

func TestSwapSkippedBeforeAnyEvaluation(t *testing.T) {
	// An over-capacity prompt arrives before anything was evaluated:
	// there is no discarded window to recompute, only a batch that the
	// backend has to take as-is.
	c := newSessionContext(8, -1)
	c.queuePrompt([]int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	c.drainIntoBatch(16)

	if got := c.swapOnOverflow(2); got != -1 {
		t.Fatalf("recompute = %d, want -1", got)
	}
	if c.nPast != 0 {
		t.Fatalf("nPast = %d, want 0", c.nPast)
	}
	if len(c.batch) != 10 {
		t.Fatalf("batch length = %d, want 10", len(c.batch))
	}
}

func TestSwapWithBatchLongerThanRing(t *testing.T) {
	// The pending batch alone exceeds the ring, so no recompute window
	// remains; the swap must still rewind nPast without panicking.
	c := newSessionContext(4, -1)
	c.nPast = 3
	c.batch = []int{1, 2, 3, 4, 5}
	for _, tok := range c.batch {
		c.ring.Push(tok)
	}

	if got := c.swapOnOverflow(1); got != 0 {
		t.Fatalf("recompute = %d, want 0", got)
	}
	if c.nPast != 1 {
		t.Fatalf("nPast = %d, want 1", c.nPast)
	}
	if want := []int{1, 2, 3, 4, 5}; !reflect.DeepEqual(c.batch, want) {
		t.Fatalf("batch = %v, want %v", c.batch, want)
	}
}

func TestSwapRecomputesRecentWindow(t *testing.T) {
	// Ring holds 1..8, pending batch [9]. The recomputed tokens must be
	// the ones immediately preceding the pending batch.
	c := newSessionContext(8, -1)
	for i := 1; i <= 8; i++ {
		c.ring.Push(i)
	}
	c.ring.Push(9)
	c.nPast = 8
	c.batch = []int{9}

	c.swapOnOverflow(2)
	if want := []int{6, 7, 8, 9}; !reflect.DeepEqual(c.batch, want) {
		t.Fatalf("batch = %v, want %v", c.batch, want)
	}
}

func TestContextReset(t *testing.T) {
	c := newSessionContext(4, 16)
	c.queuePrompt([]int{1, 2, 3})
	c.drainIntoBatch(8)
	c.nPast = 3
	c.nRemain = 7

	c.reset(16)
	if c.nPast != 0 || c.nConsumed != 0 || c.nRemain != 16 {
		t.Fatalf("counters = (%d,%d,%d), want (0,0,16)", c.nPast, c.nConsumed, c.nRemain)
	}
	if len(c.prompt) != 0 || len(c.batch) != 0 {
		t.Fatalf("queues not cleared: prompt=%v batch=%v", c.prompt, c.batch)
	}
	if want := []int{0, 0, 0, 0}; !reflect.DeepEqual(c.ring.Tokens(), want) {
		t.Fatalf("ring = %v, want zeros", c.ring.Tokens())
	}
}
