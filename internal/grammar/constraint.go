package grammar

import (
	"github.com/smellslikeml/llama-ros/internal/logits"
)

// Constraint adapts a Machine to the sampler's candidate filter. The piece
// function maps a token id to its decoded text; eos is the backend's
// end-of-sequence id, admitted only once some derivation has fully matched.
type Constraint struct {
	machine *Machine
	piece   func(id int) string
	eos     int
}

// NewConstraint binds a derivation machine to a vocabulary.
func NewConstraint(m *Machine, piece func(id int) string, eos int) *Constraint {
	return &Constraint{machine: m, piece: piece, eos: eos}
}

// Filter keeps the candidates whose decoded text is a valid continuation
// of at least one active derivation stack.
func (c *Constraint) Filter(cands []logits.Candidate) []logits.Candidate {
	kept := cands[:0]
	for _, cand := range cands {
		if cand.ID == c.eos {
			if c.machine.Done() {
				kept = append(kept, cand)
			}
			continue
		}
		if c.machine.Allow(c.piece(cand.ID)) {
			kept = append(kept, cand)
		}
	}
	return kept
}

// Accept advances every derivation stack past the chosen token.
func (c *Constraint) Accept(id int) {
	if id == c.eos {
		return
	}
	c.machine.Accept(c.piece(id))
}
