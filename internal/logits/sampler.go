// Package logits turns a raw logit vector into a sampled token id via a
// configurable filtering pipeline: logit bias, repetition penalties, the
// truncation filters (top-k, tail-free, typical, top-p, min-p) in a
// caller-chosen order, temperature, and the two mirostat algorithms.
package logits

import (
	"math"
	"math/rand"
	"sort"
)

// Candidate is one vocabulary entry flowing through the pipeline.
type Candidate struct {
	ID    int
	Logit float32
	Prob  float32
}

// Constraint prunes the candidate set before the filter pipeline and is
// advanced after a token is accepted. A grammar machine implements this.
type Constraint interface {
	Filter(cands []Candidate) []Candidate
	Accept(id int)
}

// TokenProb is one (token, probability) pair reported alongside a choice.
type TokenProb struct {
	Token int     `json:"token"`
	Prob  float32 `json:"prob"`
}

// Choice is the outcome of a single sampling step.
type Choice struct {
	Token int
	Probs []TokenProb
}

// DefaultSequence is the filter order applied when none is configured:
// top-k, tail-free, typical, top-p, min-p, temperature.
const DefaultSequence = "kfypmt"

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed        int64
	Temperature float32
	TopK        int
	TopP        float32
	MinP        float32
	TFSZ        float32
	TypicalP    float32

	// Sequence orders the truncation filters using the characters
	// k, f, y, p, m, t. Unknown characters are ignored.
	Sequence string

	PenaltyLastN   int
	PenaltyRepeat  float32
	PenaltyFreq    float32
	PenaltyPresent float32

	// PenalizeNL controls whether the newline token NLToken is subject to
	// repetition penalties. The exemption applies only when NLToken names
	// a real token; zero or negative means none is designated, so the
	// zero-value config penalizes everything.
	PenalizeNL bool
	NLToken    int

	// LogitBias is added to the raw logits before anything else. A bias
	// of -Inf forbids the token outright.
	LogitBias map[int]float32

	// Mirostat selects the adaptive entropy sampler: 0 disables it,
	// 1 and 2 select the respective algorithm and bypass the filter
	// pipeline entirely.
	Mirostat    int
	MirostatTau float32
	MirostatEta float32

	// NProbs is the number of top candidate probabilities reported per
	// choice. 0 disables reporting.
	NProbs int
}

// Sampler draws tokens from logit vectors. It keeps per-session state: the
// RNG and the mirostat surprise estimate. Not safe for concurrent use.
type Sampler struct {
	cfg SamplerConfig
	rng *rand.Rand
	mu  float32

	scratch []float32
	cands   []Candidate
	counts  map[int]int
}

// NewSampler returns a sampler for the provided configuration. Zero or
// out-of-range fields fall back to their neutral values.
func NewSampler(cfg SamplerConfig) *Sampler {
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.TFSZ <= 0 || cfg.TFSZ > 1 {
		cfg.TFSZ = 1
	}
	if cfg.TypicalP <= 0 || cfg.TypicalP > 1 {
		cfg.TypicalP = 1
	}
	if cfg.PenaltyRepeat <= 0 {
		cfg.PenaltyRepeat = 1
	}
	if cfg.Sequence == "" {
		cfg.Sequence = DefaultSequence
	}
	if cfg.MirostatTau <= 0 {
		cfg.MirostatTau = 5
	}
	if cfg.MirostatEta <= 0 {
		cfg.MirostatEta = 0.1
	}
	return &Sampler{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		mu:     2 * cfg.MirostatTau,
		counts: make(map[int]int),
	}
}

// Reset clears the adaptive mirostat state between turns. The RNG stream is
// deliberately left alone.
func (s *Sampler) Reset() {
	s.mu = 2 * s.cfg.MirostatTau
}

// Sample draws one token. logits is the raw backend vector and is not
// mutated; last is the trailing token history used for penalties;
// constraint, when non-nil, restricts candidates to grammar-consistent
// tokens and is advanced with the chosen id.
func (s *Sampler) Sample(logits []float32, last []int, constraint Constraint) Choice {
	if cap(s.scratch) < len(logits) {
		s.scratch = make([]float32, len(logits))
	}
	work := s.scratch[:len(logits)]
	copy(work, logits)

	for id, bias := range s.cfg.LogitBias {
		if id >= 0 && id < len(work) {
			work[id] += bias
		}
	}

	s.applyPenalties(work, last)

	cands := s.cands[:0]
	for id, l := range work {
		cands = append(cands, Candidate{ID: id, Logit: l})
	}
	s.cands = cands

	if constraint != nil {
		cands = constraint.Filter(cands)
	}
	if len(cands) == 0 {
		// Grammar rejected everything; fall back to the raw argmax so the
		// loop can still terminate.
		best := argmax(work)
		cands = append(cands, Candidate{ID: best, Logit: work[best]})
	}

	var choice Choice
	switch s.cfg.Mirostat {
	case 1:
		choice = s.mirostatV1(cands)
	case 2:
		choice = s.mirostatV2(cands)
	default:
		choice = s.pipeline(cands)
	}

	if constraint != nil {
		constraint.Accept(choice.Token)
	}
	return choice
}

func (s *Sampler) applyPenalties(work []float32, last []int) {
	lastN := s.cfg.PenaltyLastN
	if lastN <= 0 || len(last) == 0 {
		return
	}
	if s.cfg.PenaltyRepeat == 1 && s.cfg.PenaltyFreq == 0 && s.cfg.PenaltyPresent == 0 {
		return
	}
	start := len(last) - lastN
	if start < 0 {
		start = 0
	}
	window := last[start:]

	nl := s.cfg.NLToken
	var nlLogit float32
	if nl > 0 && nl < len(work) {
		nlLogit = work[nl]
	}

	clear(s.counts)
	for _, id := range window {
		if id >= 0 && id < len(work) {
			s.counts[id]++
		}
	}
	for id, n := range s.counts {
		if work[id] > 0 {
			work[id] /= s.cfg.PenaltyRepeat
		} else {
			work[id] *= s.cfg.PenaltyRepeat
		}
		work[id] -= float32(n)*s.cfg.PenaltyFreq + boolToF32(n > 0)*s.cfg.PenaltyPresent
	}

	if !s.cfg.PenalizeNL && nl > 0 && nl < len(work) {
		work[nl] = nlLogit
	}
}

// pipeline runs the configured truncation filters in order, applies
// temperature and draws from the final distribution. Temperature <= 0
// selects the highest-probability candidate deterministically.
func (s *Sampler) pipeline(cands []Candidate) Choice {
	for _, c := range s.cfg.Sequence {
		switch c {
		case 'k':
			cands = topK(cands, s.cfg.TopK)
		case 'f':
			cands = tailFree(cands, s.cfg.TFSZ)
		case 'y':
			cands = typical(cands, s.cfg.TypicalP)
		case 'p':
			cands = topP(cands, s.cfg.TopP)
		case 'm':
			cands = minP(cands, s.cfg.MinP)
		case 't':
			if s.cfg.Temperature > 0 {
				for i := range cands {
					cands[i].Logit /= s.cfg.Temperature
				}
			}
		}
	}

	softmax(cands)
	if s.cfg.Temperature <= 0 {
		best := 0
		for i := range cands {
			if cands[i].Prob > cands[best].Prob {
				best = i
			}
		}
		return s.choose(cands, best)
	}
	return s.choose(cands, s.draw(cands))
}

// mirostatV1 estimates the Zipf exponent from the head of the distribution,
// derives an adaptive truncation k and nudges the surprise estimate toward
// the target tau.
func (s *Sampler) mirostatV1(cands []Candidate) Choice {
	if s.cfg.Temperature > 0 {
		for i := range cands {
			cands[i].Logit /= s.cfg.Temperature
		}
	}
	softmax(cands)
	n := float64(len(cands))

	const m = 100
	var sumTiBi, sumTi2 float64
	for i := 0; i < m-1 && i+1 < len(cands); i++ {
		ti := math.Log(float64(i+2) / float64(i+1))
		bi := math.Log(float64(cands[i].Prob) / float64(cands[i+1].Prob))
		sumTiBi += ti * bi
		sumTi2 += ti * ti
	}
	sHat := 1.0
	if sumTi2 > 0 {
		sHat = sumTiBi / sumTi2
	}

	epsilonHat := sHat - 1
	k := 1
	if epsilonHat > 0 {
		kf := math.Pow(float64(epsilonHat)*math.Pow(2, float64(s.mu))/(1-math.Pow(n, -epsilonHat)), 1/sHat)
		k = int(kf)
		if k < 1 {
			k = 1
		}
	}
	cands = topK(cands, k)
	softmax(cands)

	idx := s.draw(cands)
	surprise := -float32(math.Log2(float64(cands[idx].Prob)))
	s.mu -= s.cfg.MirostatEta * (surprise - s.cfg.MirostatTau)
	return s.choose(cands, idx)
}

// mirostatV2 truncates candidates whose surprise exceeds the current
// estimate, draws from the remainder and updates the estimate.
func (s *Sampler) mirostatV2(cands []Candidate) Choice {
	if s.cfg.Temperature > 0 {
		for i := range cands {
			cands[i].Logit /= s.cfg.Temperature
		}
	}
	softmax(cands)

	kept := cands[:0]
	for _, c := range cands {
		if -float32(math.Log2(float64(c.Prob))) <= s.mu {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		kept = cands[:1]
	}
	softmax(kept)

	idx := s.draw(kept)
	surprise := -float32(math.Log2(float64(kept[idx].Prob)))
	s.mu -= s.cfg.MirostatEta * (surprise - s.cfg.MirostatTau)
	return s.choose(kept, idx)
}

// draw samples an index from the candidates' Prob field, which must sum
// to one.
func (s *Sampler) draw(cands []Candidate) int {
	r := s.rng.Float64()
	var cum float64
	for i := range cands {
		cum += float64(cands[i].Prob)
		if r <= cum {
			return i
		}
	}
	return len(cands) - 1
}

// choose assembles the Choice for the candidate at idx, reporting the top
// NProbs entries of the final distribution.
func (s *Sampler) choose(cands []Candidate, idx int) Choice {
	ch := Choice{Token: cands[idx].ID}
	if s.cfg.NProbs > 0 {
		sorted := append([]Candidate(nil), cands...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Prob > sorted[j].Prob })
		n := s.cfg.NProbs
		if n > len(sorted) {
			n = len(sorted)
		}
		for _, c := range sorted[:n] {
			ch.Probs = append(ch.Probs, TokenProb{Token: c.ID, Prob: c.Prob})
		}
	}
	return ch
}

// softmax fills the Prob field from the Logit field, sorting candidates by
// descending logit first.
func softmax(cands []Candidate) {
	if len(cands) == 0 {
		return
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Logit > cands[j].Logit })
	maxl := cands[0].Logit
	var sum float64
	for i := range cands {
		e := math.Exp(float64(cands[i].Logit - maxl))
		cands[i].Prob = float32(e)
		sum += e
	}
	for i := range cands {
		cands[i].Prob = float32(float64(cands[i].Prob) / sum)
	}
}

// topK keeps the k highest-logit candidates. k <= 0 keeps everything.
func topK(cands []Candidate, k int) []Candidate {
	if k <= 0 || k >= len(cands) {
		return cands
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Logit > cands[j].Logit })
	return cands[:k]
}

// topP keeps the smallest prefix of the distribution whose cumulative
// probability reaches p.
func topP(cands []Candidate, p float32) []Candidate {
	if p >= 1 || len(cands) <= 1 {
		return cands
	}
	softmax(cands)
	var cum float32
	for i := range cands {
		cum += cands[i].Prob
		if cum >= p {
			return cands[:i+1]
		}
	}
	return cands
}

// minP drops candidates whose probability falls below p times the highest
// probability.
func minP(cands []Candidate, p float32) []Candidate {
	if p <= 0 || len(cands) <= 1 {
		return cands
	}
	softmax(cands)
	threshold := cands[0].Prob * p
	kept := cands[:0]
	for _, c := range cands {
		if c.Prob >= threshold {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return cands[:1]
	}
	return kept
}

// tailFree truncates the flat tail of the distribution using the
// normalized absolute second derivative of the sorted probabilities.
func tailFree(cands []Candidate, z float32) []Candidate {
	if z >= 1 || len(cands) <= 2 {
		return cands
	}
	softmax(cands)

	second := make([]float32, len(cands)-2)
	var sum float32
	for i := range second {
		d := cands[i].Prob - 2*cands[i+1].Prob + cands[i+2].Prob
		if d < 0 {
			d = -d
		}
		second[i] = d
		sum += d
	}
	if sum > 0 {
		for i := range second {
			second[i] /= sum
		}
	}

	var cum float32
	cut := len(cands)
	for i, d := range second {
		cum += d
		if cum > z {
			cut = i + 1
			break
		}
	}
	return cands[:cut]
}

// typical keeps the locally typical candidates: those whose surprise is
// closest to the distribution's entropy, up to cumulative probability p.
func typical(cands []Candidate, p float32) []Candidate {
	if p >= 1 || len(cands) <= 1 {
		return cands
	}
	softmax(cands)

	var entropy float64
	for _, c := range cands {
		if c.Prob > 0 {
			entropy += -float64(c.Prob) * math.Log(float64(c.Prob))
		}
	}

	type scored struct {
		c     Candidate
		shift float64
	}
	scores := make([]scored, 0, len(cands))
	for _, c := range cands {
		surprise := math.Inf(1)
		if c.Prob > 0 {
			surprise = -math.Log(float64(c.Prob))
		}
		scores = append(scores, scored{c: c, shift: math.Abs(surprise - entropy)})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].shift < scores[j].shift })

	var cum float32
	cut := len(scores)
	for i, sc := range scores {
		cum += sc.c.Prob
		if cum >= p {
			cut = i + 1
			break
		}
	}
	kept := cands[:0]
	for _, sc := range scores[:cut] {
		kept = append(kept, sc.c)
	}
	return kept
}

func argmax(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}

func boolToF32(b bool) float32 {
	if b {
		return 1
	}
	return 0
}
