// Package inference drives a model-evaluation backend one token at a
// time: it owns the bounded context window, batches tokens for
// evaluation, samples under the configured policy (optionally constrained
// by a grammar), detects stop conditions and streams accepted tokens to
// the caller.
package inference

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/smellslikeml/llama-ros/internal/backend"
	"github.com/smellslikeml/llama-ros/internal/grammar"
	"github.com/smellslikeml/llama-ros/internal/logger"
	"github.com/smellslikeml/llama-ros/internal/logits"
)

var (
	// ErrBusy is returned when a generation is already in flight on this
	// engine. Callers must serialize turns.
	ErrBusy = errors.New("inference: generation already in flight")

	// ErrEmbeddingDisabled is returned by GenerateEmbedding when the
	// backend session was not created in embedding mode.
	ErrEmbeddingDisabled = errors.New("inference: session was not created in embedding mode")
)

// CompletionOutput is one generated token plus the top-N candidate
// probabilities at the step it was chosen.
type CompletionOutput struct {
	Token int                `json:"token"`
	Probs []logits.TokenProb `json:"probs,omitempty"`
}

// StreamFunc receives each accepted token in generation order, before it
// is appended to the returned sequence. It runs synchronously on the
// generation goroutine.
type StreamFunc func(out CompletionOutput)

// Engine is a single-session decoding state machine. At most one turn may
// be in flight; concurrent calls return ErrBusy. Cancel and Reset are the
// only methods safe to call from other goroutines (Reset only between
// turns).
type Engine interface {
	Generate(ctx context.Context, prompt string, addPfxSfx bool, stream StreamFunc) ([]CompletionOutput, error)
	GenerateEmbedding(ctx context.Context, prompt string) ([]float32, error)
	Cancel()
	Reset()
	Close() error
}

// EngineImpl is the concrete Engine over a backend.Model.
type EngineImpl struct {
	model   backend.Model
	cfg     GenConfig
	log     logger.Logger
	sampler *logits.Sampler
	sc      *sessionContext

	inpPfx  []int
	inpSfx  []int
	inpStop []int
	nKeep   int

	// isAntiprompt survives across turns: when the previous turn ended on
	// a stop-text hit, the next prefix insertion is skipped.
	isAntiprompt bool

	canceled atomic.Bool
	busy     atomic.Bool

	stop   stopDetector
	pieces []string
	known  []bool
}

// New builds an engine over an already-loaded backend session. The
// configuration is fixed for the engine's lifetime.
func New(model backend.Model, cfg GenConfig, log logger.Logger) (*EngineImpl, error) {
	if model == nil {
		return nil, errors.New("inference: backend model is required")
	}
	if log == nil {
		log = logger.Default()
	}
	if cfg.NBatch <= 0 {
		return nil, errors.New("inference: n_batch must be positive")
	}

	e := &EngineImpl{
		model: model,
		cfg:   cfg,
		log:   log,
		sc:    newSessionContext(model.NCtx(), cfg.NPredict),
	}

	var err error
	if cfg.InputPrefix != "" {
		if e.inpPfx, err = model.Tokenize(cfg.InputPrefix, true); err != nil {
			return nil, err
		}
	}
	if cfg.InputSuffix != "" {
		if e.inpSfx, err = model.Tokenize(cfg.InputSuffix, false); err != nil {
			return nil, err
		}
	}
	firstStop := ""
	if len(cfg.StopStrings) > 0 {
		firstStop = cfg.StopStrings[0]
	}
	if firstStop != "" {
		if e.inpStop, err = model.Tokenize(firstStop, false); err != nil {
			return nil, err
		}
	}
	e.stop = newStopDetector(firstStop, e.inpStop)

	e.nKeep = cfg.NKeep
	if e.nKeep < 0 {
		e.nKeep = 0
	}
	if e.nKeep > model.NCtx() {
		e.nKeep = model.NCtx()
	}

	nl := -1
	if toks, err := model.Tokenize("\n", false); err == nil && len(toks) > 0 {
		nl = toks[len(toks)-1]
	}
	e.sampler = logits.NewSampler(logits.SamplerConfig{
		Seed:           cfg.Seed,
		Temperature:    cfg.Temperature,
		TopK:           cfg.TopK,
		TopP:           cfg.TopP,
		MinP:           cfg.MinP,
		TFSZ:           cfg.TFSZ,
		TypicalP:       cfg.TypicalP,
		Sequence:       cfg.SamplersSequence,
		PenaltyLastN:   cfg.PenaltyLastN,
		PenaltyRepeat:  cfg.PenaltyRepeat,
		PenaltyFreq:    cfg.PenaltyFreq,
		PenaltyPresent: cfg.PenaltyPresent,
		PenalizeNL:     cfg.PenalizeNL,
		NLToken:        nl,
		LogitBias:      cfg.LogitBias,
		Mirostat:       cfg.Mirostat,
		MirostatTau:    cfg.MirostatTau,
		MirostatEta:    cfg.MirostatEta,
		NProbs:         cfg.NProbs,
	})

	e.pieces = make([]string, model.NVocab())
	e.known = make([]bool, model.NVocab())

	log.Info("engine ready",
		"n_ctx", model.NCtx(),
		"n_batch", cfg.NBatch,
		"n_predict", cfg.NPredict,
		"n_keep", e.nKeep,
	)
	return e, nil
}

// Cancel requests cooperative termination of the current turn. It is
// idempotent and safe to call from any goroutine; the flag is sampled once
// per accepted token.
func (e *EngineImpl) Cancel() {
	e.canceled.Store(true)
}

// Reset clears all session state back to initial values. Safe to call
// only between turns.
func (e *EngineImpl) Reset() {
	e.sc.reset(e.cfg.NPredict)
	e.sampler.Reset()
	e.isAntiprompt = false
	e.canceled.Store(false)
}

func (e *EngineImpl) Close() error {
	if e == nil || e.model == nil {
		return nil
	}
	return e.model.Close()
}

// Generate runs one decoding turn: the prompt is tokenized and queued,
// then the loop alternates between flushing queued tokens through the
// backend and sampling one new token until a stop condition, the token
// budget, end-of-sequence or cancellation ends the turn. Accepted tokens
// are streamed through stream as they are cleared of tentative stop
// matches.
func (e *EngineImpl) Generate(ctx context.Context, prompt string, addPfxSfx bool, stream StreamFunc) ([]CompletionOutput, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	if prompt == "" {
		return nil, nil
	}
	e.canceled.Store(false)

	log := e.log.With("turn", uuid.NewString())

	var line []int
	var err error
	if len(e.sc.prompt) == 0 && !addPfxSfx {
		line, err = e.model.Tokenize(prompt, true)
	} else {
		line, err = e.model.Tokenize(prompt, false)
	}
	if err != nil {
		return nil, err
	}

	promptSize := len(e.sc.prompt) + len(line)
	if addPfxSfx && e.cfg.InputPrefix != "" {
		promptSize += len(e.inpPfx) + len(e.inpSfx)
	}
	if limit := e.model.NCtx() - 4; promptSize > limit {
		log.Warn("prompt exceeds context capacity; relying on context swap",
			"prompt_tokens", promptSize, "max", limit)
	}

	if addPfxSfx && len(e.inpPfx) > 0 && !e.isAntiprompt {
		e.sc.queuePrompt(e.inpPfx)
	}
	e.sc.queuePrompt(line)
	if addPfxSfx && len(e.inpSfx) > 0 {
		e.sc.queuePrompt(e.inpSfx)
	}

	// The new prompt tokens count against the sampling budget.
	e.sc.nRemain -= len(line)

	constraint := e.loadGrammar(log)

	log.Debug("starting generation", "queued", len(e.sc.prompt)-e.sc.nConsumed)

	eos := e.model.TokenEOS()
	var (
		response []CompletionOutput
		pending  []CompletionOutput
		sampled  bool
	)

	for e.sc.nRemain != 0 {
		e.eval(log)

		if e.sc.promptExhausted() {
			// Stop-text check against the decoded history before drawing
			// another token.
			e.isAntiprompt = false
			if e.stop.textHit(e.model.Detokenize(e.sc.ring.Tokens())) {
				e.isAntiprompt = true
				log.Debug("stop text matched")
				break
			}

			choice := e.sampler.Sample(e.model.Logits(), e.sc.ring.Tokens(), constraint)
			out := CompletionOutput{Token: choice.Token, Probs: choice.Probs}
			pending = append(pending, out)

			e.sc.batch = append(e.sc.batch, out.Token)
			e.sc.ring.Push(out.Token)
			sampled = true
			e.sc.nRemain--
		}

		if n := len(e.sc.batch); n > 0 && e.sc.batch[n-1] == eos {
			break
		}

		if e.canceled.Load() || ctx.Err() != nil {
			log.Info("generation canceled")
			break
		}

		stopHit, tentative := e.stop.observe(tokensOf(pending))
		if stopHit {
			// Exact stop sequence: the buffered tokens are discarded, not
			// streamed.
			log.Debug("stop tokens matched")
			break
		}

		if sampled && !tentative {
			for _, out := range pending {
				if stream != nil {
					stream(out)
				}
				response = append(response, out)
			}
			pending = pending[:0]
		}

		if e.sc.nRemain <= 0 && e.cfg.NPredict != -1 {
			e.sc.nRemain = e.cfg.NPredict
			log.Debug("token budget exhausted")
			break
		}
	}

	log.Debug("generation finished", "tokens", len(response))
	return response, nil
}

// loadGrammar parses the configured grammar text for this turn. A
// malformed grammar disables constraining with a warning rather than
// failing the turn. The returned constraint is turn-local; all grammar
// state is dropped when the turn exits, whatever the exit path.
func (e *EngineImpl) loadGrammar(log logger.Logger) logits.Constraint {
	if e.cfg.Grammar == "" {
		return nil
	}
	g, err := grammar.Parse(e.cfg.Grammar)
	if err != nil {
		log.Warn("grammar disabled for this session", "err", err)
		return nil
	}
	if bias, ok := e.cfg.LogitBias[e.model.TokenEOS()]; ok && math.IsInf(float64(bias), -1) {
		log.Warn("EOS token is disabled, which will cause most grammars to fail")
	}
	return grammar.NewConstraint(g.Machine(), e.piece, e.model.TokenEOS())
}

// piece memoizes per-token decoded text for grammar filtering.
func (e *EngineImpl) piece(id int) string {
	if id < 0 || id >= len(e.pieces) {
		return ""
	}
	if !e.known[id] {
		e.pieces[id] = e.model.Detokenize([]int{id})
		e.known[id] = true
	}
	return e.pieces[id]
}

// eval flushes as much of the prompt queue as fits the batch size, applies
// the overflow swap when the batch would run past the context capacity,
// and pushes the batch through the backend in n_batch chunks. A backend
// failure is logged and the loop proceeds with whatever logits remain from
// the prior step.
func (e *EngineImpl) eval(log logger.Logger) {
	e.sc.drainIntoBatch(e.cfg.NBatch)
	if len(e.sc.batch) == 0 {
		return
	}

	if recomputed := e.sc.swapOnOverflow(e.nKeep); recomputed >= 0 {
		log.Debug("context swap",
			"n_keep", e.nKeep, "n_past", e.sc.nPast, "recomputed", recomputed)
	}

	for i := 0; i < len(e.sc.batch); i += e.cfg.NBatch {
		n := len(e.sc.batch) - i
		if n > e.cfg.NBatch {
			n = e.cfg.NBatch
		}
		if err := e.model.Evaluate(e.sc.batch[i:i+n], e.sc.nPast, e.cfg.NThreads); err != nil {
			// Known degraded mode: keep going on the previous step's
			// logits instead of aborting the turn.
			log.Error("backend evaluation failed; continuing with stale logits", "err", err)
		}
		e.sc.nPast += n
	}
	e.sc.clearBatch()
}

func tokensOf(outs []CompletionOutput) []int {
	toks := make([]int, len(outs))
	for i, out := range outs {
		toks[i] = out.Token
	}
	return toks
}
