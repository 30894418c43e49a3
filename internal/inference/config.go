package inference

import "github.com/smellslikeml/llama-ros/internal/logits"

// GenConfig is the per-session generation configuration. It is fixed for
// the lifetime of an engine; per-turn knobs do not exist.
type GenConfig struct {
	NBatch   int `json:"n_batch"   yaml:"n_batch"`
	NPredict int `json:"n_predict" yaml:"n_predict"` // -1 = unbounded until EOS
	NKeep    int `json:"n_keep"    yaml:"n_keep"`
	NThreads int `json:"n_threads" yaml:"n_threads"`

	InputPrefix string   `json:"input_prefix" yaml:"input_prefix"`
	InputSuffix string   `json:"input_suffix" yaml:"input_suffix"`
	StopStrings []string `json:"stop"         yaml:"stop"`

	// LogitBias adds a per-token offset to the raw logits; -Inf forbids
	// the token.
	LogitBias map[int]float32 `json:"logit_bias" yaml:"logit_bias"`

	PenaltyLastN   int     `json:"penalty_last_n"  yaml:"penalty_last_n"`
	PenaltyRepeat  float32 `json:"penalty_repeat"  yaml:"penalty_repeat"`
	PenaltyFreq    float32 `json:"penalty_freq"    yaml:"penalty_freq"`
	PenaltyPresent float32 `json:"penalty_present" yaml:"penalty_present"`
	PenalizeNL     bool    `json:"penalize_nl"     yaml:"penalize_nl"`

	SamplersSequence string  `json:"samplers_sequence" yaml:"samplers_sequence"`
	Temperature      float32 `json:"temperature"       yaml:"temperature"`
	TopK             int     `json:"top_k"             yaml:"top_k"`
	TopP             float32 `json:"top_p"             yaml:"top_p"`
	MinP             float32 `json:"min_p"             yaml:"min_p"`
	TFSZ             float32 `json:"tfs_z"             yaml:"tfs_z"`
	TypicalP         float32 `json:"typical_p"         yaml:"typical_p"`

	Mirostat    int     `json:"mirostat"     yaml:"mirostat"` // 0, 1 or 2
	MirostatTau float32 `json:"mirostat_tau" yaml:"mirostat_tau"`
	MirostatEta float32 `json:"mirostat_eta" yaml:"mirostat_eta"`

	Grammar string `json:"grammar" yaml:"grammar"`
	NProbs  int    `json:"n_probs" yaml:"n_probs"`
	Seed    int64  `json:"seed"    yaml:"seed"`
}

// DefaultGenConfig mirrors the llama.cpp defaults.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		NBatch:           512,
		NPredict:         -1,
		NKeep:            0,
		NThreads:         4,
		PenaltyLastN:     64,
		PenaltyRepeat:    1.1,
		PenalizeNL:       true,
		SamplersSequence: logits.DefaultSequence,
		Temperature:      0.8,
		TopK:             40,
		TopP:             0.95,
		MinP:             0.05,
		TFSZ:             1.0,
		TypicalP:         1.0,
		MirostatTau:      5.0,
		MirostatEta:      0.1,
	}
}

// GenOptions overrides individual GenConfig fields. Pointer fields
// distinguish "not set" from zero values.
type GenOptions struct {
	NBatch   *int `json:"n_batch,omitempty"   yaml:"n_batch,omitempty"`
	NPredict *int `json:"n_predict,omitempty" yaml:"n_predict,omitempty"`
	NKeep    *int `json:"n_keep,omitempty"    yaml:"n_keep,omitempty"`
	NThreads *int `json:"n_threads,omitempty" yaml:"n_threads,omitempty"`

	InputPrefix *string  `json:"input_prefix,omitempty" yaml:"input_prefix,omitempty"`
	InputSuffix *string  `json:"input_suffix,omitempty" yaml:"input_suffix,omitempty"`
	StopStrings []string `json:"stop,omitempty"         yaml:"stop,omitempty"`

	PenaltyLastN   *int     `json:"penalty_last_n,omitempty"  yaml:"penalty_last_n,omitempty"`
	PenaltyRepeat  *float32 `json:"penalty_repeat,omitempty"  yaml:"penalty_repeat,omitempty"`
	PenaltyFreq    *float32 `json:"penalty_freq,omitempty"    yaml:"penalty_freq,omitempty"`
	PenaltyPresent *float32 `json:"penalty_present,omitempty" yaml:"penalty_present,omitempty"`
	PenalizeNL     *bool    `json:"penalize_nl,omitempty"     yaml:"penalize_nl,omitempty"`

	SamplersSequence *string  `json:"samplers_sequence,omitempty" yaml:"samplers_sequence,omitempty"`
	Temperature      *float32 `json:"temperature,omitempty"       yaml:"temperature,omitempty"`
	TopK             *int     `json:"top_k,omitempty"             yaml:"top_k,omitempty"`
	TopP             *float32 `json:"top_p,omitempty"             yaml:"top_p,omitempty"`
	MinP             *float32 `json:"min_p,omitempty"             yaml:"min_p,omitempty"`
	TFSZ             *float32 `json:"tfs_z,omitempty"             yaml:"tfs_z,omitempty"`
	TypicalP         *float32 `json:"typical_p,omitempty"         yaml:"typical_p,omitempty"`

	Mirostat    *int     `json:"mirostat,omitempty"     yaml:"mirostat,omitempty"`
	MirostatTau *float32 `json:"mirostat_tau,omitempty" yaml:"mirostat_tau,omitempty"`
	MirostatEta *float32 `json:"mirostat_eta,omitempty" yaml:"mirostat_eta,omitempty"`

	Grammar *string `json:"grammar,omitempty" yaml:"grammar,omitempty"`
	NProbs  *int    `json:"n_probs,omitempty" yaml:"n_probs,omitempty"`
	Seed    *int64  `json:"seed,omitempty"    yaml:"seed,omitempty"`
}

// ResolveConfig layers the set fields of opts over the defaults.
func ResolveConfig(opts GenOptions, defaults GenConfig) GenConfig {
	cfg := defaults

	if opts.NBatch != nil {
		cfg.NBatch = *opts.NBatch
	}
	if opts.NPredict != nil {
		cfg.NPredict = *opts.NPredict
	}
	if opts.NKeep != nil {
		cfg.NKeep = *opts.NKeep
	}
	if opts.NThreads != nil {
		cfg.NThreads = *opts.NThreads
	}
	if opts.InputPrefix != nil {
		cfg.InputPrefix = *opts.InputPrefix
	}
	if opts.InputSuffix != nil {
		cfg.InputSuffix = *opts.InputSuffix
	}
	if len(opts.StopStrings) > 0 {
		cfg.StopStrings = append([]string(nil), opts.StopStrings...)
	}
	if opts.PenaltyLastN != nil {
		cfg.PenaltyLastN = *opts.PenaltyLastN
	}
	if opts.PenaltyRepeat != nil {
		cfg.PenaltyRepeat = *opts.PenaltyRepeat
	}
	if opts.PenaltyFreq != nil {
		cfg.PenaltyFreq = *opts.PenaltyFreq
	}
	if opts.PenaltyPresent != nil {
		cfg.PenaltyPresent = *opts.PenaltyPresent
	}
	if opts.PenalizeNL != nil {
		cfg.PenalizeNL = *opts.PenalizeNL
	}
	if opts.SamplersSequence != nil {
		cfg.SamplersSequence = *opts.SamplersSequence
	}
	if opts.Temperature != nil {
		cfg.Temperature = *opts.Temperature
	}
	if opts.TopK != nil {
		cfg.TopK = *opts.TopK
	}
	if opts.TopP != nil {
		cfg.TopP = *opts.TopP
	}
	if opts.MinP != nil {
		cfg.MinP = *opts.MinP
	}
	if opts.TFSZ != nil {
		cfg.TFSZ = *opts.TFSZ
	}
	if opts.TypicalP != nil {
		cfg.TypicalP = *opts.TypicalP
	}
	if opts.Mirostat != nil {
		cfg.Mirostat = *opts.Mirostat
	}
	if opts.MirostatTau != nil {
		cfg.MirostatTau = *opts.MirostatTau
	}
	if opts.MirostatEta != nil {
		cfg.MirostatEta = *opts.MirostatEta
	}
	if opts.Grammar != nil {
		cfg.Grammar = *opts.Grammar
	}
	if opts.NProbs != nil {
		cfg.NProbs = *opts.NProbs
	}
	if opts.Seed != nil {
		cfg.Seed = *opts.Seed
	}

	return cfg
}
