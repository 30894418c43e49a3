package inference

import (
	"reflect"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func TestResolveConfigDefaults(t *testing.T) {
	cfg := ResolveConfig(GenOptions{}, DefaultGenConfig())
	if !reflect.DeepEqual(cfg, DefaultGenConfig()) {
		t.Fatal("empty options must yield the defaults")
	}
	if cfg.NPredict != -1 {
		t.Errorf("NPredict = %d, want -1", cfg.NPredict)
	}
	if cfg.Temperature != 0.8 {
		t.Errorf("Temperature = %v, want 0.8", cfg.Temperature)
	}
	if !cfg.PenalizeNL {
		t.Error("PenalizeNL should default to true")
	}
}

func TestResolveConfigOverrides(t *testing.T) {
	opts := GenOptions{
		NPredict:    ptr(32),
		Temperature: ptr(float32(0)),
		TopK:        ptr(1),
		PenalizeNL:  ptr(false),
		StopStrings: []string{"###"},
		Grammar:     ptr(`root ::= "a"`),
		Seed:        ptr(int64(7)),
	}
	cfg := ResolveConfig(opts, DefaultGenConfig())

	if cfg.NPredict != 32 {
		t.Errorf("NPredict = %d, want 32", cfg.NPredict)
	}
	if cfg.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", cfg.Temperature)
	}
	if cfg.TopK != 1 {
		t.Errorf("TopK = %d, want 1", cfg.TopK)
	}
	if cfg.PenalizeNL {
		t.Error("PenalizeNL override to false ignored")
	}
	if len(cfg.StopStrings) != 1 || cfg.StopStrings[0] != "###" {
		t.Errorf("StopStrings = %v, want [###]", cfg.StopStrings)
	}
	if cfg.Grammar != `root ::= "a"` {
		t.Errorf("Grammar = %q", cfg.Grammar)
	}
	if cfg.Seed != 7 {
		t.Errorf("Seed = %d, want 7", cfg.Seed)
	}
	// Untouched fields keep their defaults.
	if cfg.TopP != 0.95 || cfg.PenaltyRepeat != 1.1 {
		t.Error("unset fields must keep defaults")
	}
}

func TestResolveConfigZeroValueOverride(t *testing.T) {
	// A pointer to the zero value is an explicit override, not "unset".
	cfg := ResolveConfig(GenOptions{PenaltyLastN: ptr(0), TopP: ptr(float32(0))}, DefaultGenConfig())
	if cfg.PenaltyLastN != 0 {
		t.Errorf("PenaltyLastN = %d, want 0", cfg.PenaltyLastN)
	}
	if cfg.TopP != 0 {
		t.Errorf("TopP = %v, want 0", cfg.TopP)
	}
}
