package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/smellslikeml/llama-ros/internal/backend"
	"github.com/smellslikeml/llama-ros/internal/inference"
	"github.com/smellslikeml/llama-ros/internal/logger"
)

func runCmd() *cli.Command {
	var (
		prompt      string
		script      string
		vocabPath   string
		grammarPath string
		stop        string
		prefix      string
		suffix      string

		nPredict int64
		nBatch   int64
		nCtx     int64
		nKeep    int64
		nProbs   int64

		temp          float64
		topK          int64
		topP          float64
		minP          float64
		tfsZ          float64
		typicalP      float64
		samplers      string
		repeatPenalty float64
		repeatLastN   int64
		freqPenalty   float64
		presPenalty   float64
		penalizeNL    bool
		mirostat      int64
		mirostatTau   float64
		mirostatEta   float64
		seed          int64

		jsonOut   bool
		logLevel  string
		logFormat string
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Drive the decoding loop against a scripted backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text",
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "script",
				Usage:       "text the scripted backend will favor emitting",
				Destination: &script,
			},
			&cli.StringFlag{
				Name:        "vocab",
				Usage:       "optional vocabulary file, one piece per line",
				Destination: &vocabPath,
			},
			&cli.StringFlag{
				Name:        "grammar",
				Aliases:     []string{"g"},
				Usage:       "path to a GBNF grammar constraining the output",
				Destination: &grammarPath,
			},
			&cli.StringFlag{
				Name:        "stop",
				Usage:       "stop string ending generation",
				Destination: &stop,
			},
			&cli.StringFlag{
				Name:        "in-prefix",
				Usage:       "prefix inserted before each prompt",
				Destination: &prefix,
			},
			&cli.StringFlag{
				Name:        "in-suffix",
				Usage:       "suffix appended after each prompt",
				Destination: &suffix,
			},
			&cli.Int64Flag{
				Name:        "n-predict",
				Aliases:     []string{"n"},
				Usage:       "token budget (-1 = until end of sequence)",
				Value:       -1,
				Destination: &nPredict,
			},
			&cli.Int64Flag{
				Name:        "n-batch",
				Aliases:     []string{"b"},
				Usage:       "evaluation batch size",
				Value:       512,
				Destination: &nBatch,
			},
			&cli.Int64Flag{
				Name:        "ctx",
				Aliases:     []string{"c"},
				Usage:       "context capacity of the scripted backend",
				Value:       512,
				Destination: &nCtx,
			},
			&cli.Int64Flag{
				Name:        "n-keep",
				Usage:       "leading tokens kept across context swaps",
				Destination: &nKeep,
			},
			&cli.Int64Flag{
				Name:        "n-probs",
				Usage:       "number of candidate probabilities to report",
				Destination: &nProbs,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"t", "temperature"},
				Usage:       "sampling temperature (0 = greedy)",
				Value:       0.8,
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Value:       40,
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Value:       0.95,
				Destination: &topP,
			},
			&cli.Float64Flag{
				Name:        "min-p",
				Value:       0.05,
				Destination: &minP,
			},
			&cli.Float64Flag{
				Name:        "tfs",
				Usage:       "tail-free sampling z (1.0 = disabled)",
				Value:       1.0,
				Destination: &tfsZ,
			},
			&cli.Float64Flag{
				Name:        "typical",
				Usage:       "locally typical sampling p (1.0 = disabled)",
				Value:       1.0,
				Destination: &typicalP,
			},
			&cli.StringFlag{
				Name:        "samplers",
				Usage:       "filter order, chars k f y p m t",
				Destination: &samplers,
			},
			&cli.Float64Flag{
				Name:        "repeat-penalty",
				Value:       1.1,
				Destination: &repeatPenalty,
			},
			&cli.Int64Flag{
				Name:        "repeat-last-n",
				Value:       64,
				Destination: &repeatLastN,
			},
			&cli.Float64Flag{
				Name:        "frequency-penalty",
				Destination: &freqPenalty,
			},
			&cli.Float64Flag{
				Name:        "presence-penalty",
				Destination: &presPenalty,
			},
			&cli.BoolFlag{
				Name:        "penalize-nl",
				Value:       true,
				Destination: &penalizeNL,
			},
			&cli.Int64Flag{
				Name:        "mirostat",
				Usage:       "mirostat mode (0, 1, 2)",
				Destination: &mirostat,
			},
			&cli.Float64Flag{
				Name:        "mirostat-tau",
				Value:       5.0,
				Destination: &mirostatTau,
			},
			&cli.Float64Flag{
				Name:        "mirostat-eta",
				Value:       0.1,
				Destination: &mirostatEta,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the completion outputs as JSON",
				Destination: &jsonOut,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "info",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "pretty, text or json",
				Value:       "pretty",
				Destination: &logFormat,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			applyRunConfig(c, LoadConfig(),
				&temp, &topK, &topP, &minP, &repeatPenalty, &nPredict, &nBatch, &seed)

			log := buildLogger(logFormat, logLevel)

			model, err := buildFake(vocabPath, int(nCtx), script)
			if err != nil {
				return err
			}

			cfg := inference.DefaultGenConfig()
			cfg.NBatch = int(nBatch)
			cfg.NPredict = int(nPredict)
			cfg.NKeep = int(nKeep)
			cfg.NProbs = int(nProbs)
			cfg.InputPrefix = prefix
			cfg.InputSuffix = suffix
			if stop != "" {
				cfg.StopStrings = []string{stop}
			}
			cfg.Temperature = float32(temp)
			cfg.TopK = int(topK)
			cfg.TopP = float32(topP)
			cfg.MinP = float32(minP)
			cfg.TFSZ = float32(tfsZ)
			cfg.TypicalP = float32(typicalP)
			if samplers != "" {
				cfg.SamplersSequence = samplers
			}
			cfg.PenaltyRepeat = float32(repeatPenalty)
			cfg.PenaltyLastN = int(repeatLastN)
			cfg.PenaltyFreq = float32(freqPenalty)
			cfg.PenaltyPresent = float32(presPenalty)
			cfg.PenalizeNL = penalizeNL
			cfg.Mirostat = int(mirostat)
			cfg.MirostatTau = float32(mirostatTau)
			cfg.MirostatEta = float32(mirostatEta)
			cfg.Seed = seed

			if grammarPath != "" {
				text, err := os.ReadFile(grammarPath)
				if err != nil {
					return fmt.Errorf("read grammar: %w", err)
				}
				cfg.Grammar = string(text)
			}

			eng, err := inference.New(model, cfg, log)
			if err != nil {
				return err
			}
			defer eng.Close()

			sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stopSignals()
			go func() {
				<-sigCtx.Done()
				eng.Cancel()
			}()

			outs, err := eng.Generate(ctx, prompt, false, func(out inference.CompletionOutput) {
				if !jsonOut {
					fmt.Print(model.Detokenize([]int{out.Token}))
				}
			})
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(outs)
			}
			fmt.Println()
			return nil
		},
	}
}

// buildFake assembles the scripted backend: an optional vocabulary file
// (one piece per line, ids 0 and 1 reserved for BOS/EOS) and a script of
// text the model will favor emitting token by token.
func buildFake(vocabPath string, nCtx int, script string) (*backend.Fake, error) {
	pieces := defaultVocab()
	if vocabPath != "" {
		data, err := os.ReadFile(vocabPath)
		if err != nil {
			return nil, fmt.Errorf("read vocab: %w", err)
		}
		pieces = append([]string{"", ""}, strings.Split(strings.TrimRight(string(data), "\n"), "\n")...)
	}

	model := backend.NewFake(pieces, nCtx)
	if script != "" {
		ids, err := model.Tokenize(script, false)
		if err != nil {
			return nil, fmt.Errorf("script not coverable by vocabulary: %w", err)
		}
		model.Script = ids
	}
	return model, nil
}

// defaultVocab is a single-byte vocabulary over printable ASCII plus
// newline, enough to experiment with grammars and stop strings.
func defaultVocab() []string {
	pieces := []string{"", ""} // BOS, EOS
	pieces = append(pieces, "\n")
	for b := byte(' '); b <= '~'; b++ {
		pieces = append(pieces, string(b))
	}
	return pieces
}

func buildLogger(format, level string) logger.Logger {
	lvl := logger.ParseLevel(level)
	switch format {
	case "json":
		return logger.JSON(os.Stderr, lvl)
	case "text":
		return logger.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	default:
		return logger.Pretty(os.Stderr, lvl)
	}
}
