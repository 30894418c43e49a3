package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/smellslikeml/llama-ros/internal/inference"
)

func embedCmd() *cli.Command {
	var (
		prompt    string
		vocabPath string
		nCtx      int64
		nBatch    int64
		logLevel  string
		logFormat string
	)

	return &cli.Command{
		Name:  "embed",
		Usage: "Extract the final embedding vector for a prompt",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text",
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "vocab",
				Usage:       "optional vocabulary file, one piece per line",
				Destination: &vocabPath,
			},
			&cli.Int64Flag{
				Name:        "ctx",
				Aliases:     []string{"c"},
				Value:       512,
				Destination: &nCtx,
			},
			&cli.Int64Flag{
				Name:        "n-batch",
				Aliases:     []string{"b"},
				Value:       512,
				Destination: &nBatch,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Value:       "info",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Value:       "pretty",
				Destination: &logFormat,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := buildLogger(logFormat, logLevel)

			model, err := buildFake(vocabPath, int(nCtx), "")
			if err != nil {
				return err
			}
			model.EmbeddingMode = true

			cfg := inference.DefaultGenConfig()
			cfg.NBatch = int(nBatch)

			eng, err := inference.New(model, cfg, log)
			if err != nil {
				return err
			}
			defer eng.Close()

			vec, err := eng.GenerateEmbedding(ctx, prompt)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			if err := enc.Encode(vec); err != nil {
				return fmt.Errorf("encode embedding: %w", err)
			}
			return nil
		},
	}
}
