package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/smellslikeml/llama-ros/internal/grammar"
)

func grammarCmd() *cli.Command {
	var (
		grammarPath string
		schemaPath  string
		sample      string
	)

	return &cli.Command{
		Name:  "grammar",
		Usage: "Validate a GBNF grammar or convert a JSON schema to one",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "GBNF grammar file to validate",
				Destination: &grammarPath,
			},
			&cli.StringFlag{
				Name:        "schema",
				Usage:       "JSON schema file to convert to GBNF",
				Destination: &schemaPath,
			},
			&cli.StringFlag{
				Name:        "match",
				Usage:       "optional text to test against the grammar",
				Destination: &sample,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if schemaPath != "" {
				data, err := os.ReadFile(schemaPath)
				if err != nil {
					return err
				}
				text, err := grammar.SchemaToGrammar(data)
				if err != nil {
					return err
				}
				fmt.Print(text)
				return nil
			}

			if grammarPath == "" {
				return fmt.Errorf("either --file or --schema is required")
			}
			data, err := os.ReadFile(grammarPath)
			if err != nil {
				return err
			}
			g, err := grammar.Parse(string(data))
			if err != nil {
				return err
			}
			fmt.Println("grammar ok")

			if sample != "" {
				m := g.Machine()
				if !m.Allow(sample) {
					return fmt.Errorf("text is not accepted by the grammar")
				}
				m.Accept(sample)
				if m.Done() {
					fmt.Println("text fully matches the grammar")
				} else {
					fmt.Println("text is a valid partial derivation")
				}
			}
			return nil
		},
	}
}
