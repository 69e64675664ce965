package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/chipletsim/chipletc/internal/stagegraph"
)

func inspectCmd() *cli.Command {
	var specPath string

	return &cli.Command{
		Name:  "inspect",
		Usage: "Validate an emitted spec and print a stage summary",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "spec",
				Aliases:     []string{"s"},
				Usage:       "path to a spec JSON file",
				Required:    true,
				Destination: &specPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			doc, err := stagegraph.Load(specPath)
			if err != nil {
				return err
			}
			if err := stagegraph.Validate(doc); err != nil {
				return fmt.Errorf("spec %s is not a valid task graph: %w", specPath, err)
			}

			counts := make(map[string]int)
			order := make([]string, 0, 8)
			totalBytes := 0
			totalExperts := 0
			for _, st := range doc.Sequence {
				if counts[st.Type] == 0 {
					order = append(order, st.Type)
				}
				counts[st.Type]++
				totalBytes += st.Bytes
				totalExperts += len(st.Experts)
			}

			fmt.Printf("name:     %s\n", doc.Name)
			fmt.Printf("stages:   %d\n", len(doc.Sequence))
			fmt.Printf("layers:   %d\n", doc.Metadata.Layers)
			fmt.Printf("experts:  %d (top-%d)\n", doc.Metadata.NumExperts, doc.Metadata.ExpertsPerTok)
			fmt.Printf("chiplets: %d digital / %d rram\n",
				doc.Metadata.DigitalChiplets, doc.Metadata.RRAMChiplets)
			fmt.Printf("transfer: %d bytes total\n", totalBytes)
			fmt.Printf("expert records: %d\n", totalExperts)
			fmt.Println("per-kind counts:")
			for _, kind := range order {
				fmt.Printf("  %-12s %d\n", kind, counts[kind])
			}
			return nil
		},
	}
}
