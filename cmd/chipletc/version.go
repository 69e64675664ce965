package main

import (
	"context"
	"fmt"

	"github.com/chipletsim/chipletc/internal/version"

	"github.com/urfave/cli/v3"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("chipletc %s\n", version.String())
			if bt := version.Resolve().BuildTime; bt != "" {
				fmt.Printf("built %s\n", bt)
			}
			return nil
		},
	}
}
