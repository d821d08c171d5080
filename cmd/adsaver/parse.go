package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func parseCommand() *cli.Command {
	var urlArg string

	return &cli.Command{
		Name:      "parse",
		Usage:     "Extract one Ad Library URL and print the result as JSON",
		ArgsUsage: "<url>",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:        "url",
				Destination: &urlArg,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if urlArg == "" {
				return fmt.Errorf("missing <url> argument")
			}

			manager, extractor := newExtractor(configFrom(cmd))
			defer manager.Close()

			result, err := extractor.Extract(ctx, urlArg, func(msg string) {
				fmt.Fprintln(os.Stderr, msg)
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.Root().Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}
