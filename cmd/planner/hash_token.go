package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/session-planner/internal/application"
)

func (c *cli) hashTokenCommand() *cobra.Command {
	params := application.DefaultArgon2idParams
	cmd := &cobra.Command{
		Use:   "hash-token [TOKEN]",
		Short: "Derive the PLANNER_API_TOKEN_HASH value for an API token",
		Long: `Hash an API token with argon2id. The token is read from the first line of
standard input when it is not given as an argument.

Example:
  openssl rand -hex 24 | tee token.txt | planner hash-token`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := firstLine(c.stdin)
				if err != nil {
					return fmt.Errorf("read token: %w", err)
				}
				token = line
			}
			if token == "" {
				return errors.New("token must not be empty")
			}

			hash, err := application.HashToken(token, params)
			if err != nil {
				return fmt.Errorf("hash token: %w", err)
			}
			fmt.Fprintln(c.stdout, hash)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&params.Memory, "memory", params.Memory, "Argon2id memory in KiB")
	cmd.Flags().Uint32Var(&params.Iterations, "iterations", params.Iterations, "Argon2id iterations")
	cmd.Flags().Uint8Var(&params.Parallelism, "parallelism", params.Parallelism, "Argon2id parallelism")
	return cmd
}
