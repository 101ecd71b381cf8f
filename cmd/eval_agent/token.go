package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-evaluator/internal/server"
)

func newTokenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "token <operator>",
		Short: "Issue a bearer token for the API",
		Long: `Issue a signed bearer token for the mutating API routes. The operator name
becomes the token subject. Requires auth.jwt_secret (JWT_SECRET).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jwtCfg, err := a.cfg.JWT()
			if err != nil {
				return err
			}
			if jwtCfg == nil {
				return errors.New("auth.jwt_secret (JWT_SECRET) is not set")
			}
			token, err := server.NewJWTService(jwtCfg).GenerateToken(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
