package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"plancheck-backend/internal/shared/auth"
)

// tokenCmd mints a bearer token signed with JWT_SECRET, for exercising the API
// without the identity provider.
func (c *cli) tokenCmd() *cobra.Command {
	var (
		ttl   time.Duration
		email string
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a short-lived bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC()
			token, err := auth.SignJWT(auth.Claims{
				Email: email,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   args[0],
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
			})
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	return cmd
}
