package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/auth"
)

// TokenCmd issues a bridge token signed with JWT_SECRET.
func TokenCmd() *cobra.Command {
	var (
		bridgeID string
		roles    []string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT for a messaging bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bridgeID == "" {
				return errors.New("--bridge is required")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}
			jm, err := auth.NewJWTManager(getenv("JWT_SECRET"))
			if err != nil {
				return err
			}
			token, err := jm.GenerateToken(cmd.Context(), bridgeID, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&bridgeID, "bridge", "", "Bridge identifier, e.g. whatsapp-prod")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleMessaging}, "Roles to grant")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	cmd.AddCommand(tokenRefreshCmd())
	return cmd
}

// tokenRefreshCmd reissues a valid token with a fresh lifetime. With --rotate
// the new token is signed with JWT_NEXT_SECRET, for moving bridges to a new
// key before the server switches over.
func tokenRefreshCmd() *cobra.Command {
	var (
		ttl    time.Duration
		rotate bool
	)
	cmd := &cobra.Command{
		Use:   "refresh TOKEN",
		Short: "Reissue a bridge token, optionally under a new signing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}
			jm, err := auth.NewJWTManager(getenv("JWT_SECRET"))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var token string
			if rotate {
				claims, err := jm.ValidateToken(ctx, args[0])
				if err != nil {
					return fmt.Errorf("cannot refresh invalid token: %w", err)
				}
				if err := jm.RotateSigningKey(ctx, getenv("JWT_NEXT_SECRET")); err != nil {
					return fmt.Errorf("JWT_NEXT_SECRET: %w", err)
				}
				token, err = jm.GenerateToken(ctx, claims.BridgeID, claims.Roles, ttl)
				if err != nil {
					return err
				}
			} else {
				token, err = jm.RefreshToken(ctx, args[0], ttl)
				if err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	cmd.Flags().BoolVar(&rotate, "rotate", false, "Sign with JWT_NEXT_SECRET instead of JWT_SECRET")
	return cmd
}
