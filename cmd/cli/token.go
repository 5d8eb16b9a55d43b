package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/trustkit/pkg/claims"
	"github.com/turtacn/trustkit/pkg/errors"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Create, parse and check tokens",
	}
	cmd.AddCommand(newTokenCreateCommand(opts), newTokenParseCommand(opts), newTokenCheckCommand(opts))
	return cmd
}

func newTokenCreateCommand(opts *rootOptions) *cobra.Command {
	var pairs []string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a token carrying the given claims",
		Example: `  trustkit token create --claim user=ann --claim 'roles=["admin"]'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseClaims(pairs)
			if err != nil {
				return err
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			svc, err := a.tokenService()
			if err != nil {
				return err
			}
			tok, err := svc.CreateToken(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&pairs, "claim", nil, "claim as name=value; value is JSON or a plain string")
	return cmd
}

func newTokenParseCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <token>",
		Short: "Verify a token and print its claims as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			svc, err := a.tokenService()
			if err != nil {
				return err
			}
			payload := claims.Map{}
			if err := svc.ParseToken(cmd.Context(), args[0], &payload); err != nil {
				return err
			}
			_, exp, err := svc.Claims(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := struct {
				Claims    claims.Map `json:"claims"`
				ExpiresAt time.Time  `json:"expires_at"`
			}{payload, exp.UTC()}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newTokenCheckCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <token>",
		Short: "Report whether a token is valid and unexpired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			svc, err := a.tokenService()
			if err != nil {
				return err
			}
			if !svc.CheckToken(cmd.Context(), args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				return errors.ErrVerification("token is invalid or expired")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}

// parseClaims turns name=value pairs into a claim map. Values that are valid JSON
// keep their type; anything else is taken as a string.
func parseClaims(pairs []string) (claims.Map, error) {
	out := make(claims.Map, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, errors.ErrInvalidArgument(fmt.Sprintf("claim %q is not name=value", pair))
		}
		out[name] = decodeValue(raw)
	}
	return out, nil
}

func decodeValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
