package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/trustkit/pkg/ttlexpr"
)

func newTTLCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "ttl <expression>",
		Short:   "Evaluate a token lifetime expression to seconds",
		Example: `  trustkit ttl "15 * 24 * 60 * 60"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := ttlexpr.Evaluate(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), seconds)
			return nil
		},
	}
}
