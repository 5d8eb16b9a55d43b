// Package cli implements the trustkit command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	sign       string
	backend    string
}

// NewRootCommand builds the trustkit command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "trustkit",
		Short: "Issue and verify signed tokens and manage cache-aside entries",
		Long: `trustkit drives the token service and the cache accessor from the command line.

Settings come from trustkit.yaml, TRUSTKIT_* environment variables and flags,
in increasing order of precedence.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "config file (default ./trustkit.yaml or /etc/trustkit/trustkit.yaml)")
	flags.StringVar(&opts.sign, "sign", "", "token signing secret, overrides token.sign")
	flags.StringVar(&opts.backend, "backend", "", "cache backend (redis or memory), overrides cache.backend")

	root.AddCommand(
		newTTLCommand(),
		newTokenCommand(opts),
		newCacheCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
