package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/trustkit/pkg/cache"
	"github.com/turtacn/trustkit/pkg/errors"
)

func newCacheCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Read and write cache entries",
	}
	cmd.AddCommand(
		newCacheGetCommand(opts),
		newCacheSetCommand(opts),
		newCacheDelCommand(opts),
		newCacheFlushCommand(opts),
	)
	return cmd
}

func newCacheGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the JSON value stored at key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			acc, err := a.accessor(cmd.Context())
			if err != nil {
				return err
			}
			v, ok, err := cache.Get[json.RawMessage](cmd.Context(), acc, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.ErrNotFound(args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		},
	}
}

func newCacheSetCommand(opts *rootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value at key; the value is JSON or a plain string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			acc, err := a.accessor(cmd.Context())
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = acc.TTL()
			}
			return cache.Set(cmd.Context(), acc, args[0], decodeValue(args[1]), ttl)
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expiry, defaults to cache.ttl; negative stores without expiry")
	return cmd
}

func newCacheDelCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "del <key>",
		Short: "Delete key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			acc, err := a.accessor(cmd.Context())
			if err != nil {
				return err
			}
			return acc.Delete(cmd.Context(), args[0])
		},
	}
}

func newCacheFlushCommand(opts *rootOptions) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete every entry under the configured key prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.ErrInvalidArgument("flush deletes every cached entry; pass --yes to confirm")
			}
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			acc, err := a.accessor(cmd.Context())
			if err != nil {
				return err
			}
			return acc.Flush(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the flush")
	return cmd
}
