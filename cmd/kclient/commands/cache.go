package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/komparu/komparu-go/internal/constants"
	"github.com/komparu/komparu-go/pkg/komparu"
)

// NewCacheCommand creates the cache command group.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
		Long:  "Clear the response cache or invalidate the entries of one resource",
	}

	cmd.AddCommand(newCacheClearCommand())
	cmd.AddCommand(newCacheInvalidateCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := CreateClient(ctx)
			if err != nil {
				return err
			}

			err = client.Cache().Backend().Clear(ctx)
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")

			return nil
		},
	}
}

func newCacheInvalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate RESOURCE",
		Short: "Remove the cached responses of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := CreateClient(ctx)
			if err != nil {
				return err
			}

			tag := constants.ResourceTagPrefix + args[0]

			err = InvalidateTag(ctx, client.Cache().Backend(), tag)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", tag)

			return nil
		},
	}
}

// InvalidateTag drops every entry of backend carrying tag.
func InvalidateTag(ctx context.Context, backend komparu.Cache, tag string) error {
	invalidator, ok := backend.(komparu.TagInvalidator)
	if !ok {
		return fmt.Errorf("%w: %T", komparu.ErrTagInvalidationUnsupported, backend)
	}

	err := invalidator.InvalidateTag(ctx, tag)
	if err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", tag, err)
	}

	return nil
}
