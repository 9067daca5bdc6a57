package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete pending records expired for longer than the cleanup grace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.svc.CleanupExpiredSignatures(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired records\n", n)
			return nil
		},
	}
}
