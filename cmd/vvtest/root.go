package main

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the vvtest CLI: a single command (spec.md §6's
// CLI surface doesn't name subcommands, so unlike the teacher's
// multi-command tree this is one Flags/Options/Run triple).
func NewRootCommand() *cobra.Command {
	f := NewFlags()

	cmd := &cobra.Command{
		Use:          "vvtest [subdir]",
		Short:        "run a suite of parameterized, dependency-ordered tests",
		SilenceUsage: true,
		Args:         cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.Validate(args); err != nil {
				return err
			}
			o, err := f.ToOptions(cmd.Flags().Changed)
			if err != nil {
				return err
			}
			return o.Run()
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
