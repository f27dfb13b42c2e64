package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/glowdan/framework/pkg/framework/event"
)

var errInvalidNames = errors.New("one or more names are invalid")

func getCmdCheckName(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "check-name <name>...",
		Short: "Validate event names",
		Long: `Validate event names.

  Each name is trimmed and checked; valid names are printed in their trimmed
  form, invalid ones with the reason. The command fails if any name is invalid.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			failed := false
			for _, arg := range args {
				name, err := event.CheckName(arg)
				if err != nil {
					failed = true
					fmt.Fprintf(gs.stdout, "%q\tinvalid: %v\n", arg, err)
					continue
				}
				fmt.Fprintf(gs.stdout, "%s\tok\n", name)
			}
			if failed {
				return errInvalidNames
			}
			return nil
		},
	}
}
