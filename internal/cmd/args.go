package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ExactArgs returns an error with the usage of the command unless it is
// called with exactly number arguments.
func ExactArgs(number int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) == number {
			return nil
		}
		return usageError(cmd, fmt.Sprintf("requires exactly %d %s", number, pluralize("argument", number)))
	}
}

// NoArgs is ExactArgs(0), with a message for commands that take no arguments.
func NoArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	return usageError(cmd, "accepts no arguments")
}

func usageError(cmd *cobra.Command, problem string) error {
	path := cmd.CommandPath()
	return fmt.Errorf("%q %s.\nSee \"%s --help\".\n\nUsage:  %s\n", path, problem, path, cmd.UseLine())
}

func pluralize(word string, number int) string {
	if number == 1 {
		return word
	}
	return word + "s"
}
