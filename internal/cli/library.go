package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/portfolio-assistant/internal/intent"
)

func newLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Inspect the response library",
	}

	validate := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a response library file",
		Long:  "Check that a library parses, covers every intent and compiles. Without a file the --library flag or the embedded library is checked.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				lib  *intent.Library
				err  error
				name = "embedded library"
			)
			switch {
			case len(args) == 1:
				name = args[0]
				lib, err = intent.LoadFile(args[0])
			case getLibraryPath() != "":
				name = getLibraryPath()
				lib, err = intent.LoadFile(name)
			default:
				lib = intent.Embedded()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d rules, %d intents, %d quick actions)\n",
				name, len(lib.Rules), len(lib.Responses), len(lib.QuickActions))
			return nil
		},
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the embedded library as a starting point for an override file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(intent.DefaultYAML())
			return err
		},
	}

	cmd.AddCommand(validate, dump)
	return cmd
}
