// Package cli implements the assistant command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/portfolio-assistant/internal/intent"
	"github.com/ashureev/portfolio-assistant/internal/store"
)

var (
	libraryPath string
	dbPath      string
)

// NewRootCmd builds the top-level command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Portfolio assistant tools",
		Long:          "Chat with the portfolio assistant, inspect its classifier and manage its response library.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&libraryPath, "library", "l", "", "Response library file (default: $ASSISTANT_LIBRARY_PATH or the embedded library)")
	root.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $DB_PATH or ./data/assistant.db)")

	root.AddCommand(newChatCmd(), newClassifyCmd(), newLibraryCmd(), newVisitorsCmd(), newContactsCmd())
	return root
}

// Execute runs the CLI and reports errors on stderr.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func getLibraryPath() string {
	if libraryPath != "" {
		return libraryPath
	}
	return os.Getenv("ASSISTANT_LIBRARY_PATH")
}

func loadLibrary() (*intent.Library, error) {
	path := getLibraryPath()
	if path == "" {
		return intent.Embedded(), nil
	}
	return intent.LoadFile(path)
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("DB_PATH"); env != "" {
		return env
	}
	return "./data/assistant.db"
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLite(getDBPath())
}
