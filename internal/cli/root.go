// Package cli implements the nfectl command line tool.
//
// nfectl runs the same parser and ledger as the panel over files on disk,
// which is handy for checking a batch of XMLs before anyone drops them:
//
//	nfectl ingest ./xml                 # every *.xml under ./xml, as a table
//	nfectl ingest -o yaml a.xml b.xml   # two files, YAML output
//	nfectl ingest --strict ./xml        # exit status 1 if any file fails
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JonMunkholm/nfe-panel/internal/config"
	"github.com/JonMunkholm/nfe-panel/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version and BuildDate are set at build time with -ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

// NewRootCmd builds the command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "nfectl",
		Short: "Parse NF-e XML files the way the panel does",
		Long: `nfectl parses NF-e XML documents with the panel's parser and ledger.

Files are parsed concurrently and inserted in the order given, so the
output shows the same entries, duplicates and errors the panel would.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := os.Getenv("LOG_LEVEL")
			if verbose {
				level = "debug"
			}
			slog.SetDefault(logging.New(stderr, level, os.Getenv("LOG_FORMAT")))
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging on stderr")

	root.AddCommand(newIngestCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs nfectl and exits with status 1 on error.
func Execute() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	root := NewRootCmd(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadUploadConfig reads the upload settings shared with the server.
func loadUploadConfig() (config.UploadConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.UploadConfig{}, fmt.Errorf("load configuration: %w", err)
	}
	return cfg.Upload, nil
}
