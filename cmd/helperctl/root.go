package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	var verbose bool
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	rootCmd := &cobra.Command{
		Use:   "helperctl",
		Short: "Operator tooling for the identity helper",
		Long: `helperctl generates key material, serves a development cryptography
oracle and inspects a document store without going through the helper.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetLevel(logrus.WarnLevel)
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(
		newKeygenCmd(),
		newOracleCmd(logger),
		newVersionsCmd(logger),
		newDocumentsCmd(logger),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
