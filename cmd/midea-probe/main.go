// Midea-probe is a thin command-line client for the LAN control core.
//
// It is an external consumer of the core library, not part of the
// protocol/session engine itself: discover finds devices on the local
// network, monitor opens control sessions against them and fans their
// status out to a terminal table or a browser dashboard, and identity
// exposes the cloud-lookup identifier derivation as a standalone tool.
//
// Usage:
//
//	midea-probe discover [flags]
//	midea-probe monitor [flags]
//	midea-probe identity <device-id> [flags]
//
// See 'midea-probe <command> --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/midealan/internal/logging"
	"github.com/muurk/midealan/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var logLevel string

var rootCmd = &cobra.Command{
	Use:     "midea-probe",
	Short:   "LAN discovery and control probe for consumer appliances",
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default silent")
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("midea-probe %s\n", version.Full())
	},
}
