package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags during release builds.
var Version = "dev"

var (
	controlHost  string
	controlPort  int
	controlToken string
)

var rootCmd = &cobra.Command{
	Use:     "vdctl",
	Short:   "A concurrent video/file download engine",
	Long:    "vdctl runs the download engine daemon (plain/chunked/HLS transports, resumable, priority-queued) and drives it from the command line.",
	Version: Version,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controlHost, "host", "127.0.0.1", "control API host")
	rootCmd.PersistentFlags().IntVar(&controlPort, "port", 4444, "control API port")
	rootCmd.PersistentFlags().StringVar(&controlToken, "token", os.Getenv("VDENGINE_CONTROL_TOKEN"), "control API auth token")
	rootCmd.SetVersionTemplate("vdctl version {{.Version}}\n")
}

func controlBaseURL() string {
	return fmt.Sprintf("http://%s:%d", controlHost, controlPort)
}
