// Voxd is the voice capture-to-commitment daemon.
//
// It records conversation sessions, persists captured audio locally,
// extracts structured commitments from transcripts, suggests
// conflict-aware calendar slots, and manages the commitment lifecycle
// against the product backend.
//
// Usage:
//
//	# Start the daemon with the default config file
//	voxd serve
//
//	# Start with an explicit config file
//	voxd serve --config /etc/voxd/config.yaml
//
//	# Show version information
//	voxd version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "voxd",
	Short: "Voice capture-to-commitment daemon",
	Long: `voxd records conversation sessions, extracts structured commitments
from their transcripts, and schedules them onto the owner's calendar.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the voxd daemon",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("voxd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.config/voxd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
