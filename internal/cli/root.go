package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/chatterbox/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"       _           _   _            _               \n" +
		"   ___| |__   __ _| |_| |_ ___ _ __| |__   _____  __\n" +
		"  / __| '_ \\ / _` | __| __/ _ \\ '__| '_ \\ / _ \\ \\/ /\n" +
		" | (__| | | | (_| | |_| ||  __/ |  | |_) | (_) >  < \n" +
		"  \\___|_| |_|\\__,_|\\__|\\__\\___|_|  |_.__/ \\___/_/\\_\\\n"
)

var (
	logJSON  bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "chatterbox",
	Short: "chatterbox - personalities that take turns in chat",
	Long:  color.CyanString(logo) + "\nRuns several model-backed personalities in shared chat channels under one call budget.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rosterCmd)
	rootCmd.AddCommand(turnsCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(keysCmd)
}
