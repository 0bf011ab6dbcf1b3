package main

import "github.com/spf13/cobra"

// Version, Commit and BuildTime are stamped via -ldflags at release build
// time; left at these defaults for source/go-run builds.
var (
	Version   = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the version info",
	Run: func(cmd *cobra.Command, args []string) {
		logVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func logVersion() {
	mainlog.WithField("version", Version).
		WithField("commit", Commit).
		WithField("buildTime", BuildTime).
		Info("sendria")
}
