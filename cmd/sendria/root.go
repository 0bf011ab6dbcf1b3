package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/msztolcman/sendria/internal/logging"
)

var (
	configPath string
	pidFile    string
	verbose    bool

	mainlog logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sendria",
	Short: "development-time SMTP mail trap",
	Long:  `Accepts SMTP deliveries, stores them, and serves them back over a JSON HTTP API and WebSocket feed instead of relaying anywhere.`,
	Run:   serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML configuration file")
	rootCmd.PersistentFlags().StringVarP(&pidFile, "pid-file", "p", "", "path to write a PID file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print out more debug information")

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		var err error
		mainlog, err = logging.NewLogger("stderr")
		if err != nil {
			panic(err)
		}
		if verbose {
			mainlog.SetLevel(logrus.DebugLevel)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		mainlog.Fatal(err)
	}
}
