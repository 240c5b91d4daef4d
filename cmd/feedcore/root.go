package main

import (
	gorawrfeed "github.com/Keksclan/goRawrFeed"
	"github.com/spf13/cobra"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "feedcore",
	Short: "Drive the feed client core from the command line",
	Long: `feedcore runs a simulated feed session against the caching, retry and
storage layers, and inspects or repairs the durable key-value store.

Configuration is read from --config (YAML, JSON or TOML) and can be
overridden with RAWRFEED_* environment variables, e.g. RAWRFEED_BACKEND_KIND.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")
	rootCmd.AddCommand(demoCmd, storeCmd)
}

func loadConfig() (*gorawrfeed.Config, error) {
	return gorawrfeed.LoadConfig(cfgFile)
}
