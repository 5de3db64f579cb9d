package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "realm",
	Short: "Page runtime with a cache-first edge and a test harness bridge",
	Long: `realm races the Cache Store, the CDN and the authenticated origin for
every navigation and mounts the module the winning response names.

Configuration comes from .env, REALM_* variables and the YAML file given
with --config (or REALM_CONFIG).`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if configPath != "" {
			_ = os.Setenv("REALM_CONFIG", configPath)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
