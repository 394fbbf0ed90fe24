// Package commands implements the cacheable-image CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cacheable-image",
	Short: "Disk cache for remote images",
	Long: `cacheable-image resolves image sources to something drawable: a cached
file for remote URIs, a local asset, or a default source while the remote
image is still loading or could not be fetched.

Remote images are stored under <cache.root_dir>/<host>/<sha1(path)>.<ext>
and are downloaded at most once while a valid copy exists.

All configuration options can be overridden with environment variables
named CACHEABLE_IMAGE_<SECTION>_<KEY>, e.g. CACHEABLE_IMAGE_LOGGING_LEVEL=debug.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
