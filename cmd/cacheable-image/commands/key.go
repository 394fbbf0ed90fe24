package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/cacheable-image/internal/config"
	"github.com/vertextoedge/cacheable-image/internal/domain/vo"
)

var keyCmd = &cobra.Command{
	Use:   "key <uri>...",
	Short: "Print the cache path a URI maps to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, uri := range args {
			key, err := vo.DeriveCacheKey(uri)
			if err != nil {
				return fmt.Errorf("%s: %w", uri, err)
			}
			fmt.Fprintf(out, "%s\t%s\n", uri, key.Path(cfg.Cache.RootDir))
		}
		return nil
	},
}
