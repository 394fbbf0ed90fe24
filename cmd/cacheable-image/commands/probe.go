package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/domain/vo"
)

var probeCmd = &cobra.Command{
	Use:   "probe <uri>...",
	Short: "Check whether URIs are cached without downloading",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, uri := range args {
			key, err := vo.DeriveCacheKey(uri)
			if err != nil {
				return fmt.Errorf("%s: %w", uri, err)
			}
			result := a.prober.Probe(cmd.Context(), key)
			line := fmt.Sprintf("%s\t%s\t%s", uri, result.Kind, result.Path)
			if result.Kind != domain.ProbeMiss {
				line += "\t" + humanize.Bytes(uint64(result.Size))
			}
			if result.Err != nil {
				line += "\t" + result.Err.Error()
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}
