package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/cacheable-image/internal/domain"
	"github.com/vertextoedge/cacheable-image/internal/service/coordinator"
)

var (
	fetchDefault      string
	fetchDefaultAsset string
	fetchWait         time.Duration
	fetchConcurrency  int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <uri>...",
	Short: "Resolve sources into the cache",
	Long: `Resolve each source the way the server would: probe the cache, download
on a miss or corrupt entry, and print the resulting render mode.

Arguments that are not http(s) URIs are treated as local assets.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDefault, "default", "", "default source URI rendered when a source is not cached")
	fetchCmd.Flags().StringVar(&fetchDefaultAsset, "default-asset", "", "default local asset rendered when a source is not cached")
	fetchCmd.Flags().DurationVar(&fetchWait, "wait", 30*time.Second, "how long to wait for each source")
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 4, "sources resolved in parallel")
}

// fetchResult is the outcome of resolving one argument
type fetchResult struct {
	source string
	state  coordinator.State
	mode   domain.RenderMode
	err    error
}

func runFetch(cmd *cobra.Command, args []string) error {
	if fetchConcurrency < 1 {
		return errors.New("--concurrency must be at least 1")
	}

	a, err := newApp(appOptions{index: true})
	if err != nil {
		return err
	}
	defer a.Close()

	def := sourceFrom(fetchDefault, fetchDefaultAsset)
	results := make([]fetchResult, len(args))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(fetchConcurrency)
	for i, arg := range args {
		g.Go(func() error {
			results[i] = resolveOne(ctx, a, arg, def)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed := 0
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tPHASE\tRENDER\tDETAIL")
	for _, r := range results {
		detail := ""
		switch {
		case r.err != nil:
			detail = r.err.Error()
		case r.state.Err != nil:
			detail = r.state.Err.Error()
		case r.state.Phase == coordinator.PhaseRemoteCached:
			if info, err := os.Stat(r.state.CachedImagePath); err == nil {
				detail = humanize.Bytes(uint64(info.Size()))
			}
		}
		if r.state.Phase == coordinator.PhaseRemoteFailed || r.err != nil {
			failed++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.source, r.state.Phase, describe(r.mode), detail)
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d sources could not be cached", failed, len(results))
	}
	return nil
}

// resolveOne drives a coordinator for arg until it settles or the wait ends
func resolveOne(ctx context.Context, a *app, arg string, def domain.ImageSource) fetchResult {
	c := a.newCoordinator()
	defer c.Close()

	src := domain.RemoteSource(arg)
	if !src.IsRemote() {
		src = domain.LocalSource(arg)
	}
	if !def.IsZero() {
		c.SetDefaultSource(def)
	}
	c.SetSource(src)

	waitCtx, cancel := context.WithTimeout(ctx, fetchWait)
	defer cancel()
	mode, err := c.WaitAll(waitCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("still %s after %s", c.State().Phase, fetchWait)
	}
	return fetchResult{source: src.String(), state: c.State(), mode: mode, err: err}
}

// describe renders a mode on one line
func describe(m domain.RenderMode) string {
	switch m.Kind {
	case domain.RenderCached:
		return m.Path
	case domain.RenderLocal:
		return "asset:" + m.Asset
	case domain.RenderDefault:
		if m.Fallback != nil {
			return "default -> " + describe(*m.Fallback)
		}
	}
	return string(m.Kind)
}

// sourceFrom builds a source from a uri or, failing that, an asset name
func sourceFrom(uri, asset string) domain.ImageSource {
	if uri != "" {
		return domain.RemoteSource(uri)
	}
	return domain.LocalSource(asset)
}
