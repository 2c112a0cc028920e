package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pathmap/internal/config"
	"github.com/matzehuels/pathmap/pkg/observability"
	"github.com/matzehuels/pathmap/pkg/plate"
	"github.com/matzehuels/pathmap/pkg/sink"
	"github.com/matzehuels/pathmap/pkg/track"
)

// renderOpts holds the flags of the render command that are not config keys.
type renderOpts struct {
	output          string // PDF path, default <track>.pdf
	pngDir          string // write PNGs instead of a PDF
	title           string // PDF title, default the track file name
	noRotate        bool
	noCache         bool
	metricsTextfile string
}

// renderBindings maps config keys to the render flags overriding them.
var renderBindings = map[string]string{
	"render.radius_pix": "radius",
	"render.path_color": "color",
	"render.dpi":        "dpi",
	"tiles.provider":    "provider",
	"tiles.url":         "url",
	"tiles.zoom":        "zoom",
	"tiles.workers":     "workers",
	"cache.backend":     "cache",
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [track]",
		Short: "Render the map along a GPX or GeoJSON track",
		Long: `Render cuts the map corridor along a track into plates and writes them
to an A4 PDF, or to numbered PNG files with --png-dir.`,
		Example: `  pathmap render ride.gpx
  pathmap render ride.gpx -o ride-topo.pdf --provider opentopomap
  pathmap render walk.geojson --png-dir plates/ --no-rotate`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeTrack,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd, renderBindings)
			if err != nil {
				return err
			}
			if opts.noRotate {
				cfg.Render.Rotate = false
			}
			return c.runRender(cmd.Context(), cfg, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output PDF (default: track name with .pdf)")
	cmd.Flags().StringVar(&opts.pngDir, "png-dir", "", "write plates as PNG files into this directory")
	cmd.Flags().StringVar(&opts.title, "title", "", "PDF document title")
	cmd.Flags().BoolVar(&opts.noRotate, "no-rotate", false, "keep every plate north-up")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "fetch every tile from the server")
	cmd.Flags().StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file when done")

	cmd.Flags().Int("radius", 0, "corridor half-width in pixels")
	cmd.Flags().String("color", "", `path colour, "none" to leave the path undrawn`)
	cmd.Flags().Float64("dpi", 0, "print density of the PDF")
	cmd.Flags().String("provider", "", "tile provider: mapy-turist, osm, opentopomap")
	cmd.Flags().String("url", "", "custom tile URL template with {z}, {x}, {y}")
	cmd.Flags().Int("zoom", 0, "zoom level of a custom provider")
	cmd.Flags().Int("workers", 0, "parallel tile downloads (1 = sequential)")
	cmd.Flags().String("cache", "", "cache backend: file, redis, none")

	return cmd
}

// outputPath derives the PDF path: the track name with its extension
// replaced by .pdf unless output is given.
func outputPath(output, input string) string {
	if output != "" {
		return output
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".pdf"
}

// runRender reads the track, draws its plates and writes them to a sink.
func (c *CLI) runRender(ctx context.Context, cfg *config.Config, input string, opts renderOpts) error {
	prog := newProgress(c.Logger)

	if opts.metricsTextfile != "" {
		m := observability.NewMetrics(prometheus.NewRegistry())
		m.Install()
		defer observability.Reset()
		defer func() {
			if err := m.WriteTextfile(opts.metricsTextfile); err != nil {
				c.Logger.Warn("write metrics", "path", opts.metricsTextfile, "err", err)
			}
		}()
	}

	points, err := track.ReadFile(input)
	if err != nil {
		return err
	}
	c.Logger.Debug("track loaded", "file", input, "points", len(points))

	env, err := c.newEnvironment(ctx, cfg, opts.noCache, c.pipelineLogger())
	if err != nil {
		return err
	}
	defer env.Close()

	stream, err := env.runner.Plates(ctx, points, cfg.PipelineOptions())
	if err != nil {
		return err
	}

	var (
		out   sink.Sink
		pdf   *sink.PDF
		pngs  *sink.PNGDir
		where string
	)
	if opts.pngDir != "" {
		if pngs, err = sink.NewPNGDir(opts.pngDir); err != nil {
			stream.Stop(ctx, err)
			return err
		}
		out, where = pngs, opts.pngDir
	} else {
		where = outputPath(opts.output, input)
		title := opts.title
		if title == "" {
			title = filepath.Base(input)
		}
		if pdf, err = sink.NewPDFFile(where, cfg.PDFOptions(env.provider, title)); err != nil {
			stream.Stop(ctx, err)
			return err
		}
		out = pdf
	}

	var meter *plateMeter
	if !c.verbose() {
		meter = newPlateMeter(ctx, os.Stderr, filepath.Base(input))
		meter.Start()
	}
	err = stream.Each(ctx, func(p plate.Plate) error {
		if meter != nil {
			meter.Plate(p.Index + 1)
		}
		return out.WritePlate(p)
	})
	if meter != nil {
		meter.Stop()
	}
	if err != nil {
		if aerr := out.Abort(); aerr != nil {
			c.Logger.Warn("discard output", "path", where, "err", aerr)
		}
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	files, pages := []string{where}, 0
	if pdf != nil {
		pages = pdf.Pages()
	} else {
		files = pngs.Files()
	}
	printRendered(filepath.Base(input), files, stream.Count(), pages, prog.elapsed())
	c.Logger.Debug("render done", "run", stream.RunID(), "output", where)
	return nil
}
