package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/echoflaresat/subscale"
	"github.com/echoflaresat/subscale/colors"
	"github.com/echoflaresat/subscale/decoder"
	"github.com/echoflaresat/subscale/pyramid"
	"github.com/echoflaresat/subscale/render"
)

type config struct {
	in, out             *string
	width, height       *int
	scale, cx, cy       *float64
	rotation            *float64
	orientation         *int
	region              *string
	tileSize, workers   *int
	coarse, debug, fast *bool
	bg                  *string
	timeout             *time.Duration
	verbose, showHelp   *bool
}

func defineFlags() config {
	return config{
		in:  flag.String("in", "", "Input image (TIFF, PNG, JPEG, BMP or WebP)"),
		out: flag.String("out", "view.png", "Output PNG file path"),

		width:  flag.Int("width", 1280, "View width in pixels"),
		height: flag.Int("height", 800, "View height in pixels"),

		scale:       flag.Float64("scale", 0, "View scale; 0 fits the image to the view"),
		cx:          flag.Float64("cx", math.NaN(), "Source x shown at the view centre; defaults to the image centre"),
		cy:          flag.Float64("cy", math.NaN(), "Source y shown at the view centre; defaults to the image centre"),
		rotation:    flag.Float64("rotation", 0, "Free view rotation in degrees"),
		orientation: flag.Int("orientation", 0, "Image orientation: 0, 90, 180 or 270"),
		region:      flag.String("region", "", "Show only x0,y0,x1,y1 of the file"),

		tileSize: flag.Int("tile", 2048, "Maximum decoded tile size in pixels"),
		workers:  flag.Int("workers", 0, "Decode workers; 0 uses all cores"),
		coarse:   flag.Bool("coarse", false, "Load the base layer at the fit level instead of one finer"),
		timeout:  flag.Duration("timeout", time.Minute, "Give up waiting for tiles after this long"),

		bg:    flag.String("bg", "#000000", "Background colour"),
		debug: flag.Bool("debug", false, "Tint tiles by their level"),
		fast:  flag.Bool("fast", false, "Nearest neighbour filtering"),

		verbose:  flag.Bool("v", false, "Verbose logging"),
		showHelp: flag.Bool("h", false, "Show this help message"),
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `subscale - render a view of a large image

Usage:
  %[1]s -in image.tif [options]

`, os.Args[0])

	printGroup("View Options", []string{"width", "height", "scale", "cx", "cy", "rotation", "orientation", "region"})
	printGroup("Loading Options", []string{"tile", "workers", "coarse", "timeout"})
	printGroup("Rendering Options", []string{"bg", "debug", "fast"})
	printGroup("Input/Output", []string{"in", "out"})
	printGroup("Misc", []string{"v", "h"})
}

func printGroup(title string, keys []string) {
	fmt.Fprintf(os.Stderr, "%s:\n", title)
	for _, name := range keys {
		if f := flag.Lookup(name); f != nil {
			fmt.Fprintf(os.Stderr, "  -%-12s %s (default %q)\n", f.Name, f.Usage, f.DefValue)
		}
	}
	fmt.Fprintln(os.Stderr)
}

func main() {
	cfg := defineFlags()
	flag.Usage = printHelp
	flag.Parse()

	if *cfg.showHelp || *cfg.in == "" {
		printHelp()
		return
	}

	level := slog.LevelInfo
	if *cfg.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	orientation, err := pyramid.ParseOrientation(*cfg.orientation)
	if err != nil {
		log.Fatal(err)
	}
	bg, err := colors.Parse(*cfg.bg)
	if err != nil {
		log.Fatalf("Invalid background: %v", err)
	}
	src := subscale.File(*cfg.in)
	if *cfg.region != "" {
		r, err := parseRegion(*cfg.region)
		if err != nil {
			log.Fatal(err)
		}
		src = src.WithRegion(r)
	}

	start := time.Now()
	img, frame, failed, err := renderView(cfg, src, orientation, logger)
	if err != nil {
		log.Fatal(err)
	}
	if failed > 0 {
		slog.Warn("some tiles failed to decode", "count", failed)
	}

	renderer := render.New()
	renderer.Background = bg
	renderer.Debug = *cfg.debug
	if *cfg.fast {
		renderer.Interpolator = draw.NearestNeighbor
	}
	renderer.Draw(img, frame)

	if err := writePNG(*cfg.out, img); err != nil {
		log.Fatalf("Failed to write PNG: %v", err)
	}
	slog.Info("rendered view",
		"out", *cfg.out,
		"source", frame.SourceSize,
		"sample_size", frame.TargetSampleSize,
		"tiles", len(frame.Tiles),
		"elapsed", time.Since(start).Round(time.Millisecond))
}

// renderView opens the image, positions the view and waits until the tiles
// it needs are decoded.
func renderView(cfg config, src subscale.ImageSource, o pyramid.Orientation, logger *slog.Logger) (*image.NRGBA, subscale.Frame, int, error) {
	var failed atomic.Int32
	conf := subscale.DefaultConfig()
	conf.MaxTileSize = image.Pt(*cfg.tileSize, *cfg.tileSize)
	conf.Workers = *cfg.workers
	conf.CoarseBaseLayer = *cfg.coarse
	conf.Logger = logger
	conf.Listener = subscale.Listener{
		OnTileLoadError: func(*decoder.TileDecodeError) {
			failed.Add(1)
		},
	}

	view := subscale.New(conf)
	defer view.Close()

	view.SetViewSize(*cfg.width, *cfg.height)
	if err := view.SetImage(src, subscale.WithState(subscale.ViewState{Orientation: o})); err != nil {
		return nil, subscale.Frame{}, 0, err
	}

	if *cfg.scale > 0 || !math.IsNaN(*cfg.cx) || !math.IsNaN(*cfg.cy) {
		state, _ := view.State()
		scale := state.Scale
		if *cfg.scale > 0 {
			scale = *cfg.scale
		}
		center := state.Center
		if !math.IsNaN(*cfg.cx) {
			center.X = *cfg.cx
		}
		if !math.IsNaN(*cfg.cy) {
			center.Y = *cfg.cy
		}
		view.SetScaleAndCenter(scale, center)
	}
	if *cfg.rotation != 0 {
		s := view.Transform().State
		view.SetViewport(s.Scale, s.Translate, *cfg.rotation*math.Pi/180)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *cfg.timeout)
	defer cancel()
	if err := view.WaitIdle(ctx); err != nil {
		return nil, subscale.Frame{}, 0, fmt.Errorf("waiting for tiles: %w", err)
	}

	frame := view.Frame()
	return image.NewNRGBA(image.Rectangle{Max: frame.ViewSize}), frame, int(failed.Load()), nil
}

func parseRegion(s string) (image.Rectangle, error) {
	var r image.Rectangle
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &r.Min.X, &r.Min.Y, &r.Max.X, &r.Max.Y); err != nil {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
	}
	r = r.Canon()
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: empty", s)
	}
	return r, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(f, img)
}
