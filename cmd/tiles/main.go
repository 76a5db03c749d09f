package main

import (
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/echoflaresat/subscale/decoder"
	"github.com/echoflaresat/subscale/pyramid"
)

type config struct {
	in, out, merge *string
	sampleSize     *int
	tileSize, jobs *int
	verbose        *bool
	showHelp       *bool
}

func defineFlags() config {
	return config{
		in:    flag.String("in", "", "Input image"),
		out:   flag.String("out", "tiles", "Output directory for tile PNGs"),
		merge: flag.String("merge", "", "Also stitch the level into this PNG or JPEG"),

		sampleSize: flag.Int("sample", 4, "Sample size of the exported level (power of two)"),
		tileSize:   flag.Int("tile", 1024, "Maximum decoded tile size in pixels"),
		jobs:       flag.Int("j", runtime.NumCPU(), "Tiles decoded concurrently"),

		verbose:  flag.Bool("v", false, "Verbose logging"),
		showHelp: flag.Bool("h", false, "Show this help message"),
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `tiles - export one level of an image's tile pyramid

Usage:
  %[1]s -in image.tif [options]

`, os.Args[0])

	printGroup("Level Options", []string{"sample", "tile", "j"})
	printGroup("Input/Output", []string{"in", "out", "merge"})
	printGroup("Misc", []string{"v", "h"})
}

func printGroup(title string, keys []string) {
	fmt.Fprintf(os.Stderr, "%s:\n", title)
	for _, name := range keys {
		if f := flag.Lookup(name); f != nil {
			fmt.Fprintf(os.Stderr, "  -%-8s %s (default %q)\n", f.Name, f.Usage, f.DefValue)
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

	if !pyramid.IsPowerOfTwo(*cfg.sampleSize) {
		log.Fatalf("Invalid sample size %d: must be a power of two", *cfg.sampleSize)
	}
	if err := os.MkdirAll(*cfg.out, 0755); err != nil {
		log.Fatalf("Could not create %s: %v", *cfg.out, err)
	}

	pool := decoder.NewPool(
		decoder.FileFactory(decoder.WithFileLogger(logger)),
		decoder.WithLogger(logger),
	)
	defer pool.Recycle()

	size, err := pool.Init(decoder.FileSource(*cfg.in))
	if err != nil {
		log.Fatalf("Could not open %q: %v", *cfg.in, err)
	}

	maxTile := image.Pt(*cfg.tileSize, *cfg.tileSize)
	p, err := pyramid.Build(size, *cfg.sampleSize, maxTile, image.Point{})
	if err != nil {
		log.Fatal(err)
	}
	tiles := p.BaseLayer()

	var (
		mu     sync.Mutex
		canvas *image.NRGBA
	)
	if *cfg.merge != "" {
		s := *cfg.sampleSize
		canvas = image.NewNRGBA(image.Rect(0, 0, (size.X+s-1)/s, (size.Y+s-1)/s))
	}

	start := time.Now()
	slog.Info("exporting level", "size", size, "sample_size", *cfg.sampleSize, "tiles", len(tiles))

	var g errgroup.Group
	g.SetLimit(max(*cfg.jobs, 1))
	for _, t := range tiles {
		rect, s := t.SourceRect, t.SampleSize
		name := filepath.Join(*cfg.out, fmt.Sprintf("%d_%d_%d.png", s, t.Row, t.Col))
		g.Go(func() error {
			img, err := pool.DecodeRegion(rect, s)
			if err != nil {
				return fmt.Errorf("tile %v: %w", rect, err)
			}
			if err := writePNG(name, img); err != nil {
				return fmt.Errorf("writing %s: %w", name, err)
			}
			slog.Debug("wrote tile", "path", name, "rect", rect)

			if canvas != nil {
				at := rect.Min.Div(s)
				mu.Lock()
				draw.Draw(canvas, img.Bounds().Sub(img.Bounds().Min).Add(at), img, img.Bounds().Min, draw.Src)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}

	if canvas != nil {
		save(*cfg.merge, canvas)
	}
	slog.Info("done", "tiles", len(tiles), "decoders", pool.Size(), "elapsed", time.Since(start).Round(time.Millisecond))
}

func save(output string, canvas *image.NRGBA) {
	slog.Info("writing merged level", "path", output)
	outFile, err := os.Create(output)
	if err != nil {
		log.Fatalf("Could not create %s: %v", output, err)
	}
	defer outFile.Close()

	ext := strings.ToLower(filepath.Ext(output))
	switch ext {
	case ".png":
		if err := png.Encode(outFile, canvas); err != nil {
			log.Fatalf("Failed to encode PNG: %v", err)
		}
	case ".jpg", ".jpeg":
		opts := jpeg.Options{Quality: 95}
		if err := jpeg.Encode(outFile, canvas, &opts); err != nil {
			log.Fatalf("Failed to encode JPEG: %v", err)
		}
	default:
		log.Fatalf("Unsupported output format: %s", ext)
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return (&png.Encoder{CompressionLevel: png.BestSpeed}).Encode(f, img)
}
