package main

import (
	"context"
	"errors"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"bitslicer/internal/models"
	"bitslicer/pkg/config"
	"bitslicer/pkg/decoder"
	"bitslicer/pkg/preprocess"
	"bitslicer/pkg/relay"
	"bitslicer/pkg/storage"
	"bitslicer/pkg/visualization"
)

const defaultConfig = "bitslicer.yaml"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) *log.Logger {
	logger := log.New(io.Discard, "", 0)
	if c.Bool("verbose") {
		logger.SetOutput(os.Stderr)
	}
	return logger
}

// loadConfig reads the global config file and applies the flags of the
// running command on top of it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("variant") {
		cfg.Pipeline.Variant = c.String("variant")
	}
	if c.IsSet("url") {
		cfg.Relay.URL = c.String("url")
	}
	if c.IsSet("store") {
		cfg.Storage.Driver = c.String("store")
	}
	if c.IsSet("store-path") {
		cfg.Storage.Path = c.String("store-path")
	}
	if c.IsSet("debug") {
		cfg.Debug.Enabled = c.Bool("debug")
	}
	if c.IsSet("debug-dir") {
		cfg.Debug.Dir = c.String("debug-dir")
	}
	if c.IsSet("cores") {
		cfg.Processing.NumCores = c.Int("cores")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDecoder(cfg *config.Config, variant preprocess.Variant, logger *log.Logger) (*decoder.Decoder, error) {
	bg, err := preprocess.ParseBackground(cfg.Pipeline.Background)
	if err != nil {
		return nil, err
	}
	opts := preprocess.Options{
		Sigma:      cfg.Pipeline.Sigma,
		Truncate:   cfg.Pipeline.Truncate,
		Background: bg,
	}

	g := decoder.Geometry{
		Top:        cfg.Geometry.Top,
		Bottom:     cfg.Geometry.Bottom,
		Left:       cfg.Geometry.Left,
		BitWidth:   cfg.Geometry.BitWidth,
		InsetStart: cfg.Geometry.InsetStart,
		InsetEnd:   cfg.Geometry.InsetEnd,
		Count:      cfg.Geometry.Count,
	}

	return decoder.New(g, preprocess.ForVariant(variant, opts), logger)
}

func runRelay(c *cli.Context) error {
	logger := newLogger(c)

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if cfg.Relay.URL == "" {
		return cli.Exit("no relay url configured", 1)
	}

	variant, err := preprocess.ParseVariant(cfg.Pipeline.Variant)
	if err != nil {
		return cli.Exit(err, 1)
	}

	protocols := cfg.Relay.Protocols
	if len(protocols) == 0 {
		protocols = []string{variant.Protocol()}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	ws, err := relay.Dial(ctx, cfg.Relay.URL, cfg.Relay.Origin, protocols)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer ws.Close()

	if v, ok := preprocess.VariantForProtocol(ws.Protocol()); ok && v != variant {
		logger.Printf("Server pinned variant %s", v)
		variant = v
	}

	dec, err := newDecoder(cfg, variant, logger)
	if err != nil {
		return cli.Exit(err, 1)
	}

	sink, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.Compress)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer sink.Close()

	opts := []relay.Option{
		relay.WithSink(sink),
		relay.WithLogger(logger),
		relay.WithHandshake(cfg.Relay.Handshake),
		relay.WithOutput(os.Stdout),
	}
	if cfg.Debug.Enabled {
		opts = append(opts, relay.WithDumper(visualization.NewDumper(cfg.Debug.Dir)))
	}

	logger.Printf("Connected to %s using %s", cfg.Relay.URL, dec.Pipeline())

	err = relay.New(ws, dec, opts...).Run(ctx)
	fmt.Println()
	switch {
	case errors.Is(err, relay.ErrClosed), errors.Is(err, context.Canceled):
		return nil
	case err != nil:
		return cli.Exit(err, 1)
	}
	return nil
}

func runDecode(c *cli.Context) error {
	if c.NArg() < 1 {
		cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
	}

	logger := newLogger(c)

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, 1)
	}

	variant, err := preprocess.ParseVariant(cfg.Pipeline.Variant)
	if err != nil {
		return cli.Exit(err, 1)
	}

	dec, err := newDecoder(cfg, variant, logger)
	if err != nil {
		return cli.Exit(err, 1)
	}

	var observe decoder.Observer
	if cfg.Debug.Enabled {
		dumper := visualization.NewDumper(cfg.Debug.Dir)
		observe = func(index int, path string, res *models.Result, slices []models.Slice) error {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if c.NArg() > 1 {
				name = fmt.Sprintf("%d_%s", index, name)
			}
			return dumper.Dump(name, res, slices)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	start := time.Now()
	results := dec.DecodeFiles(ctx, c.Args().Slice(), cfg.Processing.NumCores, observe)
	elapsed := time.Since(start)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Path, r.Err)
			failed++
			continue
		}
		if len(results) == 1 {
			fmt.Printf("%c\n", r.Result.Char)
		} else {
			fmt.Printf("%s: %c\n", r.Path, r.Result.Char)
		}
	}

	if c.Bool("timing") {
		fmt.Printf("Took %s\n", elapsed)
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed", failed, len(results)), 1)
	}
	return nil
}

func main() {
	app := cli.NewApp()

	app.Name = "bitslicer"
	app.Usage = "Decode bit-slice modulation frames"
	app.Version = "1.0.0"

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			EnvVars: []string{"BITSLICER_CONFIG"},
			Value:   defaultConfig,
			Usage:   "path to configuration file",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	variantFlag := &cli.StringFlag{
		Name:  "variant",
		Usage: "pre-processing variant, blur or composite",
	}
	debugDirFlag := &cli.StringFlag{
		Name:  "debug-dir",
		Usage: "directory for debug artifacts",
	}

	app.Commands = []*cli.Command{
		{
			Name:        "relay",
			Usage:       "Connect to a relay and answer every frame",
			Description: "Sends the handshake, then replies to each binary frame with its decoded character until the server closes the connection.",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "url",
					EnvVars: []string{"BITSLICER_URL"},
					Usage:   "WebSocket URL of the relay",
				},
				variantFlag,
				&cli.StringFlag{
					Name:  "store",
					Usage: "frame storage, none, dir or sqlite",
				},
				&cli.StringFlag{
					Name:  "store-path",
					Usage: "directory or database file for stored frames",
				},
				&cli.BoolFlag{
					Name:  "debug",
					Usage: "dump slices, diffs and scores for every frame",
				},
				debugDirFlag,
			},
			Action: runRelay,
		},
		{
			Name:      "decode",
			Usage:     "Decode frames from image files",
			ArgsUsage: "FILE...",
			Flags: []cli.Flag{
				variantFlag,
				&cli.IntFlag{
					Name:  "cores",
					Usage: "number of files decoded concurrently",
				},
				&cli.BoolFlag{
					Name:  "debug",
					Usage: "dump slices, diffs and scores for every file",
				},
				debugDirFlag,
				&cli.BoolFlag{
					Name:  "timing",
					Usage: "print the elapsed time",
				},
			},
			Action: runDecode,
		},
		{
			Name:      "init-config",
			Usage:     "Write the default configuration",
			ArgsUsage: "[PATH]",
			Action: func(c *cli.Context) error {
				path := c.String("config")
				if c.NArg() > 0 {
					path = c.Args().First()
				}
				if err := config.CreateDefaultConfigFile(path); err != nil {
					return cli.Exit(err, 1)
				}
				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
