package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpfielding/dzi.go/pkg/dzi"
	"github.com/jpfielding/dzi.go/pkg/logging"
	"github.com/jpfielding/dzi.go/pkg/rip"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rip",
		Short: "archive Deep Zoom tile trees as pyramid TIFFs",
		Long:  "rip converts a DZI pyramid (HTTP or local) into a single tiled JPEG-compressed pyramid TIFF",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")

			// Parse log level
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				level = slog.LevelInfo
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", err)
			}
			if logFile, _ := cmd.Flags().GetString("log-file"); logFile != "" {
				slog.SetDefault(logging.FileLogger(logFile, level))
			} else {
				slog.SetDefault(logging.Logger(os.Stdout, false, level))
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewRipCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-file", "", "rotate logs into this file instead of stdout")
	return cmd
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gitsha)
		},
	}
	return cmd
}

// NewRipCmd converts one source URI into a pyramid TIFF.
func NewRipCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rip <source-uri>",
		Short: "convert a DZI source into a pyramid TIFF",
		Long:  "fetch every tile of a DZI source once, re-tile it into a JPEG-compressed pyramid TIFF, then append half-resolution directories down to a single tile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			tileSize, _ := cmd.Flags().GetInt("tile-size")
			quality, _ := cmd.Flags().GetInt("quality")
			compression, _ := cmd.Flags().GetString("compression")
			noSoftware, _ := cmd.Flags().GetBool("no-software-field")
			sharedTables, _ := cmd.Flags().GetBool("use-shared-quantization-tables")
			retries, _ := cmd.Flags().GetInt("retries")
			interval, _ := cmd.Flags().GetDuration("retry-interval")

			src, err := dzi.Open(ctx, args[0], dzi.Options{
				Retries:       retries,
				RetryInterval: interval,
			})
			if err != nil {
				return err
			}
			defer src.Close()

			rctx := logging.AppendCtx(ctx, slog.String("source", src.ID()))
			slog.InfoContext(rctx, "source opened",
				"name", src.Name(),
				"width", src.Manifest().Size.Width,
				"height", src.Manifest().Size.Height,
				"format", src.Manifest().Format)

			ripper, err := rip.New(src, rip.Config{
				TileSize:          tileSize,
				Quality:           quality,
				Compression:       compression,
				SharedQuantTables: sharedTables,
				OmitSoftware:      noSoftware,
			}, rip.SlogProgress{Ctx: rctx})
			if err != nil {
				return err
			}

			start := time.Now()
			if err := ripper.Rip(rctx, output); err != nil {
				return fmt.Errorf("rip %s: %w", args[0], err)
			}
			m := ripper.Metrics()
			slog.InfoContext(rctx, "rip complete",
				"output", output,
				"fetches", m.Fetches,
				"retries", m.Retries,
				"tiles", m.Tiles,
				"bytes", m.Bytes,
				"elapsed", time.Since(start))
			return nil
		},
	}
	pf := cmd.Flags()
	pf.StringP("output", "o", "out.tif", "output TIFF path")
	pf.Int("tile-size", 256, "output tile side, positive multiple of 16")
	pf.Int("quality", 75, "JPEG quality 1-100")
	pf.String("compression", "jpeg", "tile codec (jpeg|deflate)")
	pf.Bool("no-software-field", false, "omit the Software tag")
	pf.Bool("use-shared-quantization-tables", false, "emit one JPEGTables field per directory instead of per-tile DQT")
	pf.Int("retries", 3, "fetch attempts per tile")
	pf.Duration("retry-interval", time.Second, "delay between fetch attempts")
	return cmd
}
