package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/scrollstitch/internal/capture"
	"github.com/kiesman99/scrollstitch/internal/stitcher"
	"github.com/kiesman99/scrollstitch/internal/viewport/browser"
	"github.com/kiesman99/scrollstitch/pkg/tile"
)

// version is set at build time with -ldflags "-X ...cmd.version=...".
var version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scrollstitch [url]",
	Short: "Capture the full scrollable content of a page as one image",
	Long: `scrollstitch captures everything a scrollable view contains, not just the
visible part. It scrolls the view through a grid of viewport-sized tiles,
rasterizes each one, crops the partial tiles at the right and bottom edges,
and stitches the result into a single image of exactly the content size.

Pages are rendered in headless Chrome. The output is PNG, JPEG or TIFF.

Examples:
  # Capture a page to a PNG file
  scrollstitch https://example.com -o example.png

  # Capture with a phone-sized viewport as JPEG
  scrollstitch capture https://example.com --viewport-width 390 --viewport-height 844 -f jpeg -o page.jpg

  # Use an already running Chrome
  scrollstitch https://example.com --remote-url ws://127.0.0.1:9222/devtools/browser/... -o page.png

  # Show the tile grid for a 2500x1800 page in a 1280x800 viewport
  scrollstitch plan --content 2500x1800

  # Stitch the built-in demo grid, no browser needed
  scrollstitch demo -o demo.png

  # Start HTTP server
  scrollstitch serve --port 8080`,
	Version:      version,
	SilenceUsage: true,
	Args:         cobra.MaximumNArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := log.InfoLevel
		if verbose {
			level = log.DebugLevel
		}
		cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
	},
	// If no subcommand is specified and we have a URL, capture it
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runCapture(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.scrollstitch.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	// Output options
	pf.StringP("output", "o", "", "output file (default: stdout)")
	pf.StringP("format", "f", "png", "output format (png|jpeg|tiff)")
	pf.IntP("quality", "q", tile.DefaultJPEGQuality, "JPEG quality (1-100)")
	pf.Int("max-width", 0, "downscale the composite to at most this width (0 = off)")

	// Viewport and capture options
	pf.Int("viewport-width", 1280, "viewport width in pixels")
	pf.Int("viewport-height", 800, "viewport height in pixels")
	pf.Duration("settle", capture.DefaultSettle, "delay between scrolling and rasterizing each tile")
	pf.Int("attempts", capture.DefaultAttempts, "rasterize attempts per tile before failing")
	pf.Int("max-pixels", stitcher.DefaultMaxPixels, "largest content area to capture, in pixels")

	// Browser options
	pf.String("remote-url", "", "WebSocket URL of a running Chrome (default: launch headless Chrome)")
	pf.Bool("stealth", false, "hide automation fingerprints")
	pf.Duration("browser-timeout", 30*time.Second, "page navigation timeout")

	bind := map[string]string{
		"output":             "output",
		"format":             "format",
		"quality":            "quality",
		"max-width":          "max-width",
		"viewport.width":     "viewport-width",
		"viewport.height":    "viewport-height",
		"capture.settle":     "settle",
		"capture.attempts":   "attempts",
		"capture.max-pixels": "max-pixels",
		"browser.remote-url": "remote-url",
		"browser.stealth":    "stealth",
		"browser.timeout":    "browser-timeout",
	}
	for key, flag := range bind {
		cobra.CheckErr(viper.BindPFlag(key, pf.Lookup(flag)))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".scrollstitch")
	}

	// SCROLLSTITCH_VIEWPORT_WIDTH, SCROLLSTITCH_MAX_WIDTH, ...
	viper.SetEnvPrefix("scrollstitch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// stitcherOptions builds pipeline options from the capture settings.
func stitcherOptions(logger *log.Logger) stitcher.Options {
	return stitcher.Options{
		Settle:    viper.GetDuration("capture.settle"),
		Attempts:  viper.GetInt("capture.attempts"),
		Logger:    logger,
		MaxPixels: viper.GetInt("capture.max-pixels"),
		Progress: func(done, total int) {
			logger.Debug("tile captured", "done", done, "total", total)
		},
	}
}

// encodeOptions builds codec options from the output settings.
func encodeOptions() (tile.EncodeOptions, error) {
	format, err := tile.ParseFormat(viper.GetString("format"))
	if err != nil {
		return tile.EncodeOptions{}, err
	}

	quality := viper.GetInt("quality")
	if quality < 1 || quality > 100 {
		return tile.EncodeOptions{}, fmt.Errorf("quality must be between 1 and 100, got %d", quality)
	}

	maxWidth := viper.GetInt("max-width")
	if maxWidth < 0 {
		return tile.EncodeOptions{}, fmt.Errorf("max-width must not be negative")
	}

	return tile.EncodeOptions{Format: format, Quality: quality, MaxWidth: maxWidth}, nil
}

func browserConfig(logger *log.Logger) browser.Config {
	return browser.Config{
		RemoteURL:       viper.GetString("browser.remote-url"),
		Width:           viper.GetInt("viewport.width"),
		Height:          viper.GetInt("viewport.height"),
		Stealth:         viper.GetBool("browser.stealth"),
		NavigateTimeout: viper.GetDuration("browser.timeout"),
		Logger:          logger,
	}
}

// writeResult encodes the composite to the configured output.
func writeResult(logger *log.Logger, res *stitcher.Result, opts tile.EncodeOptions) error {
	output := viper.GetString("output")
	if err := tile.WriteFile(output, res.Image, opts); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if output != "" && output != "-" {
		logger.Info("wrote", "file", output, "format", opts.Format)
	}
	return nil
}
