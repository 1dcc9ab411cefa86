package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/scrollstitch/internal/stitcher"
	"github.com/kiesman99/scrollstitch/internal/viewport/browser"
	"github.com/kiesman99/scrollstitch/pkg/tile"
)

var captureCmd = &cobra.Command{
	Use:   "capture <url>",
	Short: "Capture a full page (default command)",
	Long: `Load a page in headless Chrome, scroll it tile by tile, and stitch the
whole document into one image. The page is left at its original scroll
position afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().Bool("visible-only", false, "capture only what the viewport shows, without scrolling")
}

func runCapture(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	opts, err := encodeOptions()
	if err != nil {
		return err
	}

	m := browser.NewManager(browserConfig(logger))
	defer m.Close()

	if err := m.Start(ctx); err != nil {
		return err
	}

	page, err := m.Open(ctx, args[0], viper.GetInt("viewport.width"), viper.GetInt("viewport.height"))
	if err != nil {
		return err
	}
	defer page.Close()

	st := stitcher.New(stitcherOptions(logger))

	if visibleOnly, _ := cmd.Flags().GetBool("visible-only"); visibleOnly {
		img, err := st.Snapshot(ctx, page, page)
		if err != nil {
			return fmt.Errorf("snapshot %s: %w", args[0], err)
		}
		return tile.WriteFile(viper.GetString("output"), img, opts)
	}

	res, err := st.Capture(ctx, page, page)
	if err != nil {
		return fmt.Errorf("capture %s: %w", args[0], err)
	}

	return writeResult(logger, res, opts)
}
