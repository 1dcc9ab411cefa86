package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/scrollstitch/internal/stitcher"
	"github.com/kiesman99/scrollstitch/internal/viewport/canvas"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Stitch the built-in demo grid",
	Long: `Capture an in-memory grid of coloured 50x50 cells through the full
tile pipeline. Useful for checking the planner and stitcher without a
browser; --verify compares the composite with a direct render.

Examples:
  scrollstitch demo -o demo.png
  scrollstitch demo --width 2500 --height 900 --viewport-width 300 --viewport-height 300 --verify`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().Int("width", 1000, "content width in pixels")
	demoCmd.Flags().Int("height", 1000, "content height in pixels")
	demoCmd.Flags().Bool("verify", false, "compare the composite with a direct render")

	cobra.CheckErr(viper.BindPFlag("demo.width", demoCmd.Flags().Lookup("width")))
	cobra.CheckErr(viper.BindPFlag("demo.height", demoCmd.Flags().Lookup("height")))
}

func runDemo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	opts, err := encodeOptions()
	if err != nil {
		return err
	}

	scene := canvas.NewGridScene(viper.GetInt("demo.width"), viper.GetInt("demo.height"))
	c, err := canvas.New(scene, viper.GetInt("viewport.width"), viper.GetInt("viewport.height"))
	if err != nil {
		return err
	}

	res, err := stitcher.New(stitcherOptions(logger)).Capture(ctx, c, c)
	if err != nil {
		return err
	}

	if verify, _ := cmd.Flags().GetBool("verify"); verify {
		want := c.Render()
		if !want.Rect.Eq(res.Image.Rect) {
			return fmt.Errorf("verify: composite is %v, render is %v", res.Image.Rect, want.Rect)
		}
		for i := range want.Pix {
			if want.Pix[i] != res.Image.Pix[i] {
				return fmt.Errorf("verify: composite differs from render at byte %d", i)
			}
		}
		logger.Info("verified", "size", fmt.Sprintf("%dx%d", res.Width, res.Height))
	}

	return writeResult(logger, res, opts)
}
