package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/scrollstitch/internal/stitcher"
	"github.com/kiesman99/scrollstitch/internal/viewport/browser"
	"github.com/kiesman99/scrollstitch/pkg/tile"
)

var planCmd = &cobra.Command{
	Use:   "plan [url]",
	Short: "Print the tile grid for a page or content size",
	Long: `Show how a capture would be split into tiles: the scroll offset of every
tile and the part of its raster that ends up in the composite.

With --content the grid is computed offline for the configured viewport;
otherwise the page is loaded to read its geometry.

Examples:
  scrollstitch plan --content 250x100 --viewport-width 100 --viewport-height 100
  scrollstitch plan https://example.com`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().String("content", "", "content size as WIDTHxHEIGHT")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	content, _ := cmd.Flags().GetString("content")

	var grid *tile.Grid
	switch {
	case content != "":
		size, err := parseSize(content)
		if err != nil {
			return err
		}
		viewport := tile.Size{
			Width:  float64(viper.GetInt("viewport.width")),
			Height: float64(viper.GetInt("viewport.height")),
		}
		if grid, err = tile.Plan(viewport, size); err != nil {
			return err
		}

	case len(args) == 1:
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

		if grid, err = stitcher.New(stitcherOptions(logger)).Plan(ctx, page); err != nil {
			return err
		}

	default:
		return fmt.Errorf("either a url or --content is required")
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderPlan(grid))
	return nil
}

// parseSize parses "WIDTHxHEIGHT".
func parseSize(s string) (tile.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return tile.Size{}, fmt.Errorf("size must be WIDTHxHEIGHT, got %q", s)
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return tile.Size{}, fmt.Errorf("invalid width in %q: %v", s, err)
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return tile.Size{}, fmt.Errorf("invalid height in %q: %v", s, err)
	}
	return tile.Size{Width: width, Height: height}, nil
}

// renderPlan formats grid as a title line and a table with one row per tile.
func renderPlan(grid *tile.Grid) string {
	title := styleTitle.Render(fmt.Sprintf("%d x %d tiles", grid.Rows(), grid.Cols())) +
		styleDim.Render(fmt.Sprintf("  viewport %s, content %s", grid.Viewport, grid.Content))

	rows := make([][]string, 0, grid.Len())
	for _, row := range grid.Tiles {
		for _, t := range row {
			partial := ""
			if t.Partial(grid.Viewport) {
				partial = "yes"
			}
			rows = append(rows, []string{
				strconv.Itoa(t.Row),
				strconv.Itoa(t.Col),
				t.CaptureOffset.String(),
				fmt.Sprintf("%g,%g %gx%g", t.SourceRect.X, t.SourceRect.Y, t.SourceRect.Width, t.SourceRect.Height),
				partial,
			})
		}
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleDim).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		}).
		Headers("ROW", "COL", "OFFSET", "CROP", "PARTIAL").
		Rows(rows...)

	return title + "\n" + tbl.Render()
}
