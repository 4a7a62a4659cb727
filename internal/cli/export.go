package cli

import (
	"github.com/spf13/cobra"

	"yutai-ranker/internal/app"
)

var (
	exportPNGPath   string
	exportCSVPath   string
	exportXLSXPath  string
	exportCode      string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export [code...]",
	Short: "Export the ranking as CSV/XLSX and a price chart as PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		rank, err := rankOptions(cmd, args)
		if err != nil {
			return err
		}
		opts := app.ExportOptions{
			CSVPath:   exportCSVPath,
			XLSXPath:  exportXLSXPath,
			PNGPath:   exportPNGPath,
			ChartCode: exportCode,
			MaxPoints: exportMaxPoints,
			Rank:      rank,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	addRankFlags(exportCmd)
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write the ranking as CSV")
	exportCmd.Flags().StringVar(&exportXLSXPath, "xlsx", "", "Path to write the ranking as an Excel workbook")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write the price chart")
	exportCmd.Flags().StringVar(&exportCode, "code", "", "Code drawn into the PNG chart")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum chart points (defaults to config)")
}
