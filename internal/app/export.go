package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	"yutai-ranker/internal/metrics"
	"yutai-ranker/internal/ranking"
	"yutai-ranker/internal/storage"
)

// ExportOptions hold parameters for exporting the ranking and price charts.
type ExportOptions struct {
	CSVPath  string
	XLSXPath string
	PNGPath  string
	// ChartCode selects the instrument drawn into the PNG.
	ChartCode string
	MaxPoints int
	Rank      RankOptions
}

// Export writes the ranking as CSV and/or XLSX and a price chart as PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.XLSXPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv, --xlsx or --png must be provided")
	}
	if opts.PNGPath != "" && opts.ChartCode == "" {
		return errors.New("--png requires --code")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	be, err := a.openBackend(ctx, false)
	if err != nil {
		return err
	}
	defer be.close()

	ranker := a.newRanker(be)
	periods := ranker.Periods()

	if opts.CSVPath != "" || opts.XLSXPath != "" {
		rows, err := ranker.Rank(ctx, opts.Rank.filters())
		if err != nil {
			return err
		}
		a.Logger.Info().Int("rows", len(rows)).Msg("exporting ranking")
		if opts.CSVPath != "" {
			if err := writeRankCSV(opts.CSVPath, rows, periods); err != nil {
				return err
			}
		}
		if opts.XLSXPath != "" {
			if err := writeRankXLSX(opts.XLSXPath, a.Config.Export.SheetName, rows, periods); err != nil {
				return err
			}
		}
	}

	if opts.PNGPath != "" {
		since := time.Now().AddDate(0, 0, -a.Config.Metrics.HistoryDays)
		samples, err := be.prices.ListPriceHistory(ctx, opts.ChartCode, since)
		if err != nil {
			return err
		}
		if len(samples) < 2 {
			a.Logger.Info().Str("code", opts.ChartCode).Msg("not enough price samples for a chart")
			return nil
		}
		period := 0
		if len(periods) > 0 {
			period = periods[0]
		}
		points := chartPoints(samples, period)
		if err := writePricePNG(opts.PNGPath, opts.ChartCode, period, downsample(points, opts.MaxPoints)); err != nil {
			return err
		}
	}

	return nil
}

type chartPoint struct {
	At    time.Time
	Price float64
	RSI   *float64
}

// chartPoints pairs every sample with the oscillator computed over the samples up to it.
func chartPoints(samples []storage.PriceSample, period int) []chartPoint {
	prices := storage.Prices(samples)
	points := make([]chartPoint, len(samples))
	for i, s := range samples {
		points[i] = chartPoint{At: s.SampledAt, Price: prices[i]}
		if period > 0 {
			points[i].RSI = metrics.RSI(prices[:i+1], period)
		}
	}
	return points
}

func downsample[T any](points []T, max int) []T {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]T, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeRankCSV(path string, rows []ranking.Row, periods []int) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(rankHeader(periods)); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(rankRecord(row, periods)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}

func writeRankXLSX(path, sheet string, rows []ranking.Row, periods []int) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if sheet == "" {
		sheet = "Ranking"
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := rankHeader(periods)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := xlsxValues(row, periods)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheet, "A", lastCol, 14); err != nil {
		return err
	}
	if len(rows) > 0 {
		if err := f.AutoFilter(sheet, fmt.Sprintf("A1:%s%d", lastCol, len(rows)+1), nil); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

// xlsxValues keeps numbers numeric so the sheet can sort and filter them.
func xlsxValues(row ranking.Row, periods []int) []any {
	text := rankRecord(row, periods)
	values := make([]any, len(text))
	for i, v := range text {
		values[i] = v
	}
	if row.HasPrice {
		values[1] = row.Price.InexactFloat64()
	}
	values[2] = row.Yield.DividendYieldPct.InexactFloat64()
	values[3] = row.Yield.BenefitYieldPct.InexactFloat64()
	values[4] = row.Yield.TotalYieldPct.InexactFloat64()
	values[5] = row.Yield.MinShares
	values[6] = row.Yield.Investment.InexactFloat64()
	values[7] = row.Yield.AnnualBenefitValue
	for i, p := range periods {
		if v := row.Oscillator(p); v != nil {
			values[11+i] = *v
		}
	}
	return values
}

func writePricePNG(path, code string, period int, points []chartPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	price := make([]float64, len(points))
	var rsiX []time.Time
	var rsi []float64
	for i, p := range points {
		x[i] = p.At
		price[i] = p.Price
		if p.RSI != nil {
			rsiX = append(rsiX, p.At)
			rsi = append(rsi, *p.RSI)
		}
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Price " + code,
			XValues: x,
			YValues: price,
		},
	}
	if len(rsi) > 1 {
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("RSI %d", period),
			XValues: rsiX,
			YValues: rsi,
			YAxis:   chart.YAxisSecondary,
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Price (JPY)",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		YAxisSecondary: chart.YAxis{
			Name:  "RSI",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
